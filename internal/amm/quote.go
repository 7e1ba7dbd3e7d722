package amm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/curve"
	"cpamm/internal/model"
)

// QuoteDeposit returns what Deposit would charge for shares right now.
func (e *Engine) QuoteDeposit(ctx context.Context, pool common.Address, shares, maxX, maxY uint64) (curve.Amounts, error) {
	p, err := e.quotable(ctx, pool)
	if err != nil {
		return curve.Amounts{}, err
	}
	return curve.DepositAmounts(p.Reserves.X, p.Reserves.Y, p.TotalShares, shares, maxX, maxY)
}

// QuoteWithdraw returns what Withdraw would pay out for shares right now.
func (e *Engine) QuoteWithdraw(ctx context.Context, pool common.Address, shares uint64) (curve.Amounts, error) {
	p, err := e.quotable(ctx, pool)
	if err != nil {
		return curve.Amounts{}, err
	}
	return curve.WithdrawAmounts(p.Reserves.X, p.Reserves.Y, p.TotalShares, shares)
}

// QuoteSwap prices a swap without a slippage bound.
func (e *Engine) QuoteSwap(ctx context.Context, pool common.Address, xToY bool, amountIn uint64) (curve.SwapResult, error) {
	p, err := e.quotable(ctx, pool)
	if err != nil {
		return curve.SwapResult{}, err
	}
	in, out := p.Reserves.Directional(xToY)
	return curve.Swap(in, out, p.Config.FeeBps, amountIn, 0)
}

func (e *Engine) quotable(ctx context.Context, addr common.Address) (model.Pool, error) {
	p, err := e.Pool(ctx, addr)
	if err != nil {
		return model.Pool{}, err
	}
	if p.Config.Locked {
		return model.Pool{}, fmt.Errorf("%w: %s", ErrPoolLocked, addr.Hex())
	}
	return p, nil
}
