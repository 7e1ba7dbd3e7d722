// Package amm runs pool operations against a transactional store.
package amm

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cpamm/internal/curve"
	"cpamm/internal/identity"
	"cpamm/internal/model"
)

// Options configures an Engine. Zero values are replaced with defaults:
// signature checking, no journal, no observer, a no-op logger, time.Now.
type Options struct {
	Authorizer Authorizer
	Journal    Journal
	Observer   Observer
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Engine validates requests, prices them on the curve and applies the result
// to the store in one transaction.
type Engine struct {
	store    Store
	auth     Authorizer
	journal  Journal
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine returns an engine over store. Zero-valued options get the
// defaults described on Options.
func NewEngine(store Store, opts Options) *Engine {
	e := &Engine{
		store:    store,
		auth:     opts.Authorizer,
		journal:  opts.Journal,
		observer: opts.Observer,
		logger:   opts.Logger,
		now:      opts.Clock,
	}
	if e.auth == nil {
		e.auth = identity.SignatureAuthorizer{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

type opFunc func(ctx context.Context, tx Tx, now time.Time) (model.Receipt, model.Pool, error)

// execute authorises req, runs fn in a store transaction and reports the
// outcome. Journal and observer run only after commit.
func (e *Engine) execute(ctx context.Context, req model.Request, fn opFunc) (model.Receipt, model.Pool, error) {
	op := req.Operation()
	if err := e.auth.Authorize(ctx, req); err != nil {
		return e.reject(op, req.Principal(), err)
	}

	var (
		receipt model.Receipt
		pool    model.Pool
	)
	now := e.now().UTC()
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		r, p, err := fn(ctx, tx, now)
		if err != nil {
			return err
		}
		receipt, pool = r, p
		return nil
	})
	if err != nil {
		return e.reject(op, req.Principal(), err)
	}

	receipt.RecordedAt = now.Format(time.RFC3339Nano)
	if e.journal != nil {
		if err := e.journal.Record(ctx, receipt); err != nil {
			e.logger.Warn("journal receipt failed", zap.String("op", string(op)), zap.String("pool", pool.Address.Hex()), zap.Error(err))
		}
	}
	if e.observer != nil {
		e.observer.Observe(receipt, pool)
	}
	e.logger.Info("operation committed",
		zap.String("op", string(op)),
		zap.String("pool", pool.Address.Hex()),
		zap.String("caller", req.Principal().Hex()),
		zap.Uint64("reserve_x", pool.Reserves.X),
		zap.Uint64("reserve_y", pool.Reserves.Y),
		zap.Uint64("total_shares", pool.TotalShares),
	)
	return receipt, pool, nil
}

func (e *Engine) reject(op model.Operation, caller common.Address, err error) (model.Receipt, model.Pool, error) {
	kind := ErrorKind(err)
	if e.observer != nil {
		e.observer.ObserveFailure(op, kind)
	}
	e.logger.Debug("operation rejected",
		zap.String("op", string(op)),
		zap.String("caller", caller.Hex()),
		zap.String("kind", kind),
		zap.Error(err),
	)
	return model.Receipt{}, model.Pool{}, fmt.Errorf("%s: %w", op, err)
}

// Initialize creates an empty pool owned by the caller.
func (e *Engine) Initialize(ctx context.Context, req *model.InitializeRequest) (model.Pool, error) {
	_, pool, err := e.execute(ctx, req, func(ctx context.Context, tx Tx, now time.Time) (model.Receipt, model.Pool, error) {
		if req.AssetX == req.AssetY {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("%w: %s", ErrIdenticalAssets, req.AssetX.Hex())
		}
		if req.FeeBps > curve.BasisPoints {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("%w: %d", ErrInvalidFee, req.FeeBps)
		}
		addr, poolBump, err := identity.PoolAddress(req.AssetX, req.AssetY, req.Seed)
		if err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		mint, shareBump, err := identity.ShareMintAddress(addr)
		if err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		pool := model.Pool{
			Address:   addr,
			ShareMint: mint,
			Config: model.PoolConfig{
				Seed:      req.Seed,
				Authority: req.Caller,
				AssetX:    req.AssetX,
				AssetY:    req.AssetY,
				FeeBps:    req.FeeBps,
				Locked:    req.Locked,
				PoolBump:  poolBump,
				ShareBump: shareBump,
			},
			AssetXMeta: req.AssetXMeta,
			AssetYMeta: req.AssetYMeta,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertPool(ctx, pool); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		return newReceipt(model.OpInitialize, req.Caller, pool), pool, nil
	})
	return pool, err
}

// Deposit mints req.Shares to the caller against reserve contributions.
func (e *Engine) Deposit(ctx context.Context, req *model.DepositRequest) (model.Receipt, error) {
	receipt, _, err := e.execute(ctx, req, func(ctx context.Context, tx Tx, now time.Time) (model.Receipt, model.Pool, error) {
		pool, err := loadUnlocked(ctx, tx, req.Pool)
		if err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		if req.Shares == 0 {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("%w: zero shares", ErrInvalidAmount)
		}
		if pool.TotalShares == 0 && (req.MaxX == 0 || req.MaxY == 0) {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("%w: first deposit must fund both reserves", ErrInvalidAmount)
		}

		amounts, err := curve.DepositAmounts(pool.Reserves.X, pool.Reserves.Y, pool.TotalShares, req.Shares, req.MaxX, req.MaxY)
		if err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		if amounts.X > req.MaxX || amounts.Y > req.MaxY {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("%w: need (%d, %d), max (%d, %d)",
				ErrSlippageExceeded, amounts.X, amounts.Y, req.MaxX, req.MaxY)
		}

		next := pool
		if next.Reserves.X, err = curve.Add(pool.Reserves.X, amounts.X); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		if next.Reserves.Y, err = curve.Add(pool.Reserves.Y, amounts.Y); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		if next.TotalShares, err = curve.Add(pool.TotalShares, req.Shares); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		if err := checkTransition(model.OpDeposit, pool, next); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}

		ledger := tx.Ledger()
		if err := ledger.Transfer(ctx, pool.Config.AssetX, req.Caller, pool.Address, amounts.X); err != nil {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("transfer x: %w", err)
		}
		if err := ledger.Transfer(ctx, pool.Config.AssetY, req.Caller, pool.Address, amounts.Y); err != nil {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("transfer y: %w", err)
		}
		if err := ledger.Mint(ctx, pool.ShareMint, req.Caller, req.Shares); err != nil {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("mint shares: %w", err)
		}

		next.UpdatedAt = now
		if err := tx.SavePool(ctx, next); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		receipt := newReceipt(model.OpDeposit, req.Caller, next)
		receipt.AmountX, receipt.AmountY, receipt.Shares = amounts.X, amounts.Y, req.Shares
		return receipt, next, nil
	})
	return receipt, err
}

// Withdraw burns req.Shares from the caller and pays out the pro-rata
// reserves.
func (e *Engine) Withdraw(ctx context.Context, req *model.WithdrawRequest) (model.Receipt, error) {
	receipt, _, err := e.execute(ctx, req, func(ctx context.Context, tx Tx, now time.Time) (model.Receipt, model.Pool, error) {
		pool, err := loadUnlocked(ctx, tx, req.Pool)
		if err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		if req.Shares == 0 {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("%w: zero shares", ErrInvalidAmount)
		}
		if req.MinX == 0 || req.MinY == 0 {
			return model.Receipt{}, model.Pool{}, ErrInvalidMinAmount
		}

		amounts, err := curve.WithdrawAmounts(pool.Reserves.X, pool.Reserves.Y, pool.TotalShares, req.Shares)
		if err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		if amounts.X < req.MinX || amounts.Y < req.MinY {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("%w: get (%d, %d), min (%d, %d)",
				ErrSlippageExceeded, amounts.X, amounts.Y, req.MinX, req.MinY)
		}

		next := pool
		if next.Reserves.X, err = curve.Sub(pool.Reserves.X, amounts.X); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		if next.Reserves.Y, err = curve.Sub(pool.Reserves.Y, amounts.Y); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		if next.TotalShares, err = curve.Sub(pool.TotalShares, req.Shares); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		if err := checkTransition(model.OpWithdraw, pool, next); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}

		ledger := tx.Ledger()
		if err := ledger.Transfer(ctx, pool.Config.AssetX, pool.Address, req.Caller, amounts.X); err != nil {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("transfer x: %w", err)
		}
		if err := ledger.Transfer(ctx, pool.Config.AssetY, pool.Address, req.Caller, amounts.Y); err != nil {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("transfer y: %w", err)
		}
		if err := ledger.Burn(ctx, pool.ShareMint, req.Caller, req.Shares); err != nil {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("burn shares: %w", err)
		}

		next.UpdatedAt = now
		if err := tx.SavePool(ctx, next); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		receipt := newReceipt(model.OpWithdraw, req.Caller, next)
		receipt.AmountX, receipt.AmountY, receipt.Shares = amounts.X, amounts.Y, req.Shares
		return receipt, next, nil
	})
	return receipt, err
}

// Swap trades req.AmountIn of one reserve asset for the other. The pool is
// funded before it pays out.
func (e *Engine) Swap(ctx context.Context, req *model.SwapRequest) (model.Receipt, error) {
	receipt, _, err := e.execute(ctx, req, func(ctx context.Context, tx Tx, now time.Time) (model.Receipt, model.Pool, error) {
		pool, err := loadUnlocked(ctx, tx, req.Pool)
		if err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		if req.AmountIn == 0 {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("%w: zero input", ErrInvalidAmount)
		}

		reserveIn, reserveOut := pool.Reserves.Directional(req.XToY)
		res, err := curve.Swap(reserveIn, reserveOut, pool.Config.FeeBps, req.AmountIn, req.MinAmountOut)
		if err != nil {
			return model.Receipt{}, model.Pool{}, err
		}

		next := pool
		next.Reserves = model.FromDirectional(req.XToY, res.ReserveIn, res.ReserveOut)
		if err := checkTransition(model.OpSwap, pool, next); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}

		assetIn, assetOut := pool.Assets(req.XToY)
		ledger := tx.Ledger()
		if err := ledger.Transfer(ctx, assetIn, req.Caller, pool.Address, res.AmountIn); err != nil {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("transfer in: %w", err)
		}
		if err := ledger.Transfer(ctx, assetOut, pool.Address, req.Caller, res.AmountOut); err != nil {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("transfer out: %w", err)
		}

		next.UpdatedAt = now
		if err := tx.SavePool(ctx, next); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		receipt := newReceipt(model.OpSwap, req.Caller, next)
		receipt.XToY = req.XToY
		receipt.AmountIn, receipt.AmountOut, receipt.Fee = res.AmountIn, res.AmountOut, res.Fee
		return receipt, next, nil
	})
	return receipt, err
}

// UpdateConfig applies the supplied configuration fields. Only the current
// authority may call it, including while the pool is locked.
func (e *Engine) UpdateConfig(ctx context.Context, req *model.UpdateConfigRequest) (model.Pool, error) {
	_, pool, err := e.execute(ctx, req, func(ctx context.Context, tx Tx, now time.Time) (model.Receipt, model.Pool, error) {
		pool, err := tx.LoadPool(ctx, req.Pool)
		if err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		if req.Caller != pool.Config.Authority {
			return model.Receipt{}, model.Pool{}, fmt.Errorf("%w: %s", ErrInvalidConfigAuthority, req.Caller.Hex())
		}

		next := pool
		if req.FeeBps != nil {
			if *req.FeeBps > curve.BasisPoints {
				return model.Receipt{}, model.Pool{}, fmt.Errorf("%w: %d", ErrInvalidFee, *req.FeeBps)
			}
			next.Config.FeeBps = *req.FeeBps
		}
		if req.Locked != nil {
			next.Config.Locked = *req.Locked
		}
		if req.Authority != nil {
			if *req.Authority == (common.Address{}) {
				return model.Receipt{}, model.Pool{}, fmt.Errorf("%w: zero address", ErrInvalidConfigAuthority)
			}
			next.Config.Authority = *req.Authority
		}
		if err := checkTransition(model.OpUpdateConfig, pool, next); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}

		next.UpdatedAt = now
		if err := tx.SavePool(ctx, next); err != nil {
			return model.Receipt{}, model.Pool{}, err
		}
		return newReceipt(model.OpUpdateConfig, req.Caller, next), next, nil
	})
	return pool, err
}

// Pool returns the committed state of a pool.
func (e *Engine) Pool(ctx context.Context, addr common.Address) (model.Pool, error) {
	var pool model.Pool
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.LoadPool(ctx, addr)
		if err != nil {
			return err
		}
		pool = p
		return nil
	})
	return pool, err
}

// Balance returns owner's committed balance of asset.
func (e *Engine) Balance(ctx context.Context, asset, owner common.Address) (uint64, error) {
	var bal uint64
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.Ledger().Balance(ctx, asset, owner)
		if err != nil {
			return err
		}
		bal = b
		return nil
	})
	return bal, err
}

func loadUnlocked(ctx context.Context, tx Tx, addr common.Address) (model.Pool, error) {
	pool, err := tx.LoadPool(ctx, addr)
	if err != nil {
		return model.Pool{}, err
	}
	if pool.Config.Locked {
		return model.Pool{}, fmt.Errorf("%w: %s", ErrPoolLocked, addr.Hex())
	}
	return pool, nil
}

func newReceipt(op model.Operation, caller common.Address, pool model.Pool) model.Receipt {
	return model.Receipt{
		Operation:   op,
		Pool:        pool.Address,
		Caller:      caller,
		Reserves:    pool.Reserves,
		TotalShares: pool.TotalShares,
		FeeBps:      pool.Config.FeeBps,
		Locked:      pool.Config.Locked,
		Authority:   pool.Config.Authority,
	}
}
