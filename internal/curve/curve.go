// Package curve implements constant-product pool math over 64-bit integer
// amounts. Every function is pure; rounding always favours the pool.
package curve

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// ShareDecimals is the decimal precision of pool shares.
	ShareDecimals = 6
	// BasisPoints is the fee denominator.
	BasisPoints = 10_000
)

// Amounts is a pair of reserve asset quantities.
type Amounts struct {
	X uint64
	Y uint64
}

// SwapResult is the outcome of pricing a swap.
type SwapResult struct {
	AmountIn    uint64 // transferred into the pool
	AmountInNet uint64 // priced on the curve
	Fee         uint64 // AmountIn - AmountInNet
	AmountOut   uint64
	ReserveIn   uint64 // post-trade
	ReserveOut  uint64 // post-trade
}

// DepositAmounts returns what a depositor pays for shares. An empty pool takes
// the caller's maxima as-is so the first depositor sets the price; otherwise
// each leg is ceil(reserve * shares / totalShares).
func DepositAmounts(reserveX, reserveY, totalShares, shares, maxX, maxY uint64) (Amounts, error) {
	if shares == 0 {
		return Amounts{}, fmt.Errorf("%w: zero shares", ErrInvalidAmount)
	}
	if totalShares == 0 {
		return Amounts{X: maxX, Y: maxY}, nil
	}
	x, err := mulDiv(reserveX, shares, totalShares, true)
	if err != nil {
		return Amounts{}, fmt.Errorf("deposit x: %w", err)
	}
	y, err := mulDiv(reserveY, shares, totalShares, true)
	if err != nil {
		return Amounts{}, fmt.Errorf("deposit y: %w", err)
	}
	return Amounts{X: x, Y: y}, nil
}

// WithdrawAmounts returns floor(reserve * shares / totalShares) per leg.
func WithdrawAmounts(reserveX, reserveY, totalShares, shares uint64) (Amounts, error) {
	if shares == 0 {
		return Amounts{}, fmt.Errorf("%w: zero shares", ErrInvalidAmount)
	}
	if totalShares == 0 {
		return Amounts{}, fmt.Errorf("%w: pool has no shares", ErrInvalidAmount)
	}
	if shares > totalShares {
		return Amounts{}, fmt.Errorf("%w: %d shares exceeds supply %d", ErrInvalidAmount, shares, totalShares)
	}
	x, err := mulDiv(reserveX, shares, totalShares, false)
	if err != nil {
		return Amounts{}, fmt.Errorf("withdraw x: %w", err)
	}
	y, err := mulDiv(reserveY, shares, totalShares, false)
	if err != nil {
		return Amounts{}, fmt.Errorf("withdraw y: %w", err)
	}
	return Amounts{X: x, Y: y}, nil
}

// Swap prices amountIn against the reserves. The fee is taken from the input
// before the curve is applied and stays in the pool.
func Swap(reserveIn, reserveOut uint64, feeBps uint16, amountIn, minOut uint64) (SwapResult, error) {
	if feeBps > BasisPoints {
		return SwapResult{}, fmt.Errorf("%w: %d", ErrInvalidFee, feeBps)
	}
	if amountIn == 0 {
		return SwapResult{}, fmt.Errorf("%w: zero input", ErrInvalidAmount)
	}
	if reserveIn == 0 || reserveOut == 0 {
		return SwapResult{}, fmt.Errorf("%w: pool has no liquidity", ErrInvalidAmount)
	}

	net, err := mulDiv(amountIn, BasisPoints-uint64(feeBps), BasisPoints, false)
	if err != nil {
		return SwapResult{}, err
	}
	if net == 0 {
		return SwapResult{}, fmt.Errorf("%w: input %d is consumed by fee", ErrInvalidAmount, amountIn)
	}

	// reserveIn+net fits: net <= amountIn and the full amountIn must also fit.
	newIn, err := Add(reserveIn, amountIn)
	if err != nil {
		return SwapResult{}, fmt.Errorf("swap reserve in: %w", err)
	}
	denom := new(uint256.Int).AddUint64(uint256.NewInt(reserveIn), net)
	num := new(uint256.Int).Mul(uint256.NewInt(reserveOut), uint256.NewInt(net))
	out := new(uint256.Int).Div(num, denom).Uint64() // < reserveOut

	if out == 0 {
		return SwapResult{}, fmt.Errorf("%w: zero output", ErrInvalidAmount)
	}
	if out < minOut {
		return SwapResult{}, fmt.Errorf("%w: out %d < min %d", ErrSlippageExceeded, out, minOut)
	}
	return SwapResult{
		AmountIn:    amountIn,
		AmountInNet: net,
		Fee:         amountIn - net,
		AmountOut:   out,
		ReserveIn:   newIn,
		ReserveOut:  reserveOut - out,
	}, nil
}

// Invariant returns k = x * y.
func Invariant(reserveX, reserveY uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(reserveX), uint256.NewInt(reserveY))
}

// CheckShares reports ErrInvariantViolated unless totalShares is zero exactly
// when both reserves are zero, and a funded pool holds both assets.
func CheckShares(reserveX, reserveY, totalShares uint64) error {
	empty := reserveX == 0 && reserveY == 0
	switch {
	case totalShares == 0 && !empty:
		return fmt.Errorf("%w: reserves (%d, %d) without shares", ErrInvariantViolated, reserveX, reserveY)
	case totalShares != 0 && (reserveX == 0 || reserveY == 0):
		return fmt.Errorf("%w: %d shares backed by reserves (%d, %d)", ErrInvariantViolated, totalShares, reserveX, reserveY)
	}
	return nil
}
