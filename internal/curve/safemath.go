package curve

import (
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"
)

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

// Sub returns a-b or ErrOverflow when b > a.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d", ErrOverflow, a, b)
	}
	return diff, nil
}

// mulDiv computes a*b/d with a 256-bit intermediate product, rounding up when
// roundUp is set and down otherwise.
func mulDiv(a, b, d uint64, roundUp bool) (uint64, error) {
	if d == 0 {
		return 0, fmt.Errorf("%w: division by zero", ErrInvalidAmount)
	}
	var num, den, quo, rem uint256.Int
	num.Mul(uint256.NewInt(a), uint256.NewInt(b))
	den.SetUint64(d)
	quo.DivMod(&num, &den, &rem)
	if roundUp && !rem.IsZero() {
		quo.AddUint64(&quo, 1)
	}
	if !quo.IsUint64() {
		return 0, fmt.Errorf("%w: %d * %d / %d", ErrOverflow, a, b, d)
	}
	return quo.Uint64(), nil
}
