package curve

import "errors"

var (
	// ErrInvalidAmount is returned when a zero or degenerate quantity is supplied or computed.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrSlippageExceeded is returned when a computed amount violates a caller bound.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrInvalidFee is returned for fee rates above 100%.
	ErrInvalidFee = errors.New("fee exceeds 10000 basis points")
	// ErrOverflow is returned when a result does not fit in 64 bits.
	ErrOverflow = errors.New("arithmetic overflow")
	// ErrInvariantViolated is returned when reserves and share supply disagree.
	ErrInvariantViolated = errors.New("pool invariant violated")
)
