package amm

import (
	"errors"

	"cpamm/internal/curve"
	"cpamm/internal/identity"
)

var (
	ErrInvalidAmount     = curve.ErrInvalidAmount
	ErrSlippageExceeded  = curve.ErrSlippageExceeded
	ErrInvalidFee        = curve.ErrInvalidFee
	ErrOverflow          = curve.ErrOverflow
	ErrInvariantViolated = curve.ErrInvariantViolated
	ErrUnauthorized      = identity.ErrUnauthorized

	ErrInvalidMinAmount       = errors.New("minimum amount must be non-zero")
	ErrPoolLocked             = errors.New("pool is locked")
	ErrInvalidConfigAuthority = errors.New("caller is not the pool authority")
	ErrAlreadyInitialized     = errors.New("pool already initialized")
	ErrPoolNotFound           = errors.New("pool not found")
	ErrIdenticalAssets        = errors.New("pool assets must differ")
	ErrInsufficientBalance    = errors.New("insufficient balance")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrPoolLocked, "pool_locked"},
	{ErrInvalidMinAmount, "invalid_min_amount"},
	{ErrSlippageExceeded, "slippage_exceeded"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidConfigAuthority, "invalid_config_authority"},
	{ErrAlreadyInitialized, "already_initialized"},
	{ErrPoolNotFound, "pool_not_found"},
	{ErrIdenticalAssets, "identical_assets"},
	{ErrInvalidFee, "invalid_fee"},
	{ErrOverflow, "overflow"},
	{ErrInvariantViolated, "invariant_violated"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrUnauthorized, "unauthorized"},
}

// ErrorKind maps an error to a short label for metrics. Unknown errors are
// "internal".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
