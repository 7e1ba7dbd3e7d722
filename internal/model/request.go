package model

import "github.com/ethereum/go-ethereum/common"

// Operation names a pool state transition.
type Operation string

const (
	OpInitialize   Operation = "initialize"
	OpDeposit      Operation = "deposit"
	OpWithdraw     Operation = "withdraw"
	OpSwap         Operation = "swap"
	OpUpdateConfig Operation = "update_config"
)

// Request is implemented by every operation request. SigningPayload lists the
// fields covered by the caller's signature, in a fixed order.
type Request interface {
	Operation() Operation
	Principal() common.Address
	SigningPayload() []interface{}
	Sig() []byte
}

// InitializeRequest creates a pool. The caller becomes its authority.
type InitializeRequest struct {
	Caller    common.Address
	Seed      uint64
	Locked    bool
	FeeBps    uint16
	AssetX    common.Address
	AssetY    common.Address
	Signature []byte

	// Display metadata, not covered by the signature.
	AssetXMeta *AssetMeta
	AssetYMeta *AssetMeta
}

func (r *InitializeRequest) Operation() Operation      { return OpInitialize }
func (r *InitializeRequest) Principal() common.Address { return r.Caller }
func (r *InitializeRequest) Sig() []byte               { return r.Signature }

func (r *InitializeRequest) SigningPayload() []interface{} {
	return []interface{}{r.Caller, r.Seed, r.Locked, r.FeeBps, r.AssetX, r.AssetY}
}

// DepositRequest mints Shares to the caller in exchange for at most MaxX and
// MaxY of the reserve assets.
type DepositRequest struct {
	Caller    common.Address
	Pool      common.Address
	Shares    uint64
	MaxX      uint64
	MaxY      uint64
	Signature []byte
}

func (r *DepositRequest) Operation() Operation      { return OpDeposit }
func (r *DepositRequest) Principal() common.Address { return r.Caller }
func (r *DepositRequest) Sig() []byte               { return r.Signature }

func (r *DepositRequest) SigningPayload() []interface{} {
	return []interface{}{r.Caller, r.Pool, r.Shares, r.MaxX, r.MaxY}
}

// WithdrawRequest burns Shares from the caller for at least MinX and MinY.
type WithdrawRequest struct {
	Caller    common.Address
	Pool      common.Address
	Shares    uint64
	MinX      uint64
	MinY      uint64
	Signature []byte
}

func (r *WithdrawRequest) Operation() Operation      { return OpWithdraw }
func (r *WithdrawRequest) Principal() common.Address { return r.Caller }
func (r *WithdrawRequest) Sig() []byte               { return r.Signature }

func (r *WithdrawRequest) SigningPayload() []interface{} {
	return []interface{}{r.Caller, r.Pool, r.Shares, r.MinX, r.MinY}
}

// SwapRequest trades AmountIn of one reserve asset for at least MinAmountOut
// of the other.
type SwapRequest struct {
	Caller       common.Address
	Pool         common.Address
	XToY         bool
	AmountIn     uint64
	MinAmountOut uint64
	Signature    []byte
}

func (r *SwapRequest) Operation() Operation      { return OpSwap }
func (r *SwapRequest) Principal() common.Address { return r.Caller }
func (r *SwapRequest) Sig() []byte               { return r.Signature }

func (r *SwapRequest) SigningPayload() []interface{} {
	return []interface{}{r.Caller, r.Pool, r.XToY, r.AmountIn, r.MinAmountOut}
}

// UpdateConfigRequest changes the supplied configuration fields; nil fields
// keep their current value.
type UpdateConfigRequest struct {
	Caller    common.Address
	Pool      common.Address
	Locked    *bool
	FeeBps    *uint16
	Authority *common.Address
	Signature []byte
}

func (r *UpdateConfigRequest) Operation() Operation      { return OpUpdateConfig }
func (r *UpdateConfigRequest) Principal() common.Address { return r.Caller }
func (r *UpdateConfigRequest) Sig() []byte               { return r.Signature }

// SigningPayload encodes presence flags next to each optional field so that
// "unset" and "set to the zero value" sign differently.
func (r *UpdateConfigRequest) SigningPayload() []interface{} {
	var (
		locked    bool
		fee       uint16
		authority common.Address
	)
	if r.Locked != nil {
		locked = *r.Locked
	}
	if r.FeeBps != nil {
		fee = *r.FeeBps
	}
	if r.Authority != nil {
		authority = *r.Authority
	}
	return []interface{}{
		r.Caller, r.Pool,
		r.Locked != nil, locked,
		r.FeeBps != nil, fee,
		r.Authority != nil, authority,
	}
}
