package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PoolConfig holds the pool configuration. Only FeeBps, Locked and Authority
// change after creation.
type PoolConfig struct {
	Seed      uint64         `json:"seed,string"`
	Authority common.Address `json:"authority"`
	AssetX    common.Address `json:"asset_x"`
	AssetY    common.Address `json:"asset_y"`
	FeeBps    uint16         `json:"fee_bps"`
	Locked    bool           `json:"locked"`
	PoolBump  uint8          `json:"pool_bump"`
	ShareBump uint8          `json:"share_bump"`
}

// Reserves is the pair of asset balances held by a pool.
type Reserves struct {
	X uint64 `json:"x,string"`
	Y uint64 `json:"y,string"`
}

// Directional returns the reserves as (in, out) for a swap direction.
func (r Reserves) Directional(xToY bool) (uint64, uint64) {
	if xToY {
		return r.X, r.Y
	}
	return r.Y, r.X
}

// FromDirectional is the inverse of Directional.
func FromDirectional(xToY bool, in, out uint64) Reserves {
	if xToY {
		return Reserves{X: in, Y: out}
	}
	return Reserves{X: out, Y: in}
}

// Pool is the persisted pool record.
type Pool struct {
	Address     common.Address `json:"address"`
	ShareMint   common.Address `json:"share_mint"`
	Config      PoolConfig     `json:"config"`
	Reserves    Reserves       `json:"reserves"`
	TotalShares uint64         `json:"total_shares,string"`
	AssetXMeta  *AssetMeta     `json:"asset_x_meta,omitempty"`
	AssetYMeta  *AssetMeta     `json:"asset_y_meta,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IsEmpty reports whether the pool holds no liquidity.
func (p Pool) IsEmpty() bool {
	return p.TotalShares == 0 && p.Reserves.X == 0 && p.Reserves.Y == 0
}

// Assets returns the (in, out) asset ids for a swap direction.
func (p Pool) Assets(xToY bool) (common.Address, common.Address) {
	if xToY {
		return p.Config.AssetX, p.Config.AssetY
	}
	return p.Config.AssetY, p.Config.AssetX
}
