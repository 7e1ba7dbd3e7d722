package model

import "github.com/ethereum/go-ethereum/common"

// Receipt records the outcome of a committed operation. Amounts are encoded
// as JSON strings so that uint64 values survive consumers that parse numbers
// as float64.
type Receipt struct {
	Operation   Operation      `json:"operation"`
	Pool        common.Address `json:"pool"`
	Caller      common.Address `json:"caller"`
	AmountX     uint64         `json:"amount_x,string"`
	AmountY     uint64         `json:"amount_y,string"`
	Shares      uint64         `json:"shares,string"`
	XToY        bool           `json:"x_to_y,omitempty"`
	AmountIn    uint64         `json:"amount_in,string"`
	AmountOut   uint64         `json:"amount_out,string"`
	Fee         uint64         `json:"fee,string"`
	Reserves    Reserves       `json:"reserves"`
	TotalShares uint64         `json:"total_shares,string"`
	FeeBps      uint16         `json:"fee_bps"`
	Locked      bool           `json:"locked"`
	Authority   common.Address `json:"authority"`
	RecordedAt  string         `json:"recorded_at"`
}
