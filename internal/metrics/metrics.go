// Package metrics exports pool activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"cpamm/internal/model"
)

const namespace = "cpamm"

// Recorder implements amm.Observer on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	operations  *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	swapVolume  *prometheus.CounterVec
	swapFees    *prometheus.CounterVec
	liquidity   *prometheus.CounterVec
	reserves    *prometheus.GaugeVec
	shareSupply *prometheus.GaugeVec
	feeBps      *prometheus.GaugeVec
	locked      *prometheus.GaugeVec
}

// NewRecorder registers the engine metrics on a fresh registry.
func NewRecorder() (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "committed pool operations",
		}, []string{"op", "pool"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "rejected pool operations by error kind",
		}, []string{"op", "kind"}),
		swapVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_volume_total",
			Help:      "swap volume in base units",
		}, []string{"pool", "direction", "leg"}),
		swapFees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_fees_total",
			Help:      "fees retained by the pool in input-asset base units",
		}, []string{"pool", "asset"}),
		liquidity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liquidity_total",
			Help:      "reserve amounts deposited or withdrawn",
		}, []string{"pool", "op", "asset"}),
		reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_reserves",
			Help:      "current pool reserves in base units",
		}, []string{"pool", "asset"}),
		shareSupply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_share_supply",
			Help:      "outstanding LP shares",
		}, []string{"pool"}),
		feeBps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_fee_bps",
			Help:      "swap fee in basis points",
		}, []string{"pool"}),
		locked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_locked",
			Help:      "1 if the pool is locked",
		}, []string{"pool"}),
	}
	for _, c := range []prometheus.Collector{
		r.operations, r.rejections, r.swapVolume, r.swapFees, r.liquidity,
		r.reserves, r.shareSupply, r.feeBps, r.locked,
	} {
		if err := r.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Registry exposes the collectors for scraping or export.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Observe records a committed operation and the resulting pool state.
func (r *Recorder) Observe(receipt model.Receipt, pool model.Pool) {
	addr := pool.Address.Hex()
	r.operations.WithLabelValues(string(receipt.Operation), addr).Inc()

	switch receipt.Operation {
	case model.OpDeposit, model.OpWithdraw:
		op := string(receipt.Operation)
		r.liquidity.WithLabelValues(addr, op, "x").Add(float64(receipt.AmountX))
		r.liquidity.WithLabelValues(addr, op, "y").Add(float64(receipt.AmountY))
	case model.OpSwap:
		direction, in := "y_to_x", "y"
		if receipt.XToY {
			direction, in = "x_to_y", "x"
		}
		r.swapVolume.WithLabelValues(addr, direction, "in").Add(float64(receipt.AmountIn))
		r.swapVolume.WithLabelValues(addr, direction, "out").Add(float64(receipt.AmountOut))
		r.swapFees.WithLabelValues(addr, in).Add(float64(receipt.Fee))
	}

	r.reserves.WithLabelValues(addr, "x").Set(float64(pool.Reserves.X))
	r.reserves.WithLabelValues(addr, "y").Set(float64(pool.Reserves.Y))
	r.shareSupply.WithLabelValues(addr).Set(float64(pool.TotalShares))
	r.feeBps.WithLabelValues(addr).Set(float64(pool.Config.FeeBps))
	if pool.Config.Locked {
		r.locked.WithLabelValues(addr).Set(1)
	} else {
		r.locked.WithLabelValues(addr).Set(0)
	}
}

// ObserveFailure counts a rejected operation by error kind.
func (r *Recorder) ObserveFailure(op model.Operation, kind string) {
	r.rejections.WithLabelValues(string(op), kind).Inc()
}

// WriteTextfile writes the current metrics in the node_exporter textfile
// format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
