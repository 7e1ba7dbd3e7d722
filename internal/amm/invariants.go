package amm

import (
	"fmt"

	"cpamm/internal/curve"
	"cpamm/internal/model"
)

// checkTransition verifies a pool state change before it is committed.
func checkTransition(op model.Operation, before, after model.Pool) error {
	if err := curve.CheckShares(after.Reserves.X, after.Reserves.Y, after.TotalShares); err != nil {
		return err
	}

	b, a := before.Config, after.Config
	if a.Seed != b.Seed || a.AssetX != b.AssetX || a.AssetY != b.AssetY ||
		a.PoolBump != b.PoolBump || a.ShareBump != b.ShareBump ||
		after.Address != before.Address || after.ShareMint != before.ShareMint {
		return fmt.Errorf("%w: %s changed pool identity", ErrInvariantViolated, op)
	}

	switch op {
	case model.OpDeposit, model.OpSwap:
		kBefore := curve.Invariant(before.Reserves.X, before.Reserves.Y)
		kAfter := curve.Invariant(after.Reserves.X, after.Reserves.Y)
		if kAfter.Lt(kBefore) {
			return fmt.Errorf("%w: %s decreased k from %s to %s", ErrInvariantViolated, op, kBefore, kAfter)
		}
	case model.OpUpdateConfig:
		if after.Reserves != before.Reserves || after.TotalShares != before.TotalShares {
			return fmt.Errorf("%w: config update moved reserves", ErrInvariantViolated)
		}
	}
	return nil
}
