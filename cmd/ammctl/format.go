package main

import (
	"math/big"

	"cpamm/internal/model"
)

// formatAmount renders base units with the asset's decimals.
func formatAmount(value uint64, decimals uint8) string {
	v := new(big.Int).SetUint64(value)
	if decimals == 0 {
		return v.String()
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetFrac(v, denom).FloatString(int(decimals))
}

// spotPrice returns the price of one whole X in Y, adjusted for decimals.
// It is empty for an empty pool.
func spotPrice(pool model.Pool) string {
	if pool.Reserves.X == 0 || pool.Reserves.Y == 0 {
		return ""
	}
	var decX, decY uint8
	if pool.AssetXMeta != nil {
		decX = pool.AssetXMeta.Decimals
	}
	if pool.AssetYMeta != nil {
		decY = pool.AssetYMeta.Decimals
	}
	num := new(big.Int).SetUint64(pool.Reserves.Y)
	den := new(big.Int).SetUint64(pool.Reserves.X)
	ten := big.NewInt(10)
	if decX > decY {
		num.Mul(num, new(big.Int).Exp(ten, big.NewInt(int64(decX-decY)), nil))
	} else if decY > decX {
		den.Mul(den, new(big.Int).Exp(ten, big.NewInt(int64(decY-decX)), nil))
	}
	return new(big.Rat).SetFrac(num, den).FloatString(8)
}

func assetLabel(meta *model.AssetMeta, fallback string) (string, uint8) {
	if meta == nil || meta.Symbol == "" {
		if meta != nil {
			return fallback, meta.Decimals
		}
		return fallback, 0
	}
	return meta.Symbol, meta.Decimals
}
