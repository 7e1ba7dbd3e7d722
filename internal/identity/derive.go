// Package identity derives pool addresses and verifies request signatures.
package identity

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	poolPrefix  = []byte("cpamm/pool")
	sharePrefix = []byte("cpamm/share")
)

// ErrNoBump is returned when every bump yields a reserved address.
var ErrNoBump = errors.New("no usable derivation bump")

// PoolAddress derives the pool address for an asset pair and seed. The pair is
// ordered as given: (X, Y) and (Y, X) are distinct pools.
func PoolAddress(assetX, assetY common.Address, seed uint64) (common.Address, uint8, error) {
	var s [8]byte
	binary.LittleEndian.PutUint64(s[:], seed)
	addr, bump, err := findAddress(poolPrefix, assetX.Bytes(), assetY.Bytes(), s[:])
	if err != nil {
		return common.Address{}, 0, fmt.Errorf("pool %s/%s seed %d: %w", assetX.Hex(), assetY.Hex(), seed, err)
	}
	return addr, bump, nil
}

// ShareMintAddress derives the LP share asset id owned by pool.
func ShareMintAddress(pool common.Address) (common.Address, uint8, error) {
	addr, bump, err := findAddress(sharePrefix, pool.Bytes())
	if err != nil {
		return common.Address{}, 0, fmt.Errorf("share mint for %s: %w", pool.Hex(), err)
	}
	return addr, bump, nil
}

// VerifyPoolAddress reports whether addr is the pool address for the given
// parameters and bump.
func VerifyPoolAddress(addr, assetX, assetY common.Address, seed uint64, bump uint8) bool {
	var s [8]byte
	binary.LittleEndian.PutUint64(s[:], seed)
	got := deriveWithBump(bump, poolPrefix, assetX.Bytes(), assetY.Bytes(), s[:])
	return got == addr && !reserved(got)
}

// findAddress walks bumps from 255 down and returns the first address outside
// the reserved range.
func findAddress(parts ...[]byte) (common.Address, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		addr := deriveWithBump(uint8(bump), parts...)
		if !reserved(addr) {
			return addr, uint8(bump), nil
		}
	}
	return common.Address{}, 0, ErrNoBump
}

func deriveWithBump(bump uint8, parts ...[]byte) common.Address {
	data := make([][]byte, 0, len(parts)+1)
	data = append(data, parts...)
	data = append(data, []byte{bump})
	return common.BytesToAddress(crypto.Keccak256(data...)[12:])
}

// reserved covers the zero address and the precompile range.
func reserved(addr common.Address) bool {
	for _, b := range addr[:18] {
		if b != 0 {
			return false
		}
	}
	return true
}
