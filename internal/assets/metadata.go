// Package assets resolves display metadata for ERC-20 reserve assets.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cpamm/internal/model"
)

// Caller performs read-only contract calls. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Resolver fetches and caches token metadata.
type Resolver struct {
	caller Caller
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[common.Address]model.AssetMeta
}

// NewResolver returns a caching resolver. A nil logger disables logging.
func NewResolver(caller Caller, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{caller: caller, logger: logger, cache: make(map[common.Address]model.AssetMeta)}
}

// Resolve returns metadata for token. decimals is required; symbol and name
// are best effort.
func (r *Resolver) Resolve(ctx context.Context, token common.Address) (model.AssetMeta, error) {
	r.mu.RLock()
	meta, ok := r.cache[token]
	r.mu.RUnlock()
	if ok {
		return meta, nil
	}

	meta, err := r.fetch(ctx, token)
	if err != nil {
		return meta, err
	}
	r.mu.Lock()
	r.cache[token] = meta
	r.mu.Unlock()
	return meta, nil
}

func (r *Resolver) fetch(ctx context.Context, token common.Address) (model.AssetMeta, error) {
	meta := model.AssetMeta{Address: token.Hex()}
	if r.caller == nil {
		return meta, fmt.Errorf("chain caller is nil")
	}
	strABI, b32ABI, err := erc20ABIs()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}

	values, err := r.call(ctx, token, strABI, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("decimals: unsupported type %T", values[0])
	}
	meta.Decimals = decimals

	meta.Symbol = r.text(ctx, token, strABI, b32ABI, "symbol")
	meta.Name = r.text(ctx, token, strABI, b32ABI, "name")
	return meta, nil
}

// text reads a string getter, falling back to the bytes32 variant.
func (r *Resolver) text(ctx context.Context, token common.Address, strABI, b32ABI abi.ABI, method string) string {
	if values, err := r.call(ctx, token, strABI, method); err == nil {
		if s, ok := values[0].(string); ok {
			return s
		}
	}
	values, err := r.call(ctx, token, b32ABI, method)
	if err != nil {
		r.logger.Debug("token getter failed", zap.String("token", token.Hex()), zap.String("method", method), zap.Error(err))
		return ""
	}
	if v, ok := values[0].([32]byte); ok {
		return string(bytes.TrimRight(v[:], "\x00"))
	}
	return ""
}

func (r *Resolver) call(ctx context.Context, token common.Address, parsed abi.ABI, method string) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned nothing", method)
	}
	return values, nil
}
