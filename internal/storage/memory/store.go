// Package memory is an in-process pool store and asset ledger. Transactions
// write to an overlay that is merged into the committed state only when the
// transaction function succeeds.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/amm"
	"cpamm/internal/curve"
	"cpamm/internal/identity"
	"cpamm/internal/model"
)

type balanceKey struct {
	Asset common.Address
	Owner common.Address
}

// Balance is one ledger entry in a Snapshot.
type Balance struct {
	Asset  common.Address `json:"asset"`
	Owner  common.Address `json:"owner"`
	Amount uint64         `json:"amount,string"`
}

// Snapshot is the full committed state, ordered for stable output.
type Snapshot struct {
	Pools    []model.Pool `json:"pools"`
	Balances []Balance    `json:"balances"`
}

// CommitHook runs with the would-be state before a transaction is committed.
// A hook error aborts the commit.
type CommitHook func(Snapshot) error

// Store serialises transactions with a single mutex.
type Store struct {
	mu       sync.Mutex
	pools    map[common.Address]model.Pool
	balances map[balanceKey]uint64
	hook     CommitHook
}

// New returns an empty store.
func New() *Store {
	return &Store{
		pools:    make(map[common.Address]model.Pool),
		balances: make(map[balanceKey]uint64),
	}
}

// Restore builds a store from a snapshot.
func Restore(snap Snapshot) (*Store, error) {
	s := New()
	for _, p := range snap.Pools {
		if _, ok := s.pools[p.Address]; ok {
			return nil, fmt.Errorf("duplicate pool %s", p.Address.Hex())
		}
		if !identity.VerifyPoolAddress(p.Address, p.Config.AssetX, p.Config.AssetY, p.Config.Seed, p.Config.PoolBump) {
			return nil, fmt.Errorf("pool %s: address does not match its configuration", p.Address.Hex())
		}
		if err := curve.CheckShares(p.Reserves.X, p.Reserves.Y, p.TotalShares); err != nil {
			return nil, fmt.Errorf("pool %s: %w", p.Address.Hex(), err)
		}
		s.pools[p.Address] = p
	}
	for _, b := range snap.Balances {
		if b.Amount == 0 {
			continue
		}
		s.balances[balanceKey{Asset: b.Asset, Owner: b.Owner}] = b.Amount
	}
	return s, nil
}

// SetCommitHook installs hook; nil removes it.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// Close is a no-op; it lets Store serve as a closable backend.
func (s *Store) Close() {}

// Atomic runs fn against an overlay of the committed state and merges the
// overlay only if fn and the commit hook succeed.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx amm.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{
		store:    s,
		pools:    make(map[common.Address]model.Pool),
		balances: make(map[balanceKey]uint64),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if len(t.pools) == 0 && len(t.balances) == 0 {
		return nil
	}
	if s.hook != nil {
		if err := s.hook(s.snapshot(t)); err != nil {
			return fmt.Errorf("commit hook: %w", err)
		}
	}
	for addr, p := range t.pools {
		s.pools[addr] = p
	}
	for k, v := range t.balances {
		if v == 0 {
			delete(s.balances, k)
			continue
		}
		s.balances[k] = v
	}
	return nil
}

// Snapshot returns a copy of the committed state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(nil)
}

// snapshot merges the optional overlay over committed state.
func (s *Store) snapshot(overlay *tx) Snapshot {
	pools := make(map[common.Address]model.Pool, len(s.pools))
	for k, v := range s.pools {
		pools[k] = v
	}
	balances := make(map[balanceKey]uint64, len(s.balances))
	for k, v := range s.balances {
		balances[k] = v
	}
	if overlay != nil {
		for k, v := range overlay.pools {
			pools[k] = v
		}
		for k, v := range overlay.balances {
			balances[k] = v
		}
	}

	snap := Snapshot{
		Pools:    make([]model.Pool, 0, len(pools)),
		Balances: make([]Balance, 0, len(balances)),
	}
	for _, p := range pools {
		snap.Pools = append(snap.Pools, p)
	}
	for k, v := range balances {
		if v == 0 {
			continue
		}
		snap.Balances = append(snap.Balances, Balance{Asset: k.Asset, Owner: k.Owner, Amount: v})
	}
	sort.Slice(snap.Pools, func(i, j int) bool {
		return bytes.Compare(snap.Pools[i].Address[:], snap.Pools[j].Address[:]) < 0
	})
	sort.Slice(snap.Balances, func(i, j int) bool {
		a, b := snap.Balances[i], snap.Balances[j]
		if c := bytes.Compare(a.Asset[:], b.Asset[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Owner[:], b.Owner[:]) < 0
	})
	return snap
}

type tx struct {
	store    *Store
	pools    map[common.Address]model.Pool
	balances map[balanceKey]uint64
}

func (t *tx) lookup(addr common.Address) (model.Pool, bool) {
	if p, ok := t.pools[addr]; ok {
		return p, true
	}
	p, ok := t.store.pools[addr]
	return p, ok
}

func (t *tx) LoadPool(_ context.Context, addr common.Address) (model.Pool, error) {
	p, ok := t.lookup(addr)
	if !ok {
		return model.Pool{}, fmt.Errorf("%w: %s", amm.ErrPoolNotFound, addr.Hex())
	}
	return p, nil
}

func (t *tx) InsertPool(_ context.Context, pool model.Pool) error {
	if _, ok := t.lookup(pool.Address); ok {
		return fmt.Errorf("%w: %s", amm.ErrAlreadyInitialized, pool.Address.Hex())
	}
	t.pools[pool.Address] = pool
	return nil
}

func (t *tx) SavePool(_ context.Context, pool model.Pool) error {
	if _, ok := t.lookup(pool.Address); !ok {
		return fmt.Errorf("%w: %s", amm.ErrPoolNotFound, pool.Address.Hex())
	}
	t.pools[pool.Address] = pool
	return nil
}

func (t *tx) IsShareMint(_ context.Context, asset common.Address) (bool, error) {
	for _, p := range t.pools {
		if p.ShareMint == asset {
			return true, nil
		}
	}
	for _, p := range t.store.pools {
		if p.ShareMint == asset {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) Ledger() amm.Ledger { return t }

func (t *tx) balance(k balanceKey) uint64 {
	if v, ok := t.balances[k]; ok {
		return v
	}
	return t.store.balances[k]
}

func (t *tx) Balance(_ context.Context, asset, owner common.Address) (uint64, error) {
	return t.balance(balanceKey{Asset: asset, Owner: owner}), nil
}

func (t *tx) debit(asset, owner common.Address, amount uint64) error {
	k := balanceKey{Asset: asset, Owner: owner}
	have := t.balance(k)
	if have < amount {
		return fmt.Errorf("%w: %s holds %d of %s, need %d", amm.ErrInsufficientBalance, owner.Hex(), have, asset.Hex(), amount)
	}
	t.balances[k] = have - amount
	return nil
}

func (t *tx) credit(asset, owner common.Address, amount uint64) error {
	k := balanceKey{Asset: asset, Owner: owner}
	sum, err := curve.Add(t.balance(k), amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", owner.Hex(), err)
	}
	t.balances[k] = sum
	return nil
}

func (t *tx) Transfer(_ context.Context, asset, from, to common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := t.debit(asset, from, amount); err != nil {
		return err
	}
	return t.credit(asset, to, amount)
}

func (t *tx) Mint(_ context.Context, asset, to common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return t.credit(asset, to, amount)
}

func (t *tx) Burn(_ context.Context, asset, from common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return t.debit(asset, from, amount)
}
