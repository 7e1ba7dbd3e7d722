package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cpamm/internal/amm"
	"cpamm/internal/identity"
	"cpamm/internal/model"
)

var (
	assetX = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	assetY = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	alice  = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func testPool(t *testing.T, seed uint64) model.Pool {
	t.Helper()
	addr, bump, err := identity.PoolAddress(assetX, assetY, seed)
	require.NoError(t, err)
	return model.Pool{
		Address: addr,
		Config:  model.PoolConfig{Seed: seed, Authority: alice, AssetX: assetX, AssetY: assetY, PoolBump: bump},
	}
}

func TestAtomicRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	pool := testPool(t, 1)
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(ctx context.Context, tx amm.Tx) error {
		require.NoError(t, tx.InsertPool(ctx, pool))
		require.NoError(t, tx.Ledger().Mint(ctx, assetX, alice, 100))
		return boom
	})
	require.ErrorIs(t, err, boom)

	snap := s.Snapshot()
	require.Empty(t, snap.Pools)
	require.Empty(t, snap.Balances)
}

func TestTxSeesOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	pool := testPool(t, 1)

	err := s.Atomic(ctx, func(ctx context.Context, tx amm.Tx) error {
		if err := tx.InsertPool(ctx, pool); err != nil {
			return err
		}
		got, err := tx.LoadPool(ctx, pool.Address)
		if err != nil {
			return err
		}
		if got.Address != pool.Address {
			t.Fatalf("expected %s, got %s", pool.Address.Hex(), got.Address.Hex())
		}
		ledger := tx.Ledger()
		if err := ledger.Mint(ctx, assetX, alice, 50); err != nil {
			return err
		}
		if err := ledger.Transfer(ctx, assetX, alice, bob, 20); err != nil {
			return err
		}
		bal, err := ledger.Balance(ctx, assetX, bob)
		if err != nil {
			return err
		}
		if bal != 20 {
			t.Fatalf("expected bob balance 20, got %d", bal)
		}
		return nil
	})
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap.Pools, 1)
	require.ElementsMatch(t, []Balance{
		{Asset: assetX, Owner: alice, Amount: 30},
		{Asset: assetX, Owner: bob, Amount: 20},
	}, snap.Balances)
}

func TestInsertAndSaveErrors(t *testing.T) {
	ctx := context.Background()
	s := New()
	pool := testPool(t, 1)

	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx amm.Tx) error {
		return tx.InsertPool(ctx, pool)
	}))
	err := s.Atomic(ctx, func(ctx context.Context, tx amm.Tx) error {
		return tx.InsertPool(ctx, pool)
	})
	require.ErrorIs(t, err, amm.ErrAlreadyInitialized)

	missing := testPool(t, 2)
	err = s.Atomic(ctx, func(ctx context.Context, tx amm.Tx) error {
		return tx.SavePool(ctx, missing)
	})
	require.ErrorIs(t, err, amm.ErrPoolNotFound)
}

func TestLedgerInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	s := New()
	err := s.Atomic(ctx, func(ctx context.Context, tx amm.Tx) error {
		if err := tx.Ledger().Mint(ctx, assetX, alice, 10); err != nil {
			return err
		}
		return tx.Ledger().Burn(ctx, assetX, alice, 11)
	})
	require.ErrorIs(t, err, amm.ErrInsufficientBalance)
	require.Empty(t, s.Snapshot().Balances)
}

func TestLedgerMintOverflow(t *testing.T) {
	ctx := context.Background()
	s := New()
	err := s.Atomic(ctx, func(ctx context.Context, tx amm.Tx) error {
		if err := tx.Ledger().Mint(ctx, assetX, alice, ^uint64(0)); err != nil {
			return err
		}
		return tx.Ledger().Mint(ctx, assetX, alice, 1)
	})
	require.ErrorIs(t, err, amm.ErrOverflow)
}

func TestCommitHookSeesPendingStateAndCanAbort(t *testing.T) {
	ctx := context.Background()
	s := New()
	var seen Snapshot
	s.SetCommitHook(func(snap Snapshot) error {
		seen = snap
		return nil
	})
	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx amm.Tx) error {
		return tx.Ledger().Mint(ctx, assetY, bob, 7)
	}))
	require.Equal(t, []Balance{{Asset: assetY, Owner: bob, Amount: 7}}, seen.Balances)

	s.SetCommitHook(func(Snapshot) error { return errors.New("disk full") })
	err := s.Atomic(ctx, func(ctx context.Context, tx amm.Tx) error {
		return tx.Ledger().Mint(ctx, assetY, bob, 1)
	})
	require.Error(t, err)
	require.Equal(t, []Balance{{Asset: assetY, Owner: bob, Amount: 7}}, s.Snapshot().Balances)
}

func TestReadOnlyTxSkipsHook(t *testing.T) {
	s := New()
	calls := 0
	s.SetCommitHook(func(Snapshot) error {
		calls++
		return nil
	})
	_ = s.Atomic(context.Background(), func(ctx context.Context, tx amm.Tx) error {
		_, err := tx.Ledger().Balance(ctx, assetX, alice)
		return err
	})
	if calls != 0 {
		t.Fatalf("expected no hook calls, got %d", calls)
	}
}

func TestRestore(t *testing.T) {
	pool := testPool(t, 3)
	pool.Reserves = model.Reserves{X: 10, Y: 20}
	pool.TotalShares = 10
	s, err := Restore(Snapshot{
		Pools:    []model.Pool{pool},
		Balances: []Balance{{Asset: assetX, Owner: pool.Address, Amount: 10}},
	})
	require.NoError(t, err)
	require.Equal(t, []model.Pool{pool}, s.Snapshot().Pools)

	bad := pool
	bad.TotalShares = 0
	_, err = Restore(Snapshot{Pools: []model.Pool{bad}})
	require.ErrorIs(t, err, amm.ErrInvariantViolated)

	forged := pool
	forged.Config.Seed = 4
	_, err = Restore(Snapshot{Pools: []model.Pool{forged}})
	require.Error(t, err)
}

func TestAtomicHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := New().Atomic(ctx, func(context.Context, amm.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}
