package amm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"cpamm/internal/amm"
	"cpamm/internal/identity"
	"cpamm/internal/model"
	"cpamm/internal/storage/memory"
)

var (
	assetX = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	assetY = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	admin  = common.HexToAddress("0x00000000000000000000000000000000000ad111")
	alice  = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

const funded = 1_000_000_000

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	engine *amm.Engine
	pool   model.Pool
}

func newFixture(t *testing.T, feeBps uint16, opts amm.Options) *fixture {
	t.Helper()
	if opts.Authorizer == nil {
		opts.Authorizer = identity.Trusted{}
	}
	opts.Clock = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	f := &fixture{t: t, ctx: context.Background(), store: memory.New()}
	f.engine = amm.NewEngine(f.store, opts)

	pool, err := f.engine.Initialize(f.ctx, &model.InitializeRequest{
		Caller: admin, Seed: 42, FeeBps: feeBps, AssetX: assetX, AssetY: assetY,
	})
	require.NoError(t, err)
	f.pool = pool
	for _, who := range []common.Address{alice, bob} {
		f.fund(assetX, who, funded)
		f.fund(assetY, who, funded)
	}
	return f
}

func (f *fixture) fund(asset, owner common.Address, amount uint64) {
	f.t.Helper()
	err := f.store.Atomic(f.ctx, func(ctx context.Context, tx amm.Tx) error {
		return tx.Ledger().Mint(ctx, asset, owner, amount)
	})
	require.NoError(f.t, err)
}

func (f *fixture) balance(asset, owner common.Address) uint64 {
	f.t.Helper()
	bal, err := f.engine.Balance(f.ctx, asset, owner)
	require.NoError(f.t, err)
	return bal
}

func (f *fixture) state() model.Pool {
	f.t.Helper()
	p, err := f.engine.Pool(f.ctx, f.pool.Address)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) deposit(who common.Address, shares, maxX, maxY uint64) (model.Receipt, error) {
	return f.engine.Deposit(f.ctx, &model.DepositRequest{Caller: who, Pool: f.pool.Address, Shares: shares, MaxX: maxX, MaxY: maxY})
}

func (f *fixture) withdraw(who common.Address, shares, minX, minY uint64) (model.Receipt, error) {
	return f.engine.Withdraw(f.ctx, &model.WithdrawRequest{Caller: who, Pool: f.pool.Address, Shares: shares, MinX: minX, MinY: minY})
}

func (f *fixture) swap(who common.Address, xToY bool, in, minOut uint64) (model.Receipt, error) {
	return f.engine.Swap(f.ctx, &model.SwapRequest{Caller: who, Pool: f.pool.Address, XToY: xToY, AmountIn: in, MinAmountOut: minOut})
}

func (f *fixture) setLocked(locked bool) {
	f.t.Helper()
	_, err := f.engine.UpdateConfig(f.ctx, &model.UpdateConfigRequest{Caller: admin, Pool: f.pool.Address, Locked: &locked})
	require.NoError(f.t, err)
}

func TestInitialize(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})
	p := f.state()
	require.True(t, p.IsEmpty())
	require.Equal(t, admin, p.Config.Authority)
	require.Equal(t, uint16(30), p.Config.FeeBps)
	require.NotEqual(t, common.Address{}, p.ShareMint)

	addr, bump, err := identity.PoolAddress(assetX, assetY, 42)
	require.NoError(t, err)
	require.Equal(t, addr, p.Address)
	require.Equal(t, bump, p.Config.PoolBump)

	_, err = f.engine.Initialize(f.ctx, &model.InitializeRequest{Caller: bob, Seed: 42, AssetX: assetX, AssetY: assetY})
	require.ErrorIs(t, err, amm.ErrAlreadyInitialized)

	_, err = f.engine.Initialize(f.ctx, &model.InitializeRequest{Caller: bob, Seed: 1, AssetX: assetX, AssetY: assetX})
	require.ErrorIs(t, err, amm.ErrIdenticalAssets)

	_, err = f.engine.Initialize(f.ctx, &model.InitializeRequest{Caller: bob, Seed: 1, FeeBps: 10_001, AssetX: assetX, AssetY: assetY})
	require.ErrorIs(t, err, amm.ErrInvalidFee)
}

func TestFirstDepositSetsPrice(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})

	r, err := f.deposit(alice, 1000, 1000, 2000)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), r.AmountX)
	require.Equal(t, uint64(2000), r.AmountY)

	p := f.state()
	require.Equal(t, model.Reserves{X: 1000, Y: 2000}, p.Reserves)
	require.Equal(t, uint64(1000), p.TotalShares)
	require.Equal(t, uint64(funded-1000), f.balance(assetX, alice))
	require.Equal(t, uint64(funded-2000), f.balance(assetY, alice))
	require.Equal(t, uint64(1000), f.balance(p.ShareMint, alice))
	require.Equal(t, uint64(1000), f.balance(assetX, p.Address))
	require.Equal(t, uint64(2000), f.balance(assetY, p.Address))
}

func TestFirstDepositNeedsBothAssets(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})
	_, err := f.deposit(alice, 1000, 1000, 0)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)
	require.True(t, f.state().IsEmpty())
}

func TestProportionalDeposit(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})
	_, err := f.deposit(alice, 1000, 1000, 2000)
	require.NoError(t, err)

	r, err := f.deposit(bob, 500, 1_000_000, 1_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(500), r.AmountX)
	require.Equal(t, uint64(1000), r.AmountY)

	p := f.state()
	require.Equal(t, model.Reserves{X: 1500, Y: 3000}, p.Reserves)
	require.Equal(t, uint64(1500), p.TotalShares)
	require.Equal(t, uint64(500), f.balance(p.ShareMint, bob))
}

func TestDepositSlippage(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})
	_, err := f.deposit(alice, 1000, 1000, 2000)
	require.NoError(t, err)

	_, err = f.deposit(bob, 500, 499, 1000)
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)
	_, err = f.deposit(bob, 500, 500, 999)
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)
	require.Equal(t, model.Reserves{X: 1000, Y: 2000}, f.state().Reserves)
	require.Equal(t, uint64(funded), f.balance(assetX, bob))
}

func TestDepositZeroShares(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})
	_, err := f.deposit(alice, 0, 1000, 2000)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)
}

func TestDepositWithoutFundsLeavesNoTrace(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})
	poor := common.HexToAddress("0x0000000000000000000000000000000000000f00")
	f.fund(assetX, poor, 5000)

	_, err := f.deposit(poor, 1000, 1000, 2000)
	require.ErrorIs(t, err, amm.ErrInsufficientBalance)
	require.True(t, f.state().IsEmpty())
	require.Equal(t, uint64(5000), f.balance(assetX, poor))
	require.Zero(t, f.balance(assetX, f.pool.Address))
	require.Zero(t, f.balance(f.pool.ShareMint, poor))
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})
	_, err := f.deposit(alice, 1500, 1500, 3000)
	require.NoError(t, err)

	_, err = f.withdraw(alice, 0, 1, 1)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)
	_, err = f.withdraw(alice, 750, 0, 1)
	require.ErrorIs(t, err, amm.ErrInvalidMinAmount)
	_, err = f.withdraw(alice, 750, 1, 0)
	require.ErrorIs(t, err, amm.ErrInvalidMinAmount)
	_, err = f.withdraw(alice, 750, 751, 1500)
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)

	r, err := f.withdraw(alice, 750, 750, 1500)
	require.NoError(t, err)
	require.Equal(t, uint64(750), r.AmountX)
	require.Equal(t, uint64(1500), r.AmountY)
	require.Equal(t, model.Reserves{X: 750, Y: 1500}, f.state().Reserves)

	_, err = f.withdraw(alice, 750, 750, 1500)
	require.NoError(t, err)
	p := f.state()
	require.True(t, p.IsEmpty())
	require.Equal(t, uint64(funded), f.balance(assetX, alice))
	require.Equal(t, uint64(funded), f.balance(assetY, alice))
	require.Zero(t, f.balance(p.ShareMint, alice))
}

func TestWithdrawMoreSharesThanHeld(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})
	_, err := f.deposit(alice, 1000, 1000, 2000)
	require.NoError(t, err)
	_, err = f.deposit(bob, 1000, 1000, 2000)
	require.NoError(t, err)

	_, err = f.withdraw(bob, 1500, 1, 1)
	require.ErrorIs(t, err, amm.ErrInsufficientBalance)
	require.Equal(t, uint64(2000), f.state().TotalShares)
}

func TestSwapReferenceTrade(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})
	_, err := f.deposit(alice, 1000, 1000, 2000)
	require.NoError(t, err)

	_, err = f.swap(bob, true, 100, 181)
	require.ErrorIs(t, err, amm.ErrSlippageExceeded)
	require.Equal(t, model.Reserves{X: 1000, Y: 2000}, f.state().Reserves)

	r, err := f.swap(bob, true, 100, 180)
	require.NoError(t, err)
	require.Equal(t, uint64(100), r.AmountIn)
	require.Equal(t, uint64(180), r.AmountOut)
	require.Equal(t, uint64(1), r.Fee)
	require.True(t, r.XToY)

	require.Equal(t, model.Reserves{X: 1100, Y: 1820}, f.state().Reserves)
	require.Equal(t, uint64(funded-100), f.balance(assetX, bob))
	require.Equal(t, uint64(funded+180), f.balance(assetY, bob))
	require.Equal(t, uint64(1100), f.balance(assetX, f.pool.Address))
	require.Equal(t, uint64(1820), f.balance(assetY, f.pool.Address))
}

func TestSwapYToX(t *testing.T) {
	f := newFixture(t, 0, amm.Options{})
	_, err := f.deposit(alice, 1000, 1000, 2000)
	require.NoError(t, err)

	// 1000 * 2000 / (2000 + 2000) = 500
	r, err := f.swap(bob, false, 2000, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(500), r.AmountOut)
	require.Equal(t, model.Reserves{X: 500, Y: 4000}, f.state().Reserves)
}

func TestSwapRejections(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})
	_, err := f.swap(bob, true, 100, 0)
	require.ErrorIs(t, err, amm.ErrInvalidAmount, "empty pool")

	_, err = f.deposit(alice, 1000, 1000, 2000)
	require.NoError(t, err)
	_, err = f.swap(bob, true, 0, 0)
	require.ErrorIs(t, err, amm.ErrInvalidAmount)
	_, err = f.swap(bob, true, 1, 0)
	require.ErrorIs(t, err, amm.ErrInvalidAmount, "fee consumes the whole input")
}

func TestLockedPoolRejectsEverything(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})
	_, err := f.deposit(alice, 1000, 1000, 2000)
	require.NoError(t, err)
	f.setLocked(true)

	checks := []struct {
		name string
		run  func() error
	}{
		{"deposit", func() error { _, err := f.deposit(alice, 10, 1_000_000, 1_000_000); return err }},
		{"deposit zero", func() error { _, err := f.deposit(alice, 0, 0, 0); return err }},
		{"withdraw", func() error { _, err := f.withdraw(alice, 10, 1, 1); return err }},
		{"withdraw zero mins", func() error { _, err := f.withdraw(alice, 0, 0, 0); return err }},
		{"swap", func() error { _, err := f.swap(bob, true, 100, 0); return err }},
		{"swap zero", func() error { _, err := f.swap(bob, false, 0, 0); return err }},
	}
	for _, c := range checks {
		if err := c.run(); !errors.Is(err, amm.ErrPoolLocked) {
			t.Fatalf("%s: expected ErrPoolLocked, got %v", c.name, err)
		}
	}

	_, err = f.engine.QuoteSwap(f.ctx, f.pool.Address, true, 100)
	require.ErrorIs(t, err, amm.ErrPoolLocked)

	f.setLocked(false)
	_, err = f.swap(bob, true, 100, 180)
	require.NoError(t, err)
}

func TestUpdateConfig(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})
	fee := uint16(100)

	_, err := f.engine.UpdateConfig(f.ctx, &model.UpdateConfigRequest{Caller: bob, Pool: f.pool.Address, FeeBps: &fee})
	require.ErrorIs(t, err, amm.ErrInvalidConfigAuthority)

	p, err := f.engine.UpdateConfig(f.ctx, &model.UpdateConfigRequest{Caller: admin, Pool: f.pool.Address, FeeBps: &fee})
	require.NoError(t, err)
	require.Equal(t, uint16(100), p.Config.FeeBps)
	require.False(t, p.Config.Locked)
	require.Equal(t, admin, p.Config.Authority)

	tooHigh := uint16(10_001)
	_, err = f.engine.UpdateConfig(f.ctx, &model.UpdateConfigRequest{Caller: admin, Pool: f.pool.Address, FeeBps: &tooHigh})
	require.ErrorIs(t, err, amm.ErrInvalidFee)

	zero := common.Address{}
	_, err = f.engine.UpdateConfig(f.ctx, &model.UpdateConfigRequest{Caller: admin, Pool: f.pool.Address, Authority: &zero})
	require.ErrorIs(t, err, amm.ErrInvalidConfigAuthority)

	next := bob
	p, err = f.engine.UpdateConfig(f.ctx, &model.UpdateConfigRequest{Caller: admin, Pool: f.pool.Address, Authority: &next})
	require.NoError(t, err)
	require.Equal(t, bob, p.Config.Authority)
	require.Equal(t, uint16(100), p.Config.FeeBps)

	locked := true
	_, err = f.engine.UpdateConfig(f.ctx, &model.UpdateConfigRequest{Caller: admin, Pool: f.pool.Address, Locked: &locked})
	require.ErrorIs(t, err, amm.ErrInvalidConfigAuthority, "previous authority")
	p, err = f.engine.UpdateConfig(f.ctx, &model.UpdateConfigRequest{Caller: bob, Pool: f.pool.Address, Locked: &locked})
	require.NoError(t, err)
	require.True(t, p.Config.Locked)
}

func TestUnknownPool(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})
	_, err := f.engine.Deposit(f.ctx, &model.DepositRequest{Caller: alice, Pool: bob, Shares: 1, MaxX: 1, MaxY: 1})
	require.ErrorIs(t, err, amm.ErrPoolNotFound)
}

func TestQuotesMatchExecution(t *testing.T) {
	f := newFixture(t, 30, amm.Options{})
	_, err := f.deposit(alice, 1000, 1000, 2000)
	require.NoError(t, err)

	dq, err := f.engine.QuoteDeposit(f.ctx, f.pool.Address, 333, 0, 0)
	require.NoError(t, err)
	dr, err := f.deposit(bob, 333, dq.X, dq.Y)
	require.NoError(t, err)
	require.Equal(t, dq.X, dr.AmountX)
	require.Equal(t, dq.Y, dr.AmountY)

	sq, err := f.engine.QuoteSwap(f.ctx, f.pool.Address, false, 777)
	require.NoError(t, err)
	sr, err := f.swap(bob, false, 777, sq.AmountOut)
	require.NoError(t, err)
	require.Equal(t, sq.AmountOut, sr.AmountOut)

	wq, err := f.engine.QuoteWithdraw(f.ctx, f.pool.Address, 333)
	require.NoError(t, err)
	wr, err := f.withdraw(bob, 333, wq.X, wq.Y)
	require.NoError(t, err)
	require.Equal(t, wq.X, wr.AmountX)
	require.Equal(t, wq.Y, wr.AmountY)
}

type recordingJournal struct{ receipts []model.Receipt }

func (j *recordingJournal) Record(_ context.Context, r model.Receipt) error {
	j.receipts = append(j.receipts, r)
	return nil
}

type recordingObserver struct {
	ops      []model.Operation
	failures []string
}

func (o *recordingObserver) Observe(r model.Receipt, _ model.Pool) { o.ops = append(o.ops, r.Operation) }
func (o *recordingObserver) ObserveFailure(op model.Operation, kind string) {
	o.failures = append(o.failures, string(op)+":"+kind)
}

func TestJournalAndObserver(t *testing.T) {
	journal := &recordingJournal{}
	observer := &recordingObserver{}
	f := newFixture(t, 30, amm.Options{Journal: journal, Observer: observer})

	_, err := f.deposit(alice, 1000, 1000, 2000)
	require.NoError(t, err)
	_, err = f.swap(bob, true, 100, 500)
	require.Error(t, err)

	require.Equal(t, []model.Operation{model.OpInitialize, model.OpDeposit}, observer.ops)
	require.Equal(t, []string{"swap:slippage_exceeded"}, observer.failures)
	require.Len(t, journal.receipts, 2)
	last := journal.receipts[1]
	require.Equal(t, model.OpDeposit, last.Operation)
	require.Equal(t, alice, last.Caller)
	require.Equal(t, "2026-01-02T03:04:05Z", last.RecordedAt)
}

func TestDefaultAuthorizerRequiresSignature(t *testing.T) {
	ctx := context.Background()
	engine := amm.NewEngine(memory.New(), amm.Options{})
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	caller := crypto.PubkeyToAddress(key.PublicKey)

	req := &model.InitializeRequest{Caller: caller, Seed: 1, FeeBps: 30, AssetX: assetX, AssetY: assetY}
	_, err = engine.Initialize(ctx, req)
	require.ErrorIs(t, err, amm.ErrUnauthorized)

	req.Signature, err = identity.Sign(req, key)
	require.NoError(t, err)
	pool, err := engine.Initialize(ctx, req)
	require.NoError(t, err)
	require.Equal(t, caller, pool.Config.Authority)
}

func TestErrorKind(t *testing.T) {
	require.Equal(t, "pool_locked", amm.ErrorKind(amm.ErrPoolLocked))
	require.Equal(t, "internal", amm.ErrorKind(context.Canceled))
	require.Equal(t, "", amm.ErrorKind(nil))
}
