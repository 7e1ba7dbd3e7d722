package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"cpamm/internal/amm"
	"cpamm/internal/curve"
	"cpamm/internal/model"
)

//go:embed schema.sql
var schema string

// Store keeps pools and the asset ledger in Postgres. Each Atomic call is a
// SERIALIZABLE transaction that is retried on serialization failure.
type Store struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	maxRetries int
	baseDelay  time.Duration
}

type Option func(*Store)

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithRetry sets how often a conflicting transaction is retried.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(s *Store) {
		s.maxRetries = maxRetries
		s.baseDelay = baseDelay
	}
}

// NewStore opens a connection pool for dsn. It does not create the schema;
// call Migrate for that.
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{pool: pool, logger: zap.NewNop(), maxRetries: 5, baseDelay: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Atomic runs fn in a serializable transaction and retries it on
// serialization failures and deadlocks.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx amm.Tx) error) error {
	attempt := 0
	return withRetry(ctx, s.maxRetries, s.baseDelay, retryable, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			s.logger.Debug("retrying serializable transaction", zap.Int("attempt", attempt))
		}
		return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(pgTx pgx.Tx) error {
			return fn(ctx, &tx{tx: pgTx})
		})
	})
}

type tx struct {
	tx pgx.Tx
}

const poolColumns = `address, share_mint, seed, authority, asset_x, asset_y, fee_bps, locked,
	pool_bump, share_bump, reserve_x, reserve_y, total_shares, asset_x_meta, asset_y_meta,
	created_at, updated_at`

func (t *tx) LoadPool(ctx context.Context, addr common.Address) (model.Pool, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE address=$1 FOR UPDATE`, addr.Hex())

	var (
		address, shareMint, authority, assetX, assetY string
		seed, reserveX, reserveY, totalShares         pgtype.Numeric
		feeBps                                        int32
		poolBump, shareBump                           int16
		metaX, metaY                                  []byte
		p                                             model.Pool
	)
	err := row.Scan(&address, &shareMint, &seed, &authority, &assetX, &assetY, &feeBps, &p.Config.Locked,
		&poolBump, &shareBump, &reserveX, &reserveY, &totalShares, &metaX, &metaY,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, fmt.Errorf("%w: %s", amm.ErrPoolNotFound, addr.Hex())
		}
		return model.Pool{}, fmt.Errorf("load pool %s: %w", addr.Hex(), err)
	}

	p.Address = common.HexToAddress(address)
	p.ShareMint = common.HexToAddress(shareMint)
	p.Config.Authority = common.HexToAddress(authority)
	p.Config.AssetX = common.HexToAddress(assetX)
	p.Config.AssetY = common.HexToAddress(assetY)
	p.Config.FeeBps = uint16(feeBps)
	p.Config.PoolBump = uint8(poolBump)
	p.Config.ShareBump = uint8(shareBump)
	for _, f := range []struct {
		dst *uint64
		src pgtype.Numeric
		col string
	}{
		{&p.Config.Seed, seed, "seed"},
		{&p.Reserves.X, reserveX, "reserve_x"},
		{&p.Reserves.Y, reserveY, "reserve_y"},
		{&p.TotalShares, totalShares, "total_shares"},
	} {
		v, err := toUint64(f.src)
		if err != nil {
			return model.Pool{}, fmt.Errorf("pool %s %s: %w", addr.Hex(), f.col, err)
		}
		*f.dst = v
	}
	if p.AssetXMeta, err = decodeMeta(metaX); err != nil {
		return model.Pool{}, err
	}
	if p.AssetYMeta, err = decodeMeta(metaY); err != nil {
		return model.Pool{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (t *tx) InsertPool(ctx context.Context, p model.Pool) error {
	metaX, err := encodeMeta(p.AssetXMeta)
	if err != nil {
		return err
	}
	metaY, err := encodeMeta(p.AssetYMeta)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO pools (`+poolColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (address) DO NOTHING
	`,
		p.Address.Hex(),
		p.ShareMint.Hex(),
		numeric(p.Config.Seed),
		p.Config.Authority.Hex(),
		p.Config.AssetX.Hex(),
		p.Config.AssetY.Hex(),
		int32(p.Config.FeeBps),
		p.Config.Locked,
		int16(p.Config.PoolBump),
		int16(p.Config.ShareBump),
		numeric(p.Reserves.X),
		numeric(p.Reserves.Y),
		numeric(p.TotalShares),
		metaX,
		metaY,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pool %s: %w", p.Address.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", amm.ErrAlreadyInitialized, p.Address.Hex())
	}
	return nil
}

// SavePool writes the mutable pool fields.
func (t *tx) SavePool(ctx context.Context, p model.Pool) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE pools SET
			authority = $2,
			fee_bps = $3,
			locked = $4,
			reserve_x = $5,
			reserve_y = $6,
			total_shares = $7,
			updated_at = $8
		WHERE address = $1
	`,
		p.Address.Hex(),
		p.Config.Authority.Hex(),
		int32(p.Config.FeeBps),
		p.Config.Locked,
		numeric(p.Reserves.X),
		numeric(p.Reserves.Y),
		numeric(p.TotalShares),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save pool %s: %w", p.Address.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", amm.ErrPoolNotFound, p.Address.Hex())
	}
	return nil
}

func (t *tx) IsShareMint(ctx context.Context, asset common.Address) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pools WHERE share_mint=$1)`, asset.Hex()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup share mint %s: %w", asset.Hex(), err)
	}
	return exists, nil
}

func (t *tx) Ledger() amm.Ledger { return t }

func (t *tx) Balance(ctx context.Context, asset, owner common.Address) (uint64, error) {
	return t.balance(ctx, asset, owner, false)
}

func (t *tx) balance(ctx context.Context, asset, owner common.Address, lock bool) (uint64, error) {
	query := `SELECT amount FROM balances WHERE asset=$1 AND owner=$2`
	if lock {
		query += ` FOR UPDATE`
	}
	var amount pgtype.Numeric
	if err := t.tx.QueryRow(ctx, query, asset.Hex(), owner.Hex()).Scan(&amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("load balance: %w", err)
	}
	return toUint64(amount)
}

func (t *tx) setBalance(ctx context.Context, asset, owner common.Address, amount uint64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO balances (asset, owner, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset, owner) DO UPDATE SET amount = EXCLUDED.amount
	`, asset.Hex(), owner.Hex(), numeric(amount))
	if err != nil {
		return fmt.Errorf("store balance: %w", err)
	}
	return nil
}

func (t *tx) debit(ctx context.Context, asset, owner common.Address, amount uint64) error {
	have, err := t.balance(ctx, asset, owner, true)
	if err != nil {
		return err
	}
	if have < amount {
		return fmt.Errorf("%w: %s holds %d of %s, need %d", amm.ErrInsufficientBalance, owner.Hex(), have, asset.Hex(), amount)
	}
	return t.setBalance(ctx, asset, owner, have-amount)
}

func (t *tx) credit(ctx context.Context, asset, owner common.Address, amount uint64) error {
	have, err := t.balance(ctx, asset, owner, true)
	if err != nil {
		return err
	}
	sum, err := curve.Add(have, amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", owner.Hex(), err)
	}
	return t.setBalance(ctx, asset, owner, sum)
}

func (t *tx) Transfer(ctx context.Context, asset, from, to common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := t.debit(ctx, asset, from, amount); err != nil {
		return err
	}
	return t.credit(ctx, asset, to, amount)
}

func (t *tx) Mint(ctx context.Context, asset, to common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return t.credit(ctx, asset, to, amount)
}

func (t *tx) Burn(ctx context.Context, asset, from common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return t.debit(ctx, asset, from, amount)
}

func encodeMeta(m *model.AssetMeta) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal asset meta: %w", err)
	}
	return data, nil
}

func decodeMeta(data []byte) (*model.AssetMeta, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m model.AssetMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse asset meta: %w", err)
	}
	return &m, nil
}
