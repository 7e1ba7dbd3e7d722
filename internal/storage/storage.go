package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cpamm/internal/amm"
	"cpamm/internal/storage/memory"
	"cpamm/internal/storage/postgres"
)

// Backend is a pool store that may hold external resources.
type Backend interface {
	amm.Store
	Close()
}

// stateLockTimeout bounds how long Open waits for another process to release
// the state file.
const stateLockTimeout = 10 * time.Second

// Options selects a backend. PgDSN wins over StatePath; with neither the
// store lives in memory only.
type Options struct {
	PgDSN        string
	StatePath    string
	MaxRetries   int
	RetryBackoff time.Duration
}

// Open connects the backend chosen by opts.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Backend, error) {
	switch {
	case opts.PgDSN != "":
		store, err := postgres.NewStore(ctx, opts.PgDSN,
			postgres.WithLogger(logger),
			postgres.WithRetry(opts.MaxRetries, opts.RetryBackoff),
		)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres store")
		return store, nil
	case opts.StatePath != "":
		lockCtx, cancel := context.WithTimeout(ctx, stateLockTimeout)
		defer cancel()
		store, err := OpenStateFile(lockCtx, opts.StatePath)
		if err != nil {
			return nil, err
		}
		logger.Info("using state file", zap.String("path", opts.StatePath))
		return store, nil
	default:
		logger.Warn("no pg-dsn or state-file configured; state is not persisted")
		return memory.New(), nil
	}
}

// Credit mints amount of asset to owner outside any pool operation. It backs
// the CLI faucet and test setup. Pool shares are only minted by deposits, so
// crediting a share mint fails with amm.ErrUnauthorized.
func Credit(ctx context.Context, store amm.Store, asset, owner common.Address, amount uint64) error {
	return store.Atomic(ctx, func(ctx context.Context, tx amm.Tx) error {
		shares, err := tx.IsShareMint(ctx, asset)
		if err != nil {
			return err
		}
		if shares {
			return fmt.Errorf("%w: %s is a pool share asset", amm.ErrUnauthorized, asset.Hex())
		}
		return tx.Ledger().Mint(ctx, asset, owner, amount)
	})
}
