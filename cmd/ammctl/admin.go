package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cpamm/internal/config"
	"cpamm/internal/storage"
	"cpamm/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres schema",
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN, postgres.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("schema applied", zap.String("pg_dsn", redactDSN(cfg.PGDSN)))
	return nil
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{
				"address": crypto.PubkeyToAddress(key.PublicKey).Hex(),
				"key":     hexutil.Encode(crypto.FromECDSA(key)),
			})
		},
	}
}

func newFaucetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "faucet",
		Short: "Credit an owner with an asset (development only)",
		RunE:  withApp(runFaucet),
	}
	cmd.Flags().String("asset", "", "asset address")
	cmd.Flags().String("owner", "", "owner address (defaults to the caller)")
	cmd.Flags().String("amount", "", "amount in base units")
	return cmd
}

func runFaucet(cmd *cobra.Command, a *app, _ []string) error {
	asset, err := addressFlag(cmd, "asset")
	if err != nil {
		return err
	}
	owner := a.caller
	if raw, _ := cmd.Flags().GetString("owner"); raw != "" {
		if owner, err = addressFlag(cmd, "owner"); err != nil {
			return err
		}
	}
	if owner == (common.Address{}) {
		return fmt.Errorf("an --owner, --key or --caller is required")
	}
	amount, err := amountFlag(cmd, "amount")
	if err != nil {
		return err
	}
	if err := storage.Credit(a.ctx, a.store, asset, owner, amount); err != nil {
		return err
	}
	bal, err := a.engine.Balance(a.ctx, asset, owner)
	if err != nil {
		return err
	}
	a.logger.Info("faucet credit", zap.String("asset", asset.Hex()), zap.String("owner", owner.Hex()), zap.Uint64("amount", amount))
	return printJSON(cmd, map[string]interface{}{
		"asset":   asset.Hex(),
		"owner":   owner.Hex(),
		"balance": fmt.Sprintf("%d", bal),
	})
}
