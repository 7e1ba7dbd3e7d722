package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cpamm/internal/amm"
	"cpamm/internal/config"
	"cpamm/internal/identity"
	"cpamm/internal/metrics"
	"cpamm/internal/model"
	"cpamm/internal/storage"
)

// app is the per-command runtime: config, logger, store and engine.
type app struct {
	ctx      context.Context
	stop     context.CancelFunc
	cfg      config.Config
	logger   *zap.Logger
	store    storage.Backend
	engine   *amm.Engine
	recorder *metrics.Recorder
	key      *ecdsa.PrivateKey
	caller   common.Address
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.ctx, a.stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := a.loadIdentity(cmd); err != nil {
		a.close()
		return nil, err
	}

	a.store, err = storage.Open(a.ctx, storage.Options{
		PgDSN:        cfg.PGDSN,
		StatePath:    cfg.StateFile,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	a.recorder, err = metrics.NewRecorder()
	if err != nil {
		a.close()
		return nil, err
	}

	opts := amm.Options{Observer: a.recorder, Logger: logger}
	if cfg.Journal != "" {
		opts.Journal = storage.NewJsonlJournal(cfg.Journal)
	}
	if cfg.Trusted {
		opts.Authorizer = identity.Trusted{}
	}
	a.engine = amm.NewEngine(a.store, opts)

	logger.Debug("ammctl start",
		zap.String("command", cmd.Name()),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("state_file", cfg.StateFile),
		zap.String("journal", cfg.Journal),
		zap.Bool("trusted", cfg.Trusted),
	)
	return a, nil
}

func (a *app) loadIdentity(cmd *cobra.Command) error {
	if a.cfg.Key != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(a.cfg.Key, "0x"))
		if err != nil {
			return fmt.Errorf("parse key: %w", err)
		}
		a.key = key
		a.caller = crypto.PubkeyToAddress(key.PublicKey)
		return nil
	}
	if !a.cfg.Trusted {
		return nil
	}
	raw, _ := cmd.Flags().GetString("caller")
	if raw == "" {
		return nil
	}
	caller, err := config.ParseAddress("caller", raw)
	if err != nil {
		return err
	}
	a.caller = caller
	return nil
}

// requireCaller fails when a mutating command has no identity to act as.
func (a *app) requireCaller() error {
	if a.caller == (common.Address{}) {
		return fmt.Errorf("a --key (or --trusted with --caller) is required")
	}
	return nil
}

// sign attaches a signature when a key is configured.
func (a *app) sign(req model.Request) ([]byte, error) {
	if a.key == nil {
		return nil, nil
	}
	return identity.Sign(req, a.key)
}

func (a *app) close() {
	if a.recorder != nil && a.cfg.MetricsOut != "" {
		if err := a.recorder.WriteTextfile(a.cfg.MetricsOut); err != nil {
			a.logger.Warn("write metrics", zap.String("path", a.cfg.MetricsOut), zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.stop != nil {
		a.stop()
	}
	_ = a.logger.Sync()
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withApp opens the runtime around fn.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, a, args)
	}
}
