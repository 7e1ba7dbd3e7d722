package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ammctl",
		Short:        "Constant-product liquidity pool engine",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file path")
	pf.String("pg-dsn", "", "Postgres DSN (overrides state-file)")
	pf.String("state-file", "./data/state.json", "JSON state file used when pg-dsn is empty")
	pf.String("journal", "./data/receipts.jsonl", "receipt journal JSONL path (empty disables)")
	pf.String("metrics-out", "", "write Prometheus textfile metrics to this path after each command")
	pf.String("rpc", "", "EVM RPC URL for ERC-20 metadata lookups")
	pf.String("key", "", "hex secp256k1 private key used to sign requests")
	pf.String("caller", "", "caller address when --trusted is set and no key is given")
	pf.Bool("trusted", false, "skip signature verification")
	pf.Int("max-retries", 5, "retries for conflicting Postgres transactions")
	pf.Duration("retry-backoff", 10*time.Millisecond, "initial Postgres retry backoff")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newMigrateCmd(),
		newKeygenCmd(),
		newInitCmd(),
		newDepositCmd(),
		newWithdrawCmd(),
		newSwapCmd(),
		newUpdateCmd(),
		newShowCmd(),
		newQuoteCmd(),
		newFaucetCmd(),
		newReceiptsCmd(),
	)
	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
