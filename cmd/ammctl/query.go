package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"cpamm/internal/config"
	"cpamm/internal/curve"
	"cpamm/internal/model"
	"cpamm/internal/storage"
)

type poolView struct {
	Pool      model.Pool        `json:"pool"`
	ReserveX  string            `json:"reserve_x"`
	ReserveY  string            `json:"reserve_y"`
	Shares    string            `json:"shares"`
	PriceXInY string            `json:"price_x_in_y,omitempty"`
	Balances  map[string]string `json:"balances,omitempty"`
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a pool and optionally an owner's balances",
		RunE:  withApp(runShow),
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("owner", "", "also show this owner's balances")
	return cmd
}

func runShow(cmd *cobra.Command, a *app, _ []string) error {
	addr, err := addressFlag(cmd, "pool")
	if err != nil {
		return err
	}
	pool, err := a.engine.Pool(a.ctx, addr)
	if err != nil {
		return err
	}

	symX, decX := assetLabel(pool.AssetXMeta, "X")
	symY, decY := assetLabel(pool.AssetYMeta, "Y")
	view := poolView{
		Pool:      pool,
		ReserveX:  formatAmount(pool.Reserves.X, decX) + " " + symX,
		ReserveY:  formatAmount(pool.Reserves.Y, decY) + " " + symY,
		Shares:    formatAmount(pool.TotalShares, curve.ShareDecimals),
		PriceXInY: spotPrice(pool),
	}

	if raw, _ := cmd.Flags().GetString("owner"); raw != "" {
		owner, err := addressFlag(cmd, "owner")
		if err != nil {
			return err
		}
		view.Balances = make(map[string]string, 3)
		for _, b := range []struct {
			label    string
			asset    common.Address
			decimals uint8
		}{
			{symX, pool.Config.AssetX, decX},
			{symY, pool.Config.AssetY, decY},
			{"shares", pool.ShareMint, curve.ShareDecimals},
		} {
			bal, err := a.engine.Balance(a.ctx, b.asset, owner)
			if err != nil {
				return err
			}
			view.Balances[b.label] = formatAmount(bal, b.decimals)
		}
	}
	return printJSON(cmd, view)
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "quote deposit|withdraw|swap",
		Short:     "Preview an operation against the current pool state",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"deposit", "withdraw", "swap"},
		RunE:      withApp(runQuote),
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("shares", "0", "shares for deposit or withdraw")
	cmd.Flags().String("max-x", "0", "first-deposit X amount")
	cmd.Flags().String("max-y", "0", "first-deposit Y amount")
	cmd.Flags().String("direction", "x-to-y", "swap direction")
	cmd.Flags().String("amount-in", "0", "swap input amount")
	return cmd
}

func runQuote(cmd *cobra.Command, a *app, args []string) error {
	pool, err := addressFlag(cmd, "pool")
	if err != nil {
		return err
	}
	switch args[0] {
	case "deposit":
		v, err := amountFlags(cmd, "shares", "max-x", "max-y")
		if err != nil {
			return err
		}
		q, err := a.engine.QuoteDeposit(a.ctx, pool, v[0], v[1], v[2])
		if err != nil {
			return err
		}
		return printJSON(cmd, q)
	case "withdraw":
		shares, err := amountFlag(cmd, "shares")
		if err != nil {
			return err
		}
		q, err := a.engine.QuoteWithdraw(a.ctx, pool, shares)
		if err != nil {
			return err
		}
		return printJSON(cmd, q)
	case "swap":
		xToY, err := directionFlag(cmd)
		if err != nil {
			return err
		}
		in, err := amountFlag(cmd, "amount-in")
		if err != nil {
			return err
		}
		q, err := a.engine.QuoteSwap(a.ctx, pool, xToY, in)
		if err != nil {
			return err
		}
		return printJSON(cmd, q)
	}
	return fmt.Errorf("unknown quote %q", args[0])
}

func newReceiptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "Print the most recent journal receipts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			path := cfg.Journal
			if path == "" {
				return fmt.Errorf("journal path is required")
			}
			limit, _ := cmd.Flags().GetInt("limit")
			receipts, err := storage.ReadJournal(path)
			if err != nil {
				return err
			}
			if limit > 0 && len(receipts) > limit {
				receipts = receipts[len(receipts)-limit:]
			}
			return printJSON(cmd, receipts)
		},
	}
	cmd.Flags().Int("limit", 20, "number of receipts (0 for all)")
	return cmd
}
