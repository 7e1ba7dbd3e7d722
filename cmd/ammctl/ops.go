package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cpamm/internal/assets"
	"cpamm/internal/chain"
	"cpamm/internal/model"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a pool for an asset pair",
		RunE:  withApp(runInit),
	}
	cmd.Flags().String("asset-x", "", "reserve asset X address")
	cmd.Flags().String("asset-y", "", "reserve asset Y address")
	cmd.Flags().Uint64("seed", 0, "seed distinguishing pools for the same pair")
	cmd.Flags().Uint16("fee-bps", 30, "swap fee in basis points")
	cmd.Flags().Bool("locked", false, "create the pool locked")
	return cmd
}

func runInit(cmd *cobra.Command, a *app, _ []string) error {
	if err := a.requireCaller(); err != nil {
		return err
	}
	assetX, err := addressFlag(cmd, "asset-x")
	if err != nil {
		return err
	}
	assetY, err := addressFlag(cmd, "asset-y")
	if err != nil {
		return err
	}
	seed, _ := cmd.Flags().GetUint64("seed")
	fee, _ := cmd.Flags().GetUint16("fee-bps")
	locked, _ := cmd.Flags().GetBool("locked")

	req := &model.InitializeRequest{
		Caller: a.caller,
		Seed:   seed,
		Locked: locked,
		FeeBps: fee,
		AssetX: assetX,
		AssetY: assetY,
	}
	if a.cfg.RPCURL != "" {
		req.AssetXMeta, req.AssetYMeta = a.resolveMeta(assetX, assetY)
	}
	if req.Signature, err = a.sign(req); err != nil {
		return err
	}

	pool, err := a.engine.Initialize(a.ctx, req)
	if err != nil {
		return err
	}
	return printJSON(cmd, pool)
}

// resolveMeta looks up ERC-20 metadata. Failures are logged and leave the
// metadata empty.
func (a *app) resolveMeta(assetX, assetY common.Address) (*model.AssetMeta, *model.AssetMeta) {
	client, err := chain.NewClient(a.ctx, a.cfg.RPCURL)
	if err != nil {
		a.logger.Warn("connect rpc", zap.Error(err))
		return nil, nil
	}
	defer client.Close()

	if id, err := client.ChainID(a.ctx); err != nil {
		a.logger.Warn("chain id lookup failed", zap.Error(err))
	} else {
		a.logger.Info("resolving asset metadata", zap.String("chain_id", id.String()))
	}

	resolver := assets.NewResolver(client, a.logger)
	lookup := func(asset common.Address) *model.AssetMeta {
		meta, err := resolver.Resolve(a.ctx, asset)
		if err != nil {
			a.logger.Warn("asset metadata fetch failed", zap.String("asset", asset.Hex()), zap.Error(err))
			return nil
		}
		return &meta
	}
	return lookup(assetX), lookup(assetY)
}

func newDepositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Add liquidity and mint pool shares",
		RunE:  withApp(runDeposit),
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("shares", "", "shares to mint")
	cmd.Flags().String("max-x", "", "maximum X to pay (sets the price on the first deposit)")
	cmd.Flags().String("max-y", "", "maximum Y to pay (sets the price on the first deposit)")
	return cmd
}

func runDeposit(cmd *cobra.Command, a *app, _ []string) error {
	if err := a.requireCaller(); err != nil {
		return err
	}
	pool, err := addressFlag(cmd, "pool")
	if err != nil {
		return err
	}
	v, err := amountFlags(cmd, "shares", "max-x", "max-y")
	if err != nil {
		return err
	}
	req := &model.DepositRequest{Caller: a.caller, Pool: pool, Shares: v[0], MaxX: v[1], MaxY: v[2]}
	if req.Signature, err = a.sign(req); err != nil {
		return err
	}
	receipt, err := a.engine.Deposit(a.ctx, req)
	if err != nil {
		return err
	}
	return printJSON(cmd, receipt)
}

func newWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Burn pool shares and withdraw reserves",
		RunE:  withApp(runWithdraw),
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("shares", "", "shares to burn")
	cmd.Flags().String("min-x", "", "minimum X to receive (non-zero)")
	cmd.Flags().String("min-y", "", "minimum Y to receive (non-zero)")
	return cmd
}

func runWithdraw(cmd *cobra.Command, a *app, _ []string) error {
	if err := a.requireCaller(); err != nil {
		return err
	}
	pool, err := addressFlag(cmd, "pool")
	if err != nil {
		return err
	}
	v, err := amountFlags(cmd, "shares", "min-x", "min-y")
	if err != nil {
		return err
	}
	req := &model.WithdrawRequest{Caller: a.caller, Pool: pool, Shares: v[0], MinX: v[1], MinY: v[2]}
	if req.Signature, err = a.sign(req); err != nil {
		return err
	}
	receipt, err := a.engine.Withdraw(a.ctx, req)
	if err != nil {
		return err
	}
	return printJSON(cmd, receipt)
}

func newSwapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap one reserve asset for the other",
		RunE:  withApp(runSwap),
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("direction", "x-to-y", "x-to-y or y-to-x")
	cmd.Flags().String("amount-in", "", "input amount, fee included")
	cmd.Flags().String("min-out", "0", "minimum output amount")
	return cmd
}

func runSwap(cmd *cobra.Command, a *app, _ []string) error {
	if err := a.requireCaller(); err != nil {
		return err
	}
	pool, err := addressFlag(cmd, "pool")
	if err != nil {
		return err
	}
	xToY, err := directionFlag(cmd)
	if err != nil {
		return err
	}
	v, err := amountFlags(cmd, "amount-in", "min-out")
	if err != nil {
		return err
	}
	req := &model.SwapRequest{Caller: a.caller, Pool: pool, XToY: xToY, AmountIn: v[0], MinAmountOut: v[1]}
	if req.Signature, err = a.sign(req); err != nil {
		return err
	}
	receipt, err := a.engine.Swap(a.ctx, req)
	if err != nil {
		return err
	}
	return printJSON(cmd, receipt)
}

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change pool fee, lock or authority (authority only)",
		RunE:  withApp(runUpdate),
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().Uint16("fee-bps", 0, "new swap fee in basis points")
	cmd.Flags().Bool("locked", false, "lock or unlock the pool")
	cmd.Flags().String("authority", "", "new authority address")
	return cmd
}

func runUpdate(cmd *cobra.Command, a *app, _ []string) error {
	if err := a.requireCaller(); err != nil {
		return err
	}
	pool, err := addressFlag(cmd, "pool")
	if err != nil {
		return err
	}
	req := &model.UpdateConfigRequest{Caller: a.caller, Pool: pool}
	flags := cmd.Flags()
	if flags.Changed("fee-bps") {
		fee, _ := flags.GetUint16("fee-bps")
		req.FeeBps = &fee
	}
	if flags.Changed("locked") {
		locked, _ := flags.GetBool("locked")
		req.Locked = &locked
	}
	if flags.Changed("authority") {
		authority, err := addressFlag(cmd, "authority")
		if err != nil {
			return err
		}
		req.Authority = &authority
	}
	if req.FeeBps == nil && req.Locked == nil && req.Authority == nil {
		return fmt.Errorf("nothing to update: set --fee-bps, --locked or --authority")
	}
	if req.Signature, err = a.sign(req); err != nil {
		return err
	}
	updated, err := a.engine.UpdateConfig(a.ctx, req)
	if err != nil {
		return err
	}
	return printJSON(cmd, updated)
}
