package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolMonitor/internal/chain"
	"poolMonitor/internal/config"
	"poolMonitor/internal/dex"
	"poolMonitor/internal/monitor"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "monitor",
		Short:        "Solana DEX pool account monitor",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Bootstrap known pools and follow live pool account changes",
		RunE:  runMonitor,
	}

	addChainFlags(runCmd)
	runCmd.Flags().Duration("reconnect-delay", time.Second, "initial delay before resubscribing after a drop")
	runCmd.Flags().Duration("reconnect-max-delay", 30*time.Second, "maximum resubscribe delay")
	runCmd.Flags().Duration("health-interval", 15*time.Second, "connection health poll interval")
	runCmd.Flags().Int("queue-size", 256, "buffered live notifications")
	runCmd.Flags().Int("max-pools", 0, "registry bound, 0 means unbounded")
	runCmd.Flags().String("out", "", "output JSONL path, - for stdout, empty to disable")
	runCmd.Flags().String("redis-addr", "", "redis address for publishing pool updates")
	runCmd.Flags().String("redis-channel", "pool-updates", "redis pub/sub channel")
	runCmd.Flags().Duration("status-interval", time.Minute, "status log interval")

	root.AddCommand(runCmd)

	poolsCmd := &cobra.Command{
		Use:   "pools",
		Short: "Fetch pool accounts once and print the most recent ones",
		RunE:  runPools,
	}

	addChainFlags(poolsCmd)
	poolsCmd.Flags().Int("limit", 5, "number of pools to print, 0 for all")
	poolsCmd.Flags().String("order", orderQuery, "pool order: query (last returned by the query) or slot (newest slot first)")
	poolsCmd.Flags().String("out", "-", "output JSONL path, - for stdout")

	root.AddCommand(poolsCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a single pool account",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "Solana RPC URL")
	decodeCmd.Flags().String("commitment", "confirmed", "commitment level")
	decodeCmd.Flags().String("account", "", "pool account address to fetch")
	decodeCmd.Flags().String("hex", "", "raw account data as hex, instead of fetching")
	decodeCmd.Flags().String("discriminator", "", "expected 8-byte account discriminator (hex)")
	decodeCmd.Flags().String("price-mode", "legacy", "price rendering (legacy, precise)")
	decodeCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	watchCmd := &cobra.Command{
		Use:   "watch-token",
		Short: "Follow supply changes of token mints",
		RunE:  runWatchTokens,
	}

	watchCmd.Flags().String("rpc", "", "Solana RPC URL (env MONITOR_RPC or MAINNET_RPC_URL)")
	watchCmd.Flags().String("ws", "", "Solana websocket URL, derived from --rpc when empty")
	watchCmd.Flags().String("commitment", "confirmed", "commitment level")
	watchCmd.Flags().StringSlice("token", nil, "token mint address, repeatable")
	watchCmd.Flags().Duration("timeout", 30*time.Second, "per-request timeout")
	watchCmd.Flags().Duration("status-interval", time.Minute, "status log interval")
	watchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(watchCmd)

	return root
}

func addChainFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "Solana RPC URL (env MONITOR_RPC or MAINNET_RPC_URL)")
	cmd.Flags().String("ws", "", "Solana websocket URL, derived from --rpc when empty")
	cmd.Flags().String("program-id", config.DefaultProgramID, "AMM program id")
	cmd.Flags().String("commitment", "confirmed", "commitment level")
	cmd.Flags().Int("pool-account-size", dex.DefaultPoolAccountSize, "pool account data size")
	cmd.Flags().String("discriminator", "", "expected 8-byte pool discriminator (hex), empty to skip the check")
	cmd.Flags().String("price-mode", "legacy", "price rendering (legacy, precise)")
	cmd.Flags().Duration("timeout", 30*time.Second, "per-request timeout")
	cmd.Flags().Int("max-retries", 3, "bootstrap retries after the first attempt")
	cmd.Flags().Duration("retry-delay", time.Second, "bootstrap retry base delay")
	cmd.Flags().Int("rate-limit-factor", 2, "retry delay multiplier on HTTP 429")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
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

func newChainClient(cfg config.Config, logger *zap.Logger) (*chain.Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	client, err := chain.NewClient(cfg.RPCURL, cfg.WSURL, rpc.CommitmentType(cfg.Commitment), logger.Named("chain"))
	if err != nil {
		return nil, fmt.Errorf("create chain client: %w", err)
	}
	return client, nil
}

func monitorConfig(cfg config.Config) (monitor.Config, error) {
	programID, err := config.ParseProgramID(cfg.ProgramID)
	if err != nil {
		return monitor.Config{}, err
	}
	discriminator, err := dex.ParseDiscriminator(cfg.Discriminator)
	if err != nil {
		return monitor.Config{}, err
	}
	priceMode, err := dex.ParsePriceMode(cfg.PriceMode)
	if err != nil {
		return monitor.Config{}, err
	}

	return monitor.Config{
		ProgramID:         programID,
		PoolAccountSize:   cfg.PoolAccountSize,
		Discriminator:     discriminator,
		PriceMode:         priceMode,
		Timeout:           cfg.Timeout,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		RateLimitFactor:   cfg.RateLimitFactor,
		IsRateLimited:     chain.IsRateLimited,
		ReconnectDelay:    cfg.ReconnectDelay,
		ReconnectMaxDelay: cfg.ReconnectMaxDelay,
		HealthInterval:    cfg.HealthInterval,
		QueueSize:         cfg.QueueSize,
		MaxPools:          cfg.MaxPools,
	}, nil
}
