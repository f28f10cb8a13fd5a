package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolMonitor/internal/config"
	"poolMonitor/internal/dex"
	"poolMonitor/internal/model"
	"poolMonitor/internal/monitor"
	"poolMonitor/internal/sink"
)

func runPools(cmd *cobra.Command, _ []string) error {
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

	monitorCfg, err := monitorConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := newChainClient(cfg, logger)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	out, err := sink.OpenJSONL(cfg.Out)
	if err != nil {
		return err
	}
	defer out.Close()

	mon, err := monitor.New(monitorCfg, chainClient, nil, logger.Named("monitor"))
	if err != nil {
		return err
	}

	pools, err := recentPools(ctx, mon, cfg.Order, cfg.Limit)
	if err != nil {
		return err
	}
	for _, record := range pools {
		update := dex.BuildUpdate(record, model.SourceBootstrap, monitorCfg.PriceMode)
		if err := out.Put(ctx, update); err != nil {
			return err
		}
	}

	status := mon.Status()
	logger.Info("pools fetched",
		zap.String("order", cfg.Order),
		zap.Int("printed", len(pools)),
		zap.Int("known_pools", status.KnownPoolsCount),
		zap.Int64("decode_failures", status.DecodeFailures),
		zap.Int64("bootstrap_retries", status.BootstrapRetries),
	)
	return nil
}

const (
	orderQuery = "query"
	orderSlot  = "slot"
)

// recentPools bootstraps the registry and picks the pools to print.
func recentPools(ctx context.Context, mon *monitor.Monitor, order string, limit int) ([]model.PoolRecord, error) {
	switch order {
	case "", orderQuery:
		return mon.GetRecentPools(ctx, limit), nil
	case orderSlot:
		mon.GetRecentPools(ctx, 0)
		return mon.Registry().Recent(limit), nil
	default:
		return nil, fmt.Errorf("unsupported pool order: %s", order)
	}
}
