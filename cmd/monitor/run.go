package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolMonitor/internal/config"
	"poolMonitor/internal/monitor"
	"poolMonitor/internal/sink"
)

func runMonitor(cmd *cobra.Command, _ []string) error {
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

	updates, closeSinks, err := openSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	mon, err := monitor.New(monitorCfg, chainClient, updates, logger.Named("monitor"))
	if err != nil {
		return err
	}

	logger.Info("monitor start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("ws", cfg.WSURL),
		zap.String("program_id", cfg.ProgramID),
		zap.String("commitment", cfg.Commitment),
		zap.Int("pool_account_size", cfg.PoolAccountSize),
		zap.String("out", cfg.Out),
		zap.String("redis_addr", cfg.RedisAddr),
	)

	if !mon.StartMonitoring(ctx) {
		return fmt.Errorf("start monitoring: %s", mon.Status().LastError)
	}

	statusInterval := cfg.StatusInterval
	if statusInterval <= 0 {
		statusInterval = time.Minute
	}
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			mon.StopMonitoring(stopCtx)
			cancel()
			logStatus(logger, mon.Status())
			return nil
		case <-ticker.C:
			logStatus(logger, mon.Status())
		}
	}
}

func openSinks(ctx context.Context, cfg config.Config, logger *zap.Logger) (sink.Sink, func(), error) {
	var (
		sinks   sink.Multi
		closers []func()
	)
	closeAll := func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}

	if cfg.Out != "" {
		out, err := sink.OpenJSONL(cfg.Out)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, out)
		closers = append(closers, func() {
			if err := out.Close(); err != nil {
				logger.Warn("close output", zap.Error(err))
			}
		})
	}

	if cfg.RedisAddr != "" {
		rdb, err := sink.DialRedis(ctx, cfg.RedisAddr, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, sink.NewRedis(rdb, cfg.RedisChannel, logger.Named("sink")))
		closers = append(closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("close redis", zap.Error(err))
			}
		})
	}

	if len(sinks) == 0 {
		return nil, closeAll, nil
	}
	return sinks, closeAll, nil
}

func logStatus(logger *zap.Logger, status monitor.Status) {
	logger.Info("monitor status",
		zap.String("state", status.State.String()),
		zap.Bool("has_subscription", status.HasSubscription),
		zap.String("connection", string(status.ConnectionStatus)),
		zap.Int("known_pools", status.KnownPoolsCount),
		zap.Int64("processed", status.Processed),
		zap.Int64("ignored", status.Ignored),
		zap.Int64("decode_failures", status.DecodeFailures),
		zap.Int64("stale_updates", status.StaleUpdates),
		zap.Int64("bootstrap_retries", status.BootstrapRetries),
		zap.Int64("reconnect_failures", status.ReconnectFailures),
		zap.String("last_error", status.LastError),
	)
}
