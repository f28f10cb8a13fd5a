package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolMonitor/internal/config"
	"poolMonitor/internal/monitor"
	"poolMonitor/internal/retry"
)

func runWatchTokens(cmd *cobra.Command, _ []string) error {
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

	tokens, err := parseTokens(cfg.Tokens)
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

	watcher, err := monitor.NewTokenWatcher(chainClient, logger.Named("tokens"))
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := watcher.StopAll(stopCtx); err != nil {
			logger.Warn("stop token watches", zap.Error(err))
		}
	}()

	if err := watchTokens(ctx, watcher, tokens, cfg.Timeout); err != nil {
		return err
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
			logTokens(logger, watcher.Tokens())
			return nil
		case <-ticker.C:
			logTokens(logger, watcher.Tokens())
		}
	}
}

// watchTokens subscribes to every token, each bounded by timeout.
func watchTokens(ctx context.Context, watcher *monitor.TokenWatcher, tokens []solana.PublicKey, timeout time.Duration) error {
	for _, address := range tokens {
		_, err := retry.WithTimeout(ctx, timeout, func(ctx context.Context) (monitor.WatchedToken, error) {
			return watcher.Watch(ctx, address)
		})
		if err != nil {
			return fmt.Errorf("watch token: %w", err)
		}
	}
	return nil
}

// parseTokens accepts repeated and comma separated mint addresses.
func parseTokens(values []string) ([]solana.PublicKey, error) {
	var out []solana.PublicKey
	seen := make(map[solana.PublicKey]struct{})
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			key, err := solana.PublicKeyFromBase58(part)
			if err != nil {
				return nil, fmt.Errorf("invalid token address %s: %w", part, err)
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one --token is required")
	}
	return out, nil
}

func logTokens(logger *zap.Logger, tokens []monitor.WatchedToken) {
	for _, token := range tokens {
		logger.Info("token status",
			zap.Stringer("token", token.Address),
			zap.Uint64("supply", token.Supply),
			zap.Uint8("decimals", token.Decimals),
			zap.Uint64("slot", token.Slot),
			zap.Uint64("updates", token.Updates),
			zap.Time("last_update", token.LastUpdate),
			zap.Bool("active", token.Active),
			zap.String("error", token.Err),
		)
	}
}
