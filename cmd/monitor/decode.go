package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolMonitor/internal/config"
	"poolMonitor/internal/dex"
	"poolMonitor/internal/model"
)

type decodeOutput struct {
	Address     string             `json:"address,omitempty"`
	Slot        uint64             `json:"slot,omitempty"`
	DataLength  int                `json:"data_len"`
	Pool        *model.PoolSummary `json:"pool,omitempty"`
	DecodeError string             `json:"decode_error,omitempty"`
}

func runDecode(cmd *cobra.Command, _ []string) error {
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

	account, _ := cmd.Flags().GetString("account")
	rawHex, _ := cmd.Flags().GetString("hex")
	if (account == "") == (rawHex == "") {
		return fmt.Errorf("exactly one of --account or --hex is required")
	}

	discriminator, err := dex.ParseDiscriminator(cfg.Discriminator)
	if err != nil {
		return err
	}
	decoder, err := dex.NewPoolDecoder(discriminator)
	if err != nil {
		return err
	}
	priceMode, err := dex.ParsePriceMode(cfg.PriceMode)
	if err != nil {
		return err
	}

	var out decodeOutput
	var data []byte
	if rawHex != "" {
		data, err = dex.DecodeHex(rawHex)
		if err != nil {
			return fmt.Errorf("invalid hex data: %w", err)
		}
	} else {
		address, err := solana.PublicKeyFromBase58(strings.TrimSpace(account))
		if err != nil {
			return fmt.Errorf("invalid account: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		chainClient, err := newChainClient(cfg, logger)
		if err != nil {
			return err
		}
		defer chainClient.Close()

		n, err := chainClient.AccountInfo(ctx, address)
		if err != nil {
			return err
		}
		out.Address = n.Address.String()
		out.Slot = n.Slot
		data = n.Data
	}

	out.DataLength = len(data)
	pool, err := decoder.Decode(data)
	if err != nil {
		logger.Warn("decode pool account", zap.Int("data_len", len(data)), zap.Error(err))
		out.DecodeError = err.Error()
	} else {
		out.Pool = dex.Summarize(pool, priceMode)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
