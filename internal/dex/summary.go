package dex

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"poolMonitor/internal/model"
)

// Summarize builds the printable view of a decoded pool.
func Summarize(pool *model.DecodedPool, mode PriceMode) *model.PoolSummary {
	if pool == nil {
		return nil
	}
	if mode == "" {
		mode = PriceLegacy
	}
	return &model.PoolSummary{
		Discriminator: hexutil.Encode(pool.Discriminator[:]),
		TokenMintA:    pool.TokenMintA.String(),
		TokenMintB:    pool.TokenMintB.String(),
		TokenVaultA:   pool.TokenVaultA.String(),
		TokenVaultB:   pool.TokenVaultB.String(),
		TickSpacing:   pool.TickSpacing,
		Liquidity:     pool.Liquidity.BigInt().String(),
		SqrtPriceX64:  pool.SqrtPriceX64.BigInt().String(),
		TickCurrent:   pool.TickCurrent,
		Price:         FormatPrice(pool.SqrtPriceX64, mode),
		PriceMode:     string(mode),
	}
}

// BuildUpdate converts a registry record into a sink event.
func BuildUpdate(record model.PoolRecord, source string, mode PriceMode) model.PoolUpdate {
	update := model.PoolUpdate{
		Address:     record.Address.String(),
		AddressHex:  model.HexAddress(record.Address),
		Owner:       record.Owner.String(),
		Slot:        record.Slot,
		DataLength:  record.DataLength,
		FirstSeenAt: formatTime(record.FirstSeenAt),
		LastSeenAt:  formatTime(record.LastSeenAt),
		Updates:     record.Updates,
		Source:      source,
		Pool:        Summarize(record.Decoded, mode),
		DecodeError: record.DecodeError,
	}
	return update
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
