package dex

import (
	"fmt"
	"math/big"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/shopspring/decimal"
)

// PriceMode selects how a pool price is derived from sqrtPriceX64.
type PriceMode string

const (
	// PriceLegacy truncates sqrtPriceX64² / 2^128 to an integer, matching the
	// price the pool monitor has always reported.
	PriceLegacy PriceMode = "legacy"
	// PricePrecise keeps the fractional part.
	PricePrecise PriceMode = "precise"
)

// PriceScale is the number of decimal places kept by PrecisePrice.
const PriceScale = 18

var (
	q128        = new(big.Int).Lsh(big.NewInt(1), 128)
	q128Decimal = decimal.NewFromBigInt(q128, 0)
)

// ParsePriceMode validates a price mode name.
func ParsePriceMode(input string) (PriceMode, error) {
	switch PriceMode(strings.ToLower(strings.TrimSpace(input))) {
	case "", PriceLegacy:
		return PriceLegacy, nil
	case PricePrecise:
		return PricePrecise, nil
	default:
		return "", fmt.Errorf("unsupported price mode: %s", input)
	}
}

// Price returns sqrtPriceX64² / 2^128, truncated. Prices below one round to zero.
func Price(sqrtPriceX64 bin.Uint128) *big.Int {
	sq := sqrtPriceX64.BigInt()
	sq.Mul(sq, sq)
	return sq.Quo(sq, q128)
}

// PrecisePrice returns sqrtPriceX64² / 2^128 rounded to PriceScale places.
func PrecisePrice(sqrtPriceX64 bin.Uint128) decimal.Decimal {
	sq := sqrtPriceX64.BigInt()
	sq.Mul(sq, sq)
	return decimal.NewFromBigInt(sq, 0).DivRound(q128Decimal, PriceScale)
}

// FormatPrice renders the price for the given mode.
func FormatPrice(sqrtPriceX64 bin.Uint128, mode PriceMode) string {
	if mode == PricePrecise {
		return PrecisePrice(sqrtPriceX64).String()
	}
	return Price(sqrtPriceX64).String()
}
