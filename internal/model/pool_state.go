package model

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// DecodedPool is the fixed-layout pool state parsed from a pool account.
type DecodedPool struct {
	Discriminator      [8]byte
	TokenMintA         solana.PublicKey
	TokenMintB         solana.PublicKey
	TokenVaultA        solana.PublicKey
	TokenVaultB        solana.PublicKey
	TickSpacing        uint16
	TickArrayBitmap    [32]byte
	Liquidity          bin.Uint128
	SqrtPriceX64       bin.Uint128
	TickCurrent        int32
	FeeGrowthGlobalA   bin.Uint128
	FeeGrowthGlobalB   bin.Uint128
	ProtocolFeesTokenA bin.Uint128
	ProtocolFeesTokenB bin.Uint128
}
