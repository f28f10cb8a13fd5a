package model

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"
)

// HexAddress renders a 32-byte account address as 0x-prefixed hex.
func HexAddress(address solana.PublicKey) string {
	return hexutil.Encode(address[:])
}
