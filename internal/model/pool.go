package model

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// PoolRecord is the registry entry for a pool account.
type PoolRecord struct {
	Address     solana.PublicKey
	Owner       solana.PublicKey
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	Slot        uint64
	DataLength  int
	Decoded     *DecodedPool
	// DecodeError is the latest decode failure; empty once a payload decodes.
	DecodeError string
	Updates     uint64
}
