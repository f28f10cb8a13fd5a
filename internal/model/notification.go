package model

import "github.com/gagliardetto/solana-go"

// AccountNotification is a single program account observation, either from
// a bulk query or a push subscription. It is consumed once and never mutated.
type AccountNotification struct {
	Address solana.PublicKey
	Owner   solana.PublicKey
	Data    []byte
	Slot    uint64
}

// DataLength returns the payload length used for classification.
func (n AccountNotification) DataLength() int {
	return len(n.Data)
}
