package dex

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

const (
	// MintAccountSize is the size of the base SPL token mint layout.
	MintAccountSize = 82

	// Token-2022 accounts with extensions are padded to the token account
	// size and tagged with an account type byte.
	token2022AccountTypeOffset = 165
	token2022AccountTypeMint   = 1
)

var ErrNotMint = errors.New("account is not a token mint")

// DecodeMint parses a token mint owned by the token program or Token-2022.
// Only the base layout is read; extensions are ignored.
func DecodeMint(owner solana.PublicKey, data []byte) (*token.Mint, error) {
	switch {
	case owner.Equals(solana.TokenProgramID):
		if len(data) != MintAccountSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrNotMint, len(data))
		}
	case owner.Equals(solana.Token2022ProgramID):
		if len(data) != MintAccountSize &&
			(len(data) <= token2022AccountTypeOffset || data[token2022AccountTypeOffset] != token2022AccountTypeMint) {
			return nil, fmt.Errorf("%w: %d bytes", ErrNotMint, len(data))
		}
	default:
		return nil, fmt.Errorf("%w: owner %s", ErrNotMint, owner)
	}

	var mint token.Mint
	if err := bin.NewBinDecoder(data[:MintAccountSize]).Decode(&mint); err != nil {
		return nil, fmt.Errorf("decode mint: %w", err)
	}
	if !mint.IsInitialized {
		return nil, fmt.Errorf("%w: not initialized", ErrNotMint)
	}
	return &mint, nil
}

// EncodeMint writes the base mint layout.
func EncodeMint(mint token.Mint) ([]byte, error) {
	data, err := bin.MarshalBin(mint)
	if err != nil {
		return nil, fmt.Errorf("encode mint: %w", err)
	}
	return data, nil
}
