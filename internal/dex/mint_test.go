package dex

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMintAccount lays out a mint by hand: COption authority, supply,
// decimals, initialized flag, COption freeze authority.
func buildMintAccount(supply uint64, decimals uint8) []byte {
	buf := make([]byte, MintAccountSize)
	binary.LittleEndian.PutUint32(buf[0:], 1)
	authority := filledKey(0x55)
	copy(buf[4:], authority[:])
	binary.LittleEndian.PutUint64(buf[36:], supply)
	buf[44] = decimals
	buf[45] = 1
	return buf
}

func TestDecodeMint(t *testing.T) {
	mint, err := DecodeMint(solana.TokenProgramID, buildMintAccount(1_000_000_000, 9))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), mint.Supply)
	assert.Equal(t, uint8(9), mint.Decimals)
	require.NotNil(t, mint.MintAuthority)
	assert.Equal(t, filledKey(0x55), *mint.MintAuthority)
	assert.Nil(t, mint.FreezeAuthority)
}

func TestDecodeMintToken2022Extensions(t *testing.T) {
	data := make([]byte, 200)
	copy(data, buildMintAccount(42, 6))
	data[token2022AccountTypeOffset] = token2022AccountTypeMint

	mint, err := DecodeMint(solana.Token2022ProgramID, data)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), mint.Supply)

	data[token2022AccountTypeOffset] = 2
	_, err = DecodeMint(solana.Token2022ProgramID, data)
	assert.ErrorIs(t, err, ErrNotMint)
}

func TestDecodeMintRejects(t *testing.T) {
	tests := []struct {
		name  string
		owner solana.PublicKey
		data  []byte
	}{
		{name: "wrong owner", owner: filledKey(0x01), data: buildMintAccount(1, 0)},
		{name: "token account size", owner: solana.TokenProgramID, data: make([]byte, 165)},
		{name: "uninitialized", owner: solana.TokenProgramID, data: make([]byte, MintAccountSize)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMint(tt.owner, tt.data)
			assert.ErrorIs(t, err, ErrNotMint)
		})
	}
}

func TestEncodeMintMatchesLayout(t *testing.T) {
	authority := filledKey(0x55)
	data, err := EncodeMint(token.Mint{MintAuthority: &authority, Supply: 7, Decimals: 2, IsInitialized: true})
	require.NoError(t, err)
	assert.Equal(t, buildMintAccount(7, 2), data)
}
