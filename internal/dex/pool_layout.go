package dex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"poolMonitor/internal/model"
)

// Byte offsets of the pool account layout, counted from the start of the
// account data (discriminator included). All integers are little-endian.
const (
	offsetDiscriminator      = 0
	offsetTokenMintA         = 8
	offsetTokenMintB         = 40
	offsetTokenVaultA        = 72
	offsetTokenVaultB        = 104
	offsetTickSpacing        = 136
	offsetTickArrayBitmap    = 138
	offsetLiquidity          = 170
	offsetSqrtPriceX64       = 186
	offsetTickCurrent        = 202
	offsetFeeGrowthGlobalA   = 206
	offsetFeeGrowthGlobalB   = 222
	offsetProtocolFeesTokenA = 238
	offsetProtocolFeesTokenB = 254

	// MinPoolDataLength is the shortest payload Decode will attempt.
	MinPoolDataLength = 262
	// PoolLayoutSpan is the number of leading bytes covered by the layout.
	PoolLayoutSpan = offsetProtocolFeesTokenB + 16

	// DefaultPoolAccountSize is the pool account size the layout was taken from.
	DefaultPoolAccountSize = 1440
)

var le = binary.LittleEndian

// Decode parses a pool account payload. The leading discriminator is read
// but not validated; use PoolDecoder for that.
func Decode(data []byte) (*model.DecodedPool, error) {
	if len(data) < MinPoolDataLength {
		return nil, &DecodeError{Reason: ErrTooShort, Length: len(data)}
	}

	r := &layoutReader{dec: bin.NewBinDecoder(data), length: len(data)}
	var pool model.DecodedPool

	r.bytes("discriminator", offsetDiscriminator, pool.Discriminator[:])
	r.publicKey("token_mint_a", offsetTokenMintA, &pool.TokenMintA)
	r.publicKey("token_mint_b", offsetTokenMintB, &pool.TokenMintB)
	r.publicKey("token_vault_a", offsetTokenVaultA, &pool.TokenVaultA)
	r.publicKey("token_vault_b", offsetTokenVaultB, &pool.TokenVaultB)
	pool.TickSpacing = r.uint16("tick_spacing", offsetTickSpacing)
	r.bytes("tick_array_bitmap", offsetTickArrayBitmap, pool.TickArrayBitmap[:])
	pool.Liquidity = r.uint128("liquidity", offsetLiquidity)
	pool.SqrtPriceX64 = r.uint128("sqrt_price_x64", offsetSqrtPriceX64)
	pool.TickCurrent = r.int32("tick_current", offsetTickCurrent)
	pool.FeeGrowthGlobalA = r.uint128("fee_growth_global_a", offsetFeeGrowthGlobalA)
	pool.FeeGrowthGlobalB = r.uint128("fee_growth_global_b", offsetFeeGrowthGlobalB)
	pool.ProtocolFeesTokenA = r.uint128("protocol_fees_token_a", offsetProtocolFeesTokenA)
	pool.ProtocolFeesTokenB = r.uint128("protocol_fees_token_b", offsetProtocolFeesTokenB)

	if r.err != nil {
		return nil, r.err
	}
	return &pool, nil
}

// layoutReader reads consecutive layout fields and keeps the first error.
// Fields are contiguous, so the decoder position always equals the field offset.
type layoutReader struct {
	dec    *bin.Decoder
	length int
	err    error
}

func (r *layoutReader) check(field string, offset, size int) bool {
	if r.err != nil {
		return false
	}
	if offset+size > r.length {
		r.err = &DecodeError{Reason: ErrFieldOutOfRange, Field: field, Offset: offset, Length: r.length}
		return false
	}
	return true
}

func (r *layoutReader) fail(field string, offset int, err error) {
	r.err = &DecodeError{Reason: fmt.Errorf("%w: %v", ErrFieldOutOfRange, err), Field: field, Offset: offset, Length: r.length}
}

func (r *layoutReader) bytes(field string, offset int, dst []byte) {
	if !r.check(field, offset, len(dst)) {
		return
	}
	raw, err := r.dec.ReadNBytes(len(dst))
	if err != nil {
		r.fail(field, offset, err)
		return
	}
	copy(dst, raw)
}

func (r *layoutReader) publicKey(field string, offset int, dst *solana.PublicKey) {
	r.bytes(field, offset, dst[:])
}

func (r *layoutReader) uint16(field string, offset int) uint16 {
	if !r.check(field, offset, 2) {
		return 0
	}
	v, err := r.dec.ReadUint16(le)
	if err != nil {
		r.fail(field, offset, err)
	}
	return v
}

func (r *layoutReader) int32(field string, offset int) int32 {
	if !r.check(field, offset, 4) {
		return 0
	}
	v, err := r.dec.ReadInt32(le)
	if err != nil {
		r.fail(field, offset, err)
	}
	return v
}

func (r *layoutReader) uint128(field string, offset int) bin.Uint128 {
	if !r.check(field, offset, 16) {
		return bin.Uint128{}
	}
	v, err := r.dec.ReadUint128(le)
	if err != nil {
		r.fail(field, offset, err)
		return bin.Uint128{}
	}
	return bin.Uint128{Lo: v.Lo, Hi: v.Hi}
}

// EncodePool writes pool into a zero-padded buffer of size bytes using the
// same layout Decode reads.
func EncodePool(pool *model.DecodedPool, size int) ([]byte, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if size < PoolLayoutSpan {
		return nil, fmt.Errorf("size %d smaller than layout span %d", size, PoolLayoutSpan)
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))
	enc := bin.NewBinEncoder(buf)

	steps := []func() error{
		func() error { return enc.WriteBytes(pool.Discriminator[:], false) },
		func() error { return enc.WriteBytes(pool.TokenMintA[:], false) },
		func() error { return enc.WriteBytes(pool.TokenMintB[:], false) },
		func() error { return enc.WriteBytes(pool.TokenVaultA[:], false) },
		func() error { return enc.WriteBytes(pool.TokenVaultB[:], false) },
		func() error { return enc.WriteUint16(pool.TickSpacing, le) },
		func() error { return enc.WriteBytes(pool.TickArrayBitmap[:], false) },
		func() error { return enc.WriteUint128(pool.Liquidity, le) },
		func() error { return enc.WriteUint128(pool.SqrtPriceX64, le) },
		func() error { return enc.WriteInt32(pool.TickCurrent, le) },
		func() error { return enc.WriteUint128(pool.FeeGrowthGlobalA, le) },
		func() error { return enc.WriteUint128(pool.FeeGrowthGlobalB, le) },
		func() error { return enc.WriteUint128(pool.ProtocolFeesTokenA, le) },
		func() error { return enc.WriteUint128(pool.ProtocolFeesTokenB, le) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("encode pool: %w", err)
		}
	}

	out := buf.Bytes()
	if len(out) != PoolLayoutSpan {
		return nil, fmt.Errorf("encode pool: wrote %d bytes, want %d", len(out), PoolLayoutSpan)
	}
	return append(out, make([]byte, size-len(out))...), nil
}

// PoolDecoder decodes pool accounts and, when configured with a
// discriminator, rejects accounts carrying a different tag.
type PoolDecoder struct {
	discriminator *[8]byte
}

// NewPoolDecoder builds a decoder. An empty discriminator disables the tag check.
func NewPoolDecoder(discriminator []byte) (*PoolDecoder, error) {
	if len(discriminator) == 0 {
		return &PoolDecoder{}, nil
	}
	if len(discriminator) != 8 {
		return nil, fmt.Errorf("discriminator must be 8 bytes, got %d", len(discriminator))
	}
	var tag [8]byte
	copy(tag[:], discriminator)
	return &PoolDecoder{discriminator: &tag}, nil
}

// Decode runs Decode and then checks the discriminator, if one is set.
func (d *PoolDecoder) Decode(data []byte) (*model.DecodedPool, error) {
	pool, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if d != nil && d.discriminator != nil && pool.Discriminator != *d.discriminator {
		return nil, &DecodeError{Reason: ErrDiscriminatorMismatch, Field: "discriminator", Offset: offsetDiscriminator, Length: len(data)}
	}
	return pool, nil
}

// DecodeHex decodes hex data with an optional 0x or 0X prefix.
func DecodeHex(input string) ([]byte, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "0X") {
		input = "0x" + input[2:]
	} else if !strings.HasPrefix(input, "0x") {
		input = "0x" + input
	}
	return hexutil.Decode(input)
}

// ParseDiscriminator parses an 8-byte hex tag, with or without 0x prefix.
// An empty input returns nil.
func ParseDiscriminator(input string) ([]byte, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	data, err := DecodeHex(input)
	if err != nil {
		return nil, fmt.Errorf("invalid discriminator: %w", err)
	}
	if len(data) != 8 {
		return nil, fmt.Errorf("invalid discriminator length: %d", len(data))
	}
	return data, nil
}
