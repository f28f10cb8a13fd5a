package dex

import (
	"errors"
	"fmt"
)

var (
	ErrTooShort              = errors.New("pool data too short")
	ErrFieldOutOfRange       = errors.New("pool field out of range")
	ErrDiscriminatorMismatch = errors.New("pool discriminator mismatch")
)

// DecodeError describes why a pool account payload could not be decoded.
// It unwraps to one of ErrTooShort, ErrFieldOutOfRange or ErrDiscriminatorMismatch.
type DecodeError struct {
	Reason error
	Field  string
	Offset int
	Length int
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: got %d bytes, need at least %d", e.Reason, e.Length, MinPoolDataLength)
	}
	return fmt.Sprintf("%v: field %s at offset %d (data length %d)", e.Reason, e.Field, e.Offset, e.Length)
}

func (e *DecodeError) Unwrap() error {
	return e.Reason
}
