package codec

import (
	"fmt"

	"github.com/ardnew/softexec/pkg"
)

// Sizes of the packed integer encodings.
const (
	Uint14Size = 2
	Uint32Size = 5
)

// MaxUint14 is the largest value representable in a packed 14-bit integer.
const MaxUint14 = 1<<14 - 1

// AppendUint14 appends the low 14 bits of v as two 7-bit bytes, low bits first.
func AppendUint14(dst []byte, v uint16) []byte {
	return append(dst, byte(v&Mask7), byte((v>>7)&Mask7))
}

// Uint14 decodes a packed 14-bit integer from the first two bytes of p.
func Uint14(p []byte) (uint16, error) {
	if len(p) < Uint14Size {
		return 0, fmt.Errorf("%w: uint14 needs %d bytes, have %d", pkg.ErrMalformed, Uint14Size, len(p))
	}
	if !Valid(p[:Uint14Size]) {
		return 0, pkg.ErrHighBit
	}
	return uint16(p[0]) | uint16(p[1])<<7, nil
}

// AppendUint32 appends v as five 7-bit bytes, low bits first.
func AppendUint32(dst []byte, v uint32) []byte {
	return append(dst,
		byte(v&Mask7),
		byte((v>>7)&Mask7),
		byte((v>>14)&Mask7),
		byte((v>>21)&Mask7),
		byte((v>>28)&Mask7),
	)
}

// Uint32 decodes a packed 32-bit integer from the first five bytes of p.
func Uint32(p []byte) (uint32, error) {
	if len(p) < Uint32Size {
		return 0, fmt.Errorf("%w: uint32 needs %d bytes, have %d", pkg.ErrMalformed, Uint32Size, len(p))
	}
	if !Valid(p[:Uint32Size]) {
		return 0, pkg.ErrHighBit
	}
	// The fifth byte carries only the top 4 bits.
	if p[4] > 0x0F {
		return 0, fmt.Errorf("%w: uint32 overflow", pkg.ErrMalformed)
	}
	return uint32(p[0]) |
		uint32(p[1])<<7 |
		uint32(p[2])<<14 |
		uint32(p[3])<<21 |
		uint32(p[4])<<28, nil
}
