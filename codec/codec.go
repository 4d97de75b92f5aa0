package codec

import (
	"fmt"

	"github.com/ardnew/softexec/pkg"
)

// Mask7 selects the significant bits of a transport byte.
const Mask7 = 0x7F

// EncodedLen returns the transport length of n input bytes.
func EncodedLen(n int) int {
	return (8*n + 6) / 7
}

// DecodedLen returns the number of bytes m transport bytes decode to.
// ok is false if no input length encodes to exactly m bytes.
func DecodedLen(m int) (n int, ok bool) {
	if m < 0 {
		return 0, false
	}
	n = 7 * m / 8
	return n, EncodedLen(n) == m
}

// Encode appends the 7-bit encoding of src to dst and returns the extended slice.
func Encode(dst, src []byte) []byte {
	if len(src) == 0 {
		return dst
	}
	dst = grow(dst, EncodedLen(len(src)))

	var acc uint16
	var bits uint
	for _, b := range src {
		acc |= uint16(b) << bits
		bits += 8
		for bits >= 7 {
			dst = append(dst, byte(acc&Mask7))
			acc >>= 7
			bits -= 7
		}
	}
	if bits > 0 {
		dst = append(dst, byte(acc&Mask7))
	}
	return dst
}

// Decode appends the bytes encoded in src to dst.
//
// It fails with [pkg.ErrInvalidLength] if len(src) is not a valid encoded
// length, [pkg.ErrHighBit] if any byte has bit 7 set, and [pkg.ErrPadding]
// if the unused bits of the final byte are not zero. On error dst is
// returned unchanged.
func Decode(dst, src []byte) ([]byte, error) {
	n, ok := DecodedLen(len(src))
	if !ok {
		return dst, fmt.Errorf("%w: %d bytes", pkg.ErrInvalidLength, len(src))
	}
	if n == 0 {
		return dst, nil
	}
	start := len(dst)
	dst = grow(dst, n)

	var acc uint16
	var bits uint
	for i, c := range src {
		if c&^Mask7 != 0 {
			return dst[:start], fmt.Errorf("%w: offset %d value 0x%02X", pkg.ErrHighBit, i, c)
		}
		acc |= uint16(c) << bits
		bits += 7
		if bits >= 8 {
			dst = append(dst, byte(acc))
			acc >>= 8
			bits -= 8
		}
	}
	if acc != 0 {
		return dst[:start], pkg.ErrPadding
	}
	return dst, nil
}

// Valid reports whether every byte of p has bit 7 clear.
func Valid(p []byte) bool {
	for _, c := range p {
		if c&^Mask7 != 0 {
			return false
		}
	}
	return true
}

func grow(dst []byte, n int) []byte {
	if cap(dst)-len(dst) >= n {
		return dst
	}
	out := make([]byte, len(dst), len(dst)+n)
	copy(out, dst)
	return out
}
