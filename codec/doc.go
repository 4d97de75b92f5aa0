// Package codec packs arbitrary 8-bit data into 7-bit transport bytes.
//
// The link reserves bit 7 of every byte to tell command bytes apart from
// payload, so binary payloads are re-packed: every 7 input bits (least
// significant first) become one output byte with bit 7 clear. n input bytes
// encode to exactly ceil(8n/7) output bytes.
//
//	enc := codec.Encode(nil, []byte{0xFF, 0x00})
//	dec, err := codec.Decode(nil, enc)
//
// The package also provides the fixed-width 7-bit integer encodings used by
// frame payloads: 14-bit values in two bytes and 32-bit values in five.
//
// All functions are pure and allocate at most the size of their output.
package codec
