// Package protocol implements the framed command protocol spoken between a
// host and a device over a single byte stream.
//
// Every frame is a command byte with bit 7 set, a payload of 7-bit bytes and
// the end marker 0xF7:
//
//	[COMMAND] [PAYLOAD...] [0xF7]
//
// Integers are packed 7 bits per byte (see package codec) and binary data is
// codec-encoded as the last field of a frame. Bytes seen outside a frame are
// treated as plain diagnostic text.
//
// Messages are typed structs; Marshal and Unmarshal convert between them and
// Frames. Reader extracts frames from a noisy stream and resynchronises on
// garbage; Writer serialises frames from many goroutines onto one stream.
package protocol
