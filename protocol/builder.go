package protocol

import (
	"fmt"

	"github.com/ardnew/softexec/codec"
	"github.com/ardnew/softexec/pkg"
)

// Builder assembles a frame payload field by field.
type Builder struct {
	command Command
	buf     []byte
}

// NewBuilder starts a payload for the given command.
func NewBuilder(cmd Command) *Builder {
	return &Builder{command: cmd, buf: make([]byte, 0, 32)}
}

// Byte appends the low 7 bits of v.
func (b *Builder) Byte(v uint8) *Builder {
	b.buf = append(b.buf, v&codec.Mask7)
	return b
}

// Bool appends 1 for true and 0 for false.
func (b *Builder) Bool(v bool) *Builder {
	if v {
		return b.Byte(1)
	}
	return b.Byte(0)
}

// Uint14 appends the low 14 bits of v as two bytes.
func (b *Builder) Uint14(v uint16) *Builder {
	b.buf = codec.AppendUint14(b.buf, v)
	return b
}

// Uint32 appends v as five bytes.
func (b *Builder) Uint32(v uint32) *Builder {
	b.buf = codec.AppendUint32(b.buf, v)
	return b
}

// Blob appends p 7-bit encoded. A blob has no length prefix and must be the
// last field of a payload.
func (b *Builder) Blob(p []byte) *Builder {
	b.buf = codec.Encode(b.buf, p)
	return b
}

// Len returns the payload length built so far.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Frame returns the finished frame.
func (b *Builder) Frame() Frame {
	return Frame{command: b.command, payload: b.buf}
}

// Parser reads payload fields in the order a Builder wrote them. The first
// error is sticky: later reads return zero values and Err reports it.
type Parser struct {
	command Command
	p       []byte
	off     int
	err     error
}

// NewParser starts parsing the payload of f.
func NewParser(f Frame) *Parser {
	return &Parser{command: f.command, p: f.payload}
}

func (r *Parser) fail(err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%s at offset %d: %w", r.command, r.off, err)
	}
}

func (r *Parser) need(n int) bool {
	if r.err != nil {
		return false
	}
	if len(r.p)-r.off < n {
		r.fail(fmt.Errorf("%w: need %d bytes, have %d", pkg.ErrMalformed, n, len(r.p)-r.off))
		return false
	}
	return true
}

// Byte reads one 7-bit byte.
func (r *Parser) Byte() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.p[r.off]
	if v&^codec.Mask7 != 0 {
		r.fail(pkg.ErrHighBit)
		return 0
	}
	r.off++
	return v
}

// Bool reads a byte written by Builder.Bool.
func (r *Parser) Bool() bool {
	return r.Byte() != 0
}

// Uint14 reads a packed 14-bit integer.
func (r *Parser) Uint14() uint16 {
	if !r.need(codec.Uint14Size) {
		return 0
	}
	v, err := codec.Uint14(r.p[r.off:])
	if err != nil {
		r.fail(err)
		return 0
	}
	r.off += codec.Uint14Size
	return v
}

// Uint32 reads a packed 32-bit integer.
func (r *Parser) Uint32() uint32 {
	if !r.need(codec.Uint32Size) {
		return 0
	}
	v, err := codec.Uint32(r.p[r.off:])
	if err != nil {
		r.fail(err)
		return 0
	}
	r.off += codec.Uint32Size
	return v
}

// Blob decodes the remainder of the payload.
func (r *Parser) Blob() []byte {
	if r.err != nil {
		return nil
	}
	out, err := codec.Decode(nil, r.p[r.off:])
	if err != nil {
		r.fail(err)
		return nil
	}
	r.off = len(r.p)
	return out
}

// Err returns the first error encountered, or an error if unread bytes remain.
func (r *Parser) Err() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.p) {
		return fmt.Errorf("%s: %w: %d trailing bytes", r.command, pkg.ErrMalformed, len(r.p)-r.off)
	}
	return nil
}
