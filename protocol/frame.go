package protocol

import (
	"fmt"
	"io"
	"strings"

	"github.com/ardnew/softexec/codec"
	"github.com/ardnew/softexec/pkg"
)

// Frame is one command-plus-payload unit on the wire. The payload is stored
// exactly as transmitted: every byte has bit 7 clear.
//
// Frames are immutable once constructed.
type Frame struct {
	command Command
	payload []byte
}

// NewFrame creates a frame, copying payload.
func NewFrame(cmd Command, payload []byte) Frame {
	return Frame{command: cmd, payload: append([]byte(nil), payload...)}
}

// Command returns the frame's command.
func (f Frame) Command() Command {
	return f.command
}

// Payload returns the raw 7-bit payload. The slice must not be modified.
func (f Frame) Payload() []byte {
	return f.payload
}

// Len returns the number of bytes the frame occupies on the wire.
func (f Frame) Len() int {
	return len(f.payload) + 2
}

// Validate checks that the frame can be transmitted.
func (f Frame) Validate() error {
	if !f.command.Known() {
		return fmt.Errorf("%w: %s", pkg.ErrUnknownCommand, f.command)
	}
	if !codec.Valid(f.payload) {
		return fmt.Errorf("%s: %w", f.command, pkg.ErrHighBit)
	}
	return nil
}

// AppendTo appends the wire form of the frame to dst.
func (f Frame) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(f.command))
	dst = append(dst, f.payload...)
	return append(dst, EndMarker)
}

// WriteTo writes the wire form of the frame to w in a single Write call.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.AppendTo(make([]byte, 0, f.Len())))
	return int64(n), err
}

// String returns a short hex dump of the frame.
func (f Frame) String() string {
	const maxBytes = 32
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]", f.command, len(f.payload))
	for i, c := range f.payload {
		if i == maxBytes {
			b.WriteString(" ...")
			break
		}
		fmt.Fprintf(&b, " %02X", c)
	}
	return b.String()
}
