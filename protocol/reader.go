package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/ardnew/softexec/pkg"
)

// DefaultMaxFrameLen bounds the wire length of a frame, command byte and end
// marker included.
const DefaultMaxFrameLen = 1024

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMaxFrameLen sets the longest frame accepted.
func WithMaxFrameLen(n int) ReaderOption {
	return func(r *Reader) {
		if n > 2 {
			r.maxLen = n
		}
	}
}

// WithOnText sets the callback for raw text lines seen outside frames.
func WithOnText(fn func(line string)) ReaderOption {
	return func(r *Reader) { r.onText = fn }
}

// WithOnDrop sets the callback for frames discarded while resynchronising.
func WithOnDrop(fn func(err error)) ReaderOption {
	return func(r *Reader) { r.onDrop = fn }
}

// Reader extracts frames from a byte stream that may also carry plain text.
// It is not safe for concurrent use; a session runs exactly one reader.
type Reader struct {
	r      *bufio.Reader
	maxLen int
	onText func(string)
	onDrop func(error)

	text       []byte
	pending    byte
	hasPending bool

	bytes   atomic.Uint64
	frames  atomic.Uint64
	dropped atomic.Uint64
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	rd := &Reader{r: bufio.NewReader(r), maxLen: DefaultMaxFrameLen}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

func (r *Reader) next() (byte, error) {
	if r.hasPending {
		r.hasPending = false
		return r.pending, nil
	}
	c, err := r.r.ReadByte()
	if err == nil {
		r.bytes.Add(1)
	}
	return c, err
}

func (r *Reader) drop(err error) {
	r.dropped.Add(1)
	pkg.LogDebug(pkg.ComponentProtocol, "frame dropped", "error", err)
	if r.onDrop != nil {
		r.onDrop(err)
	}
}

func (r *Reader) addText(c byte) {
	switch c {
	case '\n':
		r.flushText()
	case 0, '\r':
	default:
		r.text = append(r.text, c)
		if len(r.text) >= r.maxLen {
			r.flushText()
		}
	}
}

func (r *Reader) flushText() {
	if len(r.text) == 0 {
		return
	}
	line := strings.TrimRight(string(r.text), " \t")
	r.text = r.text[:0]
	if r.onText != nil && line != "" {
		r.onText(line)
	}
}

// skip discards bytes up to the end marker or the next command byte.
func (r *Reader) skip() error {
	for {
		c, err := r.r.ReadByte()
		if err != nil {
			return err
		}
		r.bytes.Add(1)
		if c == EndMarker {
			return nil
		}
		if IsCommandByte(c) {
			r.pending, r.hasPending = c, true
			return nil
		}
	}
}

// ReadFrame returns the next well-formed frame. Malformed input is dropped
// and reported through the drop callback; only read errors are returned.
func (r *Reader) ReadFrame() (Frame, error) {
	for {
		c, err := r.next()
		if err != nil {
			r.flushText()
			return Frame{}, err
		}
		if !IsCommandByte(c) {
			if c&CommandFlag == 0 {
				r.addText(c)
			}
			continue
		}

		cmd := Command(c)
		if !cmd.Known() {
			r.drop(fmt.Errorf("%w: %s", pkg.ErrUnknownCommand, cmd))
			if err := r.skip(); err != nil {
				return Frame{}, err
			}
			continue
		}

		f, ok, err := r.payload(cmd)
		if err != nil {
			return Frame{}, err
		}
		if ok {
			r.frames.Add(1)
			return f, nil
		}
	}
}

func (r *Reader) payload(cmd Command) (Frame, bool, error) {
	payload := make([]byte, 0, 32)
	for {
		c, err := r.next()
		if err != nil {
			return Frame{}, false, err
		}
		switch {
		case c == EndMarker:
			return Frame{command: cmd, payload: payload}, true, nil
		case IsCommandByte(c):
			r.drop(fmt.Errorf("%w: %s interrupted by 0x%02X", pkg.ErrFraming, cmd, c))
			r.pending, r.hasPending = c, true
			return Frame{}, false, nil
		case c&CommandFlag != 0:
			r.drop(fmt.Errorf("%w: %s contains reserved byte 0x%02X", pkg.ErrFraming, cmd, c))
			return Frame{}, false, r.skip()
		case len(payload)+2 >= r.maxLen:
			r.drop(fmt.Errorf("%w: %s exceeds %d bytes", pkg.ErrFrameTooLong, cmd, r.maxLen))
			return Frame{}, false, r.skip()
		}
		payload = append(payload, c)
	}
}

// BytesRead returns the number of bytes consumed from the stream.
func (r *Reader) BytesRead() uint64 {
	return r.bytes.Load()
}

// FramesRead returns the number of frames returned.
func (r *Reader) FramesRead() uint64 {
	return r.frames.Load()
}

// Dropped returns the number of frames discarded.
func (r *Reader) Dropped() uint64 {
	return r.dropped.Load()
}
