package protocol

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

type flusher interface {
	Flush() error
}

// Writer serialises frames onto an io.Writer. Each frame is written with a
// single Write call while holding the writer lock, so frames from concurrent
// callers never interleave.
type Writer struct {
	mutex  sync.Mutex
	w      io.Writer
	buf    []byte
	bytes  atomic.Uint64
	frames atomic.Uint64
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame validates and writes f.
func (w *Writer) WriteFrame(f Frame) error {
	return w.WriteFrames(f)
}

// WriteMessage marshals and writes m.
func (w *Writer) WriteMessage(m Message) error {
	return w.WriteFrames(Marshal(m))
}

// WriteFrames writes fs back to back in one Write call.
func (w *Writer) WriteFrames(fs ...Frame) error {
	for _, f := range fs {
		if err := f.Validate(); err != nil {
			return err
		}
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.buf = w.buf[:0]
	for _, f := range fs {
		w.buf = f.AppendTo(w.buf)
	}
	n, err := w.w.Write(w.buf)
	w.bytes.Add(uint64(n))
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if n != len(w.buf) {
		return fmt.Errorf("write frame: %w", io.ErrShortWrite)
	}
	w.frames.Add(uint64(len(fs)))
	if fl, ok := w.w.(flusher); ok {
		if err := fl.Flush(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
	}
	return nil
}

// BytesWritten returns the number of bytes transmitted.
func (w *Writer) BytesWritten() uint64 {
	return w.bytes.Load()
}

// FramesWritten returns the number of frames transmitted.
func (w *Writer) FramesWritten() uint64 {
	return w.frames.Load()
}
