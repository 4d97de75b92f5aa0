package hal

import (
	"context"
	"io"
	"sync"

	"github.com/ardnew/softexec/pkg"
)

// Port is the device end of the byte link.
//
// The device loop calls Init and Start once, then reads host frames with
// Read and writes replies with Write until Stop. Stop must unblock a pending
// Read.
type Port interface {
	// Init prepares the transport. The context can cancel initialization.
	Init(ctx context.Context) error

	// Start makes the device visible to the host.
	Start() error

	// Stop detaches from the host and releases resources.
	Stop() error

	io.ReadWriter
}

// StreamPort adapts a connected io.ReadWriteCloser.
type StreamPort struct {
	rwc  io.ReadWriteCloser
	once sync.Once
}

// NewStreamPort wraps rwc. Stop closes it.
func NewStreamPort(rwc io.ReadWriteCloser) *StreamPort {
	return &StreamPort{rwc: rwc}
}

// Init checks the context.
func (p *StreamPort) Init(ctx context.Context) error {
	if p.rwc == nil {
		return pkg.ErrNotConnected
	}
	return ctx.Err()
}

// Start does nothing; the stream is already connected.
func (p *StreamPort) Start() error { return nil }

// Stop closes the stream.
func (p *StreamPort) Stop() error {
	var err error
	p.once.Do(func() { err = p.rwc.Close() })
	return err
}

// Read reads host bytes.
func (p *StreamPort) Read(b []byte) (int, error) { return p.rwc.Read(b) }

// Write writes device bytes.
func (p *StreamPort) Write(b []byte) (int, error) { return p.rwc.Write(b) }

var _ Port = (*StreamPort)(nil)
