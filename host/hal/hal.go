package hal

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ardnew/softexec/pkg"
)

// Link is a duplex byte stream to one device.
//
// Open must be called before Read or Write. Read blocks until data arrives
// or the link is closed; Close must unblock a pending Read. Implementations
// must allow one concurrent reader alongside writers.
type Link interface {
	// Open establishes the connection. The context bounds only the setup.
	Open(ctx context.Context) error

	// Name identifies the link in logs.
	Name() string

	io.ReadWriteCloser
}

// StreamLink adapts an already connected io.ReadWriteCloser, such as a
// socket or one end of net.Pipe.
type StreamLink struct {
	rwc  io.ReadWriteCloser
	name string

	mutex  sync.Mutex
	closed bool
}

// NewStreamLink wraps rwc.
func NewStreamLink(rwc io.ReadWriteCloser, name string) *StreamLink {
	if name == "" {
		name = "stream"
	}
	return &StreamLink{rwc: rwc, name: name}
}

// Open succeeds unless the link was closed.
func (l *StreamLink) Open(ctx context.Context) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return pkg.ErrClosed
	}
	return ctx.Err()
}

// Name returns the link name.
func (l *StreamLink) Name() string { return l.name }

// Read reads from the underlying stream.
func (l *StreamLink) Read(p []byte) (int, error) { return l.rwc.Read(p) }

// Write writes to the underlying stream.
func (l *StreamLink) Write(p []byte) (int, error) { return l.rwc.Write(p) }

// Close closes the underlying stream once.
func (l *StreamLink) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.rwc.Close()
}

// DialLink connects to a device bridged over TCP (for example a
// serial-to-network adapter) when opened.
type DialLink struct {
	network string
	address string
	timeout time.Duration

	mutex sync.Mutex
	conn  net.Conn
}

// NewDialLink returns a link that dials address on network when opened.
func NewDialLink(network, address string, timeout time.Duration) *DialLink {
	return &DialLink{network: network, address: address, timeout: timeout}
}

// Open dials the remote end.
func (l *DialLink) Open(ctx context.Context) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.conn != nil {
		return pkg.ErrAlreadyRunning
	}

	d := net.Dialer{Timeout: l.timeout}
	conn, err := d.DialContext(ctx, l.network, l.address)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", pkg.ErrNotConnected, l.address, err)
	}
	l.conn = conn
	pkg.LogInfo(pkg.ComponentHAL, "link connected", "link", l.Name())
	return nil
}

// Name returns network:address.
func (l *DialLink) Name() string {
	return l.network + ":" + l.address
}

func (l *DialLink) current() (net.Conn, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.conn == nil {
		return nil, pkg.ErrNotConnected
	}
	return l.conn, nil
}

// Read reads from the connection.
func (l *DialLink) Read(p []byte) (int, error) {
	conn, err := l.current()
	if err != nil {
		return 0, err
	}
	return conn.Read(p)
}

// Write writes to the connection.
func (l *DialLink) Write(p []byte) (int, error) {
	conn, err := l.current()
	if err != nil {
		return 0, err
	}
	return conn.Write(p)
}

// Close closes the connection.
func (l *DialLink) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}

var (
	_ Link = (*StreamLink)(nil)
	_ Link = (*DialLink)(nil)
)
