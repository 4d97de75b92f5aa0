package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ardnew/softexec/host/hal"
	"github.com/ardnew/softexec/pkg"
)

// DefaultBaud is the line rate used when Config.Baud is zero.
const DefaultBaud = 115200

// Config selects a tty and its line settings.
type Config struct {
	Path string // Device node, e.g. /dev/ttyACM0
	Baud int    // Line rate in bits per second
	Wait bool   // Wait in Open for the tty to appear
}

// Link implements hal.Link on a serial tty configured for raw 8N1.
type Link struct {
	cfg Config

	mutex sync.Mutex
	file  *os.File
}

// New returns a serial link. The tty is opened by Open.
func New(cfg Config) *Link {
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	return &Link{cfg: cfg}
}

// Name returns serial:path.
func (l *Link) Name() string {
	return "serial:" + l.cfg.Path
}

// Open opens and configures the tty.
func (l *Link) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.cfg.Wait {
		if err := waitPort(ctx, l.cfg.Path); err != nil {
			return fmt.Errorf("%w: %s: %w", pkg.ErrNotConnected, l.cfg.Path, err)
		}
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.file != nil {
		return pkg.ErrAlreadyRunning
	}

	f, err := openPort(l.cfg.Path, l.cfg.Baud)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", pkg.ErrNotConnected, l.cfg.Path, err)
	}
	l.file = f
	pkg.LogInfo(pkg.ComponentHAL, "serial port opened", "path", l.cfg.Path, "baud", l.cfg.Baud)
	return nil
}

func (l *Link) current() (*os.File, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.file == nil {
		return nil, pkg.ErrNotConnected
	}
	return l.file, nil
}

// Read reads from the tty.
func (l *Link) Read(p []byte) (int, error) {
	f, err := l.current()
	if err != nil {
		return 0, err
	}
	n, err := f.Read(p)
	if errors.Is(err, os.ErrClosed) {
		return n, io.EOF
	}
	return n, err
}

// Write writes to the tty.
func (l *Link) Write(p []byte) (int, error) {
	f, err := l.current()
	if err != nil {
		return 0, err
	}
	return f.Write(p)
}

// Close closes the tty.
func (l *Link) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

var _ hal.Link = (*Link)(nil)
