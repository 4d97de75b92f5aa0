package fifo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"

	"github.com/ardnew/softexec/device/hal"
	"github.com/ardnew/softexec/pkg"
)

// Connection signal bytes (one-way signaling to host).
const (
	sigConnect    = 0x01 // Device connected
	sigDisconnect = 0x00 // Device disconnected
)

// FIFO file names (must match the host link).
const (
	fifoHostToDevice = "host_to_device"
	fifoDeviceToHost = "device_to_host"
	fifoConnection   = "connection"
)

// HAL implements hal.Port using named pipes. Each instance creates a unique
// subdirectory under the bus directory.
type HAL struct {
	// Bus directory (root directory shared with host)
	busDir string

	// Device subdirectory (busDir/device-{uuid}/)
	deviceDir string
	id        uuid.UUID

	hostToDeviceRead  *os.File // Device reads frames from host
	deviceToHostWrite *os.File // Device writes frames to host
	connectionWrite   *os.File // Device signals connection status

	connected atomic.Bool

	mutex    sync.RWMutex
	writeMu  sync.Mutex
	initDone bool
}

// New creates a FIFO port on busDir.
func New(busDir string) *HAL {
	return &HAL{busDir: busDir}
}

// Init creates the device subdirectory and its FIFOs.
func (h *HAL) Init(ctx context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.initDone {
		return pkg.ErrAlreadyRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	h.id = uuid.New()
	h.deviceDir = filepath.Join(h.busDir, "device-"+h.id.String())

	if err := os.MkdirAll(h.deviceDir, 0o755); err != nil {
		return fmt.Errorf("create device dir: %w", err)
	}

	for _, name := range []string{fifoHostToDevice, fifoDeviceToHost, fifoConnection} {
		if err := h.createFIFO(name); err != nil {
			h.cleanup()
			return err
		}
	}

	// O_RDWR keeps every open from blocking until the host attaches.
	var err error
	if h.connectionWrite, err = h.openFIFO(fifoConnection); err != nil {
		h.cleanup()
		return err
	}
	if h.deviceToHostWrite, err = h.openFIFO(fifoDeviceToHost); err != nil {
		h.cleanup()
		return err
	}
	if h.hostToDeviceRead, err = h.openFIFO(fifoHostToDevice); err != nil {
		h.cleanup()
		return err
	}

	h.initDone = true
	pkg.LogInfo(pkg.ComponentHAL, "fifo device port initialized",
		"busDir", h.busDir,
		"deviceDir", h.deviceDir,
		"uuid", h.id)
	return nil
}

// Start signals connection to the host.
func (h *HAL) Start() error {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if !h.initDone {
		return pkg.ErrNotConnected
	}

	if _, err := h.connectionWrite.Write([]byte{sigConnect}); err != nil {
		return fmt.Errorf("signal connection: %w", err)
	}
	h.connected.Store(true)
	pkg.LogInfo(pkg.ComponentHAL, "fifo device port started")
	return nil
}

// Stop signals disconnection and removes the device directory.
func (h *HAL) Stop() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.connectionWrite != nil && h.connected.Load() {
		h.connectionWrite.Write([]byte{sigDisconnect})
	}
	h.connected.Store(false)
	h.cleanup()
	h.initDone = false
	pkg.LogInfo(pkg.ComponentHAL, "fifo device port stopped")
	return nil
}

// Read reads bytes sent by the host.
func (h *HAL) Read(p []byte) (int, error) {
	h.mutex.RLock()
	f := h.hostToDeviceRead
	h.mutex.RUnlock()
	if f == nil {
		return 0, io.EOF
	}

	n, err := f.Read(p)
	if errors.Is(err, os.ErrClosed) {
		return n, io.EOF
	}
	return n, err
}

// Write sends bytes to the host.
func (h *HAL) Write(p []byte) (int, error) {
	h.mutex.RLock()
	f := h.deviceToHostWrite
	h.mutex.RUnlock()
	if f == nil {
		return 0, pkg.ErrNotConnected
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	written := 0
	for written < len(p) {
		n, err := f.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// IsConnected reports whether Start has signalled the host.
func (h *HAL) IsConnected() bool {
	return h.connected.Load()
}

// DeviceDir returns the device subdirectory path.
func (h *HAL) DeviceDir() string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.deviceDir
}

// UUID returns the device's unique identifier.
func (h *HAL) UUID() uuid.UUID {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.id
}

// cleanup closes all FIFOs and removes the device directory.
func (h *HAL) cleanup() {
	for _, f := range []**os.File{&h.hostToDeviceRead, &h.deviceToHostWrite, &h.connectionWrite} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
	if h.deviceDir != "" {
		os.RemoveAll(h.deviceDir)
	}
}

// createFIFO creates a named pipe in the device directory.
func (h *HAL) createFIFO(name string) error {
	path := filepath.Join(h.deviceDir, name)
	os.Remove(path)
	if err := syscall.Mkfifo(path, 0o666); err != nil {
		return fmt.Errorf("mkfifo %s: %w", name, err)
	}
	return nil
}

// openFIFO opens a named pipe in the device directory.
func (h *HAL) openFIFO(name string) (*os.File, error) {
	path := filepath.Join(h.deviceDir, name)
	f, err := os.OpenFile(path, os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// Compile-time interface check
var _ hal.Port = (*HAL)(nil)
