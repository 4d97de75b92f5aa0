package fifo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ardnew/softexec/host/hal"
	"github.com/ardnew/softexec/pkg"
)

// Connection signal bytes (one-way signaling from device).
const (
	sigConnect    = 0x01 // Device connected
	sigDisconnect = 0x00 // Device disconnected
)

// Timing constants.
const (
	pollInterval = 50 * time.Millisecond  // Directory polling interval
	signalPoll   = 100 * time.Millisecond // Connection FIFO read deadline
)

// FIFO file names (inside each device subdirectory).
const (
	fifoHostToDevice = "host_to_device"
	fifoDeviceToHost = "device_to_host"
	fifoConnection   = "connection"
)

// DevicePrefix starts the name of every device subdirectory on the bus.
const DevicePrefix = "device-"

// Errors.
var (
	ErrFIFOCreate = errors.New("failed to create FIFO")
	ErrFIFOOpen   = errors.New("failed to open FIFO")
)

// deviceConn represents a connected device.
type deviceConn struct {
	dir          string   // Device subdirectory path
	hostToDevice *os.File // Host writes frames to the device
	deviceToHost *os.File // Host reads frames from the device
}

func (d *deviceConn) close() {
	if d.hostToDevice != nil {
		d.hostToDevice.Close()
	}
	if d.deviceToHost != nil {
		d.deviceToHost.Close()
	}
}

// Link implements hal.Link using named pipes. It watches a bus directory for
// device subdirectories and attaches to the first device that signals a
// connection.
type Link struct {
	busDir string

	device   *deviceConn
	deviceMu sync.RWMutex

	connectCh chan *deviceConn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a FIFO link on busDir. Devices create their own subdirectories
// (device-{uuid}/) inside it.
func New(busDir string) *Link {
	return &Link{
		busDir:    busDir,
		connectCh: make(chan *deviceConn, 1),
	}
}

// Name returns fifo:busDir.
func (l *Link) Name() string {
	return "fifo:" + l.busDir
}

// Open waits for a device to connect on the bus.
func (l *Link) Open(ctx context.Context) error {
	if err := os.MkdirAll(l.busDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrFIFOCreate, err)
	}

	l.deviceMu.Lock()
	if l.cancel != nil {
		l.deviceMu.Unlock()
		return pkg.ErrAlreadyRunning
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.deviceMu.Unlock()

	l.wg.Add(1)
	go l.pollDeviceDirectories()

	pkg.LogInfo(pkg.ComponentHAL, "waiting for FIFO device", "busDir", l.busDir)

	select {
	case <-ctx.Done():
		l.Close()
		return ctx.Err()
	case dev := <-l.connectCh:
		l.deviceMu.Lock()
		l.device = dev
		l.deviceMu.Unlock()
		pkg.LogInfo(pkg.ComponentHAL, "device connected", "dir", dev.dir)
		return nil
	}
}

// DeviceDir returns the subdirectory of the attached device.
func (l *Link) DeviceDir() string {
	l.deviceMu.RLock()
	defer l.deviceMu.RUnlock()
	if l.device == nil {
		return ""
	}
	return l.device.dir
}

// Read reads frames written by the device.
func (l *Link) Read(p []byte) (int, error) {
	l.deviceMu.RLock()
	dev := l.device
	l.deviceMu.RUnlock()
	if dev == nil {
		return 0, pkg.ErrNotConnected
	}

	n, err := dev.deviceToHost.Read(p)
	if errors.Is(err, os.ErrClosed) {
		return n, io.EOF
	}
	return n, err
}

// Write sends bytes to the device.
func (l *Link) Write(p []byte) (int, error) {
	l.deviceMu.RLock()
	dev := l.device
	l.deviceMu.RUnlock()
	if dev == nil {
		return 0, pkg.ErrNotConnected
	}

	written := 0
	for written < len(p) {
		n, err := dev.hostToDevice.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Close detaches from the device and stops watching the bus.
func (l *Link) Close() error {
	l.deviceMu.Lock()
	cancel := l.cancel
	dev := l.device
	l.device = nil
	l.deviceMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dev != nil {
		dev.close()
	}
	l.wg.Wait()
	return nil
}

// detach closes the device FIFOs so a blocked Read returns.
func (l *Link) detach(dev *deviceConn) {
	l.deviceMu.Lock()
	if l.device == dev {
		l.device = nil
	}
	l.deviceMu.Unlock()
	dev.close()
	pkg.LogInfo(pkg.ComponentHAL, "device disconnected", "dir", dev.dir)
}

// pollDeviceDirectories polls the bus directory for new device subdirectories.
func (l *Link) pollDeviceDirectories() {
	defer l.wg.Done()

	knownDirs := make(map[string]bool)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			entries, err := os.ReadDir(l.busDir)
			if err != nil {
				continue
			}

			for _, entry := range entries {
				if !entry.IsDir() || !strings.HasPrefix(entry.Name(), DevicePrefix) {
					continue
				}

				dirPath := filepath.Join(l.busDir, entry.Name())
				if knownDirs[dirPath] {
					continue
				}

				connPath := filepath.Join(dirPath, fifoConnection)
				if _, err := os.Stat(connPath); os.IsNotExist(err) {
					continue
				}

				knownDirs[dirPath] = true
				l.wg.Add(1)
				go l.handleDeviceDirectory(dirPath)
			}

			for dir := range knownDirs {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					delete(knownDirs, dir)
				}
			}
		}
	}
}

// readSignal reads one connection signal byte, returning ok=false on timeout.
func (l *Link) readSignal(connFile *os.File) (sig byte, ok bool, err error) {
	var buf [1]byte
	connFile.SetReadDeadline(time.Now().Add(signalPoll))
	n, err := connFile.Read(buf[:])
	if err != nil {
		if os.IsTimeout(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	return buf[0], true, nil
}

// handleDeviceDirectory monitors a device directory for connection signals.
func (l *Link) handleDeviceDirectory(dirPath string) {
	defer l.wg.Done()

	pkg.LogDebug(pkg.ComponentHAL, "monitoring device directory", "dir", dirPath)

	// O_RDWR keeps the open from blocking while the device has no reader.
	connPath := filepath.Join(dirPath, fifoConnection)
	connFile, err := os.OpenFile(connPath, os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "failed to open connection FIFO", "path", connPath, "error", err)
		return
	}
	defer connFile.Close()

	var attached *deviceConn
	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		sig, ok, err := l.readSignal(connFile)
		if err != nil {
			if attached != nil {
				l.detach(attached)
			}
			return
		}
		if !ok {
			continue
		}

		switch {
		case sig == sigConnect && attached == nil:
			dev, err := openDeviceFIFOs(dirPath)
			if err != nil {
				pkg.LogWarn(pkg.ComponentHAL, "failed to open device FIFOs", "dir", dirPath, "error", err)
				continue
			}
			select {
			case l.connectCh <- dev:
				attached = dev
			default:
				// Another device already won the link.
				dev.close()
				return
			}
		case sig == sigDisconnect && attached != nil:
			l.detach(attached)
			return
		}
	}
}

// openDeviceFIFOs opens the data FIFOs for a device.
func openDeviceFIFOs(dirPath string) (*deviceConn, error) {
	dev := &deviceConn{dir: dirPath}

	var err error
	dev.hostToDevice, err = os.OpenFile(
		filepath.Join(dirPath, fifoHostToDevice),
		os.O_WRONLY|syscall.O_NONBLOCK,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFIFOOpen, fifoHostToDevice, err)
	}

	dev.deviceToHost, err = os.OpenFile(
		filepath.Join(dirPath, fifoDeviceToHost),
		os.O_RDONLY|syscall.O_NONBLOCK,
		0,
	)
	if err != nil {
		dev.hostToDevice.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrFIFOOpen, fifoDeviceToHost, err)
	}

	return dev, nil
}

// Ensure Link implements hal.Link.
var _ hal.Link = (*Link)(nil)
