//go:build linux

package serial

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ardnew/softexec/pkg"
)

// Netlink settings for kernel uevents.
const (
	ueventBufferSize = 4096
	ueventGroup      = 1   // Kernel broadcast group
	pollInterval     = 200 // Milliseconds between context checks
)

type ueventAction uint8

const (
	ueventUnknown ueventAction = iota
	ueventAdd
	ueventRemove
	ueventChange
)

// uevent is a parsed netlink uevent.
type uevent struct {
	action    ueventAction
	devpath   string // DEVPATH value
	subsystem string // SUBSYSTEM value
	devname   string // DEVNAME value, relative to /dev
}

func parseAction(s string) ueventAction {
	switch s {
	case "add":
		return ueventAdd
	case "remove":
		return ueventRemove
	case "change":
		return ueventChange
	default:
		return ueventUnknown
	}
}

// parseUEvent parses a NUL-separated netlink uevent message.
func parseUEvent(data []byte) uevent {
	var evt uevent
	for _, line := range bytes.Split(data, []byte{0}) {
		if len(line) == 0 {
			continue
		}
		s := string(line)

		key, value, ok := strings.Cut(s, "=")
		if !ok {
			// The header line is action@devpath.
			if action, devpath, ok := strings.Cut(s, "@"); ok {
				evt.action = parseAction(action)
				evt.devpath = devpath
			}
			continue
		}

		switch key {
		case "ACTION":
			evt.action = parseAction(value)
		case "DEVPATH":
			evt.devpath = value
		case "SUBSYSTEM":
			evt.subsystem = value
		case "DEVNAME":
			evt.devname = value
		}
	}
	return evt
}

// matches reports whether evt announces the tty at path.
func (evt uevent) matches(path string) bool {
	if evt.action != ueventAdd || evt.subsystem != "tty" {
		return false
	}
	if evt.devname != "" {
		return filepath.Join(DevPath, evt.devname) == path
	}
	return filepath.Base(evt.devpath) == filepath.Base(path)
}

// ttyMonitor receives kernel uevents over netlink.
type ttyMonitor struct {
	fd  int
	buf [ueventBufferSize]byte
}

func newTTYMonitor() (*ttyMonitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK,
		unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK,
		unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: ueventGroup}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &ttyMonitor{fd: fd}, nil
}

func (m *ttyMonitor) close() error {
	return unix.Close(m.fd)
}

// next returns the next uevent. ok is false when none arrived within the
// poll interval.
func (m *ttyMonitor) next() (evt uevent, ok bool, err error) {
	fds := []unix.PollFd{{Fd: int32(m.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, pollInterval)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return evt, false, nil
		}
		return evt, false, err
	}
	if n == 0 {
		return evt, false, nil
	}

	n, _, err = unix.Recvfrom(m.fd, m.buf[:], 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return evt, false, nil
		}
		return evt, false, err
	}
	return parseUEvent(m.buf[:n]), true, nil
}

// waitPort blocks until the tty at path exists or ctx is done.
func waitPort(ctx context.Context, path string) error {
	m, err := newTTYMonitor()
	if err != nil {
		return err
	}
	defer m.close()

	// Subscribe before the first check so an add in between is not missed.
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	pkg.LogInfo(pkg.ComponentHAL, "waiting for serial port", "path", path)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		evt, ok, err := m.next()
		if err != nil {
			return err
		}
		if ok && evt.matches(path) {
			pkg.LogDebug(pkg.ComponentHAL, "serial port appeared", "path", path, "devpath", evt.devpath)
			return nil
		}
	}
}
