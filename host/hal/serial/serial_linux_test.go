//go:build linux

package serial

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/ardnew/softexec/pkg"
)

func TestSpeedCode(t *testing.T) {
	if code, err := speedCode(115200); err != nil || code != unix.B115200 {
		t.Errorf("speedCode(115200) = %#x, %v", code, err)
	}
	if _, err := speedCode(12345); err == nil {
		t.Error("speedCode(12345) should fail")
	}
}

func TestMakeRaw(t *testing.T) {
	tio := unix.Termios{
		Iflag: unix.ICRNL | unix.IXON,
		Oflag: unix.OPOST,
		Lflag: unix.ECHO | unix.ICANON | unix.ISIG,
		Cflag: unix.PARENB | unix.B9600,
	}
	makeRaw(&tio, unix.B115200)

	if tio.Iflag&(unix.ICRNL|unix.IXON) != 0 {
		t.Errorf("Iflag = %#x", tio.Iflag)
	}
	if tio.Oflag&unix.OPOST != 0 || tio.Lflag&(unix.ECHO|unix.ICANON|unix.ISIG) != 0 {
		t.Errorf("Oflag = %#x, Lflag = %#x", tio.Oflag, tio.Lflag)
	}
	if tio.Cflag&unix.CBAUD != unix.B115200 || tio.Cflag&unix.CSIZE != unix.CS8 || tio.Cflag&unix.PARENB != 0 {
		t.Errorf("Cflag = %#x", tio.Cflag)
	}
	if tio.Cc[unix.VMIN] != 1 || tio.Cc[unix.VTIME] != 0 {
		t.Errorf("VMIN/VTIME = %d/%d", tio.Cc[unix.VMIN], tio.Cc[unix.VTIME])
	}
}

func TestOpenMissingDevice(t *testing.T) {
	l := New(Config{Path: filepath.Join(t.TempDir(), "ttyNONE")})
	if l.Name() == "" {
		t.Error("Name() is empty")
	}
	err := l.Open(context.Background())
	if !errors.Is(err, pkg.ErrNotConnected) {
		t.Errorf("Open() = %v, want ErrNotConnected", err)
	}
	if _, err := l.Read(make([]byte, 1)); !errors.Is(err, pkg.ErrNotConnected) {
		t.Errorf("Read() = %v, want ErrNotConnected", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
