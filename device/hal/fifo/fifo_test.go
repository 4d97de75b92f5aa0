//go:build linux || darwin

package fifo

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hostfifo "github.com/ardnew/softexec/host/hal/fifo"
)

func TestHALLifecycle(t *testing.T) {
	bus := t.TempDir()
	h := New(bus)
	require.NoError(t, h.Init(context.Background()))

	dir := h.DeviceDir()
	assert.True(t, strings.HasPrefix(filepath.Base(dir), hostfifo.DevicePrefix))
	assert.Equal(t, "device-"+h.UUID().String(), filepath.Base(dir))
	for _, name := range []string{"connection", "host_to_device", "device_to_host"} {
		fi, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.NotZero(t, fi.Mode()&os.ModeNamedPipe, name)
	}

	assert.Error(t, h.Init(context.Background()))
	require.NoError(t, h.Start())
	assert.True(t, h.IsConnected())

	require.NoError(t, h.Stop())
	assert.False(t, h.IsConnected())
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestHostDeviceExchange(t *testing.T) {
	bus := t.TempDir()
	dev := New(bus)
	require.NoError(t, dev.Init(context.Background()))
	require.NoError(t, dev.Start())
	defer dev.Stop()

	link := hostfifo.New(bus)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, link.Open(ctx))
	defer link.Close()
	assert.Equal(t, dev.DeviceDir(), link.DeviceDir())

	_, err := link.Write([]byte("to device"))
	require.NoError(t, err)
	buf := make([]byte, 9)
	_, err = io.ReadFull(dev, buf)
	require.NoError(t, err)
	assert.Equal(t, "to device", string(buf))

	_, err = dev.Write([]byte("to host"))
	require.NoError(t, err)
	buf = make([]byte, 7)
	_, err = io.ReadFull(link, buf)
	require.NoError(t, err)
	assert.Equal(t, "to host", string(buf))
}

func TestHostSeesDisconnect(t *testing.T) {
	bus := t.TempDir()
	dev := New(bus)
	require.NoError(t, dev.Init(context.Background()))
	require.NoError(t, dev.Start())

	link := hostfifo.New(bus)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, link.Open(ctx))
	defer link.Close()

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := link.Read(buf)
		done <- err
	}()

	require.NoError(t, dev.Stop())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("host read did not return after device stopped")
	}
}

func TestHostOpenTimeout(t *testing.T) {
	link := hostfifo.New(t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, link.Open(ctx), context.DeadlineExceeded)
}
