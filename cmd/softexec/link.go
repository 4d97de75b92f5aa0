package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ardnew/softexec/device"
	devhal "github.com/ardnew/softexec/device/hal"
	"github.com/ardnew/softexec/host/hal"
	"github.com/ardnew/softexec/host/hal/fifo"
	"github.com/ardnew/softexec/host/hal/serial"
	"github.com/ardnew/softexec/program"
	"github.com/ardnew/softexec/protocol"
)

var errLinkSpec = errors.New("invalid link")

// openLink builds the link named by spec:
//
//	serial:/dev/ttyACM0   tty at cfg.Baud
//	fifo:/tmp/bus         named pipes of a simulated device on a bus directory
//	tcp:host:port         serial-to-network bridge
//	loopback              in-process simulated device that echoes arguments
//
// The returned stop function releases anything openLink started.
func openLink(spec string, cfg Config) (hal.Link, func(), error) {
	kind, arg, _ := strings.Cut(spec, ":")
	nop := func() {}

	switch kind {
	case "serial":
		if arg == "" {
			return nil, nop, fmt.Errorf("%w %q: missing tty path", errLinkSpec, spec)
		}
		return serial.New(serial.Config{Path: arg, Baud: cfg.Baud, Wait: cfg.Wait}), nop, nil

	case "fifo":
		if arg == "" {
			return nil, nop, fmt.Errorf("%w %q: missing bus directory", errLinkSpec, spec)
		}
		return fifo.New(arg), nop, nil

	case "tcp", "tcp4", "tcp6", "unix":
		if arg == "" {
			return nil, nop, fmt.Errorf("%w %q: missing address", errLinkSpec, spec)
		}
		return hal.NewDialLink(kind, arg, cfg.ReplyTimeout.Duration), nop, nil

	case "loopback":
		hostEnd, devEnd := net.Pipe()
		dev := device.New(devhal.NewStreamPort(devEnd), device.InterpreterFunc(echo))
		if err := dev.Start(context.Background()); err != nil {
			return nil, nop, err
		}
		return hal.NewStreamLink(hostEnd, "loopback"), func() { dev.Stop() }, nil

	default:
		return nil, nop, fmt.Errorf("%w %q: want serial:, fifo:, tcp: or loopback", errLinkSpec, spec)
	}
}

// echo returns its arguments after a short delay.
func echo(ctx context.Context, r program.Routine, args []protocol.Value, env *device.Env) ([]protocol.Value, error) {
	env.Logf("echo %d argument(s)", len(args))
	select {
	case <-time.After(time.Millisecond):
		return args, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
