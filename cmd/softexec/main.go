// Command softexec uploads a program image to a device and invokes one of
// its routines.
//
// Usage:
//
//	softexec [options] <image.cbor> <routine> [args...]
//	softexec -list
//
// The routine is named or given by numeric id. Arguments take the form
// [kind:]literal with kind one of i32, u32, i64, u64, f32, f64, bool, obj;
// without a kind, integers are i32, true/false are bool and decimals f64.
//
// Options:
//
//	-config path               TOML configuration file (default: softexec.toml if present)
//	-link spec                 serial:/dev/ttyACM0, fifo:/tmp/bus, tcp:host:port or loopback
//	-baud N                    Serial baud rate (default: 115200)
//	-wait                      Wait for the serial port to appear
//	-timeout duration          Time to wait for the result (default: 10s)
//	-reply-timeout duration    Time to wait for each device acknowledgement (default: 3s)
//	-upload-timeout duration   Time to wait for each upload acknowledgement (default: 10s)
//	-budget bytes              Device memory budget; 0 uses the device capabilities
//	-admission mode            enforce or advisory (default: enforce)
//	-max-concurrent N          Running tasks allowed per program (default: 1)
//	-clear                     Clear the device before loading
//	-estimate                  Print the memory estimate and exit
//	-list                      List USB serial ports and exit
//	-log-level level           debug, info, warn or error (default: warn)
//	-v                         Enable verbose (debug) logging
//	-json                      Use JSON log format
//
// The exit status is 0 when the routine stops with results, 2 when it is
// aborted and 1 on any other error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardnew/softexec/host"
	"github.com/ardnew/softexec/host/hal/serial"
	"github.com/ardnew/softexec/pkg"
	"github.com/ardnew/softexec/program"
)

// component identifies this executable for structured logging.
const component = pkg.ComponentHost

const defaultConfigPath = "softexec.toml"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("softexec", flag.ContinueOnError)
	def := defaultConfig()
	configPath := fs.String("config", defaultConfigPath, "TOML configuration file")
	fs.String("link", def.Link, "link: serial:<tty>, fifo:<bus-dir>, tcp:<host:port> or loopback")
	fs.Int("baud", def.Baud, "serial baud rate")
	fs.Bool("wait", false, "wait for the serial port to appear")
	fs.Duration("timeout", def.Timeout.Duration, "time to wait for the result")
	fs.Duration("reply-timeout", def.ReplyTimeout.Duration, "time to wait for each device acknowledgement")
	fs.Duration("upload-timeout", def.UploadTimeout.Duration, "time to wait for each upload acknowledgement")
	fs.Int64("budget", 0, "device memory budget in bytes (0: from device capabilities)")
	fs.String("admission", def.Admission, "memory admission: enforce or advisory")
	fs.Int("max-concurrent", def.MaxConcurrent, "running tasks allowed per program")
	fs.Bool("clear", false, "clear the device before loading")
	fs.String("log-level", def.LogLevel, "minimum log level: debug, info, warn or error")
	fs.Bool("v", false, "enable verbose (debug) logging")
	fs.Bool("json", false, "use JSON log format")
	estimate := fs.Bool("estimate", false, "print the memory estimate and exit")
	list := fs.Bool("list", false, "list USB serial ports and exit")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *list {
		return listPorts(stdout)
	}

	if fs.NArg() < 2 {
		pkg.LogError(component, "missing arguments",
			"usage", "softexec [options] <image.cbor> <routine> [args...]")
		return 1
	}

	explicit := false
	fs.Visit(func(f *flag.Flag) { explicit = explicit || f.Name == "config" })
	cfg, err := loadConfig(*configPath, explicit)
	if err == nil {
		err = cfg.overlay(fs)
	}
	if err != nil {
		pkg.LogError(component, "invalid configuration", "error", err)
		return 1
	}

	pkg.ConfigureLogging(cfg.logOptions())

	img, err := program.ReadFile(fs.Arg(0))
	if err != nil {
		pkg.LogError(component, "failed to read image", "error", err)
		return 1
	}
	routine, err := parseRoutine(img, fs.Arg(1))
	if err != nil {
		pkg.LogError(component, "unknown routine", "error", err)
		return 1
	}
	vals, err := parseValues(fs.Args()[2:])
	if err != nil {
		pkg.LogError(component, "invalid argument", "error", err)
		return 1
	}

	set := host.FromImage(img)
	if *estimate {
		est := host.EstimateMemory(img.Routines, img.Constants, img.HeapReserve, cfg.MaxConcurrent)
		fmt.Fprintf(stdout, "routines    %8d\nconstants   %8d\nreservation %8d\nheap        %8d\ntotal       %8d\n",
			est.Routines, est.Constants, est.Reservation, est.Heap, est.Total)
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	link, stopLink, err := openLink(cfg.Link, cfg)
	if err != nil {
		pkg.LogError(component, "failed to open link", "error", err)
		return 1
	}
	defer stopLink()

	opts := append(cfg.sessionOptions(),
		host.WithOnLog(func(text string) { fmt.Fprintln(stdout, "device:", text) }),
		host.WithOnPinEvent(func(pin uint16, value uint32) {
			fmt.Fprintf(stdout, "pin %d = %d\n", pin, value)
		}),
	)
	session := host.NewSession(link, opts...)

	pkg.LogInfo(component, "connecting", "link", link.Name())
	if err := session.Start(ctx); err != nil {
		pkg.LogError(component, "failed to start session", "error", err)
		return 1
	}
	defer session.Stop()

	if cfg.Clear {
		if err := session.ClearAll(ctx, true); err != nil {
			pkg.LogError(component, "failed to clear device", "error", err)
			return 1
		}
	}

	if err := session.Load(ctx, set); err != nil {
		pkg.LogError(component, "failed to load program", "error", err,
			"required", set.EstimateRequiredMemory())
		return 1
	}

	task, err := set.NewTask(routine.ID)
	if err != nil {
		pkg.LogError(component, "failed to create task", "error", err)
		return 1
	}
	defer task.Dispose()

	if err := session.InvokeAsync(task, vals...); err != nil {
		pkg.LogError(component, "failed to invoke", "routine", routine.Name, "error", err)
		return 1
	}

	// An interrupt asks the device to kill the routine; the wait then ends
	// with the killed outcome.
	stop := context.AfterFunc(ctx, func() {
		if err := task.Terminate(context.Background()); err != nil {
			pkg.LogWarn(component, "failed to kill routine", "error", err)
		}
	})
	defer stop()

	out, err := task.WaitForResult(cfg.Timeout.Duration)
	if errors.Is(err, pkg.ErrTimeout) {
		pkg.LogWarn(component, "routine may still be running on the device; use -clear on the next run",
			"timeout", cfg.Timeout.Duration)
	}

	fmt.Fprintln(stdout, out)
	if out.State != host.StateStopped {
		return 2
	}
	return 0
}

func listPorts(w io.Writer) int {
	ports, err := serial.Enumerate()
	if err != nil {
		pkg.LogError(component, "failed to enumerate serial ports", "error", err)
		return 1
	}
	for _, p := range ports {
		fmt.Fprintln(w, p)
	}
	return 0
}
