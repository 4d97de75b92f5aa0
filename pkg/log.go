package pkg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Component names the softexec layer that emitted a log record.
type Component string

// Remote execution component identifiers.
const (
	ComponentHost     Component = "host"
	ComponentDevice   Component = "device"
	ComponentHAL      Component = "hal"
	ComponentProtocol Component = "protocol"
	ComponentBag      Component = "bag"
	ComponentTask     Component = "task"
	ComponentUpload   Component = "upload"
)

// DefaultLogLevel keeps a quiet link quiet: only warnings and errors.
const DefaultLogLevel = slog.LevelWarn

// LogOptions selects where softexec logs go and how they are encoded.
type LogOptions struct {
	Level  slog.Level
	JSON   bool
	Output io.Writer // os.Stderr when nil
}

var (
	level  = new(slog.LevelVar)
	mutex  sync.RWMutex
	active *slog.Logger
)

func init() {
	level.Set(DefaultLogLevel)
	active = NewLogger(os.Stderr, false)
}

// ConfigureLogging replaces the shared logger and level in one step. The
// host CLI and the example programs call it once after parsing flags.
func ConfigureLogging(o LogOptions) {
	w := o.Output
	if w == nil {
		w = os.Stderr
	}
	mutex.Lock()
	defer mutex.Unlock()
	level.Set(o.Level)
	active = NewLogger(w, o.JSON)
}

// ParseLogLevel accepts debug, info, warn or error in any case. An empty
// name yields DefaultLogLevel.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return DefaultLogLevel, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return DefaultLogLevel, fmt.Errorf("%w: log level %q", ErrInvalidParameter, name)
}

// SetLogLevel changes the minimum level without touching the output.
func SetLogLevel(l slog.Level) {
	level.Set(l)
}

// LogLevel returns the current minimum level.
func LogLevel() slog.Level {
	return level.Level()
}

// SetLogger installs a caller-built logger, for example one that feeds a
// test buffer. Records still carry the component attribute.
func SetLogger(l *slog.Logger) {
	mutex.Lock()
	defer mutex.Unlock()
	active = l
}

// NewLogger returns a logger on w that honors the shared level and prints
// routine ids and device tokens in hex, the way firmware listings show them.
func NewLogger(w io.Writer, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: hexIDs}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func hexIDs(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case "routine", "token":
		if a.Value.Kind() == slog.KindUint64 {
			a.Value = slog.StringValue(fmt.Sprintf("0x%08X", a.Value.Uint64()))
		}
	}
	return a
}

func current() *slog.Logger {
	mutex.RLock()
	defer mutex.RUnlock()
	return active
}

func logAt(l slog.Level, c Component, msg string, args []any) {
	lg := current()
	ctx := context.Background()
	if !lg.Enabled(ctx, l) {
		return
	}
	lg.Log(ctx, l, msg, append([]any{"component", string(c)}, args...)...)
}

// LogDebug logs frame-level detail for component c.
func LogDebug(c Component, msg string, args ...any) { logAt(slog.LevelDebug, c, msg, args) }

// LogInfo logs session milestones and device text lines.
func LogInfo(c Component, msg string, args ...any) { logAt(slog.LevelInfo, c, msg, args) }

// LogWarn logs recoverable link or device trouble.
func LogWarn(c Component, msg string, args ...any) { logAt(slog.LevelWarn, c, msg, args) }

// LogError logs failures reported to the caller.
func LogError(c Component, msg string, args ...any) { logAt(slog.LevelError, c, msg, args) }
