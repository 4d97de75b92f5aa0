package pkg

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogs routes the shared logger into a buffer for the test.
func captureLogs(t *testing.T, l slog.Level, asJSON bool) *bytes.Buffer {
	t.Helper()
	prevLevel, prevLogger := LogLevel(), current()
	t.Cleanup(func() {
		SetLogLevel(prevLevel)
		SetLogger(prevLogger)
	})
	var buf bytes.Buffer
	ConfigureLogging(LogOptions{Level: l, JSON: asJSON, Output: &buf})
	return &buf
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        DefaultLogLevel,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
	}
	for name, want := range tests {
		got, err := ParseLogLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLogLevel("chatty")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestDefaultLevelHidesFrameDetail(t *testing.T) {
	buf := captureLogs(t, DefaultLogLevel, false)

	LogDebug(ComponentProtocol, "frame written", "command", 0x10)
	LogInfo(ComponentHost, "session started")
	assert.Empty(t, buf.String())

	LogWarn(ComponentHAL, "serial port vanished", "port", "/dev/ttyACM0")
	assert.Contains(t, buf.String(), "serial port vanished")
	assert.Contains(t, buf.String(), "component=hal")
}

func TestSetLogLevelKeepsOutput(t *testing.T) {
	buf := captureLogs(t, slog.LevelError, false)

	LogInfo(ComponentUpload, "chunk acknowledged")
	assert.Empty(t, buf.String())

	SetLogLevel(slog.LevelDebug)
	assert.Equal(t, slog.LevelDebug, LogLevel())
	LogDebug(ComponentUpload, "chunk acknowledged", "index", 3)
	assert.Contains(t, buf.String(), "chunk acknowledged")
	assert.Contains(t, buf.String(), "index=3")
}

func TestRoutineIDsInHex(t *testing.T) {
	buf := captureLogs(t, slog.LevelDebug, false)

	LogDebug(ComponentDevice, "chunk rejected", "routine", uint32(0x0600_0001), "index", 2)
	assert.Contains(t, buf.String(), "routine=0x06000001")
	assert.Contains(t, buf.String(), "index=2", "other integers stay decimal")

	buf.Reset()
	LogInfo(ComponentTask, "Result", "routine", "Sum")
	assert.Contains(t, buf.String(), "routine=Sum", "routine names are left alone")
}

func TestJSONRecords(t *testing.T) {
	buf := captureLogs(t, slog.LevelInfo, true)

	LogError(ComponentTask, "task aborted", "routine", uint32(7), "error", ErrTimeout)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "task aborted", rec["msg"])
	assert.Equal(t, "task", rec["component"])
	assert.Equal(t, "0x00000007", rec["routine"])
	assert.Equal(t, ErrTimeout.Error(), rec["error"])
}

func TestSetLogger(t *testing.T) {
	captureLogs(t, slog.LevelInfo, false)

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	LogInfo(ComponentBag, "reply evicted", "capacity", 64)

	assert.Contains(t, buf.String(), `"component":"bag"`)
	assert.Contains(t, buf.String(), `"capacity":64`)
}
