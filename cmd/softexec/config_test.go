package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softexec/host"
	"github.com/ardnew/softexec/pkg"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"), false)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.toml"), true)
	assert.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeFile(t, "softexec.toml", `
link = "tcp:192.168.4.1:23"
baud = 921600
wait = true
timeout = "30s"
reply-timeout = "500ms"
budget = 8192
admission = "advisory"
max-concurrent = 2
clear = true
`)
	cfg, err := loadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, "tcp:192.168.4.1:23", cfg.Link)
	assert.Equal(t, 921600, cfg.Baud)
	assert.True(t, cfg.Wait)
	assert.Equal(t, 30*time.Second, cfg.Timeout.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.ReplyTimeout.Duration)
	assert.Equal(t, host.DefaultUploadTimeout, cfg.UploadTimeout.Duration)
	assert.Equal(t, int64(8192), cfg.Budget)
	assert.True(t, cfg.Clear)

	adm, err := cfg.admission()
	require.NoError(t, err)
	assert.Equal(t, host.AdmissionAdvisory, adm)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := map[string]string{
		"unknown key":   `lnk = "serial:/dev/ttyUSB0"`,
		"bad duration":  `timeout = "soon"`,
		"bad admission": `admission = "sometimes"`,
		"bad baud":      `baud = 0`,
		"bad log level": `log-level = "chatty"`,
		"syntax":        `link = `,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadConfig(writeFile(t, "bad.toml", content), true)
			assert.Error(t, err)
		})
	}
}

func TestOverlayFlags(t *testing.T) {
	cfg := defaultConfig()
	cfg.Link = "fifo:/from/file"
	cfg.Budget = 100

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("link", "", "")
	fs.Int64("budget", 0, "")
	fs.Duration("timeout", 0, "")
	fs.Bool("v", false, "")
	require.NoError(t, fs.Parse([]string{"-link", "loopback", "-timeout", "2s", "-v"}))
	require.NoError(t, cfg.overlay(fs))

	assert.Equal(t, "loopback", cfg.Link)
	assert.Equal(t, int64(100), cfg.Budget, "unset flag keeps the file value")
	assert.Equal(t, 2*time.Second, cfg.Timeout.Duration)
	assert.True(t, cfg.Verbose)
}

func TestSessionOptions(t *testing.T) {
	cfg := defaultConfig()
	cfg.Budget = 4096
	cfg.MaxConcurrent = 3

	c := host.DefaultConfig()
	for _, opt := range cfg.sessionOptions() {
		opt(&c)
	}
	assert.Equal(t, int64(4096), c.MemoryBudget)
	assert.Equal(t, 3, c.MaxConcurrentTasks)
	assert.Equal(t, host.AdmissionEnforce, c.Admission)
}

func TestLogOptions(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, pkg.DefaultLogLevel, cfg.logOptions().Level)

	cfg.LogLevel = "info"
	cfg.JSON = true
	opts := cfg.logOptions()
	assert.Equal(t, slog.LevelInfo, opts.Level)
	assert.True(t, opts.JSON)

	cfg.Verbose = true
	assert.Equal(t, slog.LevelDebug, cfg.logOptions().Level, "-v wins over log-level")
}
