package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ardnew/softexec/host"
	"github.com/ardnew/softexec/pkg"
)

// duration is a time.Duration read from a TOML string such as "5s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the softexec.toml configuration. Keys mirror the flags.
type Config struct {
	Link          string   `toml:"link"`
	Baud          int      `toml:"baud"`
	Wait          bool     `toml:"wait"`
	Timeout       duration `toml:"timeout"`
	ReplyTimeout  duration `toml:"reply-timeout"`
	UploadTimeout duration `toml:"upload-timeout"`
	Budget        int64    `toml:"budget"`
	Admission     string   `toml:"admission"`
	MaxConcurrent int      `toml:"max-concurrent"`
	Clear         bool     `toml:"clear"`
	LogLevel      string   `toml:"log-level"`
	Verbose       bool     `toml:"verbose"`
	JSON          bool     `toml:"json"`
}

// defaultConfig returns the settings used when neither file nor flags
// provide a value.
func defaultConfig() Config {
	return Config{
		Link:          "serial:/dev/ttyACM0",
		Baud:          115200,
		Timeout:       duration{10 * time.Second},
		ReplyTimeout:  duration{host.DefaultReplyTimeout},
		UploadTimeout: duration{host.DefaultUploadTimeout},
		Admission:     host.AdmissionEnforce.String(),
		MaxConcurrent: host.DefaultMaxConcurrentTasks,
	}
}

// loadConfig reads path over the defaults. A missing file is an error only
// when required is set.
func loadConfig(path string, required bool) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("cannot read %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if _, err := c.admission(); err != nil {
		return err
	}
	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("invalid max-concurrent %d", c.MaxConcurrent)
	}
	_, err := pkg.ParseLogLevel(c.LogLevel)
	return err
}

// logOptions converts the logging keys. -v overrides log-level.
func (c Config) logOptions() pkg.LogOptions {
	lvl, _ := pkg.ParseLogLevel(c.LogLevel)
	if c.Verbose {
		lvl = slog.LevelDebug
	}
	return pkg.LogOptions{Level: lvl, JSON: c.JSON}
}

func (c Config) admission() (host.Admission, error) {
	switch strings.ToLower(c.Admission) {
	case "", host.AdmissionEnforce.String():
		return host.AdmissionEnforce, nil
	case host.AdmissionAdvisory.String():
		return host.AdmissionAdvisory, nil
	default:
		return 0, fmt.Errorf("invalid admission %q (want enforce or advisory)", c.Admission)
	}
}

// overlay copies the flags set on the command line into c.
func (c *Config) overlay(fs *flag.FlagSet) error {
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.(flag.Getter).Get()
		switch f.Name {
		case "link":
			c.Link = v.(string)
		case "baud":
			c.Baud = v.(int)
		case "wait":
			c.Wait = v.(bool)
		case "timeout":
			c.Timeout.Duration = v.(time.Duration)
		case "reply-timeout":
			c.ReplyTimeout.Duration = v.(time.Duration)
		case "upload-timeout":
			c.UploadTimeout.Duration = v.(time.Duration)
		case "budget":
			c.Budget = v.(int64)
		case "admission":
			c.Admission = v.(string)
		case "max-concurrent":
			c.MaxConcurrent = v.(int)
		case "clear":
			c.Clear = v.(bool)
		case "log-level":
			c.LogLevel = v.(string)
		case "v":
			c.Verbose = v.(bool)
		case "json":
			c.JSON = v.(bool)
		}
	})
	return c.validate()
}

// sessionOptions converts c to host options.
func (c Config) sessionOptions() []host.Option {
	adm, _ := c.admission()
	return []host.Option{
		host.WithReplyTimeout(c.ReplyTimeout.Duration),
		host.WithUploadTimeout(c.UploadTimeout.Duration),
		host.WithMemoryBudget(c.Budget),
		host.WithAdmission(adm),
		host.WithMaxConcurrentTasks(c.MaxConcurrent),
	}
}
