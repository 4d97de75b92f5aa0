package host

import (
	"time"

	"github.com/ardnew/softexec/bag"
	"github.com/ardnew/softexec/protocol"
)

// Config holds session settings.
type Config struct {
	// ReplyTimeout bounds waits for ACK, NACK and CAPABILITIES replies.
	ReplyTimeout time.Duration

	// UploadTimeout bounds the wait for each acknowledgement during Load.
	UploadTimeout time.Duration

	// MaxConcurrentTasks limits running invocations per execution set.
	MaxConcurrentTasks int

	// BagCapacity bounds unclaimed replies held for waiters.
	BagCapacity int

	// MaxFrameLen bounds frames accepted from the device.
	MaxFrameLen int

	// MaxMessageSize is the device receive buffer assumed until
	// QueryCapabilities reports one.
	MaxMessageSize int

	// MemoryBudget overrides the device RAM size for admission. Zero uses
	// the reported capabilities.
	MemoryBudget int64

	// Admission selects enforcement of the memory budget.
	Admission Admission

	// OnLog receives device LOG frames and raw text lines.
	OnLog func(text string)

	// OnPinEvent receives PIN_EVENT frames.
	OnPinEvent func(pin uint16, value uint32)
}

// DefaultConfig returns the default session settings.
func DefaultConfig() Config {
	return Config{
		ReplyTimeout:       DefaultReplyTimeout,
		UploadTimeout:      DefaultUploadTimeout,
		MaxConcurrentTasks: DefaultMaxConcurrentTasks,
		BagCapacity:        bag.DefaultCapacity,
		MaxFrameLen:        protocol.DefaultMaxFrameLen,
		MaxMessageSize:     DefaultMaxMessageSize,
		Admission:          AdmissionEnforce,
	}
}

// Option modifies a Config.
type Option func(*Config)

// WithConfig replaces the whole configuration.
func WithConfig(c Config) Option {
	return func(cfg *Config) { *cfg = c }
}

// WithReplyTimeout sets the reply timeout.
func WithReplyTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ReplyTimeout = d
		}
	}
}

// WithUploadTimeout sets the per-acknowledgement upload timeout.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.UploadTimeout = d
		}
	}
}

// WithMaxConcurrentTasks sets how many tasks of one set may run at once.
func WithMaxConcurrentTasks(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxConcurrentTasks = n
		}
	}
}

// WithBagCapacity bounds the number of unclaimed replies.
func WithBagCapacity(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.BagCapacity = n
		}
	}
}

// WithMaxFrameLen bounds frames accepted from the device.
func WithMaxFrameLen(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxFrameLen = n
		}
	}
}

// WithMaxMessageSize sets the device buffer size assumed before
// capabilities are known.
func WithMaxMessageSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxMessageSize = n
		}
	}
}

// WithMemoryBudget sets the device memory budget used for admission.
func WithMemoryBudget(bytes int64) Option {
	return func(c *Config) { c.MemoryBudget = bytes }
}

// WithAdmission selects budget enforcement.
func WithAdmission(a Admission) Option {
	return func(c *Config) { c.Admission = a }
}

// WithOnLog sets the device log callback.
func WithOnLog(fn func(text string)) Option {
	return func(c *Config) { c.OnLog = fn }
}

// WithOnPinEvent sets the pin event callback.
func WithOnPinEvent(fn func(pin uint16, value uint32)) Option {
	return func(c *Config) { c.OnPinEvent = fn }
}
