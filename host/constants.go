package host

import (
	"fmt"
	"time"
)

// Protocol limits assumed until the device reports its capabilities.
const (
	ProtocolVersion       = 1
	DefaultMaxMessageSize = 64 // Smallest receive buffer of supported boards
)

// Session defaults.
const (
	DefaultReplyTimeout       = 3 * time.Second
	DefaultUploadTimeout      = 10 * time.Second
	DefaultMaxConcurrentTasks = 1
)

// Forever makes WaitForResult wait without a deadline.
const Forever time.Duration = -1

// Memory estimate weights, in device bytes.
const (
	RoutineHeaderSize  = 40 // Per routine descriptor
	ArgumentSize       = 4  // Per declared argument
	LocalSize          = 4  // Per declared local
	ConstantHeaderSize = 4  // Per constant blob
	FrameOverhead      = 32 // Per invocation frame header
	SlotSize           = 8  // Per stack, argument or local slot at run time
)

// TaskState is the lifecycle state of a task.
type TaskState uint8

// Task states. States only move forward; Stopped and Aborted are terminal.
const (
	StatePrepared TaskState = iota // Created; execution set not yet loaded
	StateLoaded                    // Execution set on the device; ready to invoke
	StateRunning                   // INVOKE sent; awaiting result
	StateStopped                   // Completed with return values
	StateAborted                   // Ended by fault, timeout, cancellation or reset
)

// Terminal reports whether the state is final.
func (s TaskState) Terminal() bool {
	return s == StateStopped || s == StateAborted
}

// String returns a human-readable state name.
func (s TaskState) String() string {
	switch s {
	case StatePrepared:
		return "Prepared"
	case StateLoaded:
		return "Loaded"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	case StateAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("TaskState(%d)", s)
	}
}

// Admission selects how Load treats a set that exceeds the memory budget.
type Admission uint8

// Admission modes.
const (
	AdmissionEnforce  Admission = iota // Reject with ErrProgramTooLarge
	AdmissionAdvisory                  // Log a warning and upload anyway
)

// String returns the mode name.
func (a Admission) String() string {
	switch a {
	case AdmissionEnforce:
		return "enforce"
	case AdmissionAdvisory:
		return "advisory"
	default:
		return fmt.Sprintf("Admission(%d)", a)
	}
}
