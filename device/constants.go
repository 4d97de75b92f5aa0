package device

import "fmt"

// Default capabilities reported to the host.
const (
	DefaultRAMSize        = 32 * 1024
	DefaultFlashSize      = 256 * 1024
	DefaultMaxMessageSize = 64
	DefaultIntSize        = 4
	DefaultPointerSize    = 4
	ProtocolVersion       = 1
)

// Memory weights, in bytes. They match the host's admission estimate.
const (
	RoutineHeaderSize  = 40
	ArgumentSize       = 4
	LocalSize          = 4
	ConstantHeaderSize = 4
	FrameOverhead      = 32
	SlotSize           = 8
)

// State is the program state of the device.
type State uint8

// Device states.
const (
	StateEmpty   State = iota // No program
	StateLoading              // Declarations received, LOAD_COMPLETE pending
	StateReady                // Program loaded; invocations accepted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateLoading:
		return "Loading"
	case StateReady:
		return "Ready"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}
