package pkg

import "errors"

// Transport and framing errors. These are detected locally by the reader,
// the offending frame is dropped, and they never become routine results.
var (
	// ErrFraming indicates a frame was truncated or interrupted by another command byte.
	ErrFraming = errors.New("framing error")

	// ErrFrameTooLong indicates a frame exceeded the maximum frame length.
	ErrFrameTooLong = errors.New("frame too long")

	// ErrUnknownCommand indicates a command byte outside the catalogue.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrMalformed indicates a frame payload could not be parsed.
	ErrMalformed = errors.New("malformed payload")

	// ErrInvalidLength indicates a 7-bit encoded block has an impossible length.
	ErrInvalidLength = errors.New("invalid encoded length")

	// ErrHighBit indicates a payload byte had bit 7 set.
	ErrHighBit = errors.New("payload byte has high bit set")

	// ErrPadding indicates non-zero padding bits in the last encoded byte.
	ErrPadding = errors.New("non-zero padding bits")

	// ErrChunkSequence indicates a missing, duplicate or out-of-order chunk.
	ErrChunkSequence = errors.New("chunk sequence error")
)

// Link and session errors.
var (
	// ErrTimeout indicates no matching reply arrived before the deadline.
	ErrTimeout = errors.New("reply timeout")

	// ErrCancelled indicates the operation was cancelled by the caller.
	ErrCancelled = errors.New("operation cancelled")

	// ErrNotConnected indicates the link is not open.
	ErrNotConnected = errors.New("link not connected")

	// ErrClosed indicates the link or session was closed.
	ErrClosed = errors.New("closed")

	// ErrAlreadyRunning indicates the session is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the session is not running.
	ErrNotRunning = errors.New("not running")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNack indicates the device rejected a command.
	ErrNack = errors.New("command rejected by device")

	// ErrUploadFailed indicates a program upload did not complete.
	ErrUploadFailed = errors.New("upload failed")

	// ErrInvalidImage indicates a program image failed validation.
	ErrInvalidImage = errors.New("invalid program image")
)

// Execution faults. A *host.Fault matches the sentinel for its kind.
var (
	// ErrDeviceFault indicates the routine faulted on the device.
	ErrDeviceFault = errors.New("device fault")

	// ErrKilled indicates the invocation was terminated on request.
	ErrKilled = errors.New("task killed")

	// ErrReset indicates the device program was cleared under the task.
	ErrReset = errors.New("device reset")

	// ErrProtocol indicates the device sent an inconsistent reply sequence.
	ErrProtocol = errors.New("protocol error")
)

// Admission errors. These are returned synchronously before any frame is sent.
var (
	// ErrProgramTooLarge indicates the execution set exceeds the device memory budget.
	ErrProgramTooLarge = errors.New("program too large for device")

	// ErrProgramActive indicates another (possibly partial) program is loaded.
	ErrProgramActive = errors.New("another program is active")

	// ErrNotLoaded indicates the execution set is not loaded on the device.
	ErrNotLoaded = errors.New("execution set not loaded")

	// ErrUnknownRoutine indicates a routine id not present in the execution set.
	ErrUnknownRoutine = errors.New("unknown routine")

	// ErrBusy indicates the execution set cannot accept another invocation.
	ErrBusy = errors.New("execution set busy")

	// ErrInvalidState indicates a task is in the wrong state for the operation.
	ErrInvalidState = errors.New("invalid task state")
)

// CommandError is the error code a device reports in a NACK.
type CommandError uint8

// Command error codes.
const (
	CommandErrorNone             CommandError = iota // No error
	CommandErrorEngineBusy                           // Device executor busy
	CommandErrorInvalidArguments                     // Malformed or out-of-range arguments
	CommandErrorOutOfMemory                          // Device could not allocate
	CommandErrorInternal                             // Device internal error
	CommandErrorChunkSequence                        // Upload chunk missing or out of order
	CommandErrorNotLoaded                            // No program loaded
	CommandErrorUnknownRoutine                       // Routine id not declared
)

// String returns a string representation of the command error.
func (e CommandError) String() string {
	switch e {
	case CommandErrorNone:
		return "none"
	case CommandErrorEngineBusy:
		return "engine busy"
	case CommandErrorInvalidArguments:
		return "invalid arguments"
	case CommandErrorOutOfMemory:
		return "out of memory"
	case CommandErrorInternal:
		return "internal error"
	case CommandErrorChunkSequence:
		return "chunk sequence"
	case CommandErrorNotLoaded:
		return "not loaded"
	case CommandErrorUnknownRoutine:
		return "unknown routine"
	default:
		return "unknown"
	}
}

// Error returns the corresponding sentinel error for the command error.
func (e CommandError) Error() error {
	switch e {
	case CommandErrorNone:
		return nil
	case CommandErrorEngineBusy:
		return ErrBusy
	case CommandErrorInvalidArguments:
		return ErrInvalidParameter
	case CommandErrorOutOfMemory:
		return ErrProgramTooLarge
	case CommandErrorChunkSequence:
		return ErrChunkSequence
	case CommandErrorNotLoaded:
		return ErrNotLoaded
	case CommandErrorUnknownRoutine:
		return ErrUnknownRoutine
	default:
		return ErrNack
	}
}
