package protocol

import "fmt"

// Command identifies the kind of a frame. Command bytes always have bit 7
// set so they can never be confused with payload bytes.
type Command uint8

// Frame delimiters.
const (
	// CommandFlag is set in every command byte and clear in every payload byte.
	CommandFlag = 0x80

	// EndMarker terminates every frame.
	EndMarker = 0xF7

	// reservedStart begins the range of bytes that are never commands.
	reservedStart = 0xF0
)

// Command catalogue.
const (
	CmdDeclareRoutine    Command = 0x80 // Routine metadata, precedes its chunks
	CmdLoadChunk         Command = 0x81 // One chunk of routine code
	CmdLoadComplete      Command = 0x82 // End of program upload
	CmdInvoke            Command = 0x83 // Start a routine, with or without arguments
	CmdResultChunk       Command = 0x84 // One chunk of an invocation's return values
	CmdResultComplete    Command = 0x85 // Final frame of a successful invocation
	CmdException         Command = 0x86 // Invocation faulted on the device
	CmdLog               Command = 0x87 // Diagnostic text from the device
	CmdClearAll          Command = 0x88 // Drop the loaded program and all tasks
	CmdPinEvent          Command = 0x89 // Asynchronous pin or sensor change
	CmdQueryCapabilities Command = 0x8A // Ask the device for its limits
	CmdCapabilities      Command = 0x8B // Device limits reply
	CmdKill              Command = 0x8C // Terminate a running invocation
	CmdAck               Command = 0x8E // Positive acknowledgement of a sequenced command
	CmdNack              Command = 0x8F // Negative acknowledgement with error code
)

// Known reports whether c is part of the command catalogue.
func (c Command) Known() bool {
	switch c {
	case CmdDeclareRoutine, CmdLoadChunk, CmdLoadComplete, CmdInvoke,
		CmdResultChunk, CmdResultComplete, CmdException, CmdLog,
		CmdClearAll, CmdPinEvent, CmdQueryCapabilities, CmdCapabilities,
		CmdKill, CmdAck, CmdNack:
		return true
	}
	return false
}

// IsCommandByte reports whether b starts a frame (as opposed to payload,
// raw text, or the end marker).
func IsCommandByte(b byte) bool {
	return b&CommandFlag != 0 && b < reservedStart
}

// Terminal reports whether c ends an invocation.
func (c Command) Terminal() bool {
	return c == CmdResultComplete || c == CmdException
}

// String returns the catalogue name of the command.
func (c Command) String() string {
	switch c {
	case CmdDeclareRoutine:
		return "DECLARE_ROUTINE"
	case CmdLoadChunk:
		return "LOAD_CHUNK"
	case CmdLoadComplete:
		return "LOAD_COMPLETE"
	case CmdInvoke:
		return "INVOKE"
	case CmdResultChunk:
		return "RESULT_CHUNK"
	case CmdResultComplete:
		return "RESULT_COMPLETE"
	case CmdException:
		return "EXCEPTION"
	case CmdLog:
		return "LOG"
	case CmdClearAll:
		return "CLEAR_ALL"
	case CmdPinEvent:
		return "PIN_EVENT"
	case CmdQueryCapabilities:
		return "QUERY_CAPABILITIES"
	case CmdCapabilities:
		return "CAPABILITIES"
	case CmdKill:
		return "KILL"
	case CmdAck:
		return "ACK"
	case CmdNack:
		return "NACK"
	default:
		return fmt.Sprintf("CMD(0x%02X)", uint8(c))
	}
}
