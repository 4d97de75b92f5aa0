package protocol

import "fmt"

// FaultKind classifies why an invocation was aborted. Device kinds travel in
// EXCEPTION frames; host kinds are raised locally by the session.
type FaultKind uint8

// Device fault kinds.
const (
	FaultNone FaultKind = iota
	FaultInvalidOpcode
	FaultMissingMethod
	FaultNullReference
	FaultStackOverflow
	FaultDivideByZero
	FaultIndexOutOfRange
	FaultOutOfMemory
	FaultArrayTypeMismatch
	FaultInvalidOperation
	FaultClassNotFound
	FaultInvalidCast
	FaultNotSupported
	FaultCustomException
	FaultKilled
	FaultUnknown
)

// Host fault kinds.
const (
	FaultTimeout FaultKind = 0x40 + iota
	FaultCancelled
	FaultProtocol
	FaultConnection
	FaultReset
)

// CustomCodeBase is the first EXCEPTION code that names an exception type
// token rather than a built-in fault kind.
const CustomCodeBase = 0x100

// Code returns the EXCEPTION wire code for k.
func (k FaultKind) Code() uint32 {
	return uint32(k)
}

// FaultFromCode maps an EXCEPTION wire code to its kind. Only device kinds
// travel on the wire; any other code, host kinds included, is FaultUnknown.
func FaultFromCode(code uint32) FaultKind {
	switch {
	case code >= CustomCodeBase:
		return FaultCustomException
	case code > uint32(FaultNone) && code <= uint32(FaultKilled):
		return FaultKind(code)
	}
	return FaultUnknown
}

// Local reports whether k is raised by the host rather than the device.
func (k FaultKind) Local() bool {
	return k >= FaultTimeout && k <= FaultReset
}

func (k FaultKind) String() string {
	switch k {
	case FaultNone:
		return "none"
	case FaultInvalidOpcode:
		return "invalid opcode"
	case FaultMissingMethod:
		return "missing method"
	case FaultNullReference:
		return "null reference"
	case FaultStackOverflow:
		return "stack overflow"
	case FaultDivideByZero:
		return "divide by zero"
	case FaultIndexOutOfRange:
		return "index out of range"
	case FaultOutOfMemory:
		return "out of memory"
	case FaultArrayTypeMismatch:
		return "array type mismatch"
	case FaultInvalidOperation:
		return "invalid operation"
	case FaultClassNotFound:
		return "class not found"
	case FaultInvalidCast:
		return "invalid cast"
	case FaultNotSupported:
		return "not supported"
	case FaultCustomException:
		return "custom exception"
	case FaultKilled:
		return "killed"
	case FaultUnknown:
		return "unknown fault"
	case FaultTimeout:
		return "timeout"
	case FaultCancelled:
		return "cancelled"
	case FaultProtocol:
		return "protocol error"
	case FaultConnection:
		return "connection lost"
	case FaultReset:
		return "reset"
	default:
		return fmt.Sprintf("fault(%d)", uint8(k))
	}
}
