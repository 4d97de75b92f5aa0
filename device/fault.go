package device

import (
	"errors"
	"fmt"

	"github.com/ardnew/softexec/protocol"
)

// Fault is an error an interpreter returns to abort an invocation with a
// specific fault kind. Other errors are reported as protocol.FaultUnknown.
type Fault struct {
	Kind    protocol.FaultKind
	Custom  uint32 // Exception type index for protocol.FaultCustomException
	Token   uint32 // Faulting routine or type token; defaults to the routine id
	Message string
}

// NewFault returns a fault of kind with a formatted message.
func NewFault(kind protocol.FaultKind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error implements error.
func (f *Fault) Error() string {
	if f.Message == "" {
		return f.Kind.String()
	}
	return f.Kind.String() + ": " + f.Message
}

// Code returns the EXCEPTION wire code.
func (f *Fault) Code() uint32 {
	if f.Kind == protocol.FaultCustomException {
		return protocol.CustomCodeBase + f.Custom
	}
	return f.Kind.Code()
}

// asFault converts an interpreter error into a fault attributed to token.
func asFault(err error, token uint32) *Fault {
	var f *Fault
	if !errors.As(err, &f) {
		f = &Fault{Kind: protocol.FaultUnknown, Message: err.Error()}
	}
	if f.Token == 0 {
		f.Token = token
	}
	return f
}
