package host

import (
	"fmt"
	"strings"
	"time"

	"github.com/ardnew/softexec/pkg"
	"github.com/ardnew/softexec/protocol"
)

// Fault describes why a task was aborted.
type Fault struct {
	Kind    protocol.FaultKind
	Code    uint32 // EXCEPTION code as sent by the device
	Token   uint32 // Device token of the faulting routine or exception type
	Message string
	Err     error // Local cause, if any
}

func newFault(kind protocol.FaultKind, err error) *Fault {
	f := &Fault{Kind: kind, Code: kind.Code(), Err: err}
	if err != nil {
		f.Message = err.Error()
	}
	return f
}

func faultFromException(m protocol.Exception) *Fault {
	return &Fault{
		Kind:    m.Kind(),
		Code:    m.Code,
		Token:   m.Token,
		Message: m.Message,
	}
}

// Error implements error.
func (f *Fault) Error() string {
	var b strings.Builder
	b.WriteString(f.Kind.String())
	if f.Kind == protocol.FaultCustomException || f.Kind == protocol.FaultUnknown {
		fmt.Fprintf(&b, " (code 0x%X)", f.Code)
	}
	if f.Token != 0 {
		fmt.Fprintf(&b, " in 0x%08X", f.Token)
	}
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	return b.String()
}

// Unwrap returns the local cause.
func (f *Fault) Unwrap() error {
	return f.Err
}

// Is matches the sentinel error for the fault kind.
func (f *Fault) Is(target error) bool {
	switch f.Kind {
	case protocol.FaultTimeout:
		return target == pkg.ErrTimeout
	case protocol.FaultCancelled:
		return target == pkg.ErrCancelled
	case protocol.FaultConnection:
		return target == pkg.ErrNotConnected
	case protocol.FaultProtocol:
		return target == pkg.ErrProtocol
	case protocol.FaultReset:
		return target == pkg.ErrReset
	case protocol.FaultKilled:
		return target == pkg.ErrKilled
	default:
		return target == pkg.ErrDeviceFault
	}
}

// Outcome is the final result of a task: values when Stopped, a fault when
// Aborted.
type Outcome struct {
	State   TaskState
	Values  []protocol.Value
	Fault   *Fault
	Elapsed time.Duration
}

// Err returns the fault as an error, or nil.
func (o Outcome) Err() error {
	if o.Fault == nil {
		return nil
	}
	return o.Fault
}

// String summarises the outcome.
func (o Outcome) String() string {
	switch o.State {
	case StateStopped:
		vals := make([]string, len(o.Values))
		for i, v := range o.Values {
			vals[i] = v.String()
		}
		return fmt.Sprintf("Stopped [%s] in %s", strings.Join(vals, ", "), o.Elapsed)
	case StateAborted:
		return fmt.Sprintf("Aborted: %v", o.Fault)
	default:
		return o.State.String()
	}
}
