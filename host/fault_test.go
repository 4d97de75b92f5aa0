package host

import (
	"errors"
	"strings"
	"testing"

	"github.com/ardnew/softexec/pkg"
	"github.com/ardnew/softexec/protocol"
)

func TestFaultIs(t *testing.T) {
	tests := []struct {
		kind protocol.FaultKind
		want error
	}{
		{protocol.FaultTimeout, pkg.ErrTimeout},
		{protocol.FaultCancelled, pkg.ErrCancelled},
		{protocol.FaultConnection, pkg.ErrNotConnected},
		{protocol.FaultProtocol, pkg.ErrProtocol},
		{protocol.FaultReset, pkg.ErrReset},
		{protocol.FaultKilled, pkg.ErrKilled},
		{protocol.FaultIndexOutOfRange, pkg.ErrDeviceFault},
		{protocol.FaultOutOfMemory, pkg.ErrDeviceFault},
		{protocol.FaultCustomException, pkg.ErrDeviceFault},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			var err error = newFault(tt.kind, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.want)
			}
			if tt.want != pkg.ErrDeviceFault && errors.Is(err, pkg.ErrDeviceFault) {
				t.Errorf("local fault %v matches ErrDeviceFault", err)
			}
		})
	}
}

func TestFaultFromException(t *testing.T) {
	f := faultFromException(protocol.Exception{
		Invocation: 3,
		Code:       protocol.CustomCodeBase + 2,
		Token:      0x0200_0001,
		Message:    "sensor offline",
	})
	if f.Kind != protocol.FaultCustomException {
		t.Errorf("Kind = %s", f.Kind)
	}
	msg := f.Error()
	for _, want := range []string{"custom exception", "0x102", "0x02000001", "sensor offline"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestFaultUnwrap(t *testing.T) {
	cause := errors.New("pipe closed")
	f := newFault(protocol.FaultConnection, cause)
	if !errors.Is(f, cause) {
		t.Error("fault does not unwrap to its cause")
	}
	if f.Message != "pipe closed" {
		t.Errorf("Message = %q", f.Message)
	}
}

func TestOutcome(t *testing.T) {
	ok := Outcome{State: StateStopped, Values: []protocol.Value{protocol.Int32(7)}}
	if ok.Err() != nil {
		t.Errorf("Err() = %v", ok.Err())
	}
	if !strings.HasPrefix(ok.String(), "Stopped [") {
		t.Errorf("String() = %q", ok.String())
	}

	bad := Outcome{State: StateAborted, Fault: newFault(protocol.FaultTimeout, pkg.ErrTimeout)}
	if !errors.Is(bad.Err(), pkg.ErrTimeout) {
		t.Errorf("Err() = %v", bad.Err())
	}
	if !strings.Contains(bad.String(), "timeout") {
		t.Errorf("String() = %q", bad.String())
	}
}

func TestTaskStateString(t *testing.T) {
	for s, want := range map[TaskState]string{
		StatePrepared: "Prepared",
		StateLoaded:   "Loaded",
		StateRunning:  "Running",
		StateStopped:  "Stopped",
		StateAborted:  "Aborted",
		TaskState(9):  "TaskState(9)",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
	if StateRunning.Terminal() || !StateAborted.Terminal() || !StateStopped.Terminal() {
		t.Error("Terminal() mismatch")
	}
}
