package device

import (
	"context"
	"fmt"

	"github.com/ardnew/softexec/program"
	"github.com/ardnew/softexec/protocol"
)

// Interpreter executes routines on behalf of the device.
//
// Run is called on its own goroutine for every invocation. It must return
// promptly once ctx is done; the device then reports the invocation as
// killed. Returning a *Fault aborts the invocation with that fault.
type Interpreter interface {
	Run(ctx context.Context, r program.Routine, args []protocol.Value, env *Env) ([]protocol.Value, error)
}

// InterpreterFunc adapts a function to Interpreter.
type InterpreterFunc func(ctx context.Context, r program.Routine, args []protocol.Value, env *Env) ([]protocol.Value, error)

// Run calls fn.
func (fn InterpreterFunc) Run(ctx context.Context, r program.Routine, args []protocol.Value, env *Env) ([]protocol.Value, error) {
	return fn(ctx, r, args, env)
}

// Table dispatches by routine id. A routine with no entry faults with
// protocol.FaultMissingMethod.
type Table map[uint32]InterpreterFunc

// Run calls the entry for r.ID.
func (t Table) Run(ctx context.Context, r program.Routine, args []protocol.Value, env *Env) ([]protocol.Value, error) {
	fn, ok := t[r.ID]
	if !ok {
		return nil, &Fault{Kind: protocol.FaultMissingMethod, Token: r.ID, Message: fmt.Sprintf("no implementation for 0x%08X", r.ID)}
	}
	return fn(ctx, r, args, env)
}

// Env is the device services available to a running routine.
type Env struct {
	dev *Device
	inv *invocation
}

// Invocation returns the invocation id assigned by the host.
func (e *Env) Invocation() uint16 {
	return e.inv.id
}

// Log sends text to the host as a LOG frame.
func (e *Env) Log(text string) error {
	return e.dev.send(protocol.Log{Text: text})
}

// Logf formats and sends a LOG frame.
func (e *Env) Logf(format string, args ...any) error {
	return e.Log(fmt.Sprintf(format, args...))
}

// PinEvent reports a pin change to the host.
func (e *Env) PinEvent(pin uint16, value uint32) error {
	return e.dev.send(protocol.PinEvent{Pin: pin, Value: value})
}

// Alloc reserves n bytes of device RAM for the rest of the invocation. It
// returns an out-of-memory *Fault when RAM is exhausted.
func (e *Env) Alloc(n int) error {
	if n < 0 {
		return NewFault(protocol.FaultInvalidOperation, "negative allocation %d", n)
	}
	if !e.dev.ram.alloc(int64(n)) {
		return NewFault(protocol.FaultOutOfMemory, "allocating %d bytes, %d free", n, e.dev.ram.free())
	}
	e.inv.held.Add(int64(n))
	return nil
}

// Constant returns the data of constant id from the loaded program.
func (e *Env) Constant(id uint32) ([]byte, bool) {
	return e.dev.constant(id)
}
