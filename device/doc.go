// Package device implements the device side of the remote execution
// protocol as a simulator.
//
// It is platform-agnostic and talks to the host through the [hal.Port]
// interface defined in the [github.com/ardnew/softexec/device/hal] package.
// Routines are executed by a pluggable [Interpreter]; the package only
// speaks the wire protocol and enforces a RAM budget, so hosts can be tested
// end to end without firmware.
//
// # Architecture
//
//   - [Device] runs the frame loop, tracks the uploaded program and RAM use
//   - [Interpreter] executes one invocation; [Table] dispatches by routine id
//   - [Env] gives a running routine logging, pin events and allocation
//   - [Fault] aborts an invocation with a specific fault kind
//
// # Program States
//
//	Empty → Loading → Ready
//
// DECLARE_ROUTINE moves the device to Loading, a LOAD_COMPLETE that finds
// every declaration complete and fitting in RAM moves it to Ready, and
// CLEAR_ALL returns it to Empty.
//
// # Memory
//
// The program occupies RAM from LOAD_COMPLETE until CLEAR_ALL. Each
// invocation reserves a frame sized from the routine's stack, argument and
// local slots, plus whatever the routine allocates through [Env.Alloc].
// A reservation that does not fit aborts the invocation with an
// out-of-memory fault.
package device
