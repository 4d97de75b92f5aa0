// Package hal defines the device-side link abstraction.
//
// A [Port] carries the raw byte stream between a device and its host. The
// device loop in package device owns framing and execution; the port only
// moves bytes. [StreamPort] adapts any connected stream, and
// [github.com/ardnew/softexec/device/hal/fifo] provides named pipes for
// cross-process simulation.
package hal
