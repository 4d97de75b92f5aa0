// Package host implements the host side of remote routine execution on a
// microcontroller-class device.
//
// It talks to the device through the [hal.Link] interface defined in the
// github.com/ardnew/softexec/host/hal package, so the same session code runs
// over a serial tty, a named-pipe pair or a TCP socket.
//
// # Architecture
//
// The host side is organized into a few cooperating types:
//
//   - Session owns the link, the reader goroutine and the reply bag
//   - ExecutionSet is a program (routines and constants) uploaded as a unit
//   - Task is the handle for one invocation of a routine
//   - MemoryEstimate is the admission footprint of an execution set
//
// # Task Lifecycle
//
// Tasks only move forward:
//
//	Prepared ──Load──▶ Loaded ──InvokeAsync──▶ Running ──▶ Stopped
//	                                              │
//	                                              └──────▶ Aborted
//
// Stopped carries the routine's return values. Aborted carries a [*Fault]
// naming a device fault (index out of range, out of memory, killed, ...)
// or a local one (timeout, cancellation, link loss, reset).
//
// # Correlation
//
// Replies arrive on one stream, interleaved with device log text and pin
// events. The session reader deposits ACK, NACK and CAPABILITIES frames and
// the result frames of live invocations into a [bag.Bag]. Callers block on
// the bag with a predicate for their sequence number or invocation id. A
// result for an invocation nobody owns is counted as an orphan and dropped.
//
// # Example
//
//	link := serial.New(serial.Config{Path: "/dev/ttyACM0"})
//	s := host.NewSession(link, host.WithOnLog(func(text string) {
//	    fmt.Println("device:", text)
//	}))
//	if err := s.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Stop()
//
//	img, err := program.ReadFile("blink.cbor")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	set := host.FromImage(img)
//	if err := s.Load(ctx, set); err != nil {
//	    log.Fatal(err)
//	}
//
//	task, _ := set.NewTask(0x0600_0001)
//	if err := s.InvokeAsync(task, protocol.Int32(500)); err != nil {
//	    log.Fatal(err)
//	}
//	out, err := task.WaitForResult(5 * time.Second)
//
// A FIFO-based link for testing against the device simulator is available in
// [github.com/ardnew/softexec/host/hal/fifo].
package host
