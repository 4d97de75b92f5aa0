// Package hal defines the link abstraction the host session runs over.
//
// A [Link] is a raw duplex byte stream to a single device. The session owns
// framing, correlation and timeouts; a link only moves bytes. Platform code
// implements Link for its transport:
//
//   - [StreamLink] wraps any connected io.ReadWriteCloser (net.Pipe, sockets)
//   - [DialLink] dials a TCP serial bridge on Open
//   - [github.com/ardnew/softexec/host/hal/serial] opens a Linux tty
//   - [github.com/ardnew/softexec/host/hal/fifo] talks to a simulated device
//     over named pipes
package hal
