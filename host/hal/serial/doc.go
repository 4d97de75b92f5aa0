// Package serial implements a host link over a serial tty.
//
// On Linux the port is opened with golang.org/x/sys/unix and configured for
// raw 8N1 at the requested baud rate. The descriptor stays non-blocking so
// reads park in the runtime poller and [Link.Close] wakes a blocked reader.
// Other platforms return errors.ErrUnsupported from Open.
//
// With [Config.Wait] set, Open first waits for the tty to appear by
// listening for kernel uevents on a netlink socket. Boards that re-enumerate
// after a reset can then be opened as soon as they come back.
//
// [Enumerate] lists USB serial adapters (ttyACM*, ttyUSB*) from sysfs along
// with the vendor and product of their USB parent, which helps pick the
// right board when several are attached.
package serial
