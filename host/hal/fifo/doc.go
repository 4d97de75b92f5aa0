// Package fifo implements a host link over named pipes (FIFOs).
//
// It pairs with [github.com/ardnew/softexec/device/hal/fifo] so a host
// session and a simulated device in another process can talk without
// hardware. Both sides share a bus directory:
//
//	/tmp/softexec-bus/               # Bus directory (shared)
//	└── device-{uuid}/               # Created by the device
//	    ├── connection               # Connection signaling (device → host)
//	    ├── host_to_device           # Frames from host
//	    └── device_to_host           # Frames, logs and text from device
//
// The device writes 0x01 to the connection FIFO when ready and 0x00 when it
// goes away. [Link.Open] polls the bus directory and attaches to the first
// device that signals a connection; a disconnect closes the data FIFOs so
// the session's reader sees end of stream.
//
// # Usage
//
//	link := fifo.New("/tmp/softexec-bus")
//	sess := host.NewSession(link)
//	if err := sess.Start(ctx); err != nil {
//	    return err
//	}
//	defer sess.Stop()
package fifo
