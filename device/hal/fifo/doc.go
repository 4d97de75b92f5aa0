// Package fifo implements a device port over named pipes (FIFOs).
//
// This port is intended for testing and simulation. A device process and a
// host process share a bus directory; the device creates its own
// subdirectory named after a random UUID:
//
//	/tmp/softexec-bus/
//	└── device-{uuid}/
//	    ├── connection       # 0x01 connected, 0x00 disconnecting
//	    ├── host_to_device   # Frames from host
//	    └── device_to_host   # Frames and text to host
//
// The UUID comes from github.com/google/uuid so several simulated devices can
// share one bus during parallel tests.
//
// # Usage
//
//	port := fifo.New("/tmp/softexec-bus")
//	dev := device.New(port, interp)
//	if err := dev.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Stop()
//
// The host side uses [github.com/ardnew/softexec/host/hal/fifo] with the same
// bus directory.
package fifo
