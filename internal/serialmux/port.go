package serialmux

import (
	"io"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// OpenFunc opens the serial device at path with the given options. Device
// adapters take one so tests and dev mode can substitute the port.
type OpenFunc func(path string, opts PortOptions) (SerialPorter, error)
