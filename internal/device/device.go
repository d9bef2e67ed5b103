// Package device defines the contract between the session core and the
// hardware drivers behind it. Concrete adapters live in subpackages.
package device

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected is returned by adapter operations that need an open device.
var ErrNotConnected = errors.New("device not connected")

// Kind distinguishes the two device classes the gateway bridges.
type Kind string

const (
	Rangefinder Kind = "lidar"
	TagReader   Kind = "rfid"
)

// Reading is one item produced by an adapter: a point-cloud frame from a
// rangefinder or a tag detection from a tag reader.
type Reading struct {
	Kind Kind
	At   time.Time
	// TagID is set for TagReader readings.
	TagID string
	// Points is the rangefinder frame, passed through untouched.
	Points any
}

// Callback receives readings. Adapters call it from their own goroutine,
// unsynchronized with Connect, Disconnect and StartScan.
type Callback func(Reading)

// Adapter is the capability every device driver exposes to the session.
type Adapter interface {
	// Connect opens the device and reports whether it is usable. Failures
	// are logged by the adapter and reported as false, never as an error.
	// Implementations should give up when ctx is done.
	Connect(ctx context.Context) bool
	// Disconnect releases the device. It is safe on a closed adapter.
	Disconnect()
	// StartScan asks the device to begin producing readings. Callers only
	// invoke it on a connected adapter.
	StartScan() error
	// SetCallback replaces the registered reading callback.
	SetCallback(Callback)
}
