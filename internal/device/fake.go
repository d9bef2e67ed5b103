package device

import (
	"context"
	"sync"
	"time"
)

// Fake is a scriptable Adapter for tests and for wiring checks without
// hardware.
type Fake struct {
	mu sync.Mutex

	connectResult bool
	connectDelay  time.Duration
	scanErr       error

	connected   bool
	cb          Callback
	connects    int
	disconnects int
	scans       int
}

// NewFake returns a Fake whose Connect reports ok.
func NewFake(ok bool) *Fake {
	return &Fake{connectResult: ok}
}

// SetConnectResult changes what subsequent Connect calls report.
func (f *Fake) SetConnectResult(ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectResult = ok
}

// SetConnectDelay makes Connect wait d (or until ctx is done) before
// answering.
func (f *Fake) SetConnectDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectDelay = d
}

// SetScanError makes StartScan fail with err.
func (f *Fake) SetScanError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanErr = err
}

func (f *Fake) Connect(ctx context.Context) bool {
	f.mu.Lock()
	delay := f.connectDelay
	f.connects++
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = f.connectResult
	return f.connected
}

func (f *Fake) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
}

func (f *Fake) StartScan() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	if !f.connected {
		return ErrNotConnected
	}
	return f.scanErr
}

func (f *Fake) SetCallback(cb Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
}

// Emit delivers r to the registered callback, if any, on the caller's
// goroutine.
func (f *Fake) Emit(r Reading) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(r)
	}
}

func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *Fake) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

func (f *Fake) Scans() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scans
}
