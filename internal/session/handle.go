package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/salio-edge/gateway/internal/device"
	"github.com/salio-edge/gateway/internal/monitoring"
)

// DeviceHandle wraps one adapter and bounds its connect attempts. Its
// connected flag lives in the Manager's SystemState.
type DeviceHandle struct {
	kind    device.Kind
	path    string
	adapter device.Adapter

	mu sync.Mutex
	// inflight is closed when an abandoned Connect call finally returns.
	inflight chan struct{}
}

// NewDeviceHandle binds an adapter to the identifier it was built for.
func NewDeviceHandle(kind device.Kind, path string, adapter device.Adapter) *DeviceHandle {
	return &DeviceHandle{kind: kind, path: path, adapter: adapter}
}

func (h *DeviceHandle) Kind() device.Kind       { return h.kind }
func (h *DeviceHandle) Path() string            { return h.path }
func (h *DeviceHandle) Adapter() device.Adapter { return h.adapter }

// connect runs adapter.Connect bounded by timeout. No answer in time counts
// as failure; if the abandoned attempt later succeeds the device is closed
// again so it is never left open without the session knowing.
func (h *DeviceHandle) connect(ctx context.Context, timeout time.Duration) bool {
	h.mu.Lock()
	pending := h.inflight
	h.mu.Unlock()
	if pending != nil {
		select {
		case <-pending:
		default:
			monitoring.Logf("%s connect on %s still pending from an earlier attempt", h.kind, h.path)
			return false
		}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result := make(chan bool, 1)
	go func() {
		ok := false
		defer func() {
			if r := recover(); r != nil {
				monitoring.Logf("%s adapter panicked during connect: %v", h.kind, r)
			}
			result <- ok
		}()
		ok = h.adapter.Connect(ctx)
	}()

	select {
	case ok := <-result:
		return ok
	case <-ctx.Done():
		monitoring.Logf("%s connect on %s timed out: %v", h.kind, h.path, ctx.Err())
		done := make(chan struct{})
		h.mu.Lock()
		h.inflight = done
		h.mu.Unlock()
		go func() {
			defer close(done)
			if <-result {
				h.adapter.Disconnect()
			}
		}()
		return false
	}
}

// disconnect closes the adapter, converting a panic into an error.
func (h *DeviceHandle) disconnect() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s disconnect: %v", h.kind, r)
		}
	}()
	h.adapter.Disconnect()
	return nil
}
