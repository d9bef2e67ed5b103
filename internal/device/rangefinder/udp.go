package rangefinder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/salio-edge/gateway/internal/device"
	"github.com/salio-edge/gateway/internal/monitoring"
	"github.com/salio-edge/gateway/internal/timeutil"
)

// readTimeout bounds each socket read so the loop can notice cancellation.
const readTimeout = 100 * time.Millisecond

// UDPConfig configures a rangefinder that pushes datagrams to the gateway.
type UDPConfig struct {
	// Address is the local listen address, e.g. ":2368".
	Address string
	// ReadBuffer is the OS receive buffer size in bytes; zero keeps the
	// system default.
	ReadBuffer int
}

// UDP is a rangefinder whose frames arrive as datagrams. The sensor streams
// continuously; frames are only forwarded between StartScan and Disconnect.
type UDP struct {
	cfg     UDPConfig
	factory UDPSocketFactory
	clock   timeutil.Clock

	mu     sync.Mutex
	sock   UDPSocket
	cancel context.CancelFunc
	done   chan struct{}

	scanning atomic.Bool
	packets  atomic.Uint64
	dropped  atomic.Uint64

	cbMu sync.RWMutex
	cb   device.Callback
}

// NewUDP builds the adapter. A nil factory binds real sockets.
func NewUDP(cfg UDPConfig, factory UDPSocketFactory, clock timeutil.Clock) *UDP {
	if factory == nil {
		factory = RealUDPSocketFactory{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &UDP{cfg: cfg, factory: factory, clock: clock}
}

func (u *UDP) Connect(ctx context.Context) bool {
	if err := u.listen(ctx); err != nil {
		monitoring.Logf("lidar unavailable: %v", err)
		return false
	}
	monitoring.Logf("lidar listening on %s", u.cfg.Address)
	return true
}

func (u *UDP) listen(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.sock != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr, err := net.ResolveUDPAddr("udp", u.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	sock, err := u.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	if u.cfg.ReadBuffer > 0 {
		if err := sock.SetReadBuffer(u.cfg.ReadBuffer); err != nil {
			monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", u.cfg.ReadBuffer, err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		u.readLoop(loopCtx, sock)
	}()

	u.sock, u.cancel, u.done = sock, cancel, done
	return nil
}

func (u *UDP) readLoop(ctx context.Context, sock UDPSocket) {
	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			return
		}
		sock.SetReadDeadline(time.Now().Add(readTimeout))

		n, addr, err := sock.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			monitoring.Logf("lidar UDP read error: %v", err)
			continue
		}

		u.packets.Add(1)
		if !u.scanning.Load() {
			u.dropped.Add(1)
			continue
		}
		points, err := DecodeDatagram(buf[:n])
		if err != nil {
			monitoring.Logf("lidar: bad datagram from %v: %v", addr, err)
			continue
		}
		u.emit(points)
	}
}

func (u *UDP) emit(points []Point) {
	u.cbMu.RLock()
	cb := u.cb
	u.cbMu.RUnlock()
	if cb != nil {
		cb(device.Reading{Kind: device.Rangefinder, At: u.clock.Now(), Points: points})
	}
}

func (u *UDP) Disconnect() {
	u.mu.Lock()
	sock, cancel, done := u.sock, u.cancel, u.done
	u.sock, u.cancel, u.done = nil, nil, nil
	u.mu.Unlock()

	u.scanning.Store(false)
	if sock == nil {
		return
	}
	cancel()
	if err := sock.Close(); err != nil {
		monitoring.Logf("lidar close %s: %v", u.cfg.Address, err)
	}
	<-done
}

func (u *UDP) StartScan() error {
	u.mu.Lock()
	connected := u.sock != nil
	u.mu.Unlock()
	if !connected {
		return device.ErrNotConnected
	}
	u.scanning.Store(true)
	return nil
}

func (u *UDP) SetCallback(cb device.Callback) {
	u.cbMu.Lock()
	defer u.cbMu.Unlock()
	u.cb = cb
}

// Packets returns how many datagrams were received, and how many of those
// arrived outside a scan and were discarded.
func (u *UDP) Packets() (received, discarded uint64) {
	return u.packets.Load(), u.dropped.Load()
}

var _ device.Adapter = (*UDP)(nil)
