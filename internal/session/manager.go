// Package session owns device connection lifecycle and the process-wide
// SystemState, and turns device readings into broadcast events.
//
// Two locks split the work. controlMu serializes Connect, Disconnect,
// StartScan and Shutdown and is held across device I/O. stateMu guards only
// the State fields and is never held while talking to a device, so status
// reads stay fast while a slow connect is in flight.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/salio-edge/gateway/internal/device"
	"github.com/salio-edge/gateway/internal/event"
	"github.com/salio-edge/gateway/internal/monitoring"
	"github.com/salio-edge/gateway/internal/timeutil"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("session closed")
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultIntakeBuffer   = 256
)

// Publisher receives the events the session produces.
type Publisher interface {
	Publish(event.Event)
}

// Config tunes a Manager.
type Config struct {
	// ConnectTimeout bounds each device connect attempt.
	ConnectTimeout time.Duration
	// IntakeBuffer is the capacity of the queue between adapter callbacks
	// and the Run loop.
	IntakeBuffer int
	Clock        timeutil.Clock
}

// Manager is the session state machine.
type Manager struct {
	lidar *DeviceHandle
	rfid  *DeviceHandle
	pub   Publisher
	clock timeutil.Clock

	connectTimeout time.Duration

	controlMu sync.Mutex

	stateMu   sync.Mutex
	state     State
	resetTags bool
	closed    bool

	intake   chan device.Reading
	stopped  chan struct{}
	stopOnce sync.Once

	readings   atomic.Uint64
	frames     atomic.Uint64
	detections atomic.Uint64
	scans      atomic.Uint64
	connects   atomic.Uint64
}

// NewManager wires both handles to the manager and registers the adapter
// callbacks. Call Run to start delivering readings.
func NewManager(cfg Config, lidar, rfid *DeviceHandle, pub Publisher) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.IntakeBuffer <= 0 {
		cfg.IntakeBuffer = DefaultIntakeBuffer
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	m := &Manager{
		lidar:          lidar,
		rfid:           rfid,
		pub:            pub,
		clock:          cfg.Clock,
		connectTimeout: cfg.ConnectTimeout,
		intake:         make(chan device.Reading, cfg.IntakeBuffer),
		stopped:        make(chan struct{}),
	}
	m.state.LastUpdated = m.clock.Now()

	lidar.adapter.SetCallback(m.enqueue)
	rfid.adapter.SetCallback(m.enqueue)
	return m
}

// enqueue runs on adapter goroutines. It blocks while the intake queue is
// full so readings from one source stay ordered, and gives up once Run has
// returned.
func (m *Manager) enqueue(r device.Reading) {
	select {
	case m.intake <- r:
	case <-m.stopped:
	}
}

// Run drains adapter readings until ctx is done. Readings are applied one at
// a time in arrival order.
func (m *Manager) Run(ctx context.Context) error {
	defer m.stopOnce.Do(func() { close(m.stopped) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-m.intake:
			m.apply(r)
		}
	}
}

func (m *Manager) apply(r device.Reading) {
	m.readings.Add(1)
	at := r.At
	if at.IsZero() {
		at = m.clock.Now()
	}

	switch r.Kind {
	case device.TagReader:
		m.detections.Add(1)
		m.stateMu.Lock()
		m.state.TagCount++
		m.state.LastUpdated = m.clock.Now()
		m.stateMu.Unlock()
		m.pub.Publish(event.NewRfidDetection(at, r.TagID))
	case device.Rangefinder:
		m.frames.Add(1)
		m.pub.Publish(event.NewLidarFrame(at, r.Points))
	default:
		monitoring.Logf("session: ignoring reading of unknown kind %q", r.Kind)
	}
}

// Connect attempts both devices concurrently; one failing never prevents the
// other. Partial success is a successful result.
func (m *Manager) Connect(ctx context.Context) (ConnectResult, error) {
	m.controlMu.Lock()
	defer m.controlMu.Unlock()

	if m.isClosed() {
		return ConnectResult{}, ErrClosed
	}

	var lidarOK, rfidOK bool
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		lidarOK = m.lidar.connect(ctx, m.connectTimeout)
	}()
	go func() {
		defer wg.Done()
		rfidOK = m.rfid.connect(ctx, m.connectTimeout)
	}()
	wg.Wait()

	m.connects.Add(1)
	m.stateMu.Lock()
	if m.resetTags && (lidarOK || rfidOK) {
		m.state.TagCount = 0
		m.resetTags = false
	}
	m.state.LidarConnected = lidarOK
	m.state.RfidConnected = rfidOK
	m.state.Running = lidarOK || rfidOK
	m.state.LastUpdated = m.clock.Now()
	m.stateMu.Unlock()

	monitoring.Logf("Connection established - lidar: %v, rfid: %v", lidarOK, rfidOK)
	return ConnectResult{Success: lidarOK || rfidOK, Lidar: lidarOK, Rfid: rfidOK}, nil
}

// Disconnect closes both devices and clears the connected flags. It is
// idempotent. A device fault is returned after the state has been cleared.
func (m *Manager) Disconnect() error {
	m.controlMu.Lock()
	defer m.controlMu.Unlock()
	return m.disconnectLocked()
}

func (m *Manager) disconnectLocked() error {
	err := errors.Join(m.lidar.disconnect(), m.rfid.disconnect())

	m.stateMu.Lock()
	m.state.LidarConnected = false
	m.state.RfidConnected = false
	m.state.Running = false
	m.state.LastUpdated = m.clock.Now()
	m.resetTags = true
	m.stateMu.Unlock()

	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	monitoring.Logf("Devices disconnected")
	return nil
}

// StartScan triggers a rangefinder scan and announces it with a ScanStarted
// event. It fails with ErrNotConnected unless at least one device is
// connected; the rangefinder is only asked to scan when it is the one
// connected.
func (m *Manager) StartScan() error {
	m.controlMu.Lock()
	defer m.controlMu.Unlock()

	if m.isClosed() {
		return ErrClosed
	}
	st := m.snapshot()
	if !st.Running {
		return ErrNotConnected
	}

	if st.LidarConnected {
		if err := m.lidar.adapter.StartScan(); err != nil {
			return fmt.Errorf("start lidar scan: %w", err)
		}
	}

	m.scans.Add(1)
	m.pub.Publish(event.NewScanStarted(m.clock.Now()))
	monitoring.Logf("Scan started")
	return nil
}

// Status returns the current state, refreshing LastUpdated as a side effect.
func (m *Manager) Status() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.state.LastUpdated = m.clock.Now()
	return m.state
}

func (m *Manager) snapshot() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

func (m *Manager) isClosed() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.closed
}

// Shutdown disconnects both devices and rejects further control calls. It is
// safe when nothing was ever connected and when called more than once.
func (m *Manager) Shutdown() error {
	m.controlMu.Lock()
	defer m.controlMu.Unlock()

	m.stateMu.Lock()
	m.closed = true
	m.stateMu.Unlock()

	monitoring.Logf("Shutting down session")
	return m.disconnectLocked()
}

// Counters returns cumulative activity totals.
func (m *Manager) Counters() Counters {
	return Counters{
		Readings:   m.readings.Load(),
		Frames:     m.frames.Load(),
		Detections: m.detections.Load(),
		Scans:      m.scans.Load(),
		Connects:   m.connects.Load(),
	}
}

// Handles returns the rangefinder and tag reader handles.
func (m *Manager) Handles() (lidar, rfid *DeviceHandle) {
	return m.lidar, m.rfid
}
