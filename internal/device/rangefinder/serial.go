package rangefinder

import (
	"context"
	"sync"

	"github.com/salio-edge/gateway/internal/device"
	"github.com/salio-edge/gateway/internal/monitoring"
	"github.com/salio-edge/gateway/internal/serialmux"
	"github.com/salio-edge/gateway/internal/timeutil"
)

// SerialConfig configures a rangefinder on a serial port.
type SerialConfig struct {
	Port    string
	Options serialmux.PortOptions
	// ScanCommand is written on StartScan; StopCommand before the port is
	// closed. Either may be empty.
	ScanCommand string
	StopCommand string
}

// Serial is a rangefinder that streams one frame per line.
type Serial struct {
	cfg   SerialConfig
	link  *device.SerialLink
	clock timeutil.Clock

	mu sync.RWMutex
	cb device.Callback
}

// NewSerial builds the adapter. open may be nil to use real hardware.
func NewSerial(cfg SerialConfig, open serialmux.OpenFunc, clock timeutil.Clock) *Serial {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Serial{
		cfg:   cfg,
		link:  device.NewSerialLink("lidar", cfg.Port, cfg.Options, open),
		clock: clock,
	}
}

// Link exposes the serial link for debug routes.
func (s *Serial) Link() *device.SerialLink { return s.link }

func (s *Serial) Connect(ctx context.Context) bool {
	if err := s.link.Open(ctx, s.handleLine); err != nil {
		monitoring.Logf("lidar unavailable: %v", err)
		return false
	}
	monitoring.Logf("lidar connected on %s", s.cfg.Port)
	return true
}

func (s *Serial) Disconnect() {
	if !s.link.Connected() {
		return
	}
	if s.cfg.StopCommand != "" {
		if err := s.link.SendCommand(s.cfg.StopCommand); err != nil {
			monitoring.Logf("lidar stop command: %v", err)
		}
	}
	if err := s.link.Close(); err != nil {
		monitoring.Logf("lidar close %s: %v", s.cfg.Port, err)
	}
}

func (s *Serial) StartScan() error {
	if !s.link.Connected() {
		return device.ErrNotConnected
	}
	if s.cfg.ScanCommand == "" {
		return nil
	}
	return s.link.SendCommand(s.cfg.ScanCommand)
}

func (s *Serial) SetCallback(cb device.Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

func (s *Serial) handleLine(line string) {
	points, err := ParseFrame(line)
	if err != nil {
		monitoring.Logf("lidar: dropping malformed frame: %v", err)
		return
	}

	s.mu.RLock()
	cb := s.cb
	s.mu.RUnlock()
	if cb != nil {
		cb(device.Reading{Kind: device.Rangefinder, At: s.clock.Now(), Points: points})
	}
}

var _ device.Adapter = (*Serial)(nil)
