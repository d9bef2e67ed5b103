// Package tagreader implements the proximity tag reader adapter. The reader
// writes one tag id per line, optionally framed with STX/ETX.
package tagreader

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/salio-edge/gateway/internal/device"
	"github.com/salio-edge/gateway/internal/monitoring"
	"github.com/salio-edge/gateway/internal/serialmux"
	"github.com/salio-edge/gateway/internal/timeutil"
)

const (
	stx = "\x02"
	etx = "\x03"
)

// Config configures a serial tag reader.
type Config struct {
	Device  string
	Options serialmux.PortOptions
	// Debounce suppresses repeats of the same tag inside the window. Zero
	// reports every read.
	Debounce time.Duration
}

// Reader is a serial tag reader adapter.
type Reader struct {
	cfg   Config
	link  *device.SerialLink
	clock timeutil.Clock

	mu       sync.Mutex
	cb       device.Callback
	lastTag  string
	lastSeen time.Time
}

// New builds the adapter. open may be nil to use real hardware.
func New(cfg Config, open serialmux.OpenFunc, clock timeutil.Clock) *Reader {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Reader{
		cfg:   cfg,
		link:  device.NewSerialLink("rfid", cfg.Device, cfg.Options, open),
		clock: clock,
	}
}

// Link exposes the serial link for debug routes.
func (r *Reader) Link() *device.SerialLink { return r.link }

func (r *Reader) Connect(ctx context.Context) bool {
	if err := r.link.Open(ctx, r.handleLine); err != nil {
		monitoring.Logf("rfid unavailable: %v", err)
		return false
	}
	monitoring.Logf("rfid connected on %s", r.cfg.Device)
	return true
}

func (r *Reader) Disconnect() {
	if err := r.link.Close(); err != nil {
		monitoring.Logf("rfid close %s: %v", r.cfg.Device, err)
	}
	r.mu.Lock()
	r.lastTag, r.lastSeen = "", time.Time{}
	r.mu.Unlock()
}

// StartScan is a no-op: the reader reports tags whenever it is open.
func (r *Reader) StartScan() error {
	if !r.link.Connected() {
		return device.ErrNotConnected
	}
	return nil
}

func (r *Reader) SetCallback(cb device.Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cb = cb
}

// NormalizeTag strips framing and whitespace and upper-cases the id. It
// returns "" for lines that carry no id.
func NormalizeTag(line string) string {
	line = strings.ReplaceAll(line, stx, "")
	line = strings.ReplaceAll(line, etx, "")
	return strings.ToUpper(strings.TrimSpace(line))
}

func (r *Reader) handleLine(line string) {
	tag := NormalizeTag(line)
	if tag == "" {
		return
	}
	now := r.clock.Now()

	r.mu.Lock()
	if r.cfg.Debounce > 0 && tag == r.lastTag && now.Sub(r.lastSeen) < r.cfg.Debounce {
		r.lastSeen = now
		r.mu.Unlock()
		return
	}
	r.lastTag, r.lastSeen = tag, now
	cb := r.cb
	r.mu.Unlock()

	monitoring.Logf("rfid detected: %s", tag)
	if cb != nil {
		cb(device.Reading{Kind: device.TagReader, At: now, TagID: tag})
	}
}

var _ device.Adapter = (*Reader)(nil)
