// Package simulated provides stand-in devices for running the gateway
// without hardware (-dev). They honour the same contract as the real
// adapters.
package simulated

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/salio-edge/gateway/internal/device"
	"github.com/salio-edge/gateway/internal/device/rangefinder"
	"github.com/salio-edge/gateway/internal/timeutil"
)

// ticker runs fn every interval until stopped. It is the shared lifecycle of
// both simulated devices.
type ticker struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *ticker) start(interval time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				fn()
			}
		}
	}()
	t.cancel, t.done = cancel, done
}

func (t *ticker) stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Rangefinder emits a synthetic sweep of a rectangular room every Interval
// once StartScan has been called.
type Rangefinder struct {
	Interval time.Duration
	// Samples per sweep.
	Samples int

	clock timeutil.Clock
	tick  ticker

	mu        sync.Mutex
	connected bool
	cb        device.Callback
	rng       *rand.Rand
}

func NewRangefinder(interval time.Duration, clock timeutil.Clock) *Rangefinder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Rangefinder{
		Interval: interval,
		Samples:  360,
		clock:    clock,
		rng:      rand.New(rand.NewPCG(1, 2)),
	}
}

func (r *Rangefinder) Connect(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = true
	return true
}

func (r *Rangefinder) Disconnect() {
	r.tick.stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
}

func (r *Rangefinder) StartScan() error {
	r.mu.Lock()
	connected := r.connected
	r.mu.Unlock()
	if !connected {
		return device.ErrNotConnected
	}
	r.tick.start(r.Interval, r.emit)
	return nil
}

func (r *Rangefinder) SetCallback(cb device.Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cb = cb
}

func (r *Rangefinder) emit() {
	r.mu.Lock()
	cb := r.cb
	points := r.sweep()
	r.mu.Unlock()
	if cb != nil {
		cb(device.Reading{Kind: device.Rangefinder, At: r.clock.Now(), Points: points})
	}
}

// sweep traces a 6m x 4m room centred on the sensor with a little noise.
func (r *Rangefinder) sweep() []rangefinder.Point {
	const halfW, halfH = 3000.0, 2000.0
	n := r.Samples
	if n <= 0 {
		n = 360
	}
	points := make([]rangefinder.Point, 0, n)
	for i := 0; i < n; i++ {
		angle := float64(i) * 360 / float64(n)
		rad := angle * math.Pi / 180
		dx, dy := math.Abs(math.Cos(rad)), math.Abs(math.Sin(rad))
		dist := math.Min(halfW/math.Max(dx, 1e-9), halfH/math.Max(dy, 1e-9))
		dist += r.rng.NormFloat64() * 10
		points = append(points, rangefinder.Point{
			Angle:    angle,
			Distance: math.Round(dist),
			Quality:  40 + r.rng.IntN(20),
		})
	}
	return points
}

// TagReader reports a tag from a fixed pool every Interval while connected.
type TagReader struct {
	Interval time.Duration
	Tags     []string

	clock timeutil.Clock
	tick  ticker

	mu        sync.Mutex
	connected bool
	cb        device.Callback
	rng       *rand.Rand
}

func NewTagReader(interval time.Duration, clock timeutil.Clock) *TagReader {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	rng := rand.New(rand.NewPCG(3, 4))
	tags := make([]string, 8)
	for i := range tags {
		tags[i] = fmt.Sprintf("E200%016X", rng.Uint64())
	}
	return &TagReader{Interval: interval, Tags: tags, clock: clock, rng: rng}
}

func (t *TagReader) Connect(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	t.tick.start(t.Interval, t.emit)
	return true
}

func (t *TagReader) Disconnect() {
	t.tick.stop()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
}

func (t *TagReader) StartScan() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return device.ErrNotConnected
	}
	return nil
}

func (t *TagReader) SetCallback(cb device.Callback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cb = cb
}

func (t *TagReader) emit() {
	t.mu.Lock()
	cb := t.cb
	tag := t.Tags[t.rng.IntN(len(t.Tags))]
	t.mu.Unlock()
	if cb != nil {
		cb(device.Reading{Kind: device.TagReader, At: t.clock.Now(), TagID: tag})
	}
}

var (
	_ device.Adapter = (*Rangefinder)(nil)
	_ device.Adapter = (*TagReader)(nil)
)
