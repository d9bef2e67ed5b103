// Package broadcast fans events out to a dynamic set of subscribers. Producers
// never block: each subscriber owns a bounded queue with drop-oldest
// backpressure, so a slow peer cannot delay the publisher or anyone else.
package broadcast

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/salio-edge/gateway/internal/event"
	"github.com/salio-edge/gateway/internal/monitoring"
)

var (
	ErrTooManySubscribers = errors.New("too many subscribers")
	ErrClosed             = errors.New("broadcaster closed")
)

// DefaultBufferSize is the per-subscriber queue depth used when Config leaves
// BufferSize unset.
const DefaultBufferSize = 64

// Config controls subscriber queues and admission.
type Config struct {
	// BufferSize is the number of pending events held per subscriber.
	BufferSize int
	// MaxSubscribers limits concurrent subscriptions; zero means unlimited.
	MaxSubscribers int
}

// Stats is a point-in-time view of broadcaster counters.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

// Broadcaster owns the subscriber registry.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool

	bufferSize     int
	maxSubscribers int

	published atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a Broadcaster.
func New(cfg Config) *Broadcaster {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Broadcaster{
		subs:           make(map[string]*Subscription),
		bufferSize:     size,
		maxSubscribers: cfg.MaxSubscribers,
	}
}

// Subscribe registers a new sink. Only events published after Subscribe
// returns are delivered to it; there is no replay.
func (b *Broadcaster) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.maxSubscribers > 0 && len(b.subs) >= b.maxSubscribers {
		return nil, ErrTooManySubscribers
	}

	s := newSubscription(uuid.NewString(), b.bufferSize)
	b.subs[s.id] = s
	return s, nil
}

// Unsubscribe removes a sink and closes its channel. Unknown or already
// removed ids are ignored, so it is safe to call repeatedly and concurrently
// with Publish.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	s, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if ok {
		s.close()
	}
}

// Publish delivers e to every subscriber registered at the time of the call.
// The registry is snapshotted first so concurrent Subscribe/Unsubscribe never
// fail or skip an in-flight publish.
func (b *Broadcaster) Publish(e event.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	b.published.Add(1)
	for _, s := range subs {
		evicted, ok := s.deliver(e)
		if !ok || evicted == 0 {
			continue
		}
		total := b.dropped.Add(uint64(evicted))
		if d := s.Dropped(); d == 1 || d%100 == 0 {
			monitoring.Logf("subscriber %s lagging: %d events dropped (total dropped: %d)", s.id, d, total)
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Stats returns current broadcaster counters.
func (b *Broadcaster) Stats() Stats {
	return Stats{
		Subscribers: b.SubscriberCount(),
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
	}
}

// Close ends every subscription and rejects new ones. It is idempotent.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}
