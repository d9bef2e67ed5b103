package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/salio-edge/gateway/internal/event"
)

// Subscription is one subscriber's bounded outbound queue. When the queue is
// full the oldest pending event is discarded to admit the newest, so a stalled
// reader only ever loses its own backlog.
type Subscription struct {
	id string

	mu     sync.Mutex
	ch     chan event.Event
	closed bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func newSubscription(id string, size int) *Subscription {
	return &Subscription{
		id: id,
		ch: make(chan event.Event, size),
	}
}

// ID identifies the subscription for Unsubscribe and logging.
func (s *Subscription) ID() string { return s.id }

// C returns the event channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan event.Event { return s.ch }

// Dropped returns how many events were discarded for this subscriber.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Delivered returns how many events were queued for this subscriber.
func (s *Subscription) Delivered() uint64 { return s.delivered.Load() }

// deliver queues e without blocking and reports how many older events were
// evicted to make room.
func (s *Subscription) deliver(e event.Event) (evicted int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false
	}
	for {
		select {
		case s.ch <- e:
			s.delivered.Add(1)
			return evicted, true
		default:
		}
		// full: evict the oldest pending event and retry
		select {
		case <-s.ch:
			evicted++
			s.dropped.Add(1)
		default:
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
