package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salio-edge/gateway/internal/event"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func tagEvent(id string) event.Event {
	return event.NewRfidDetection(t0, id)
}

func drain(s *Subscription) []string {
	var ids []string
	for {
		select {
		case e, ok := <-s.C():
			if !ok {
				return ids
			}
			ids = append(ids, e.TagID)
		default:
			return ids
		}
	}
}

func TestPublishFanOut(t *testing.T) {
	b := New(Config{BufferSize: 8})
	a, err := b.Subscribe()
	require.NoError(t, err)
	c, err := b.Subscribe()
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), c.ID())

	b.Publish(tagEvent("A1"))
	b.Publish(tagEvent("B2"))

	assert.Equal(t, []string{"A1", "B2"}, drain(a))
	assert.Equal(t, []string{"A1", "B2"}, drain(c))
	assert.Equal(t, Stats{Subscribers: 2, Published: 2}, b.Stats())
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := New(Config{})
	assert.NotPanics(t, func() { b.Publish(tagEvent("A1")) })
	assert.Equal(t, uint64(1), b.Stats().Published)
}

func TestNoReplayForLateSubscriber(t *testing.T) {
	b := New(Config{BufferSize: 4})
	b.Publish(tagEvent("early"))

	s, err := b.Subscribe()
	require.NoError(t, err)
	b.Publish(tagEvent("late"))

	assert.Equal(t, []string{"late"}, drain(s))
}

func TestDropOldestWhenFull(t *testing.T) {
	b := New(Config{BufferSize: 2})
	slow, err := b.Subscribe()
	require.NoError(t, err)
	fast, err := b.Subscribe()
	require.NoError(t, err)

	var got []string
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		b.Publish(tagEvent(id))
		got = append(got, drain(fast)...)
	}

	assert.Equal(t, []string{"4", "5"}, drain(slow))
	assert.Equal(t, uint64(3), slow.Dropped())
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, got)
	assert.Zero(t, fast.Dropped())
	assert.Equal(t, uint64(5), slow.Delivered())
	assert.Equal(t, uint64(5), fast.Delivered())
	assert.Equal(t, uint64(3), b.Stats().Dropped)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New(Config{})
	s, err := b.Subscribe()
	require.NoError(t, err)

	b.Unsubscribe(s.ID())
	b.Unsubscribe(s.ID())
	b.Unsubscribe("never-registered")

	_, open := <-s.C()
	assert.False(t, open, "channel should be closed after unsubscribe")
	assert.Equal(t, 0, b.SubscriberCount())

	assert.NotPanics(t, func() { b.Publish(tagEvent("after")) })
}

func TestMaxSubscribers(t *testing.T) {
	b := New(Config{MaxSubscribers: 1})
	s, err := b.Subscribe()
	require.NoError(t, err)

	_, err = b.Subscribe()
	assert.ErrorIs(t, err, ErrTooManySubscribers)

	b.Unsubscribe(s.ID())
	_, err = b.Subscribe()
	assert.NoError(t, err)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	b := New(Config{})
	s, err := b.Subscribe()
	require.NoError(t, err)

	b.Close()
	b.Close()

	_, open := <-s.C()
	assert.False(t, open)
	_, err = b.Subscribe()
	assert.ErrorIs(t, err, ErrClosed)
	assert.NotPanics(t, func() { b.Publish(tagEvent("x")) })
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := New(Config{BufferSize: 4})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish(tagEvent("x"))
			}
		}
	}()

	for i := 0; i < 200; i++ {
		s, err := b.Subscribe()
		require.NoError(t, err)
		b.Unsubscribe(s.ID())
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 0, b.SubscriberCount())
}
