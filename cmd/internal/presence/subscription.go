package presence

import (
	"sync"
	"sync/atomic"
)

const defaultSubscriptionBuffer = 16

// Subscription is one listener on a Tracker.
//
// The event channel is never closed, so a publisher can never panic on send.
// Done is closed when the subscription ends, either by Close or by Tracker.Close.
type Subscription struct {
	tracker *Tracker
	ch      chan Event

	dropped atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
}

func newSubscription(t *Tracker, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	return &Subscription{
		tracker: t,
		ch:      make(chan Event, buffer),
		done:    make(chan struct{}),
	}
}

// C returns the event channel.
func (s *Subscription) C() <-chan Event { return s.ch }

// Done returns a channel that is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	if s == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Dropped returns how many queued events were discarded to make room.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription (idempotent).
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.tracker.unsubscribe(s)
	s.finish()
}

func (s *Subscription) finish() {
	s.closeOnce.Do(func() { close(s.done) })
}

// offer queues ev without blocking. When the queue is full the oldest event is
// discarded first. It reports false when an event was dropped.
//
// Callers hold the tracker lock, so offer is the only sender.
func (s *Subscription) offer(ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
	}

	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}

	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
	return false
}
