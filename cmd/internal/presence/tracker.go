package presence

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	v1 "sauat/contracts/presence/v1"
)

// EventActiveCountChanged is the only event type the tracker publishes.
const EventActiveCountChanged = v1.TypeActiveCountChanged

// Event is a count change notification.
type Event struct {
	Type  string
	Count int
}

// Tracker is the process-wide registry of live connection keys.
//
// Design notes:
// - Membership check and mutation happen under one lock, so concurrent
//   Connect/Disconnect calls never lose or double-count a key.
// - Events are published while holding the lock, so every subscriber observes
//   counts in transition order.
// - Publishing never blocks; see Subscription.offer.
type Tracker struct {
	log *slog.Logger

	mu     sync.Mutex
	conns  map[string]struct{}
	subs   map[*Subscription]struct{}
	closed bool
}

// NewTracker constructs an empty tracker.
func NewTracker(log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		log:   log,
		conns: make(map[string]struct{}),
		subs:  make(map[*Subscription]struct{}),
	}
}

// Connect registers id. It reports whether id was newly added.
func (t *Tracker) Connect(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.conns[id]; ok {
		return false
	}
	t.conns[id] = struct{}{}
	t.publishLocked(len(t.conns))
	return true
}

// Disconnect removes id. It reports whether id was present.
func (t *Tracker) Disconnect(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.conns[id]; !ok {
		return false
	}
	delete(t.conns, id)
	t.publishLocked(len(t.conns))
	return true
}

// Count returns the number of live connections.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// Contains reports whether id is currently connected.
func (t *Tracker) Contains(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.conns[id]
	return ok
}

// Snapshot returns a sorted copy of the live connection keys.
func (t *Tracker) Snapshot() []string {
	t.mu.Lock()
	out := make([]string, 0, len(t.conns))
	for id := range t.conns {
		out = append(out, id)
	}
	t.mu.Unlock()

	slices.Sort(out)
	return out
}

// Subscribe registers a listener with a queue of the given size.
func (t *Tracker) Subscribe(buffer int) *Subscription {
	sub, _ := t.SubscribeWithCount(buffer)
	return sub
}

// SubscribeWithCount registers a listener and returns the count observed at
// registration time. Every event on the subscription is newer than that count.
func (t *Tracker) SubscribeWithCount(buffer int) (*Subscription, int) {
	sub := newSubscription(t, buffer)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		sub.finish()
		return sub, len(t.conns)
	}
	t.subs[sub] = struct{}{}
	return sub, len(t.conns)
}

// Close detaches every subscriber. Later subscriptions are returned already done.
// Connection state is kept so late Disconnect calls stay consistent.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for sub := range t.subs {
		sub.finish()
		delete(t.subs, sub)
	}
}

func (t *Tracker) unsubscribe(sub *Subscription) {
	t.mu.Lock()
	delete(t.subs, sub)
	t.mu.Unlock()
}

func (t *Tracker) publishLocked(n int) {
	ev := Event{Type: EventActiveCountChanged, Count: n}
	for sub := range t.subs {
		if sub.offer(ev) {
			continue
		}
		t.log.Debug("presence.publish.drop", "count", n, "dropped", sub.Dropped())
	}
}
