package execsync

import (
	"sync"
	"sync/atomic"
)

// Subscription receives events from a Bus.
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	filter string
	bus    *Bus
}

// Close removes the subscription. Closing twice is a no-op.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// Bus fans executor events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event. The sender has no
// backpressure and observers may leave at any time.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	buffer  int
	dropped atomic.Int64
	total   atomic.Int64
}

// NewBus returns a bus whose subscribers buffer up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe registers a subscriber. A non-empty entityID limits delivery to
// events for that scene or puzzle.
func (b *Bus) Subscribe(entityID string) *Subscription {
	ch := make(chan Event, b.buffer)
	s := &Subscription{C: ch, ch: ch, filter: entityID, bus: b}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

// Publish delivers ev to every matching subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.total.Add(1)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if s.filter != "" && s.filter != ev.EntityID() {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Close closes every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		close(s.ch)
	}
	b.subs = make(map[*Subscription]struct{})
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Published returns the number of events published.
func (b *Bus) Published() int64 { return b.total.Load() }

// Dropped returns the number of deliveries skipped because a subscriber
// was full.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }
