package events

import "sync"

// RingBuffer keeps the most recent events in sequence order.
type RingBuffer struct {
	mu     sync.RWMutex
	events []Event
	next   int
	count  int
}

func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{events: make([]Event, size)}
}

func (rb *RingBuffer) Add(e Event) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.events[rb.next] = e
	rb.next = (rb.next + 1) % len(rb.events)
	if rb.count < len(rb.events) {
		rb.count++
	}
}

// Snapshot returns every buffered event, oldest first.
func (rb *RingBuffer) Snapshot() []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.ordered()
}

// After returns the buffered events with a sequence number above seq. A
// client resuming from an evicted seq gets everything still buffered.
func (rb *RingBuffer) After(seq uint64) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	all := rb.ordered()
	for i, e := range all {
		if e.Seq > seq {
			return all[i:]
		}
	}
	return []Event{}
}

func (rb *RingBuffer) ordered() []Event {
	out := make([]Event, 0, rb.count)
	start := (rb.next - rb.count + len(rb.events)) % len(rb.events)
	for i := 0; i < rb.count; i++ {
		out = append(out, rb.events[(start+i)%len(rb.events)])
	}
	return out
}

// Clear drops all buffered events.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	clear(rb.events)
	rb.next, rb.count = 0, 0
}
