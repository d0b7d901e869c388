package events

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Subscription receives live events whose name matches one of its
// prefixes, or every event when it has none.
type Subscription struct {
	C        <-chan Event
	ch       chan Event
	prefixes []string
}

// Matches reports whether name passes the subscription's filter.
func (s *Subscription) Matches(name string) bool {
	return MatchPrefix(name, s.prefixes)
}

// MatchPrefix reports whether name starts with one of prefixes. No
// prefixes matches everything.
func MatchPrefix(name string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

var broadcaster = struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	dropped atomic.Int64
}{subs: make(map[*Subscription]struct{})}

// Subscribe registers a live subscriber. Its channel buffers 64 events;
// a subscriber that falls further behind misses events.
func Subscribe(prefixes ...string) *Subscription {
	ch := make(chan Event, 64)
	s := &Subscription{C: ch, ch: ch, prefixes: prefixes}
	broadcaster.mu.Lock()
	broadcaster.subs[s] = struct{}{}
	broadcaster.mu.Unlock()
	return s
}

// Unsubscribe removes a subscriber and closes its channel. Unsubscribing
// twice, or after CloseAllSubscribers, is a no-op.
func Unsubscribe(s *Subscription) {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	if _, ok := broadcaster.subs[s]; !ok {
		return
	}
	delete(broadcaster.subs, s)
	close(s.ch)
}

func broadcast(e Event) {
	broadcaster.mu.RLock()
	defer broadcaster.mu.RUnlock()

	for s := range broadcaster.subs {
		if !s.Matches(e.Name) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			broadcaster.dropped.Add(1)
		}
	}
}

// CloseAllSubscribers removes and closes every subscriber. Used at shutdown.
func CloseAllSubscribers() {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()

	for s := range broadcaster.subs {
		close(s.ch)
	}
	broadcaster.subs = make(map[*Subscription]struct{})
}

// SubscriberCount returns the current number of subscribers.
func SubscriberCount() int {
	broadcaster.mu.RLock()
	defer broadcaster.mu.RUnlock()
	return len(broadcaster.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func Dropped() int64 {
	return broadcaster.dropped.Load()
}

// RecentEvents returns the last n buffered events; n <= 0 returns all.
func RecentEvents(n int) []Event {
	all := buffer.Snapshot()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// EventsAfter returns the buffered events with a sequence number above seq.
func EventsAfter(seq uint64) []Event {
	return buffer.After(seq)
}
