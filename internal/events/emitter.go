// Package events is the service's structured operational log. Every event
// carries an allow-listed name and a process-wide sequence number; events
// are kept in a ring buffer, optionally persisted and written as JSON lines,
// and fanned out to live subscribers.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Store persists emitted events. postgres.Client implements it.
type Store interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
}

type Event struct {
	Seq       uint64                 `json:"seq"`
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

var (
	buffer = NewRingBuffer(256)
	seq    atomic.Uint64

	sinkMu sync.RWMutex
	store  Store
	output io.Writer

	// storeFailing is set while appends fail so an outage is reported once.
	storeFailing atomic.Bool
	outMu        sync.Mutex

	// recordMu keeps the buffer in sequence order.
	recordMu sync.Mutex
)

// SetStore sets where events are persisted. Nil disables persistence.
func SetStore(s Store) {
	sinkMu.Lock()
	store = s
	sinkMu.Unlock()
	storeFailing.Store(false)
}

// SetOutput makes Emit write each event as one JSON line to w. Nil
// disables the output.
func SetOutput(w io.Writer) {
	sinkMu.Lock()
	output = w
	sinkMu.Unlock()
}

// Emit records an operational event and returns its JSON line. Names not
// on the allow-list are rejected before anything is recorded.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := record(ts, level, name, msg, fields)

	sinkMu.RLock()
	s, w := store, output
	sinkMu.RUnlock()
	if s != nil {
		persist(s, ts, e)
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	if w != nil {
		outMu.Lock()
		w.Write(append(b, '\n'))
		outMu.Unlock()
	}
	return b, nil
}

func record(ts time.Time, level, name, msg string, fields map[string]interface{}) Event {
	recordMu.Lock()
	defer recordMu.Unlock()
	e := Event{
		Seq:       seq.Add(1),
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}
	buffer.Add(e)
	broadcast(e)
	return e
}

// persist appends e to s. Events about one scene share the scene ID as
// their session. The first failure of an outage is recorded as
// system.error without going back through Emit, which would recurse.
func persist(s Store, ts time.Time, e Event) {
	session, _ := e.Fields["scene_id"].(string)
	if err := s.Append(ts, e.Level, e.Name, e.Message, e.Fields, session); err != nil {
		if storeFailing.CompareAndSwap(false, true) {
			record(time.Now().UTC(), "error", "system.error", "event store append failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return
	}
	storeFailing.Store(false)
}

// Snapshot returns the buffered events, oldest first.
func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events recorded since startup.
func TotalCount() int64 {
	return int64(seq.Load())
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
