package mqtt

import (
	"sync"
	"sync/atomic"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/execsync"
)

// ExecutionSource feeds executor lifecycle events from an MQTT topic into
// a bus. Each decoded event is also recorded as execution.received so
// projections can be rebuilt after a restart.
type ExecutionSource struct {
	client Subscriber
	topic  string
	bus    *execsync.Bus

	mu         sync.Mutex
	subscribed bool

	received     atomic.Int64
	decodeErrors atomic.Int64
}

// NewExecutionSource creates a source for topic. Wildcard topics are fine;
// the event name travels in the payload.
func NewExecutionSource(client Subscriber, topic string, bus *execsync.Bus) *ExecutionSource {
	return &ExecutionSource{client: client, topic: topic, bus: bus}
}

// Start subscribes to the events topic. Calling it again is a no-op.
func (s *ExecutionSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed {
		return nil
	}
	if err := s.client.Subscribe(s.topic, s.handle); err != nil {
		events.Emit("error", "device.error", "failed to subscribe to executor events", map[string]interface{}{
			"topic": s.topic,
			"error": err.Error(),
		})
		return err
	}
	s.subscribed = true
	return nil
}

// Topic returns the subscribed topic.
func (s *ExecutionSource) Topic() string { return s.topic }

// Received returns the number of events decoded.
func (s *ExecutionSource) Received() int64 { return s.received.Load() }

// DecodeErrors returns the number of messages that did not decode.
func (s *ExecutionSource) DecodeErrors() int64 { return s.decodeErrors.Load() }

func (s *ExecutionSource) handle(_ paho.Client, msg paho.Message) {
	ev, err := execsync.Decode(msg.Payload())
	if err != nil {
		s.decodeErrors.Add(1)
		events.Emit("warning", "execution.decode_error", err.Error(), map[string]interface{}{
			"topic": msg.Topic(),
			"bytes": len(msg.Payload()),
		})
		return
	}
	s.received.Add(1)
	fields := execsync.ReceivedFields(ev)
	fields["topic"] = msg.Topic()
	events.Emit("info", execsync.ReceivedEvent, "", fields)
	s.bus.Publish(ev)
}
