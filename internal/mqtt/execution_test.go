package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/execsync"
)

func lastEvent(t *testing.T, name string) events.Event {
	t.Helper()
	snap := events.Snapshot()
	for i := len(snap) - 1; i >= 0; i-- {
		if snap[i].Name == name {
			return snap[i]
		}
	}
	t.Fatalf("no %s event emitted", name)
	return events.Event{}
}

func TestExecutionSource_PublishesDecodedEvents(t *testing.T) {
	events.Clear()
	mock := NewMockMQTTClient()
	bus := execsync.NewBus(4)
	sub := bus.Subscribe("scene-1")
	defer sub.Close()

	src := NewExecutionSource(mock, "sentient/executor/events", bus)
	if err := src.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := src.Start(); err != nil {
		t.Fatalf("second Start should be a no-op: %v", err)
	}
	if mock.Subscriptions() != 1 {
		t.Fatalf("expected 1 subscription, got %d", mock.Subscriptions())
	}

	mock.SimulateMessage("sentient/executor/events",
		[]byte(`{"event":"timeline-block-started","data":{"sceneId":"scene-1","blockId":"intro"}}`))

	select {
	case ev := <-sub.C:
		if ev.Name() != execsync.TimelineBlockStarted {
			t.Errorf("got %s", ev.Name())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for bus event")
	}
	if src.Received() != 1 {
		t.Errorf("Received = %d", src.Received())
	}

	logged := lastEvent(t, execsync.ReceivedEvent)
	if logged.Fields["event"] != "timeline-block-started" || logged.Fields["entity_id"] != "scene-1" {
		t.Errorf("unexpected log fields: %v", logged.Fields)
	}
}

func TestExecutionSource_DecodeErrorsAreLoggedNotPublished(t *testing.T) {
	events.Clear()
	mock := NewMockMQTTClient()
	bus := execsync.NewBus(4)
	sub := bus.Subscribe("")
	defer sub.Close()

	src := NewExecutionSource(mock, "exec", bus)
	if err := src.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mock.SimulateMessage("exec", []byte(`{"event":"scene-exploded","data":{}}`))
	mock.SimulateMessage("exec", []byte(`garbage`))

	if src.DecodeErrors() != 2 || src.Received() != 0 {
		t.Errorf("decode errors %d, received %d", src.DecodeErrors(), src.Received())
	}
	if len(sub.C) != 0 {
		t.Error("undecodable messages must not reach the bus")
	}
	e := lastEvent(t, "execution.decode_error")
	if !strings.Contains(e.Message, "parse") {
		t.Errorf("unexpected message %q", e.Message)
	}
}

func TestExecutionSource_SubscribeFailure(t *testing.T) {
	mock := NewMockMQTTClient()
	mock.failSubscribe = true
	src := NewExecutionSource(mock, "exec", execsync.NewBus(1))
	if err := src.Start(); err == nil {
		t.Fatal("expected error")
	}
}

func TestCommandPublisher_StartAndReset(t *testing.T) {
	mock := NewMockMQTTClient()
	p := NewCommandPublisher(mock, "sentient/executor/commands/")
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	cmd, err := p.StartScene("scene-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.ResetPuzzle("pz-keypad"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := mock.Published()
	if len(sent) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(sent))
	}
	if sent[0].topic != "sentient/executor/commands/scene" || sent[1].topic != "sentient/executor/commands/puzzle" {
		t.Errorf("unexpected topics %q %q", sent[0].topic, sent[1].topic)
	}

	var got Command
	if err := json.Unmarshal(sent[0].payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got != *cmd {
		t.Errorf("published %+v, returned %+v", got, *cmd)
	}
	if got.Verb != VerbStart || got.ID != "scene-1" || got.IssuedAt != "2026-01-02T03:04:05Z" || got.CommandID == "" {
		t.Errorf("unexpected command %+v", got)
	}
}

func TestCommandPublisher_Rejects(t *testing.T) {
	mock := NewMockMQTTClient()
	p := NewCommandPublisher(mock, "cmd")

	if _, err := p.Send("room", VerbStart, "x"); err == nil {
		t.Error("expected error for unknown target")
	}
	if _, err := p.Send(TargetScene, "explode", "x"); err == nil {
		t.Error("expected error for unknown verb")
	}
	if _, err := p.StartScene(""); err == nil {
		t.Error("expected error for empty id")
	}
	if err := p.PublishRaw("devices/+/cmd", []byte("on")); !errors.Is(err, ErrWildcardTopic) {
		t.Errorf("expected wildcard error, got %v", err)
	}
	if len(mock.Published()) != 0 {
		t.Error("nothing should be published")
	}

	mock.failPublish = true
	if err := p.PublishRaw("devices/fog-1/commands", []byte(`{"cmd":"burst"}`)); err == nil {
		t.Error("expected publish error")
	}
}
