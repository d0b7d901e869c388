package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/execsync"
)

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}

func dial(t *testing.T, h http.Handler, query string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var e events.Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	return e
}

func TestWebSocketReceivesRecentEvents(t *testing.T) {
	events.Clear()
	for i := 0; i < 5; i++ {
		events.Emit("info", "export.started", "", map[string]interface{}{"i": i})
	}

	conn := dial(t, http.HandlerFunc(wsEventsHandler), "")
	for i := 0; i < 5; i++ {
		if e := readEvent(t, conn); e.Name != "export.started" {
			t.Errorf("expected 'export.started', got '%s'", e.Name)
		}
	}
}

func TestWebSocketReceivesNewEvents(t *testing.T) {
	events.Clear()
	conn := dial(t, http.HandlerFunc(wsEventsHandler), "")

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "puzzle.config_saved", "", map[string]interface{}{"puzzle_id": "scarab"})
	}()

	e := readEvent(t, conn)
	if e.Name != "puzzle.config_saved" {
		t.Errorf("expected 'puzzle.config_saved', got '%s'", e.Name)
	}
	if e.Fields["puzzle_id"] != "scarab" {
		t.Errorf("expected puzzle_id 'scarab', got '%v'", e.Fields["puzzle_id"])
	}
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	events.Clear()
	events.CloseAllSubscribers()

	conn := dial(t, http.HandlerFunc(wsEventsHandler), "")
	waitFor(t, 2*time.Second, func() bool {
		return events.SubscriberCount() == 1
	}, "subscriber to register")

	conn.Close()
	waitFor(t, 5*time.Second, func() bool {
		return events.SubscriberCount() == 0
	}, "subscriber count to return to 0 after close")
}

func TestWebSocketMultipleClients(t *testing.T) {
	events.Clear()
	conn1 := dial(t, http.HandlerFunc(wsEventsHandler), "")
	conn2 := dial(t, http.HandlerFunc(wsEventsHandler), "")

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "reorder.completed", "", map[string]interface{}{"scene_id": "intro"})
	}()

	for i, conn := range []*websocket.Conn{conn1, conn2} {
		if e := readEvent(t, conn); e.Name != "reorder.completed" {
			t.Errorf("client%d: expected 'reorder.completed', got '%s'", i+1, e.Name)
		}
	}
}

func TestWebSocketExecutionStream(t *testing.T) {
	bus := execsync.NewBus(8)
	projector := execsync.NewProjector()
	projector.Apply(execsync.SceneLifecycle{Kind: execsync.SceneStarted, ID: "scene-1", SceneName: "Vault"})
	s := &Server{Bus: bus, Projector: projector}

	conn := dial(t, http.HandlerFunc(s.wsExecutionHandler), "?entity=scene-1")

	var first ExecutionMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}
	if first.Type != "snapshot" || first.Snapshot == nil || first.Snapshot.EntityID != "scene-1" {
		t.Fatalf("unexpected first frame: %+v", first)
	}

	waitFor(t, 2*time.Second, func() bool { return bus.SubscriberCount() == 1 }, "bus subscriber")
	bus.Publish(execsync.BlockProgress{Kind: execsync.TimelineBlockStarted, PuzzleID: "other", BlockRef: execsync.BlockRef{BlockID: "x"}})
	bus.Publish(execsync.BlockProgress{Kind: execsync.TimelineBlockStarted, SceneID: "scene-1", BlockRef: execsync.BlockRef{BlockID: "intro"}})

	var next ExecutionMessage
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if next.Type != "event" || next.Event != "timeline-block-started" || next.EntityID != "scene-1" {
		t.Errorf("unexpected event frame: %+v", next)
	}

	conn.Close()
	waitFor(t, 5*time.Second, func() bool { return bus.SubscriberCount() == 0 }, "bus subscriber to leave")
}

func TestWebSocketResumeAfterWithPrefix(t *testing.T) {
	events.Clear()
	line, _ := events.Emit("info", "export.started", "", nil)
	var first events.Event
	if err := json.Unmarshal(line, &first); err != nil {
		t.Fatal(err)
	}
	events.Emit("info", "reorder.completed", "", map[string]interface{}{"scene_id": "a"})
	events.Emit("info", "export.completed", "", nil)

	conn := dial(t, http.HandlerFunc(wsEventsHandler), fmt.Sprintf("?after=%d&prefix=export.", first.Seq))
	e := readEvent(t, conn)
	if e.Name != "export.completed" || e.Seq <= first.Seq {
		t.Fatalf("expected the buffered export.completed after seq %d, got %+v", first.Seq, e)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "reorder.failed", "", nil)
		events.Emit("error", "export.failed", "", nil)
	}()
	if e := readEvent(t, conn); e.Name != "export.failed" {
		t.Errorf("expected live export.failed, got %s", e.Name)
	}
}
