package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/SentientTimeline/internal/execsync"
)

const (
	// Number of recent events to send on connection
	recentEventsCount = 50

	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The editor UI is served from another origin; requests are already
	// gated by RequireAnyRole.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func writeMessage(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		// unencodable messages are skipped
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// pump writes initial messages, then everything received on ch, pinging
// the peer until either side goes away. convert maps a channel value to
// the message sent, or to nil to skip it. release is called exactly once.
func pump[T any](conn *websocket.Conn, initial []any, ch <-chan T, convert func(T) any, release func()) {
	defer conn.Close()
	defer release()

	for _, m := range initial {
		if err := writeMessage(conn, m); err != nil {
			log.Printf("ws write initial message failed: %v", err)
			return
		}
	}

	// Reader goroutine - handles pongs and close messages
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case v, ok := <-ch:
			if !ok {
				return
			}
			m := convert(v)
			if m == nil {
				continue
			}
			if err := writeMessage(conn, m); err != nil {
				log.Printf("ws write failed: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ExecutionMessage is one frame of the execution stream. The first frames
// after connecting carry snapshots; later frames carry events.
type ExecutionMessage struct {
	Type     string             `json:"type"`
	Snapshot *execsync.Snapshot `json:"snapshot,omitempty"`
	Event    string             `json:"event,omitempty"`
	EntityID string             `json:"entity_id,omitempty"`
	Data     any                `json:"data,omitempty"`
}

func eventMessage(ev execsync.Event) any {
	fields := execsync.ReceivedFields(ev)
	return ExecutionMessage{
		Type:     "event",
		Event:    string(ev.Name()),
		EntityID: ev.EntityID(),
		Data:     fields["data"],
	}
}

// wsExecutionHandler streams executor events. ?entity=<id> limits the
// stream to one scene or puzzle.
func (s *Server) wsExecutionHandler(w http.ResponseWriter, r *http.Request) {
	if s.Bus == nil || s.Projector == nil {
		notConfigured(w, "execution stream")
		return
	}
	entityID := r.URL.Query().Get("entity")

	var initial []any
	if entityID != "" {
		if snap, ok := s.Projector.Snapshot(entityID); ok {
			initial = append(initial, ExecutionMessage{Type: "snapshot", Snapshot: &snap})
		}
	} else {
		for _, snap := range s.Projector.Snapshots() {
			initial = append(initial, ExecutionMessage{Type: "snapshot", Snapshot: &snap})
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	sub := s.Bus.Subscribe(entityID)
	pump(conn, initial, sub.C, eventMessage, sub.Close)
}
