// Package postgres is the persistence collaborator: the operational event
// log plus the scene, step and puzzle rows the compiler reads.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const (
	// appendTimeout bounds one event insert. Emit runs on MQTT handler
	// goroutines, which must not stall behind a hung database.
	appendTimeout = 2 * time.Second

	maxRows = 10000
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	RoomID    string                 `json:"room_id"`
	SessionID *string                `json:"session_id,omitempty"`
}

// Client manages the Postgres connection for the event log and the scene,
// step and puzzle rows the timeline compiler reads.
type Client struct {
	db     *sql.DB
	roomID string
}

// New opens a Postgres client for dsn and ensures the events table exists.
// Event rows are scoped to roomID.
func New(dsn, roomID string) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{db: db, roomID: roomID}
	if err := client.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}
	return client, nil
}

// DB exposes the pool for collaborators that run their own transactions.
func (c *Client) DB() *sql.DB {
	return c.db
}

// RoomID returns the room this client scopes queries to.
func (c *Client) RoomID() string {
	return c.roomID
}

// migrate creates the event log. The indexes serve execution restore
// (event name over a time window) and per-scene history (session).
func (c *Client) migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			room_id    TEXT NOT NULL,
			session_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_room_event_ts ON events(room_id, event, ts);
		CREATE INDEX IF NOT EXISTS idx_events_room_session_ts ON events(room_id, session_id, ts DESC)
			WHERE session_id IS NOT NULL;
	`)
	return err
}

// Append inserts an event. sessionID groups the events of one scene and
// may be empty.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	var fieldsJSON []byte
	if fields != nil {
		var err error
		if fieldsJSON, err = json.Marshal(fields); err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO events (ts, level, event, msg, fields, room_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ts, level, event, nullString(msg), fieldsJSON, c.roomID, nullString(sessionID))
	return err
}

// QueryEvent returns the most recent rows for one event name since the
// given time, newest first. The limit keeps the latest rows, never the
// oldest.
func (c *Client) QueryEvent(ctx context.Context, name string, since time.Time, limit int) ([]EventRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT event_id, ts, level, event, msg, fields, room_id, session_id
		FROM events
		WHERE room_id = $1 AND event = $2 AND ts >= $3
		ORDER BY ts DESC, event_id DESC
		LIMIT $4
	`, c.roomID, name, since, clampLimit(limit, maxRows))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// QueryScene returns the most recent events recorded for a scene, such as
// its exports and reorders, newest first.
func (c *Client) QueryScene(ctx context.Context, sceneID string, limit int) ([]EventRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT event_id, ts, level, event, msg, fields, room_id, session_id
		FROM events
		WHERE room_id = $1 AND session_id = $2
		ORDER BY ts DESC, event_id DESC
		LIMIT $3
	`, c.roomID, sceneID, clampLimit(limit, 200))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxRows)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanEvents(rows *sql.Rows) ([]EventRow, error) {
	out := []EventRow{}
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, sessionID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.RoomID, &sessionID); err != nil {
			return nil, err
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("event %d: failed to unmarshal fields: %w", e.EventID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
