package execsync

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/AaronLay10/SentientTimeline/internal/storage/postgres"
)

// ReceivedEvent is the operational log name under which every decoded
// executor event is recorded. Its fields are {"event": name, "data": payload}.
const ReceivedEvent = "execution.received"

// DefaultRestoreLimit is the default number of log rows replayed.
const DefaultRestoreLimit = 1000

// EventLog reads the latest persisted operational events, newest first.
type EventLog interface {
	QueryEvent(ctx context.Context, name string, since time.Time, limit int) ([]postgres.EventRow, error)
}

// ReceivedFields is the log field form of ev.
func ReceivedFields(ev Event) map[string]interface{} {
	var data map[string]interface{}
	if b, err := json.Marshal(ev); err == nil {
		_ = json.Unmarshal(b, &data)
	}
	return map[string]interface{}{
		"event":     string(ev.Name()),
		"entity_id": ev.EntityID(),
		"data":      data,
	}
}

// Restore replays the latest limit logged executor events since the given
// time into p, in emission order. It returns the number of rows applied and
// skipped. Rows that no longer decode are skipped rather than failing the
// restore.
func Restore(ctx context.Context, log EventLog, p *Projector, since time.Time, limit int) (applied, skipped int, err error) {
	if log == nil {
		return 0, 0, nil
	}
	if limit <= 0 {
		limit = DefaultRestoreLimit
	}
	rows, err := log.QueryEvent(ctx, ReceivedEvent, since, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query execution log: %w", err)
	}
	for _, row := range slices.Backward(rows) {
		ev, err := eventFromFields(row.Fields)
		if err != nil {
			skipped++
			continue
		}
		p.Apply(ev)
		applied++
	}
	return applied, skipped, nil
}

func eventFromFields(fields map[string]interface{}) (Event, error) {
	name, _ := fields["event"].(string)
	if name == "" {
		return nil, fmt.Errorf("missing 'event' field")
	}
	data, err := json.Marshal(fields["data"])
	if err != nil {
		return nil, err
	}
	return DecodeData(Name(name), data)
}
