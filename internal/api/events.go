package api

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/AaronLay10/SentientTimeline/internal/events"
)

// eventQuery is the filter shared by /events and /ws/events:
// ?after=<seq> resumes past a sequence number and ?prefix=a,b keeps names
// starting with a listed prefix.
type eventQuery struct {
	after    uint64
	resume   bool
	prefixes []string
}

func parseEventQuery(r *http.Request) (eventQuery, error) {
	var q eventQuery
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return q, err
		}
		q.after, q.resume = n, true
	}
	for _, p := range strings.Split(r.URL.Query().Get("prefix"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			q.prefixes = append(q.prefixes, p)
		}
	}
	return q, nil
}

// buffered returns the matching events still in the ring buffer. Without
// ?after only the most recent limit events are considered.
func (q eventQuery) buffered(limit int) []events.Event {
	var src []events.Event
	if q.resume {
		src = events.EventsAfter(q.after)
	} else {
		src = events.RecentEvents(limit)
	}
	out := make([]events.Event, 0, len(src))
	for _, e := range src {
		if events.MatchPrefix(e.Name, q.prefixes) {
			out = append(out, e)
		}
	}
	return out
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid 'after' parameter")
		return
	}
	writeJSON(w, http.StatusOK, q.buffered(0))
}

// wsEventsHandler streams operational events. It replays buffered events
// first (the last 50, or everything after ?after) and then the live feed,
// without sending any sequence number twice.
func wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid 'after' parameter")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	// Subscribe before reading the buffer so nothing falls in between.
	sub := events.Subscribe(q.prefixes...)
	replay := q.buffered(recentEventsCount)
	initial := make([]any, 0, len(replay))
	last := q.after
	for _, e := range replay {
		initial = append(initial, e)
		last = max(last, e.Seq)
	}
	pump(conn, initial, sub.C, func(e events.Event) any {
		if e.Seq <= last {
			return nil
		}
		return e
	}, func() { events.Unsubscribe(sub) })
}

// sceneHistoryHandler returns the logged events of one scene, newest
// first. ?limit caps the rows (default 50).
func (s *Server) sceneHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		notConfigured(w, "event history")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	rows, err := s.History.QueryScene(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
