package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/version"
)

var metricsState = &MetricsState{lastExportSuccessS: -1}

// MetricsState holds runtime metrics for the /metrics endpoint.
type MetricsState struct {
	mu                 sync.RWMutex
	startTime          time.Time
	roomName           string
	exports            map[string]int64 // by outcome
	lastExportSuccessS int64            // Unix timestamp, -1 if none
}

// InitMetrics initializes the metrics system. Must be called at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
	metricsState.exports = make(map[string]int64)
	metricsState.lastExportSuccessS = -1
}

// SetRoomName sets the room name for metrics labels.
func SetRoomName(name string) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.roomName = name
}

// GetRoomName returns the current room name.
func GetRoomName() string {
	metricsState.mu.RLock()
	defer metricsState.mu.RUnlock()
	return metricsState.roomName
}

// recordExport counts one export by outcome: ok, partial, rejected or failed.
func recordExport(outcome string, at time.Time) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	if metricsState.exports == nil {
		metricsState.exports = make(map[string]int64)
	}
	metricsState.exports[outcome]++
	if outcome == "ok" {
		metricsState.lastExportSuccessS = at.Unix()
	}
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	metricsState.mu.RLock()
	startTime := metricsState.startTime
	roomName := metricsState.roomName
	lastExport := metricsState.lastExportSuccessS
	exports := make(map[string]int64, 4)
	for _, outcome := range []string{"ok", "partial", "rejected", "failed"} {
		exports[outcome] = metricsState.exports[outcome]
	}
	metricsState.mu.RUnlock()

	readiness.mu.RLock()
	restored := readiness.executionRestored
	mqttConnected := readiness.mqttConnected
	postgresConnected := readiness.postgresConnected
	readiness.mu.RUnlock()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	labels := fmt.Sprintf(`room="%s",instance="%s",version="%s"`, roomName, hostname, version.Version)
	writeMetric := func(name, mtype, help string, value interface{}) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}

	writeMetric("sentient_uptime_seconds", "gauge",
		"Number of seconds since the timeline service started", time.Since(startTime).Seconds())
	writeMetric("sentient_events_total", "counter",
		"Total number of events emitted since startup", events.TotalCount())
	writeMetric("sentient_mqtt_connected", "gauge",
		"Whether MQTT broker is connected (1) or not (0)", boolGauge(mqttConnected))
	writeMetric("sentient_postgres_connected", "gauge",
		"Whether PostgreSQL is connected (1) or not (0)", boolGauge(postgresConnected))
	writeMetric("sentient_execution_restored", "gauge",
		"Whether execution state was rebuilt from the event log (1) or not (0)", boolGauge(restored))
	writeMetric("sentient_ws_clients", "gauge",
		"Number of active event stream WebSocket connections", events.SubscriberCount())
	writeMetric("sentient_events_dropped_total", "counter",
		"Event deliveries skipped for slow stream subscribers", events.Dropped())

	fmt.Fprintf(w, "# HELP sentient_exports_total Scene exports by outcome\n")
	fmt.Fprintf(w, "# TYPE sentient_exports_total counter\n")
	for _, outcome := range []string{"ok", "partial", "rejected", "failed"} {
		fmt.Fprintf(w, "sentient_exports_total{%s,outcome=\"%s\"} %d\n", labels, outcome, exports[outcome])
	}
	writeMetric("sentient_export_last_success_timestamp", "gauge",
		"Unix timestamp of last fully written export (-1 if none)", lastExport)

	if s.Projector != nil {
		writeMetric("sentient_execution_entities", "gauge",
			"Number of scenes and puzzles with tracked execution state", len(s.Projector.Snapshots()))
	}
	if s.Registry != nil {
		writeMetric("sentient_devices_registered", "gauge",
			"Number of devices announced by room controllers", s.Registry.Len())
	}
	if s.Bus != nil {
		writeMetric("sentient_execution_events_total", "counter",
			"Executor events published to the bus", s.Bus.Published())
		writeMetric("sentient_execution_events_dropped_total", "counter",
			"Executor events dropped for slow subscribers", s.Bus.Dropped())
	}
}
