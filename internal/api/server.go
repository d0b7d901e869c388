package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/AaronLay10/SentientTimeline/internal/blocks"
	"github.com/AaronLay10/SentientTimeline/internal/execsync"
	"github.com/AaronLay10/SentientTimeline/internal/export"
	"github.com/AaronLay10/SentientTimeline/internal/mqtt"
	"github.com/AaronLay10/SentientTimeline/internal/storage/postgres"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
	"github.com/AaronLay10/SentientTimeline/internal/version"
)

// Reorderer renumbers the steps of a scene.
type Reorderer interface {
	Reorder(ctx context.Context, sceneID string, orderedIDs []string) error
}

// SceneHistory reads the logged events of one scene, newest first.
type SceneHistory interface {
	QueryScene(ctx context.Context, sceneID string, limit int) ([]postgres.EventRow, error)
}

// PuzzleStore persists puzzle configs.
type PuzzleStore interface {
	ReplacePuzzleConfig(ctx context.Context, puzzleID string, config []byte) error
}

// Server exposes compilation, export, step ordering and execution state
// over HTTP. Nil collaborators make their routes answer 503.
type Server struct {
	Exporter  *export.Exporter
	Reorderer Reorderer
	Puzzles   PuzzleStore
	History   SceneHistory
	Devices   timeline.DeviceCatalog
	Registry  *mqtt.DeviceRegistry
	Blocks    blocks.Options
	Projector *execsync.Projector
	Bus       *execsync.Bus
	Commands  *mqtt.CommandPublisher
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "timeline",
		Version:   version.Version,
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// readinessState tracks the dependencies /ready reports on.
type readinessState struct {
	mu                sync.RWMutex
	executionRestored bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

var readiness = &readinessState{}

// SetExecutionRestored marks execution state as rebuilt from the event log.
func SetExecutionRestored(ready bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.executionRestored = ready
}

// SetMQTTState records broker connectivity. Optional dependencies do not
// fail readiness.
func SetMQTTState(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
}

// SetPostgresState records database connectivity.
func SetPostgresState(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
}

type CheckResult struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckResult `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

func dependencyCheck(name string, connected, optional bool, reasons *[]string) CheckResult {
	switch {
	case connected:
		return CheckResult{Status: "ok", Optional: optional}
	case optional:
		return CheckResult{Status: "unavailable", Optional: true}
	}
	*reasons = append(*reasons, name+" not connected")
	return CheckResult{Status: "not_ready"}
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	state := readinessState{
		executionRestored: readiness.executionRestored,
		mqttConnected:     readiness.mqttConnected,
		mqttOptional:      readiness.mqttOptional,
		postgresConnected: readiness.postgresConnected,
		postgresOptional:  readiness.postgresOptional,
	}
	readiness.mu.RUnlock()

	var reasons []string
	checks := map[string]CheckResult{
		"mqtt":     dependencyCheck("mqtt", state.mqttConnected, state.mqttOptional, &reasons),
		"postgres": dependencyCheck("postgres", state.postgresConnected, state.postgresOptional, &reasons),
	}
	if state.executionRestored {
		checks["execution"] = CheckResult{Status: "ok"}
	} else {
		checks["execution"] = CheckResult{Status: "not_ready"}
		reasons = append(reasons, "execution state not restored")
	}

	resp := ReadinessResponse{Ready: len(reasons) == 0, Checks: checks}
	status := http.StatusOK
	if !resp.Ready {
		resp.NotReadyMsg = strings.Join(reasons, "; ")
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// ErrorResponse is the body of every failed request that has nothing more
// specific to report.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{OK: false, Error: msg})
}

func notConfigured(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" not configured")
}

// Handler returns the routed API. Reads need any role; writes to the
// scene store need admin.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)
	mux.HandleFunc("GET /events", RequireAnyRole(eventsHandler))
	mux.HandleFunc("GET /ws/events", RequireAnyRole(wsEventsHandler))

	mux.HandleFunc("GET /devices", RequireAnyRole(s.devicesHandler))
	mux.HandleFunc("POST /timeline/compile", RequireAnyRole(s.compileHandler))
	mux.HandleFunc("POST /scenes/{id}/export", RequireAdmin(s.exportHandler))
	mux.HandleFunc("PUT /scenes/{id}/steps/order", RequireAdmin(s.reorderHandler))
	mux.HandleFunc("GET /scenes/{id}/events", RequireAnyRole(s.sceneHistoryHandler))
	mux.HandleFunc("PUT /puzzles/{id}/config", RequireAdmin(s.puzzleConfigHandler))

	mux.HandleFunc("GET /execution", RequireAnyRole(s.executionListHandler))
	mux.HandleFunc("GET /execution/{id}", RequireAnyRole(s.executionHandler))
	mux.HandleFunc("GET /ws/execution", RequireAnyRole(s.wsExecutionHandler))
	mux.HandleFunc("POST /executor/commands", RequireAnyRole(s.commandHandler))
	mux.HandleFunc("POST /executor/publish", RequireAdmin(s.publishHandler))
	return mux
}

// ListenAndServe starts the API server on the given port, with TLS when
// configured. It blocks until the server exits.
func (s *Server) ListenAndServe(port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg := LoadTLSConfig(); cfg != nil {
		srv.TLSConfig = cfg
		log.Printf("API listening on %s (TLS)\n", srv.Addr)
		return srv.ListenAndServeTLS("", "")
	}
	log.Printf("API listening on %s\n", srv.Addr)
	return srv.ListenAndServe()
}
