package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AaronLay10/SentientTimeline/internal/execsync"
	"github.com/AaronLay10/SentientTimeline/internal/mqtt"
	"github.com/AaronLay10/SentientTimeline/internal/version"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeSecret(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write secret: %v", err)
	}
	return path
}

func setReadiness(restored, mqttUp, mqttOpt, pgUp, pgOpt bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.executionRestored = restored
	readiness.mqttConnected = mqttUp
	readiness.mqttOptional = mqttOpt
	readiness.postgresConnected = pgUp
	readiness.postgresOptional = pgOpt
}

func getReady(t *testing.T) (int, ReadinessResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	readyHandler(w, httptest.NewRequest("GET", "/ready", nil))
	var resp ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return w.Code, resp
}

func TestHealthEndpoint(t *testing.T) {
	w := httptest.NewRecorder()
	healthHandler(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Version != version.Version {
		t.Errorf("unexpected health response %+v", resp)
	}
}

func TestReadyEndpoint_AllReady(t *testing.T) {
	setReadiness(true, true, false, true, false)
	code, resp := getReady(t)

	if code != http.StatusOK || !resp.Ready {
		t.Fatalf("expected ready 200, got %d %+v", code, resp)
	}
	for _, name := range []string{"execution", "mqtt", "postgres"} {
		if resp.Checks[name].Status != "ok" {
			t.Errorf("expected %s status 'ok', got '%s'", name, resp.Checks[name].Status)
		}
	}
}

func TestReadyEndpoint_ExecutionNotRestored(t *testing.T) {
	setReadiness(false, true, false, true, false)
	code, resp := getReady(t)

	if code != http.StatusServiceUnavailable || resp.Ready {
		t.Fatalf("expected 503 not ready, got %d %+v", code, resp)
	}
	if resp.Checks["execution"].Status != "not_ready" {
		t.Errorf("expected execution status 'not_ready', got '%s'", resp.Checks["execution"].Status)
	}
	if resp.NotReadyMsg == "" {
		t.Error("expected non-empty message")
	}
}

func TestReadyEndpoint_OptionalDependencies(t *testing.T) {
	tests := []struct {
		name       string
		mqttUp     bool
		mqttOpt    bool
		pgUp       bool
		pgOpt      bool
		wantCode   int
		check      string
		wantStatus string
	}{
		{name: "optional mqtt down", pgUp: true, mqttOpt: true, wantCode: http.StatusOK, check: "mqtt", wantStatus: "unavailable"},
		{name: "required mqtt down", pgUp: true, wantCode: http.StatusServiceUnavailable, check: "mqtt", wantStatus: "not_ready"},
		{name: "optional postgres down", mqttUp: true, pgOpt: true, wantCode: http.StatusOK, check: "postgres", wantStatus: "unavailable"},
		{name: "required postgres down", mqttUp: true, wantCode: http.StatusServiceUnavailable, check: "postgres", wantStatus: "not_ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setReadiness(true, tt.mqttUp, tt.mqttOpt, tt.pgUp, tt.pgOpt)
			code, resp := getReady(t)
			if code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, code)
			}
			if got := resp.Checks[tt.check].Status; got != tt.wantStatus {
				t.Errorf("expected %s status %q, got %q", tt.check, tt.wantStatus, got)
			}
		})
	}
}

func TestReadyEndpoint_MultipleDependenciesNotReady(t *testing.T) {
	setReadiness(false, false, false, true, false)
	code, resp := getReady(t)

	if code != http.StatusServiceUnavailable || resp.Ready {
		t.Fatalf("expected 503 not ready, got %d", code)
	}
	if !strings.Contains(resp.NotReadyMsg, "mqtt") || !strings.Contains(resp.NotReadyMsg, "execution") {
		t.Errorf("expected both reasons, got %q", resp.NotReadyMsg)
	}
}

func TestSetReadinessState(t *testing.T) {
	SetExecutionRestored(true)
	SetMQTTState(false, true)
	SetPostgresState(true, false)

	readiness.mu.RLock()
	defer readiness.mu.RUnlock()
	if !readiness.executionRestored {
		t.Error("SetExecutionRestored(true) didn't set state")
	}
	if readiness.mqttConnected || !readiness.mqttOptional {
		t.Error("SetMQTTState(false, true) didn't set state correctly")
	}
	if !readiness.postgresConnected || readiness.postgresOptional {
		t.Error("SetPostgresState(true, false) didn't set state correctly")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	InitMetrics()
	SetRoomName("museum")
	setReadiness(true, true, false, false, true)
	recordExport("ok", fixedNow())
	recordExport("partial", fixedNow())

	bus := execsync.NewBus(1)
	bus.Publish(execsync.PuzzleLifecycle{Kind: execsync.PuzzleStarted, PuzzleID: "pz-1"})
	s := &Server{Bus: bus, Projector: execsync.NewProjector(), Registry: mqtt.NewDeviceRegistry()}

	w := httptest.NewRecorder()
	s.metricsHandler(w, httptest.NewRequest("GET", "/metrics", nil))
	body := w.Body.String()

	for _, want := range []string{
		`sentient_mqtt_connected{room="museum"`,
		`outcome="ok"} 1`,
		`outcome="partial"} 1`,
		`outcome="failed"} 0`,
		"sentient_execution_events_total",
		"sentient_execution_entities",
		"sentient_devices_registered",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
	if GetRoomName() != "museum" {
		t.Errorf("GetRoomName = %q", GetRoomName())
	}
}
