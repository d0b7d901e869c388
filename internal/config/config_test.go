package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadServiceConfig(t *testing.T) {
	path := writeFile(t, "service.yaml", `
version: 1
room:
  id: room-7
  name: Bank Vault
network:
  ui_port: 9090
export:
  root: /srv/rooms
mqtt:
  events_topic: vault/executor/events
reorder:
  strategy: deferred
validation:
  max_depth: 4
  require_watch_timeout: true
`)
	cfg, err := LoadServiceConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Room.ID != "room-7" || cfg.UIPort() != 9090 || cfg.ExportRoot() != "/srv/rooms" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.EventsTopic() != "vault/executor/events" {
		t.Errorf("EventsTopic = %q", cfg.EventsTopic())
	}
	if cfg.CommandTopic() != "sentient/executor/commands" {
		t.Errorf("CommandTopic default = %q", cfg.CommandTopic())
	}
	if cfg.Reorder.Strategy != "deferred" || cfg.Validation.MaxDepth != 4 || !cfg.Validation.RequireWatchTimeout {
		t.Errorf("unexpected reorder/validation: %+v %+v", cfg.Reorder, cfg.Validation)
	}
}

func TestLoadServiceConfigDefaults(t *testing.T) {
	cfg, err := LoadServiceConfig(writeFile(t, "service.yaml", "version: 1\nroom:\n  id: r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UIPort() != 8080 || cfg.ExportRoot() != "." {
		t.Errorf("defaults: port %d root %q", cfg.UIPort(), cfg.ExportRoot())
	}
	if cfg.RegistrationTopic() != "sentient/registration/+" || cfg.RestoreWindow() != 12*time.Hour {
		t.Errorf("defaults: registration %q restore %v", cfg.RegistrationTopic(), cfg.RestoreWindow())
	}
}

func TestLoadServiceConfigRejects(t *testing.T) {
	cases := map[string]string{
		"version":  "version: 2\nroom:\n  id: r\n",
		"room.id":  "version: 1\n",
		"strategy": "version: 1\nroom:\n  id: r\nreorder:\n  strategy: yolo\n",
	}
	for name, body := range cases {
		if _, err := LoadServiceConfig(writeFile(t, "service.yaml", body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestDevicesConfigCatalog(t *testing.T) {
	cfg, err := LoadDevicesConfig(writeFile(t, "devices.yaml", `
version: 1
devices:
  tv-1:
    type: display
    controller_id: ctrl-a
  fog-1:
    type: effect
    capabilities: [burst]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.HasDevice("tv-1") || cfg.HasDevice("tv-2") {
		t.Error("HasDevice mismatch")
	}
	if got := strings.Join(cfg.IDs(), ","); got != "fog-1,tv-1" {
		t.Errorf("IDs = %s", got)
	}
	var nilCfg *DevicesConfig
	if nilCfg.HasDevice("tv-1") {
		t.Error("nil catalog knows no devices")
	}
}

func TestParseEnvFrom(t *testing.T) {
	e, err := ParseEnvFrom(map[string]string{
		"PGHOST":          "db.local",
		"PGPASSWORD_FILE": writeSecret(t, "s3cret pass\n"),
		"MQTT_URL":        "tcp://broker:1883",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ConfigPath != "service.yaml" || e.MQTTURL != "tcp://broker:1883" {
		t.Errorf("unexpected env: %+v", e)
	}
	if !e.Postgres.Enabled() {
		t.Fatal("postgres should be enabled")
	}
	want := "host=db.local port=5432 user=sentient password='s3cret pass' dbname=sentient sslmode=disable"
	if got := e.Postgres.DSN(); got != want {
		t.Errorf("DSN\n got %s\nwant %s", got, want)
	}
}

func TestParseEnvFromBadPort(t *testing.T) {
	if _, err := ParseEnvFrom(map[string]string{"PGPORT": "abc"}); err == nil {
		t.Error("expected error for non-numeric PGPORT")
	}
}

func TestPostgresDisabledWithoutHost(t *testing.T) {
	e, err := ParseEnvFrom(map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Postgres.Enabled() {
		t.Error("postgres should be disabled without PGHOST")
	}
}
