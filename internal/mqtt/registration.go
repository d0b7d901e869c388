package mqtt

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/SentientTimeline/internal/config"
	"github.com/AaronLay10/SentientTimeline/internal/events"
)

// RegistrationPayload represents a v1 controller registration message.
type RegistrationPayload struct {
	Version    int                  `json:"version"`
	Controller ControllerInfo       `json:"controller"`
	Devices    []DeviceRegistration `json:"devices"`
}

// ControllerInfo contains controller metadata.
type ControllerInfo struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Firmware     string `json:"firmware"`
	UptimeMS     int64  `json:"uptime_ms"`
	HeartbeatSec int    `json:"heartbeat_sec"`
}

// DeviceRegistration describes a single device provided by the controller.
type DeviceRegistration struct {
	LogicalID    string        `json:"logical_id"`
	Type         string        `json:"type"`
	Capabilities []string      `json:"capabilities"`
	Signals      DeviceSignals `json:"signals"`
	Topics       DeviceTopics  `json:"topics"`
}

// DeviceSignals defines input/output signals for a device.
type DeviceSignals struct {
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// DeviceTopics defines MQTT topics for device communication.
type DeviceTopics struct {
	Publish   string `json:"publish"`
	Subscribe string `json:"subscribe"`
}

// ParseRegistration parses a registration payload from JSON bytes.
func ParseRegistration(data []byte) (*RegistrationPayload, error) {
	var payload RegistrationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid registration JSON: %w", err)
	}

	if payload.Version != 1 {
		return nil, fmt.Errorf("unsupported registration version: %d", payload.Version)
	}

	if payload.Controller.ID == "" {
		return nil, fmt.Errorf("controller.id is required")
	}

	return &payload, nil
}

// DeviceSpec is the expectation devices.yaml sets for one device.
type DeviceSpec struct {
	Type         string
	Required     bool
	Capabilities []string
}

// SpecsFromConfig converts a devices.yaml catalog into registration specs.
func SpecsFromConfig(cfg *config.DevicesConfig) map[string]DeviceSpec {
	specs := make(map[string]DeviceSpec)
	if cfg == nil {
		return specs
	}
	for id, dev := range cfg.Devices {
		specs[id] = DeviceSpec{Type: dev.Type, Required: dev.Required, Capabilities: dev.Capabilities}
	}
	return specs
}

// ValidationResult contains validation outcome.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ValidateRegistration checks a registration against the specs of the
// devices that controller is expected to provide. Findings are sorted.
func ValidateRegistration(payload *RegistrationPayload, specs map[string]DeviceSpec) *ValidationResult {
	result := &ValidationResult{Valid: true}
	fail := func(format string, args ...any) {
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
		result.Valid = false
	}

	registered := make(map[string]*DeviceRegistration)
	for i := range payload.Devices {
		dev := &payload.Devices[i]
		if dev.LogicalID == "" {
			fail("device with empty logical_id")
			continue
		}
		registered[dev.LogicalID] = dev
	}

	for logicalID, spec := range specs {
		reg, found := registered[logicalID]
		if !found {
			if spec.Required {
				fail("required device missing: %s", logicalID)
			}
			continue
		}
		if reg.Type != spec.Type {
			fail("device %s: type mismatch (expected %s, got %s)", logicalID, spec.Type, reg.Type)
		}
		for _, reqCap := range spec.Capabilities {
			if !slices.Contains(reg.Capabilities, reqCap) {
				fail("device %s: missing capability %s", logicalID, reqCap)
			}
		}
	}

	for logicalID := range registered {
		if _, ok := specs[logicalID]; !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unrecognized device: %s", logicalID))
		}
	}
	sort.Strings(result.Errors)
	sort.Strings(result.Warnings)
	return result
}

// RegistrationListener keeps a DeviceRegistry current from controller
// registration messages, so step validation sees the devices actually
// present in the room.
type RegistrationListener struct {
	registry *DeviceRegistry
	specs    map[string]DeviceSpec
}

// NewRegistrationListener validates registrations against specs before
// recording them in registry.
func NewRegistrationListener(registry *DeviceRegistry, specs map[string]DeviceSpec) *RegistrationListener {
	return &RegistrationListener{registry: registry, specs: specs}
}

// Start subscribes to the registration topic.
func (l *RegistrationListener) Start(client Subscriber, topic string) error {
	return client.Subscribe(topic, func(_ paho.Client, msg paho.Message) {
		payload, err := ParseRegistration(msg.Payload())
		if err != nil {
			events.Emit("error", "device.error", "invalid registration", map[string]interface{}{
				"topic": msg.Topic(),
				"error": err.Error(),
			})
			return
		}
		l.Handle(payload)
	})
}

// Handle records a parsed registration. Specs only apply to the devices a
// controller announces: a device required by devices.yaml but served by a
// different controller is not an error here.
func (l *RegistrationListener) Handle(payload *RegistrationPayload) *ValidationResult {
	specs := make(map[string]DeviceSpec)
	for _, dev := range payload.Devices {
		if spec, ok := l.specs[dev.LogicalID]; ok {
			specs[dev.LogicalID] = spec
		}
	}
	result := ValidateRegistration(payload, specs)
	if !result.Valid {
		events.Emit("error", "device.error", "registration validation failed", map[string]interface{}{
			"controller_id": payload.Controller.ID,
			"errors":        result.Errors,
		})
		return result
	}

	l.registry.ReplaceController(payload)
	for _, dev := range payload.Devices {
		events.Emit("info", "device.registered", "", map[string]interface{}{
			"controller_id": payload.Controller.ID,
			"logical_id":    dev.LogicalID,
			"type":          dev.Type,
		})
	}
	return result
}
