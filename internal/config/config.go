package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceConfig is the service.yaml of one room deployment.
type ServiceConfig struct {
	Version int `yaml:"version"`
	Room    struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"room"`
	Network struct {
		UIPort int `yaml:"ui_port"`
	} `yaml:"network"`
	Export struct {
		Root     string `yaml:"root"`
		Parallel int    `yaml:"parallel"`
	} `yaml:"export"`
	MQTT struct {
		EventsTopic       string `yaml:"events_topic"`
		CommandTopic      string `yaml:"command_topic"`
		RegistrationTopic string `yaml:"registration_topic"`
	} `yaml:"mqtt"`
	Execution struct {
		RestoreHours int `yaml:"restore_hours"`
		RestoreLimit int `yaml:"restore_limit"`
	} `yaml:"execution"`
	Reorder struct {
		Strategy string `yaml:"strategy"`
	} `yaml:"reorder"`
	Validation struct {
		MaxDepth            int  `yaml:"max_depth"`
		RequireWatchTimeout bool `yaml:"require_watch_timeout"`
	} `yaml:"validation"`
}

// UIPort returns the configured UI port, defaulting to 8080 if not set.
func (c *ServiceConfig) UIPort() int {
	if c.Network.UIPort == 0 {
		return 8080
	}
	return c.Network.UIPort
}

// ExportRoot returns the directory room folders live under, defaulting to
// the working directory.
func (c *ServiceConfig) ExportRoot() string {
	if c.Export.Root == "" {
		return "."
	}
	return c.Export.Root
}

// EventsTopic returns the topic the executor publishes lifecycle events on.
func (c *ServiceConfig) EventsTopic() string {
	if c.MQTT.EventsTopic == "" {
		return "sentient/executor/events"
	}
	return c.MQTT.EventsTopic
}

// CommandTopic returns the topic executor commands are published to.
func (c *ServiceConfig) CommandTopic() string {
	if c.MQTT.CommandTopic == "" {
		return "sentient/executor/commands"
	}
	return c.MQTT.CommandTopic
}

// RegistrationTopic returns the topic controllers announce devices on.
func (c *ServiceConfig) RegistrationTopic() string {
	if c.MQTT.RegistrationTopic == "" {
		return "sentient/registration/+"
	}
	return c.MQTT.RegistrationTopic
}

// RestoreWindow returns how far back execution state is replayed from the
// event log, defaulting to 12 hours.
func (c *ServiceConfig) RestoreWindow() time.Duration {
	if c.Execution.RestoreHours <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(c.Execution.RestoreHours) * time.Hour
}

// LoadServiceConfig reads and checks service.yaml.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ServiceConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported service.yaml version: %d", cfg.Version)
	}
	if cfg.Room.ID == "" {
		return nil, fmt.Errorf("service.yaml: missing 'room.id' field")
	}
	switch cfg.Reorder.Strategy {
	case "", "two_phase", "deferred":
	default:
		return nil, fmt.Errorf("service.yaml: unknown reorder.strategy %q", cfg.Reorder.Strategy)
	}

	return &cfg, nil
}

// DeviceDefinition describes one device installed in the room.
type DeviceDefinition struct {
	Type         string   `yaml:"type"`
	ControllerID string   `yaml:"controller_id"`
	Required     bool     `yaml:"required"`
	Capabilities []string `yaml:"capabilities"`
}

// DevicesConfig is the devices.yaml catalog. It answers device lookups for
// step validation.
type DevicesConfig struct {
	Version int                         `yaml:"version"`
	Devices map[string]DeviceDefinition `yaml:"devices"`
}

// HasDevice reports whether id is declared.
func (c *DevicesConfig) HasDevice(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Devices[id]
	return ok
}

// IDs returns the declared device IDs, sorted.
func (c *DevicesConfig) IDs() []string {
	ids := make([]string, 0, len(c.Devices))
	for id := range c.Devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadDevicesConfig reads and checks devices.yaml.
func LoadDevicesConfig(path string) (*DevicesConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg DevicesConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported devices.yaml version: %d", cfg.Version)
	}

	return &cfg, nil
}
