package mqtt

import (
	"maps"
	"slices"
	"strings"
	"sync"
)

// RegisteredDevice is one device a controller announced.
type RegisteredDevice struct {
	LogicalID     string   `json:"logical_id"`
	ControllerID  string   `json:"controller_id"`
	Type          string   `json:"type"`
	CommandTopic  string   `json:"command_topic,omitempty"`
	EventTopic    string   `json:"event_topic,omitempty"`
	Capabilities  []string `json:"capabilities,omitempty"`
	InputSignals  []string `json:"inputs,omitempty"`
	OutputSignals []string `json:"outputs,omitempty"`
}

func (d RegisteredDevice) copy() *RegisteredDevice {
	d.Capabilities = slices.Clone(d.Capabilities)
	d.InputSignals = slices.Clone(d.InputSignals)
	d.OutputSignals = slices.Clone(d.OutputSignals)
	return &d
}

// Accepts reports whether command is one of the device's output signals.
// Matching ignores case since step configs are hand-written.
func (d *RegisteredDevice) Accepts(command string) bool {
	return slices.ContainsFunc(d.OutputSignals, func(s string) bool {
		return strings.EqualFold(s, command)
	})
}

// DeviceRegistry is the live device catalog of a room. Devices are grouped
// by controller so a fresh registration replaces everything that controller
// announced before.
type DeviceRegistry struct {
	mu          sync.RWMutex
	byID        map[string]*RegisteredDevice
	controllers map[string][]string
}

// NewDeviceRegistry returns an empty registry.
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{
		byID:        make(map[string]*RegisteredDevice),
		controllers: make(map[string][]string),
	}
}

// Register records a single device, replacing any earlier entry with the
// same logical ID.
func (r *DeviceRegistry) Register(dev *RegisteredDevice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(dev.LogicalID)
	r.addLocked(dev.copy())
}

// Unregister drops a device.
func (r *DeviceRegistry) Unregister(logicalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(logicalID)
}

// ReplaceController swaps in the devices of one registration payload.
// Devices the controller no longer lists are dropped.
func (r *DeviceRegistry) ReplaceController(payload *RegistrationPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.controllers[payload.Controller.ID] {
		delete(r.byID, id)
	}
	delete(r.controllers, payload.Controller.ID)

	for _, dev := range payload.Devices {
		r.removeLocked(dev.LogicalID)
		r.addLocked(&RegisteredDevice{
			LogicalID:     dev.LogicalID,
			ControllerID:  payload.Controller.ID,
			Type:          dev.Type,
			CommandTopic:  dev.Topics.Subscribe,
			EventTopic:    dev.Topics.Publish,
			Capabilities:  slices.Clone(dev.Capabilities),
			InputSignals:  slices.Clone(dev.Signals.Inputs),
			OutputSignals: slices.Clone(dev.Signals.Outputs),
		})
	}
}

func (r *DeviceRegistry) addLocked(dev *RegisteredDevice) {
	r.byID[dev.LogicalID] = dev
	r.controllers[dev.ControllerID] = append(r.controllers[dev.ControllerID], dev.LogicalID)
}

func (r *DeviceRegistry) removeLocked(logicalID string) {
	dev, ok := r.byID[logicalID]
	if !ok {
		return
	}
	delete(r.byID, logicalID)
	ids := slices.DeleteFunc(r.controllers[dev.ControllerID], func(id string) bool { return id == logicalID })
	if len(ids) == 0 {
		delete(r.controllers, dev.ControllerID)
	} else {
		r.controllers[dev.ControllerID] = ids
	}
}

// Lookup returns a copy of a device, or nil.
func (r *DeviceRegistry) Lookup(logicalID string) *RegisteredDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if dev, ok := r.byID[logicalID]; ok {
		return dev.copy()
	}
	return nil
}

// HasDevice reports whether logicalID is registered.
func (r *DeviceRegistry) HasDevice(logicalID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[logicalID]
	return ok
}

// SupportsCommand reports whether the device is registered and, if so,
// whether it accepts command. Devices that announced no outputs accept
// anything.
func (r *DeviceRegistry) SupportsCommand(logicalID, command string) (known, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, found := r.byID[logicalID]
	if !found {
		return false, false
	}
	return true, len(dev.OutputSignals) == 0 || dev.Accepts(command)
}

// Devices returns copies of all devices ordered by logical ID.
func (r *DeviceRegistry) Devices() []*RegisteredDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*RegisteredDevice, 0, len(r.byID))
	for _, id := range slices.Sorted(maps.Keys(r.byID)) {
		out = append(out, r.byID[id].copy())
	}
	return out
}

// Controllers returns the IDs of controllers with at least one device.
func (r *DeviceRegistry) Controllers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.controllers))
}

// Len returns the number of registered devices.
func (r *DeviceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
