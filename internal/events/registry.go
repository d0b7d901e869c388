package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// compile / export
	"compile.rejected": {},
	"export.started":   {},
	"export.completed": {},
	"export.partial":   {},
	"export.failed":    {},

	// step ordering
	"reorder.completed": {},
	"reorder.failed":    {},

	// puzzle authoring
	"puzzle.config_saved": {},

	// evaluation
	"condition.type_mismatch": {},

	// execution stream
	"execution.received":     {},
	"execution.decode_error": {},
	"executor.command":       {},

	// device
	"device.registered": {},
	"device.error":      {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

// Validate returns an error if event is not a known event name.
func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
