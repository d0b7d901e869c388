package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/SentientTimeline/internal/events"
)

// Target is what an executor command acts on.
type Target string

const (
	TargetScene  Target = "scene"
	TargetPuzzle Target = "puzzle"
)

// Verb is an executor command.
type Verb string

const (
	VerbStart Verb = "start"
	VerbReset Verb = "reset"
)

// ErrWildcardTopic is returned when a publish names a wildcard topic.
var ErrWildcardTopic = errors.New("topic contains a wildcard")

// Command is the payload published to the executor.
type Command struct {
	CommandID string `json:"command_id"`
	Target    Target `json:"target"`
	Verb      Verb   `json:"command"`
	ID        string `json:"id"`
	IssuedAt  string `json:"issued_at"`
}

// CommandPublisher publishes executor start/reset commands and raw device
// commands.
type CommandPublisher struct {
	pub   Publisher
	topic string
	now   func() time.Time
}

// NewCommandPublisher publishes commands under topic, one subtopic per
// target: "<topic>/scene" and "<topic>/puzzle".
func NewCommandPublisher(pub Publisher, topic string) *CommandPublisher {
	return &CommandPublisher{pub: pub, topic: strings.TrimSuffix(topic, "/"), now: time.Now}
}

// Send publishes verb for the scene or puzzle id and returns the command
// as sent.
func (p *CommandPublisher) Send(target Target, verb Verb, id string) (*Command, error) {
	switch target {
	case TargetScene, TargetPuzzle:
	default:
		return nil, fmt.Errorf("unknown command target %q", target)
	}
	switch verb {
	case VerbStart, VerbReset:
	default:
		return nil, fmt.Errorf("unknown command %q", verb)
	}
	if id == "" {
		return nil, fmt.Errorf("missing 'id' field")
	}

	cmd := &Command{
		CommandID: uuid.NewString(),
		Target:    target,
		Verb:      verb,
		ID:        id,
		IssuedAt:  p.now().UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}
	topic := p.topic + "/" + string(target)
	if err := p.publish(topic, payload); err != nil {
		return nil, err
	}
	return cmd, nil
}

// StartScene asks the executor to run a scene.
func (p *CommandPublisher) StartScene(id string) (*Command, error) {
	return p.Send(TargetScene, VerbStart, id)
}

// ResetScene asks the executor to reset a scene.
func (p *CommandPublisher) ResetScene(id string) (*Command, error) {
	return p.Send(TargetScene, VerbReset, id)
}

// StartPuzzle asks the executor to run a puzzle on its own.
func (p *CommandPublisher) StartPuzzle(id string) (*Command, error) {
	return p.Send(TargetPuzzle, VerbStart, id)
}

// ResetPuzzle asks the executor to reset a puzzle.
func (p *CommandPublisher) ResetPuzzle(id string) (*Command, error) {
	return p.Send(TargetPuzzle, VerbReset, id)
}

// PublishRaw sends an arbitrary payload to a concrete topic. Wildcards are
// rejected since they are only meaningful for subscriptions.
func (p *CommandPublisher) PublishRaw(topic string, payload []byte) error {
	if topic == "" {
		return fmt.Errorf("missing 'topic' field")
	}
	if strings.ContainsAny(topic, "#+") {
		return fmt.Errorf("%q: %w", topic, ErrWildcardTopic)
	}
	return p.publish(topic, payload)
}

func (p *CommandPublisher) publish(topic string, payload []byte) error {
	fields := map[string]interface{}{
		"topic": topic,
		"bytes": len(payload),
	}
	if err := p.pub.Publish(topic, payload); err != nil {
		fields["error"] = err.Error()
		events.Emit("error", "executor.command", "publish failed", fields)
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	events.Emit("info", "executor.command", "", fields)
	return nil
}
