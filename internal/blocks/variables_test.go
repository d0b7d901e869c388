package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderPayload(t *testing.T) {
	vars := map[string]any{"level": 80.0, "name": "Vault", "armed": true}

	payload := map[string]any{
		"brightness": "{{level}}",
		"title":      "Welcome to {{ name }}!",
		"flags":      []any{"{{armed}}", "static"},
		"raw":        42.0,
		"unknown":    "{{missing}} stays",
	}
	got := RenderPayload(payload, vars).(map[string]any)

	assert.Equal(t, 80.0, got["brightness"], "whole-string placeholder keeps the raw type")
	assert.Equal(t, "Welcome to Vault!", got["title"])
	assert.Equal(t, []any{true, "static"}, got["flags"])
	assert.Equal(t, 42.0, got["raw"])
	assert.Equal(t, "{{missing}} stays", got["unknown"])

	assert.Equal(t, "{{level}}", payload["brightness"], "input is not mutated")
}

func TestPayloadVariables(t *testing.T) {
	payload := map[string]any{
		"b": "{{second}} and {{first}}",
		"a": []any{"{{first}}", "{{third}}"},
	}
	assert.Equal(t, []string{"first", "third", "second"}, PayloadVariables(payload))
	assert.Empty(t, PayloadVariables(nil))
}

func TestVariableTypeAccepts(t *testing.T) {
	assert.True(t, VarNumber.Accepts(1.5))
	assert.False(t, VarNumber.Accepts("1.5"))
	assert.True(t, VarString.Accepts("x"))
	assert.True(t, VarBoolean.Accepts(false))
	assert.False(t, VariableType("color").Valid())
}

func TestDefaults(t *testing.T) {
	got := Defaults([]Variable{{Name: "a", Type: VarNumber, DefaultValue: 1.0}, {Name: "b", Type: VarString, DefaultValue: "x"}})
	assert.Equal(t, map[string]any{"a": 1.0, "b": "x"}, got)
}
