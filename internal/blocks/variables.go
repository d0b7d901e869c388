package blocks

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// VariableType is the declared type of a puzzle variable.
type VariableType string

const (
	VarNumber  VariableType = "number"
	VarString  VariableType = "string"
	VarBoolean VariableType = "boolean"
)

// Valid reports whether t is a known type.
func (t VariableType) Valid() bool {
	return t == VarNumber || t == VarString || t == VarBoolean
}

// Accepts reports whether v is a value of type t.
func (t VariableType) Accepts(v any) bool {
	switch t {
	case VarNumber:
		switch v.(type) {
		case float64, float32, int, int32, int64, json.Number:
			return true
		}
	case VarString:
		_, ok := v.(string)
		return ok
	case VarBoolean:
		_, ok := v.(bool)
		return ok
	}
	return false
}

// Variable is per-puzzle-instance named storage. Only set_variable blocks
// mutate it.
type Variable struct {
	Name         string       `json:"name"`
	Type         VariableType `json:"type"`
	DefaultValue any          `json:"defaultValue"`
	Description  string       `json:"description,omitempty"`
}

// Defaults returns the initial value of every declared variable.
func Defaults(vars []Variable) map[string]any {
	out := make(map[string]any, len(vars))
	for _, v := range vars {
		out[v.Name] = v.DefaultValue
	}
	return out
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// RenderPayload substitutes {{name}} placeholders in payload strings with
// variable values. A string that is exactly one placeholder is replaced by
// the raw value so numbers and booleans keep their type. Unknown names are
// left as written.
func RenderPayload(payload any, vars map[string]any) any {
	switch p := payload.(type) {
	case string:
		return renderString(p, vars)
	case map[string]any:
		out := make(map[string]any, len(p))
		for k, v := range p {
			out[k] = RenderPayload(v, vars)
		}
		return out
	case []any:
		out := make([]any, len(p))
		for i, v := range p {
			out[i] = RenderPayload(v, vars)
		}
		return out
	}
	return payload
}

func renderString(s string, vars map[string]any) any {
	if m := placeholder.FindStringSubmatch(strings.TrimSpace(s)); m != nil && m[0] == strings.TrimSpace(s) {
		if v, ok := vars[m[1]]; ok {
			return v
		}
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		v, ok := vars[name]
		if !ok {
			return match
		}
		return fmt.Sprint(v)
	})
}

// PayloadVariables lists the variable names referenced by payload, in
// order of first appearance.
func PayloadVariables(payload any) []string {
	var names []string
	seen := make(map[string]bool)
	var walk func(any)
	walk = func(p any) {
		switch v := p.(type) {
		case string:
			for _, m := range placeholder.FindAllStringSubmatch(v, -1) {
				if !seen[m[1]] {
					seen[m[1]] = true
					names = append(names, m[1])
				}
			}
		case map[string]any:
			keys := sortedKeys(v)
			for _, k := range keys {
				walk(v[k])
			}
		case []any:
			for _, item := range v {
				walk(item)
			}
		}
	}
	walk(payload)
	return names
}
