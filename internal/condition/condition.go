// Package condition evaluates sensor conditions used by watch and check blocks.
//
// The evaluator is total over its input: missing sensor readings and
// type-mismatched comparisons make a condition false, they never panic or
// return an error.
package condition

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operator is a comparison operator.
type Operator string

const (
	OpEq      Operator = "=="
	OpNe      Operator = "!="
	OpGt      Operator = ">"
	OpLt      Operator = "<"
	OpGte     Operator = ">="
	OpLte     Operator = "<="
	OpBetween Operator = "between"
	OpIn      Operator = "in"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpLt, OpGte, OpLte, OpBetween, OpIn:
		return true
	}
	return false
}

// acceptsTolerance reports whether a tolerance band is meaningful for op.
func (op Operator) acceptsTolerance() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpLt, OpGte, OpLte:
		return true
	}
	return false
}

// Logic combines condition results.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// ParseLogic normalizes a logic string. Empty means AND.
func ParseLogic(s string) (Logic, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AND":
		return LogicAnd, nil
	case "OR":
		return LogicOr, nil
	}
	return "", fmt.Errorf("unknown logic %q", s)
}

// UnmarshalJSON accepts "and"/"or" in any case.
func (l *Logic) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLogic(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Condition compares one sensor reading against a value.
//
// Value is a scalar for most operators, a [min, max] pair for between and a
// list for in. Tolerance defines an acceptance band for the equality-class
// operators and is ignored for between and in.
type Condition struct {
	DeviceID   string   `json:"deviceId"`
	SensorName string   `json:"sensorName,omitempty"`
	Field      string   `json:"field"`
	Operator   Operator `json:"operator"`
	Value      any      `json:"value"`
	Tolerance  *float64 `json:"tolerance,omitempty"`
}

// Key returns the environment key the condition reads.
// Without a sensor name the field names the sensor.
func (c Condition) Key() SensorKey {
	sensor := c.SensorName
	if sensor == "" {
		sensor = c.Field
	}
	return SensorKey{DeviceID: c.DeviceID, Sensor: sensor}
}

// Group is a set of conditions combined by one logic operator.
type Group struct {
	Logic      Logic       `json:"logic"`
	Conditions []Condition `json:"conditions"`
}

// Evaluate evaluates the group with the default evaluator.
func (g Group) Evaluate(env Env) bool {
	return Evaluate(g.Conditions, g.Logic, env)
}

// SensorKey addresses one sensor reading.
type SensorKey struct {
	DeviceID string
	Sensor   string
}

// String renders the key as "<deviceId>/<sensor>".
func (k SensorKey) String() string {
	return k.DeviceID + "/" + k.Sensor
}

// ParseSensorKey parses "<deviceId>/<sensor>". A key without a slash
// addresses the device's unnamed reading.
func ParseSensorKey(s string) SensorKey {
	device, sensor, _ := strings.Cut(s, "/")
	return SensorKey{DeviceID: device, Sensor: sensor}
}

// Env holds the latest observed value per sensor.
type Env map[SensorKey]any

// Set records a reading.
func (e Env) Set(deviceID, sensor string, value any) {
	e[SensorKey{DeviceID: deviceID, Sensor: sensor}] = value
}

// Lookup returns the reading for deviceID/sensor.
func (e Env) Lookup(deviceID, sensor string) (any, bool) {
	if e == nil {
		return nil, false
	}
	v, ok := e[SensorKey{DeviceID: deviceID, Sensor: sensor}]
	return v, ok
}

// Check reports an authoring problem with c: an unknown operator, a
// malformed operand for between or in, or a missing device. Evaluation never
// needs this; it only feeds editor validation.
func (c Condition) Check() error {
	if c.DeviceID == "" {
		return fmt.Errorf("missing 'deviceId' field")
	}
	if c.Field == "" && c.SensorName == "" {
		return fmt.Errorf("missing 'field' field")
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	switch c.Operator {
	case OpBetween:
		bounds, ok := asList(c.Value)
		if !ok || len(bounds) != 2 {
			return fmt.Errorf("between needs a [min, max] value")
		}
		lo, ok1 := toFloat(bounds[0])
		hi, ok2 := toFloat(bounds[1])
		if !ok1 || !ok2 {
			return fmt.Errorf("between bounds must be numeric")
		}
		if lo > hi {
			return fmt.Errorf("between bounds out of order: %v > %v", lo, hi)
		}
	case OpIn:
		if _, ok := asList(c.Value); !ok {
			return fmt.Errorf("in needs a list value")
		}
	case OpGt, OpLt, OpGte, OpLte:
		if _, ok := toFloat(c.Value); !ok {
			return fmt.Errorf("%s needs a numeric value", c.Operator)
		}
	}
	if c.Tolerance != nil && *c.Tolerance < 0 {
		return fmt.Errorf("tolerance must not be negative")
	}
	return nil
}
