package condition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tol(v float64) *float64 { return &v }

func envWith(device, sensor string, v any) Env {
	env := Env{}
	env.Set(device, sensor, v)
	return env
}

func TestEmptyConditionSetVacuousTruth(t *testing.T) {
	assert.True(t, Evaluate(nil, LogicAnd, Env{}), "empty AND is true")
	assert.False(t, Evaluate(nil, LogicOr, Env{}), "empty OR is false")
	assert.True(t, Evaluate([]Condition{}, "", Env{}), "empty logic defaults to AND")
}

func TestEqualityWithTolerance(t *testing.T) {
	cases := []struct {
		observed, value, tolerance float64
	}{
		{10, 10, 0},
		{10.4, 10, 0.5},
		{9.5, 10, 0.5},
		{-3, -1, 2},
		{100, 0, 100},
	}
	for _, tc := range cases {
		c := Condition{DeviceID: "dial", Field: "angle", Operator: OpEq, Value: tc.value, Tolerance: tol(tc.tolerance)}
		env := envWith("dial", "angle", tc.observed)
		assert.True(t, Evaluate([]Condition{c}, LogicAnd, env), "observed=%v value=%v tol=%v", tc.observed, tc.value, tc.tolerance)

		c.Operator = OpNe
		assert.False(t, Evaluate([]Condition{c}, LogicAnd, env), "!= inverts equality band")
	}

	c := Condition{DeviceID: "dial", Field: "angle", Operator: OpEq, Value: 10, Tolerance: tol(0.5)}
	assert.False(t, Evaluate([]Condition{c}, LogicAnd, envWith("dial", "angle", 10.6)))
}

func TestExactEqualityWithoutTolerance(t *testing.T) {
	c := Condition{DeviceID: "keypad", Field: "code", Operator: OpEq, Value: "1234"}
	assert.True(t, Evaluate([]Condition{c}, LogicAnd, envWith("keypad", "code", "1234")))
	assert.False(t, Evaluate([]Condition{c}, LogicAnd, envWith("keypad", "code", "4321")))

	n := Condition{DeviceID: "scale", Field: "grams", Operator: OpEq, Value: 500}
	assert.True(t, Evaluate([]Condition{n}, LogicAnd, envWith("scale", "grams", float64(500))), "int and float compare numerically")

	b := Condition{DeviceID: "door", Field: "closed", Operator: OpEq, Value: true}
	assert.True(t, Evaluate([]Condition{b}, LogicAnd, envWith("door", "closed", true)))
}

func TestBetweenIsInclusive(t *testing.T) {
	c := Condition{DeviceID: "lever", Field: "pos", Operator: OpBetween, Value: []any{2.0, 5.0}}
	for _, x := range []float64{2, 3.3, 5} {
		assert.True(t, Evaluate([]Condition{c}, LogicAnd, envWith("lever", "pos", x)), "x=%v", x)
	}
	for _, x := range []float64{1.99, 5.01} {
		assert.False(t, Evaluate([]Condition{c}, LogicAnd, envWith("lever", "pos", x)), "x=%v", x)
	}
}

func TestInOperator(t *testing.T) {
	c := Condition{DeviceID: "rfid", Field: "slot", Operator: OpIn, Value: []int{1, 2, 3}}
	assert.True(t, Evaluate([]Condition{c}, LogicAnd, envWith("rfid", "slot", 3)))
	assert.False(t, Evaluate([]Condition{c}, LogicAnd, envWith("rfid", "slot", 4)))

	s := Condition{DeviceID: "rfid", Field: "tag", Operator: OpIn, Value: []any{"ankh", "scarab"}}
	assert.True(t, Evaluate([]Condition{s}, LogicAnd, envWith("rfid", "tag", "scarab")))
}

func TestMissingSensorIsFalseForEveryOperator(t *testing.T) {
	ops := []Operator{OpEq, OpNe, OpGt, OpLt, OpGte, OpLte, OpBetween, OpIn}
	for _, op := range ops {
		c := Condition{DeviceID: "ghost", Field: "x", Operator: op, Value: []any{1, 2}}
		out := EvaluateOne(c, Env{})
		assert.False(t, out.Result, "op %s", op)
		assert.Equal(t, ReasonMissing, out.Reason, "op %s", op)
	}
	assert.False(t, EvaluateOne(Condition{DeviceID: "a", Field: "b", Operator: OpEq, Value: 1}, nil).Result, "nil env")
}

func TestNumericOperatorsRejectStrings(t *testing.T) {
	ev := &Evaluator{}
	var mismatches []Outcome
	ev.OnMismatch = func(o Outcome) { mismatches = append(mismatches, o) }

	c := Condition{DeviceID: "temp", Field: "celsius", Operator: OpGt, Value: 20}
	assert.False(t, ev.Evaluate([]Condition{c}, LogicAnd, envWith("temp", "celsius", "hot")))
	require.Len(t, mismatches, 1)
	assert.Equal(t, ReasonTypeMismatch, mismatches[0].Reason)
}

func TestOrderingOperators(t *testing.T) {
	env := envWith("temp", "celsius", 21.0)
	check := func(op Operator, v float64, want bool) {
		t.Helper()
		c := Condition{DeviceID: "temp", Field: "celsius", Operator: op, Value: v}
		assert.Equal(t, want, Evaluate([]Condition{c}, LogicAnd, env), "%s %v", op, v)
	}
	check(OpGt, 20, true)
	check(OpGt, 21, false)
	check(OpGte, 21, true)
	check(OpLt, 22, true)
	check(OpLte, 21, true)
	check(OpLte, 20, false)

	// Tolerance widens the acceptance band.
	c := Condition{DeviceID: "temp", Field: "celsius", Operator: OpGt, Value: 21.5, Tolerance: tol(1)}
	assert.True(t, Evaluate([]Condition{c}, LogicAnd, env))
}

func TestAndOrCombination(t *testing.T) {
	env := Env{}
	env.Set("a", "v", 1)
	env.Set("b", "v", 2)
	yes := Condition{DeviceID: "a", Field: "v", Operator: OpEq, Value: 1}
	no := Condition{DeviceID: "b", Field: "v", Operator: OpEq, Value: 3}

	assert.False(t, Evaluate([]Condition{yes, no}, LogicAnd, env))
	assert.True(t, Evaluate([]Condition{yes, no}, LogicOr, env))
	assert.True(t, Evaluate([]Condition{yes, yes}, LogicAnd, env))
	assert.False(t, Evaluate([]Condition{no, no}, LogicOr, env))
}

func TestStructuredSensorReading(t *testing.T) {
	env := envWith("panel", "buttons", map[string]any{"red": true})
	c := Condition{DeviceID: "panel", SensorName: "buttons", Field: "red", Operator: OpEq, Value: true}
	assert.True(t, Evaluate([]Condition{c}, LogicAnd, env))

	c.Field = "blue"
	assert.Equal(t, ReasonMissing, EvaluateOne(c, env).Reason)
}

func TestMalformedOperandsNeverPanic(t *testing.T) {
	env := envWith("x", "y", 5)
	bad := []Condition{
		{DeviceID: "x", Field: "y", Operator: OpBetween, Value: 3},
		{DeviceID: "x", Field: "y", Operator: OpBetween, Value: []any{"a", "b"}},
		{DeviceID: "x", Field: "y", Operator: OpIn, Value: "not-a-list"},
		{DeviceID: "x", Field: "y", Operator: "~=", Value: 5},
		{DeviceID: "x", Field: "y", Operator: OpEq, Value: map[string]any{}},
	}
	for _, c := range bad {
		assert.NotPanics(t, func() {
			assert.False(t, (&Evaluator{}).Evaluate([]Condition{c}, LogicAnd, env))
		})
	}
}

func TestConditionJSON(t *testing.T) {
	var g Group
	raw := `{"logic":"or","conditions":[{"deviceId":"d1","field":"level","operator":"between","value":[1,3],"tolerance":0.2}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &g))
	assert.Equal(t, LogicOr, g.Logic)
	require.Len(t, g.Conditions, 1)
	assert.True(t, g.Evaluate(envWith("d1", "level", 3.0)))

	assert.Error(t, json.Unmarshal([]byte(`{"logic":"xor"}`), &g))
}
