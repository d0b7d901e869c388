package condition

import (
	"encoding/json"
	"math"
	"reflect"

	"github.com/AaronLay10/SentientTimeline/internal/events"
)

// Reason explains a single condition outcome.
type Reason string

const (
	ReasonMatched      Reason = "matched"
	ReasonNotMatched   Reason = "not_matched"
	ReasonMissing      Reason = "missing"
	ReasonTypeMismatch Reason = "type_mismatch"
	ReasonBadOperand   Reason = "bad_operand"
	ReasonBadOperator  Reason = "bad_operator"
)

// Outcome is the evaluation of one condition.
type Outcome struct {
	Condition Condition `json:"condition"`
	Result    bool      `json:"result"`
	Reason    Reason    `json:"reason"`
	Observed  any       `json:"observed,omitempty"`
}

// Result is the evaluation of a condition set.
type Result struct {
	Matched  bool      `json:"matched"`
	Outcomes []Outcome `json:"outcomes"`
}

// Evaluator evaluates condition sets. OnMismatch, when set, is called for
// every outcome caused by malformed data rather than a plain false.
type Evaluator struct {
	OnMismatch func(Outcome)
}

// Default reports mismatches to the operational event log.
var Default = &Evaluator{OnMismatch: emitMismatch}

// Evaluate combines conditions with logic against env using Default.
//
// An empty list is true under AND and false under OR.
func Evaluate(conds []Condition, logic Logic, env Env) bool {
	return Default.Evaluate(conds, logic, env)
}

// Evaluate combines conditions with logic against env.
func (ev *Evaluator) Evaluate(conds []Condition, logic Logic, env Env) bool {
	return ev.Explain(conds, logic, env).Matched
}

// Explain evaluates every condition and reports each outcome.
// Unknown logic values are treated as AND.
func (ev *Evaluator) Explain(conds []Condition, logic Logic, env Env) Result {
	res := Result{Outcomes: make([]Outcome, 0, len(conds))}
	for _, c := range conds {
		out := EvaluateOne(c, env)
		if ev != nil && ev.OnMismatch != nil && isDataError(out.Reason) {
			ev.OnMismatch(out)
		}
		res.Outcomes = append(res.Outcomes, out)
	}

	if logic == LogicOr {
		for _, o := range res.Outcomes {
			if o.Result {
				res.Matched = true
				break
			}
		}
		return res
	}

	res.Matched = true
	for _, o := range res.Outcomes {
		if !o.Result {
			res.Matched = false
			break
		}
	}
	return res
}

func isDataError(r Reason) bool {
	return r == ReasonTypeMismatch || r == ReasonBadOperand || r == ReasonBadOperator
}

// EvaluateOne evaluates a single condition against env.
func EvaluateOne(c Condition, env Env) Outcome {
	out := Outcome{Condition: c}

	key := c.Key()
	observed, ok := env.Lookup(key.DeviceID, key.Sensor)
	if !ok || observed == nil {
		out.Reason = ReasonMissing
		return out
	}
	// A named sensor may publish a structured reading; field selects from it.
	if c.SensorName != "" && c.Field != "" {
		if m, isMap := observed.(map[string]any); isMap {
			v, present := m[c.Field]
			if !present || v == nil {
				out.Reason = ReasonMissing
				return out
			}
			observed = v
		}
	}
	out.Observed = observed

	result, reason := compare(c, observed)
	out.Result = result
	out.Reason = reason
	return out
}

func compare(c Condition, observed any) (bool, Reason) {
	if !c.Operator.Valid() {
		return false, ReasonBadOperator
	}

	tol := 0.0
	hasTol := c.Tolerance != nil && c.Operator.acceptsTolerance()
	if hasTol {
		tol = math.Abs(*c.Tolerance)
	}

	switch c.Operator {
	case OpEq, OpNe:
		var eq bool
		if hasTol {
			o, ok1 := toFloat(observed)
			v, ok2 := toFloat(c.Value)
			if !ok1 || !ok2 {
				return false, ReasonTypeMismatch
			}
			eq = math.Abs(o-v) <= tol
		} else {
			var comparable bool
			eq, comparable = equal(observed, c.Value)
			if !comparable {
				return false, ReasonTypeMismatch
			}
		}
		if c.Operator == OpNe {
			eq = !eq
		}
		return verdict(eq)

	case OpGt, OpLt, OpGte, OpLte:
		o, ok1 := toFloat(observed)
		v, ok2 := toFloat(c.Value)
		if !ok1 || !ok2 {
			return false, ReasonTypeMismatch
		}
		switch c.Operator {
		case OpGt:
			return verdict(o > v-tol)
		case OpLt:
			return verdict(o < v+tol)
		case OpGte:
			return verdict(o >= v-tol)
		default:
			return verdict(o <= v+tol)
		}

	case OpBetween:
		bounds, ok := asList(c.Value)
		if !ok || len(bounds) != 2 {
			return false, ReasonBadOperand
		}
		lo, ok1 := toFloat(bounds[0])
		hi, ok2 := toFloat(bounds[1])
		if !ok1 || !ok2 {
			return false, ReasonBadOperand
		}
		o, ok := toFloat(observed)
		if !ok {
			return false, ReasonTypeMismatch
		}
		return verdict(lo <= o && o <= hi)

	case OpIn:
		items, ok := asList(c.Value)
		if !ok {
			return false, ReasonBadOperand
		}
		for _, item := range items {
			if eq, _ := equal(observed, item); eq {
				return true, ReasonMatched
			}
		}
		return false, ReasonNotMatched
	}
	return false, ReasonBadOperator
}

func verdict(b bool) (bool, Reason) {
	if b {
		return true, ReasonMatched
	}
	return false, ReasonNotMatched
}

// equal compares two scalars exactly. The second result is false when the
// values are of incomparable kinds.
func equal(a, b any) (bool, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return false, false
		}
		return fa == fb, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return false, false
		}
		return av == bv, true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return false, false
		}
		return av == bv, true
	}
	return false, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asList(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func emitMismatch(o Outcome) {
	fields := map[string]interface{}{
		"device_id": o.Condition.DeviceID,
		"sensor":    o.Condition.Key().Sensor,
		"operator":  string(o.Condition.Operator),
		"reason":    string(o.Reason),
	}
	if o.Observed != nil {
		fields["observed_type"] = reflect.TypeOf(o.Observed).String()
	}
	events.Emit("warning", "condition.type_mismatch", "condition evaluated false on malformed data", fields)
}
