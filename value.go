package cppdbc

import (
	"strconv"

	"github.com/gogf/gf/container/gvar"
)

// Value wraps a single column value the way the teacher's gdb package wraps
// every record field in a *gvar.Var: one typed container with coercion
// helpers instead of one getter per scan destination.
type Value = *gvar.Var

// truthyStrings is the fixed set of strings treated as boolean true when
// coercing a textual column value, per the boolean-coercion rule.
var truthyStrings = map[string]bool{
	"1":    true,
	"true": true,
	"TRUE": true,
	"True": true,
}

// NewValue wraps a raw driver value (nil included) as a Value.
func NewValue(raw interface{}) Value {
	return gvar.New(raw)
}

// valueIsNull reports whether v holds a SQL NULL.
func valueIsNull(v Value) bool {
	return v == nil || v.Val() == nil
}

// valueInt coerces v to int64, a null value reading as 0.
func valueInt(v Value) int64 {
	if valueIsNull(v) {
		return 0
	}
	return v.Int64()
}

// valueDouble coerces v to float64, a null value reading as 0.
func valueDouble(v Value) float64 {
	if valueIsNull(v) {
		return 0
	}
	return v.Float64()
}

// valueString coerces v to string, a null value reading as "".
func valueString(v Value) string {
	if valueIsNull(v) {
		return ""
	}
	return v.String()
}

// valueBoolean applies the fixed textual-truthiness set alongside numeric
// nonzero-is-true coercion.
func valueBoolean(v Value) bool {
	if valueIsNull(v) {
		return false
	}
	switch raw := v.Val().(type) {
	case bool:
		return raw
	case string:
		if truthyStrings[raw] {
			return true
		}
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n != 0
		}
		return false
	case []byte:
		return valueBoolean(gvar.New(string(raw)))
	default:
		return v.Float64() != 0
	}
}
