package models

import (
	"bytes"
	"encoding/json"
	"math"
)

// Value is a metric that may be unavailable, e.g. when the supporting
// window is too short. An unavailable Value is never reported as zero: it
// marshals to JSON null.
type Value struct {
	v  float64
	ok bool
}

// Some wraps v; NaN and infinities become unavailable
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{v: v, ok: true}
}

// Unavailable returns the sentinel value
func Unavailable() Value {
	return Value{}
}

// Available reports whether the value is defined
func (v Value) Available() bool {
	return v.ok
}

// Float returns the value and whether it is defined
func (v Value) Float() (float64, bool) {
	return v.v, v.ok
}

// OrNaN returns the value, or NaN when unavailable
func (v Value) OrNaN() float64 {
	if !v.ok {
		return math.NaN()
	}
	return v.v
}

// Map applies fn to an available value
func (v Value) Map(fn func(float64) float64) Value {
	if !v.ok {
		return v
	}
	return Some(fn(v.v))
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Some(f)
	return nil
}
