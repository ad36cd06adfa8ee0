package core

// value.go defines the tagged value union carried in channel property bags.
//
// Property bags come from two very different sources: TDMS metadata (typed
// binary properties) and InsightCM JSON documents (untyped JSON). Both are
// normalized into Value so the mapper can reason about them uniformly, and
// the only place a Value becomes a string is Value.String, which is what
// metadata stringification uses.

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// ValueKind identifies which member of the Value union is set.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueInt
	ValueFloat
	ValueBool
	ValueTime
)

func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	case ValueBool:
		return "bool"
	case ValueTime:
		return "time"
	default:
		return "unknown"
	}
}

// Value is a property value of one of the supported kinds.
// The zero Value is the empty string.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	t    time.Time
}

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: ValueString, s: s} }

// IntValue returns an integer Value.
func IntValue(i int64) Value { return Value{kind: ValueInt, i: i} }

// FloatValue returns a floating point Value.
func FloatValue(f float64) Value { return Value{kind: ValueFloat, f: f} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value {
	v := Value{kind: ValueBool}
	if b {
		v.i = 1
	}
	return v
}

// TimeValue returns a date/time Value. The time is stored in UTC.
func TimeValue(t time.Time) Value { return Value{kind: ValueTime, t: t.UTC()} }

// Kind reports which member of the union is set.
func (v Value) Kind() ValueKind { return v.kind }

// Str returns the string member; ok is false for other kinds.
func (v Value) Str() (string, bool) { return v.s, v.kind == ValueString }

// Int returns the integer member; ok is false for other kinds.
func (v Value) Int() (int64, bool) { return v.i, v.kind == ValueInt }

// Float returns the float member; ok is false for other kinds.
func (v Value) Float() (float64, bool) { return v.f, v.kind == ValueFloat }

// Bool returns the bool member; ok is false for other kinds.
func (v Value) Bool() (bool, bool) { return v.i != 0, v.kind == ValueBool }

// Time returns the time member; ok is false for other kinds.
func (v Value) Time() (time.Time, bool) { return v.t, v.kind == ValueTime }

// String renders the value the way it is sent to the catalog as metadata.
// Times use RFC 3339 with nanoseconds in UTC.
func (v Value) String() string {
	switch v.kind {
	case ValueInt:
		return strconv.FormatInt(v.i, 10)
	case ValueFloat:
		return formatFloat(v.f)
	case ValueBool:
		return strconv.FormatBool(v.i != 0)
	case ValueTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return v.s
	}
}

// Truthy reports whether the value is non-empty and non-zero.
func (v Value) Truthy() bool {
	switch v.kind {
	case ValueInt, ValueBool:
		return v.i != 0
	case ValueFloat:
		return v.f != 0 && !math.IsNaN(v.f)
	case ValueTime:
		return !v.t.IsZero()
	default:
		return v.s != ""
	}
}

// IsZero reports whether the value equals the default for its kind.
// Sample buffers made only of zero values count as empty.
func (v Value) IsZero() bool {
	switch v.kind {
	case ValueFloat:
		return v.f == 0
	case ValueTime:
		return v.t.IsZero()
	case ValueString:
		return v.s == ""
	default:
		return v.i == 0
	}
}

// Native returns the value as a plain Go value: string, int64, float64,
// bool or time.Time.
func (v Value) Native() any {
	switch v.kind {
	case ValueInt:
		return v.i
	case ValueFloat:
		return v.f
	case ValueBool:
		return v.i != 0
	case ValueTime:
		return v.t
	default:
		return v.s
	}
}

// MarshalJSON encodes the native value.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == ValueFloat && (math.IsNaN(v.f) || math.IsInf(v.f, 0)) {
		return json.Marshal(v.String())
	}
	return json.Marshal(v.Native())
}

// ValueFromJSON converts a decoded JSON value into a Value. Objects and
// arrays are kept as their compact JSON encoding.
func ValueFromJSON(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return StringValue("")
	case string:
		return StringValue(x)
	case bool:
		return BoolValue(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return IntValue(i)
		}
		f, err := x.Float64()
		if err != nil {
			return StringValue(x.String())
		}
		return FloatValue(f)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return IntValue(int64(x))
		}
		return FloatValue(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return StringValue("")
		}
		return StringValue(string(b))
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Properties is a channel property bag. Keys are case-sensitive.
type Properties map[string]Value

// Clone returns a shallow copy of p.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into p, overwriting existing keys.
func (p Properties) Merge(other Properties) {
	for k, v := range other {
		p[k] = v
	}
}

// Lookup returns the value for key if it is present and truthy.
func (p Properties) Lookup(key string) (Value, bool) {
	if key == "" {
		return Value{}, false
	}
	v, ok := p[key]
	if !ok || !v.Truthy() {
		return Value{}, false
	}
	return v, true
}

// Text returns the string rendering of key, or "" when absent.
func (p Properties) Text(key string) string {
	v, ok := p.Lookup(key)
	if !ok {
		return ""
	}
	return v.String()
}
