package core

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_String(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{name: "zero value", value: Value{}, want: ""},
		{name: "string", value: StringValue("abc"), want: "abc"},
		{name: "int", value: IntValue(-12), want: "-12"},
		{name: "integral float", value: FloatValue(2), want: "2.0"},
		{name: "fraction", value: FloatValue(0.1), want: "0.1"},
		{name: "large float", value: FloatValue(1e20), want: "1e+20"},
		{name: "bool", value: BoolValue(false), want: "false"},
		{name: "time", value: TimeValue(time.Date(2019, 3, 4, 10, 30, 0, 0, time.UTC)), want: "2019-03-04T10:30:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.String())
		})
	}
}

func TestValue_Truthy(t *testing.T) {
	tests := []struct {
		value Value
		want  bool
	}{
		{StringValue(""), false},
		{StringValue("0"), true},
		{IntValue(0), false},
		{IntValue(3), true},
		{FloatValue(0), false},
		{FloatValue(math.NaN()), false},
		{FloatValue(-1.5), true},
		{BoolValue(false), false},
		{BoolValue(true), true},
		{TimeValue(time.Time{}), false},
		{TimeValue(time.Now()), true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.value.Truthy(), "%s(%v)", tt.value.Kind(), tt.value)
	}
}

func TestValueFromJSON(t *testing.T) {
	var doc map[string]any
	dec := json.NewDecoder(strings.NewReader(`{"n": 12, "f": 1.5, "s": "x", "b": true, "o": {"k": [1, 2]}, "z": null}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&doc))

	tests := []struct {
		key      string
		wantKind ValueKind
		wantStr  string
	}{
		{key: "n", wantKind: ValueInt, wantStr: "12"},
		{key: "f", wantKind: ValueFloat, wantStr: "1.5"},
		{key: "s", wantKind: ValueString, wantStr: "x"},
		{key: "b", wantKind: ValueBool, wantStr: "true"},
		{key: "o", wantKind: ValueString, wantStr: `{"k":[1,2]}`},
		{key: "z", wantKind: ValueString, wantStr: ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v := ValueFromJSON(doc[tt.key])
			assert.Equal(t, tt.wantKind, v.Kind())
			assert.Equal(t, tt.wantStr, v.String())
		})
	}
}

func TestValue_MarshalJSON(t *testing.T) {
	b, err := json.Marshal([]Value{IntValue(1), FloatValue(math.Inf(1)), BoolValue(true)})
	require.NoError(t, err)
	assert.JSONEq(t, `[1,"+Inf",true]`, string(b))
}

func TestProperties_LookupAndMerge(t *testing.T) {
	base := Properties{"a": StringValue("1"), "b": StringValue("")}
	merged := base.Clone()
	merged.Merge(Properties{"a": StringValue("2"), "c": IntValue(3)})

	assert.Equal(t, "1", base.Text("a"), "Clone does not share storage")
	assert.Equal(t, "2", merged.Text("a"))
	assert.Equal(t, "3", merged.Text("c"))

	_, ok := merged.Lookup("b")
	assert.False(t, ok, "empty string is absent")
	_, ok = merged.Lookup("")
	assert.False(t, ok, "empty key is absent")
}
