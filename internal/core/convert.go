package core

// convert.go provides the type coercions the mapper relies on.
//
// These functions handle the messy reality of monitoring exports:
//   - Metadata values of mixed types that the catalog only accepts as strings
//   - Numeric readings stored as strings with stray whitespace
//   - Timestamps as native times, Excel serial dates, or date strings
//
// Every coercion is a named function so it can be tested on its own.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Date layouts accepted for timestamp strings, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02",
	"1/2/2006",
}

// excelEpoch is day zero of the 1900 date system as used by Excel,
// accounting for the fictitious 1900-02-29.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// DeriveName builds the canonical catalog name for a signal.
//
// The name is the asset display name, then the signal name, then the unit in
// parentheses, joined by spaces, with every whitespace rune replaced by '_'.
// Empty parts are omitted. The same inputs always produce the same name.
func DeriveName(asset, signal, unit string) string {
	var b strings.Builder
	for _, part := range []string{strings.TrimSpace(asset), strings.TrimSpace(signal)} {
		if part == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(part)
	}
	if u := strings.TrimSpace(unit); u != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("(" + u + ")")
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, b.String())
}

// StringifyProperties renders every property as a string, as required by the
// catalog's string-typed metadata.
func StringifyProperties(p Properties) map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v.String()
	}
	return out
}

// ToFloat converts a property value to float64.
// Strings are trimmed and parsed; times and booleans are rejected.
func ToFloat(v Value) (float64, error) {
	switch v.Kind() {
	case ValueFloat:
		f, _ := v.Float()
		return f, nil
	case ValueInt:
		i, _ := v.Int()
		return float64(i), nil
	case ValueString:
		s, _ := v.Str()
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, s)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s value is not a number", ErrInvalidValue, v.Kind())
	}
}

// ToTime converts a property value to a time.
// Strings are parsed with ParseTimestamp; numbers are Unix seconds.
func ToTime(v Value) (time.Time, error) {
	switch v.Kind() {
	case ValueTime:
		t, _ := v.Time()
		return t, nil
	case ValueString:
		s, _ := v.Str()
		return ParseTimestamp(s)
	case ValueInt:
		i, _ := v.Int()
		return time.Unix(i, 0).UTC(), nil
	case ValueFloat:
		f, _ := v.Float()
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s value is not a time", ErrInvalidValue, v.Kind())
	}
}

// ToMillis returns t as integer milliseconds since the Unix epoch.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// ParseTimestamp parses a timestamp string. Strings without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrInvalidValue)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", ErrInvalidValue, s)
}

// ExcelSerialToTime converts an Excel 1900-system serial date to UTC,
// rounded to the millisecond.
func ExcelSerialToTime(serial float64) time.Time {
	ms := math.Round(serial * 24 * 60 * 60 * 1000)
	return excelEpoch.Add(time.Duration(ms) * time.Millisecond)
}
