// Package rows loads the audience CSV export and coerces each raw
// string field into a typed value.
package rows

import (
	"strconv"
	"time"
)

// Kind discriminates the typed variants a contact field can hold.
type Kind int

const (
	KindEmpty Kind = iota
	KindString
	KindNumber
	KindBool
	KindTime
)

// Value is the tagged union for one contact field. Exactly the member
// selected by Kind is meaningful.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
}

// String wraps s as a string value; an empty string becomes Empty.
func String(s string) Value {
	if s == "" {
		return Value{Kind: KindEmpty}
	}
	return Value{Kind: KindString, Str: s}
}

// Number wraps n as a numeric value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Bool wraps b as a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Time wraps t as a timestamp value.
func Time(t time.Time) Value { return Value{Kind: KindTime, Time: t} }

// Empty is the zero field value.
func Empty() Value { return Value{Kind: KindEmpty} }

// IsEmpty reports whether the value carries no data. A blank string,
// false boolean, and zero number are all still populated values; only
// KindEmpty is empty.
func (v Value) IsEmpty() bool { return v.Kind == KindEmpty }

// Truthy reports whether the value counts as program-membership
// evidence: any non-empty value except boolean false and blank string.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindEmpty:
		return false
	case KindBool:
		return v.Bool
	case KindString:
		return v.Str != ""
	default:
		return true
	}
}

// Render serializes the value to the textual form sent to the record
// store. Timestamps use RFC 3339.
func (v Value) Render() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTime:
		return v.Time.UTC().Format(time.RFC3339)
	default:
		return ""
	}
}

// Interface returns the native Go value for JSON payload encoding:
// string, float64, bool, or an RFC 3339 timestamp string. Empty
// values return nil.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindTime:
		return v.Time.UTC().Format(time.RFC3339)
	default:
		return nil
	}
}
