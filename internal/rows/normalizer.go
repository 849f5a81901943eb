package rows

import (
	"strconv"
	"strings"
	"time"
)

// Row is one contact record keyed by field name. The "email" field is
// the match key for reconciliation against the record store.
type Row map[string]Value

// numberOverrides lists the only fields coerced to numbers. Everything
// else that looks numeric (zip codes, phone digits) stays a string.
var numberOverrides = map[string]bool{
	"slackShipCount":                          true,
	"slackScrapbookCount":                     true,
	"calculatedGeocodedLongitude":             true,
	"calculatedGeocodedLatitude":              true,
	"calculatedYswsWeightedGrantContribution": true,
}

// AddNumberOverride registers an extra field name to coerce to a number.
func AddNumberOverride(field string) { numberOverrides[field] = true }

// Normalize coerces every raw string field in place. Coercion order per
// field, first match wins:
//  1. case-insensitive "true"/"false" → bool
//  2. field in the numeric-override set and value parses → number
//  3. first ten characters shaped DDDD-DD-DD and the value parses as a
//     calendar date → timestamp
//  4. otherwise the string is kept as-is
//
// Already-typed values pass through untouched, so Normalize is
// idempotent.
func Normalize(row Row) Row {
	for key, val := range row {
		if val.Kind != KindString {
			continue
		}
		row[key] = coerce(key, val.Str)
	}
	return row
}

func coerce(field, raw string) Value {
	switch strings.ToLower(raw) {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}

	if numberOverrides[field] {
		if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return Number(n)
		}
	}

	if hasDatePrefix(raw) {
		if t, ok := parseTimestamp(raw); ok {
			return Time(t)
		}
		// Looks like a date but isn't one; leave the string alone.
	}

	return String(raw)
}

// hasDatePrefix reports whether the first ten characters are shaped
// DDDD-DD-DD.
func hasDatePrefix(s string) bool {
	if len(s) < 10 {
		return false
	}
	for i, r := range s[:10] {
		switch i {
		case 4, 7:
			if r != '-' {
				return false
			}
		default:
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// timestampLayouts covers the forms the export emits: full RFC 3339,
// space-separated datetime, and bare date.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Email returns the row's lowercase email, or "" if absent.
func (r Row) Email() string {
	v, ok := r["email"]
	if !ok || v.Kind != KindString {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(v.Str))
}

// GetString returns the field's string form, or "" when empty.
func (r Row) GetString(field string) string {
	v, ok := r[field]
	if !ok {
		return ""
	}
	return v.Render()
}

// Clone returns a shallow copy so enrichment steps can thread an
// updated snapshot without mutating the caller's row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
