// Package jsonutil provides helper functions for extracting typed values
// from unstructured JSON maps (map[string]any).
package jsonutil

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DonationAlerts timestamps carry no zone and are UTC.
const daTimeLayout = "2006-01-02 15:04:05"

// IntFromAny converts various numeric types to int.
func IntFromAny(value any) int {
	switch num := value.(type) {
	case float64:
		return int(num)
	case int:
		return num
	case int64:
		return int(num)
	case json.Number:
		i, _ := num.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(num))
		return i
	default:
		return 0
	}
}

// StringFromAny converts strings and numbers to string. Integral floats are
// written without a fractional part so numeric ids stay readable.
func StringFromAny(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}

// DecimalFromAny converts a JSON number or numeric string to an exact
// decimal. The second result is false when v is absent or not numeric.
func DecimalFromAny(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

// TimeFromAny parses a DonationAlerts "2006-01-02 15:04:05" timestamp or an
// RFC 3339 one. The second result is false when v is absent or unparseable.
func TimeFromAny(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(daTimeLayout, s, time.UTC); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// StringFromMap extracts a string from a map by key.
func StringFromMap(data map[string]any, key string) string {
	if v, ok := data[key]; ok {
		return StringFromAny(v)
	}
	return ""
}

// MapFromMap extracts a nested object from a map by key.
func MapFromMap(data map[string]any, key string) (map[string]any, bool) {
	m, ok := data[key].(map[string]any)
	return m, ok
}

// HasAnyKey reports whether data contains at least one of keys.
func HasAnyKey(data map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := data[k]; ok {
			return true
		}
	}
	return false
}
