package brokers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Field coercion helpers shared by vendor transformers. Vendor envelopes
// decode into map[string]any, where JSON numbers arrive as float64 and
// several vendors send numerics as strings; these helpers absorb both.

// Str returns raw[key] as a trimmed string, or "".
func Str(raw Payload, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprintf("%v", v)
}

// F64 returns raw[key] as a float64. Strings parse through
// shopspring/decimal so vendor money strings ("12345.60") survive
// exactly; absent or unparseable values are 0.
func F64(raw Payload, key string) float64 {
	switch v := raw[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	}
	return 0
}

// IntOf returns raw[key] as an int, accepting JSON numbers and numeric
// strings.
func IntOf(raw Payload, key string) int {
	switch v := raw[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// F64Ptr returns a pointer to raw[key] when present and non-zero, else
// nil. Vendors report absent prices as 0.
func F64Ptr(raw Payload, key string) *float64 {
	if v := F64(raw, key); v != 0 {
		return &v
	}
	return nil
}

// Sub returns raw[key] as a nested Payload, or an empty one.
func Sub(raw Payload, key string) Payload {
	if m, ok := raw[key].(map[string]any); ok {
		return m
	}
	return Payload{}
}

// List returns raw[key] as a slice of Payloads, skipping non-object
// elements. A null or absent value is an empty list, never an error.
func List(raw Payload, key string) []Payload {
	items, ok := raw[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Payload, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// AsList coerces a decoded JSON value into a slice of Payloads. Vendors
// that answer list endpoints with null decode to nil here.
func AsList(v any) []Payload {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Payload, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
