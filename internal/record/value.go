package record

import (
	"github.com/google/go-cmp/cmp"
)

// Number reports v as a float64 when it holds any Go numeric type. JSON
// decoding yields float64 while msgpack and Go callers may yield integers.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
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
	default:
		return 0, false
	}
}

// ValuesEqual compares two JSON-like values. Numbers compare by value
// regardless of their Go type.
func ValuesEqual(a, b any) bool {
	return cmp.Equal(normalize(a), normalize(b))
}

func normalize(v any) any {
	if f, ok := Number(v); ok {
		return f
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}
