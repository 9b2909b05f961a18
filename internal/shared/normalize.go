package shared

import (
	"fmt"
	"time"
)

// NormalizeProperties returns a copy of p whose values are all
// JSON-compatible: strings, bools, numbers, nil, and nested maps/slices of
// the same. Anything else is replaced with its string rendering, so encoding
// a normalized Properties can never fail. A nil map normalizes to nil.
func NormalizeProperties(p Properties) Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string, bool:
		return val
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case time.Duration:
		return val.Milliseconds()
	case error:
		return val.Error()
	case Properties:
		return NormalizeProperties(val)
	case map[string]any:
		return NormalizeProperties(Properties(val))
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case []string:
		return val
	case []int:
		return val
	case []float64:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
