package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// NormalizeValue maps a Go value onto the closed set of record value types:
// string, int64, float64, bool, map[string]any, []any and nil.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return normalizeUnsigned(uint64(val))
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return normalizeUnsigned(val)
	case float32:
		return float64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case time.Duration:
		return val.String()
	case *Record:
		return val.Map()
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = NormalizeValue(item)
		}
		return m
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = item
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = NormalizeValue(item)
		}
		return s
	case []string:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = item
		}
		return s
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// normalizeUnsigned keeps values above math.MaxInt64 exact by rendering them as strings
func normalizeUnsigned(v uint64) any {
	if v > math.MaxInt64 {
		return strconv.FormatUint(v, 10)
	}
	return int64(v)
}

// ValueString renders a record value as a flat string. Nested values become JSON.
func ValueString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
