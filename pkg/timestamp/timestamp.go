// Package timestamp normalizes vault creation times to int64 Unix
// milliseconds.
//
// Marker files may carry created_at as a number or as an RFC3339 string.
// Numbers are taken as milliseconds verbatim; they are only ever compared
// against each other, so no seconds-versus-milliseconds guessing is done.
//
//	ms, err := timestamp.Parse("2024-06-10T08:00:00Z")
//	display := timestamp.Format(ms)
package timestamp

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds. The zero time maps to 0.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time. 0 maps to the zero time.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Format renders ms as RFC3339 in UTC, or "" for 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

// Parse converts a decoded created_at value to Unix milliseconds.
// nil and "" yield 0.
func Parse(input any) (int64, error) {
	switch v := input.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("timestamp %d out of range", v)
		}
		return int64(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("timestamp %v out of range", v)
		}
		return int64(v), nil
	case string:
		return parseString(v)
	case time.Time:
		return ToUnixMs(v), nil
	default:
		return 0, fmt.Errorf("unsupported timestamp type %T", input)
	}
}

func parseString(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q is neither milliseconds nor RFC3339", s)
	}
	return ToUnixMs(t), nil
}
