package querylens

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// type ranks used to order values of different kinds: null < number < string < object < array < bool
const (
	rankNull = iota
	rankNumber
	rankString
	rankObject
	rankArray
	rankBool
)

func rank(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return rankNumber
	case string, time.Time:
		return rankString
	case map[string]any:
		return rankObject
	case []any:
		return rankArray
	case bool:
		return rankBool
	default:
		return rankObject
	}
}

// CompareValues returns -1, 0 or 1 comparing a to b. Values of different kinds are
// ordered by kind. Strings that both parse as timestamps compare chronologically,
// and the same instant written two ways falls back to string order.
func CompareValues(a, b any) int {
	if cmp, ok := compareComparable(a, b); ok {
		return cmp
	}
	ra, rb := rank(a), rank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	return strings.Compare(jsonString(a), jsonString(b))
}

// compareComparable compares two values of the same kind. ok is false if the values cannot be compared.
func compareComparable(a, b any) (int, bool) {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return 0, false
	}
	switch ra {
	case rankNull:
		return 0, true
	case rankNumber:
		return compareFloats(cast.ToFloat64(a), cast.ToFloat64(b)), true
	case rankString:
		if ta, ok := asTime(a); ok {
			if tb, ok := asTime(b); ok {
				if cmp := compareTimes(ta, tb); cmp != 0 {
					return cmp, true
				}
			}
		}
		return strings.Compare(cast.ToString(a), cast.ToString(b)), true
	case rankBool:
		ba, bb := cast.ToBool(a), cast.ToBool(b)
		switch {
		case ba == bb:
			return 0, true
		case !ba:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

// equalValues reports exact equality. Strings are never equal by instant:
// "2024-01-15" and "2024-01-15T00:00:00Z" differ, as they do in mongodb.
func equalValues(a, b any) bool {
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	if cmp, ok := compareComparable(a, b); ok {
		return cmp == 0
	}
	if rank(a) != rank(b) {
		return false
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func asTime(v any) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v, true
	case string:
		// only strings that look like dates are considered timestamps
		if len(v) < 10 || v[4] != '-' {
			return time.Time{}, false
		}
		t, err := cast.ToTimeE(v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func normalize(v any) any {
	var out any
	_ = json.Unmarshal([]byte(jsonString(v)), &out)
	return out
}

func jsonString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	bits, _ := json.Marshal(v)
	return string(bits)
}
