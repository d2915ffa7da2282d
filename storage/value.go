package storage

import (
	"bytes"
	"cmp"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Canonical converts v into the single representation used for its kind:
// bool, int64, float64, string, []byte, time.Time (UTC) or nil. Pointers are
// dereferenced, nil pointers become nil. Unsigned values above MaxInt64
// saturate. ok is false for values of no storable kind.
func Canonical(v any) (cv any, ok bool) {
	switch v := v.(type) {
	case nil:
		return nil, true
	case bool:
		return v, true
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return saturate(uint64(v)), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return saturate(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		return v, true
	case []byte:
		return v, true
	case time.Time:
		return v.UTC(), true
	}

	// Named types like `type Stars int`.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return saturate(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.String:
		return rv.String(), true
	case reflect.Pointer:
		if rv.IsNil() {
			if k, _ := KindOfType(rv.Type()); k == Invalid {
				return nil, false
			}
			return nil, true
		}
		return Canonical(rv.Elem().Interface())
	default:
		return nil, false
	}
}

func saturate(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(u)
}

// CompareValues orders two canonical values. nil sorts before everything;
// values of different kinds order by kind, with ints and floats compared
// numerically.
func CompareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch a := a.(type) {
	case bool:
		if b, ok := b.(bool); ok {
			return compareBools(a, b)
		}
	case int64:
		switch b := b.(type) {
		case int64:
			return cmp.Compare(a, b)
		case float64:
			return cmp.Compare(float64(a), b)
		}
	case float64:
		switch b := b.(type) {
		case float64:
			return cmp.Compare(a, b)
		case int64:
			return cmp.Compare(a, float64(b))
		}
	case string:
		if b, ok := b.(string); ok {
			return cmp.Compare(a, b)
		}
	case []byte:
		if b, ok := b.([]byte); ok {
			return bytes.Compare(a, b)
		}
	case time.Time:
		if b, ok := b.(time.Time); ok {
			return a.Compare(b)
		}
	}
	return cmp.Compare(numericKind(KindOf(a)), numericKind(KindOf(b)))
}

func numericKind(k Kind) Kind {
	if k == Float {
		return Int
	}
	return k
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

// EqualValues reports whether two canonical values are equal.
func EqualValues(a, b any) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return CompareValues(a, b) == 0
}

// FormatValue renders a canonical value for logs and diagnostics.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return strconv.Quote(v)
	case []byte:
		const maxLen = 32
		if len(v) > maxLen {
			return "0x" + hex.EncodeToString(v[:maxLen]) + "..."
		}
		return "0x" + hex.EncodeToString(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return "<invalid>"
	}
}

// TimeLayout is the fixed-width UTC form backends without a native timestamp
// type store Time values in. For years 0 through 9999 its lexical order is
// the chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

var ErrTimeOutOfRange = errors.New("time outside of years 0000-9999")

// FormatTime renders t using TimeLayout.
func FormatTime(t time.Time) (string, error) {
	t = t.UTC()
	if y := t.Year(); y < 0 || y > 9999 {
		return "", fmt.Errorf("%w: %s", ErrTimeOutOfRange, t.Format(time.RFC3339Nano))
	}
	return t.Format(TimeLayout), nil
}

func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
