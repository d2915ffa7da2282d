package storage

import (
	"fmt"
	"reflect"
	"time"
)

// Kind is the closed set of storable attribute types.
type Kind int

const (
	Invalid Kind = iota
	Bool
	Int
	Float
	String
	Bytes
	Time
)

var kindNames = [...]string{
	Invalid: "invalid",
	Bool:    "bool",
	Int:     "int",
	Float:   "float",
	String:  "string",
	Bytes:   "bytes",
	Time:    "time",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s && Kind(k) != Invalid {
			return Kind(k), nil
		}
	}
	return Invalid, fmt.Errorf("invalid attribute kind %q", s)
}

var (
	timeType  = reflect.TypeFor[time.Time]()
	bytesType = reflect.TypeFor[[]byte]()
)

// KindOfType maps a Go type to its storage kind. Pointer types map to the kind
// of their element and report optional = true.
func KindOfType(t reflect.Type) (kind Kind, optional bool) {
	if t.Kind() == reflect.Pointer {
		optional = true
		t = t.Elem()
	}
	switch {
	case t == timeType:
		return Time, optional
	case t == bytesType:
		return Bytes, optional
	}
	switch t.Kind() {
	case reflect.Bool:
		return Bool, optional
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Int, optional
	case reflect.Float32, reflect.Float64:
		return Float, optional
	case reflect.String:
		return String, optional
	default:
		return Invalid, optional
	}
}

// KindOf returns the kind of a canonical value, Invalid for nil.
func KindOf(v any) Kind {
	switch v.(type) {
	case bool:
		return Bool
	case int64:
		return Int
	case float64:
		return Float
	case string:
		return String
	case []byte:
		return Bytes
	case time.Time:
		return Time
	default:
		return Invalid
	}
}
