package docstore

import "time"

// Storable is the set of index value types. Pointer variants are optional
// values: a nil pointer is stored as a missing value.
type Storable interface {
	~bool |
		~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64 |
		~string | []byte | time.Time |
		*bool |
		*int | *int8 | *int16 | *int32 | *int64 |
		*uint | *uint8 | *uint16 | *uint32 | *uint64 |
		*float32 | *float64 |
		*string | *[]byte | *time.Time
}
