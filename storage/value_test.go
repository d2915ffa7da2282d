package storage

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonical(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("X", 3600))
	s := "hi"
	var nilStr *string
	var nilChan *chan int
	type stars uint8
	tests := []struct {
		in   any
		want any
		ok   bool
	}{
		{nil, nil, true},
		{true, true, true},
		{int8(-3), int64(-3), true},
		{uint16(7), int64(7), true},
		{uint64(math.MaxUint64), int64(math.MaxInt64), true},
		{float32(1.5), float64(1.5), true},
		{"x", "x", true},
		{[]byte{1}, []byte{1}, true},
		{ts, ts.UTC(), true},
		{&s, "hi", true},
		{stars(5), int64(5), true},
		{nilStr, nil, true},
		{nilChan, nil, false},
		{struct{}{}, nil, false},
	}
	for _, tt := range tests {
		got, ok := Canonical(tt.in)
		assert.Equal(t, tt.ok, ok, "Canonical(%#v)", tt.in)
		assert.Equal(t, tt.want, got, "Canonical(%#v)", tt.in)
	}
}

func TestCompareValues(t *testing.T) {
	t0 := time.Unix(100, 0).UTC()
	tests := []struct {
		a, b any
		want int
	}{
		{nil, nil, 0},
		{nil, int64(1), -1},
		{int64(1), nil, 1},
		{false, true, -1},
		{int64(2), int64(10), -1},
		{int64(2), 1.5, 1},
		{1.5, int64(2), -1},
		{"b", "a", 1},
		{[]byte{1, 2}, []byte{1, 3}, -1},
		{t0, t0.Add(time.Second), -1},
		{t0, t0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareValues(tt.a, tt.b), "CompareValues(%v, %v)", FormatValue(tt.a), FormatValue(tt.b))
	}
	assert.True(t, EqualValues(int64(2), 2.0))
	assert.False(t, EqualValues(nil, false))
}

func TestKindOfType(t *testing.T) {
	tests := []struct {
		v        any
		kind     Kind
		optional bool
	}{
		{true, Bool, false},
		{uint8(0), Int, false},
		{float32(0), Float, false},
		{"", String, false},
		{[]byte(nil), Bytes, false},
		{time.Time{}, Time, false},
		{(*int)(nil), Int, true},
		{(*time.Time)(nil), Time, true},
		{[]int(nil), Invalid, false},
	}
	for _, tt := range tests {
		kind, optional := KindOfType(reflect.TypeOf(tt.v))
		assert.Equal(t, tt.kind, kind, "%T", tt.v)
		assert.Equal(t, tt.optional, optional, "%T", tt.v)
	}
	for k := Bool; k <= Time; k++ {
		parsed, err := ParseKind(k.String())
		assert.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("complex")
	assert.Error(t, err)
}

func TestFormatTime(t *testing.T) {
	times := []time.Time{
		time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC),
		{},
		time.Date(1677, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2000, 1, 1, 0, 0, 0, 1, time.UTC),
		time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC),
	}
	var prev string
	for i, ts := range times {
		s, err := FormatTime(ts)
		assert.NoError(t, err, "FormatTime(%v)", ts)
		assert.Len(t, s, len(TimeLayout), "FormatTime(%v)", ts)
		if i > 0 {
			assert.Less(t, prev, s, "FormatTime(%v) must sort after the previous time", ts)
		}
		prev = s

		back, err := ParseTime(s)
		assert.NoError(t, err)
		assert.True(t, back.Equal(ts), "ParseTime(%q) = %v, wanted %v", s, back, ts)
	}

	s, _ := FormatTime(time.Time{})
	assert.Equal(t, "0001-01-01T00:00:00.000000000Z", s)
	s, _ = FormatTime(time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("X", 3600)))
	assert.Equal(t, "2024-05-06T06:08:09.000000000Z", s)

	_, err := FormatTime(time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrTimeOutOfRange)
	_, err = FormatTime(time.Date(-1, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrTimeOutOfRange)
}
