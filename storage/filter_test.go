package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	attrs := Attributes{
		"name":  "alpha",
		"size":  int64(3),
		"ratio": 0.5,
		"gone":  nil,
	}
	tests := []struct {
		f    Filter
		want bool
	}{
		{nil, true},
		{Compare{"name", OpEqual, "alpha"}, true},
		{Compare{"name", OpNotEqual, "alpha"}, false},
		{Compare{"size", OpLess, int64(4)}, true},
		{Compare{"size", OpGreater, 2.5}, true},
		{Compare{"ratio", OpLessOrEqual, int64(1)}, true},
		{Compare{"name", OpGreater, int64(1)}, false},
		{Compare{"gone", OpEqual, nil}, true},
		{Compare{"missing", OpEqual, nil}, true},
		{Compare{"missing", OpNotEqual, nil}, false},
		{Compare{"missing", OpLess, int64(1)}, false},
		{Compare{"missing", OpNotEqual, int64(1)}, true},
		{Compare{"name", OpIn, []any{"beta", "alpha"}}, true},
		{Compare{"name", OpIn, []any{}}, false},
		{Compare{"name", OpHasPrefix, "al"}, true},
		{Compare{"name", OpHasPrefix, "be"}, false},
		{Compare{"size", OpHasPrefix, "3"}, false},
		{And{}, true},
		{Or{}, false},
		{And{Compare{"size", OpEqual, int64(3)}, Compare{"name", OpEqual, "beta"}}, false},
		{Or{Compare{"size", OpEqual, int64(3)}, Compare{"name", OpEqual, "beta"}}, true},
		{Not{Compare{"size", OpEqual, int64(3)}}, false},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.f != nil {
			name = tt.f.String()
		}
		assert.Equal(t, tt.want, Match(tt.f, attrs), name)
	}
}

func TestFilterString(t *testing.T) {
	f := And{
		Compare{"name", OpIn, []any{"a", "b"}},
		Not{Compare{"size", OpLess, int64(3)}},
	}
	assert.Equal(t, `(name in ["a", "b"]) && (!(size < 3))`, f.String())
	assert.Equal(t, "true", And{}.String())
	assert.Equal(t, "false", Or{}.String())
	assert.Equal(t, []string{"name", "size"}, Attrs(Or{f, Compare{"name", OpEqual, "x"}}))
}

func TestEvaluate(t *testing.T) {
	var records []*Record
	for i, name := range []string{"c", "a", "b", "d"} {
		records = append(records, &Record{
			ID:    RecordID(name),
			Attrs: Attributes{"name": name, "even": i%2 == 0},
		})
	}

	req := All("X", ResultRecords)
	req.Sort = []SortKey{{Attr: "even", Descending: true}, {Attr: "name"}}
	require.Equal(t, []RecordID{"b", "c", "a", "d"}, IDs(Evaluate(req, records)))

	req.Offset, req.Limit = 1, 2
	require.Equal(t, []RecordID{"c", "a"}, IDs(Evaluate(req, records)))
	require.Equal(t, RecordID("c"), records[0].ID, "input reordered")

	req.Filter = Compare{"even", OpEqual, false}
	req.Offset, req.Limit = 0, NoLimit
	require.Equal(t, []RecordID{"a", "d"}, IDs(Evaluate(req, records)))

	req.Result = ResultIDs
	projected := Project(req, Evaluate(req, records))
	require.Nil(t, projected[0].Attrs)
}

func TestWindowCount(t *testing.T) {
	assert.Equal(t, 10, WindowCount(10, 0, NoLimit))
	assert.Equal(t, 3, WindowCount(10, 7, NoLimit))
	assert.Equal(t, 2, WindowCount(10, 7, 2))
	assert.Equal(t, 0, WindowCount(10, 10, NoLimit))
	assert.Equal(t, 0, WindowCount(10, 0, 0))
	assert.Equal(t, 0, WindowCount(10, 1<<63-1, NoLimit))
}

func TestRequestString(t *testing.T) {
	req := All("Note", ResultIDs)
	req.Filter = Compare{"stars", OpGreaterOrEqual, int64(3)}
	req.Sort = []SortKey{{Attr: "title"}, {Attr: "stars", Descending: true}}
	req.Offset, req.Limit = 5, 10
	assert.Equal(t, "ids Note where stars >= 3 order by title asc, stars desc offset 5 limit 10", req.String())
}
