// Package storagetest is a conformance suite for storage.Backend
// implementations. A backend's tests call Run with a function opening a fresh,
// empty backend.
package storagetest

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andreyvit/docstore/storage"
)

var Start = time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)

// Far lies beyond the range of Unix nanoseconds.
var Far = time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)

var Widgets = storage.Entity{
	Name: "Widget",
	Attributes: []storage.AttributeSchema{
		{Name: "name", Kind: storage.String},
		{Name: "size", Kind: storage.Int},
		{Name: "weight", Kind: storage.Float},
		{Name: "active", Kind: storage.Bool},
		{Name: "seen", Kind: storage.Time, Optional: true},
		{Name: "tag", Kind: storage.Bytes, Optional: true},
	},
}

var Gadgets = storage.Entity{
	Name: "Gadget",
	Attributes: []storage.AttributeSchema{
		{Name: "name", Kind: storage.String},
	},
}

type Opener func(t testing.TB) storage.Backend

// Run executes the whole suite, each case against a freshly opened backend.
func Run(t *testing.T, open Opener) {
	cases := []struct {
		name string
		f    func(t *testing.T, b storage.Backend)
	}{
		{"InsertFetch", testInsertFetch},
		{"ReadYourWrites", testReadYourWrites},
		{"Discard", testDiscard},
		{"Filters", testFilters},
		{"SortAndWindow", testSortAndWindow},
		{"SortByTime", testSortByTime},
		{"Delete", testDelete},
		{"Remove", testRemove},
		{"IDsResult", testIDsResult},
		{"ReadOnly", testReadOnly},
		{"EntitiesAreSeparate", testEntitiesAreSeparate},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := open(t)
			require.NoError(t, b.Prepare([]storage.Entity{Widgets, Gadgets}))
			c.f(t, b)
		})
	}
}

// Widget returns the attributes of a test widget.
func Widget(name string, size int64, active bool) storage.Attributes {
	return storage.Attributes{
		storage.PayloadAttribute: []byte("payload:" + name),
		"name":                   name,
		"size":                   size,
		"weight":                 float64(size) / 2,
		"active":                 active,
		"seen":                   nil,
		"tag":                    nil,
	}
}

// Seed inserts widgets in a single committed session.
func Seed(t testing.TB, b storage.Backend, widgets ...storage.Attributes) []storage.RecordID {
	t.Helper()
	s, err := b.Begin(true)
	require.NoError(t, err)
	defer s.Discard()
	var ids []storage.RecordID
	for _, w := range widgets {
		rec, err := s.Insert(Widgets.Name, w)
		require.NoError(t, err)
		require.NotEmpty(t, rec.ID)
		ids = append(ids, rec.ID)
	}
	require.True(t, s.HasChanges())
	require.NoError(t, s.Save())
	return ids
}

func fetchNames(t testing.TB, b storage.Backend, req *storage.Request) []string {
	t.Helper()
	s, err := b.Begin(false)
	require.NoError(t, err)
	defer s.Discard()
	recs, err := s.Fetch(req)
	require.NoError(t, err)
	names := make([]string, 0, len(recs))
	for _, rec := range recs {
		v, _ := rec.Get("name")
		name, _ := v.(string)
		names = append(names, name)
	}
	return names
}

func count(t testing.TB, b storage.Backend, req *storage.Request) int {
	t.Helper()
	s, err := b.Begin(false)
	require.NoError(t, err)
	defer s.Discard()
	n, err := s.Count(req)
	require.NoError(t, err)
	return n
}

func all() *storage.Request {
	return storage.All(Widgets.Name, storage.ResultRecords)
}

func where(f storage.Filter) *storage.Request {
	req := all()
	req.Filter = f
	return req
}

func testInsertFetch(t *testing.T, b storage.Backend) {
	foo := Widget("foo", 3, true)
	foo["seen"] = Start
	foo["tag"] = []byte{1, 2, 3}
	bar := Widget("bar", 1, false)
	bar["seen"] = time.Time{}
	boz := Widget("boz", 2, true)
	boz["seen"] = Far
	widgets := []storage.Attributes{foo, bar, boz, Widget("qux", 0, false)}
	ids := Seed(t, b, widgets...)
	require.Len(t, ids, 4)
	require.NotEqual(t, ids[0], ids[1])
	require.NotEqual(t, ids[1], ids[2])

	s, err := b.Begin(false)
	require.NoError(t, err)
	defer s.Discard()

	recs, err := s.Fetch(all())
	require.NoError(t, err)
	require.Len(t, recs, len(widgets))
	for i, w := range widgets {
		require.Equal(t, ids[i], recs[i].ID)
		require.Equal(t, Widgets.Name, recs[i].Entity)
		for _, name := range w.Names() {
			v, ok := recs[i].Get(name)
			require.True(t, ok || w[name] == nil, "%s: attribute %s missing", w["name"], name)
			require.True(t, storage.EqualValues(w[name], v), "%s: attribute %s = %s, wanted %s", w["name"], name, storage.FormatValue(v), storage.FormatValue(w[name]))
		}
	}
	require.Equal(t, []string{"foo", "bar", "boz", "qux"}, fetchNames(t, b, all()))
}

func testReadYourWrites(t *testing.T, b storage.Backend) {
	Seed(t, b, Widget("foo", 1, true))

	s, err := b.Begin(true)
	require.NoError(t, err)
	defer s.Discard()
	require.False(t, s.HasChanges())

	_, err = s.Insert(Widgets.Name, Widget("bar", 2, true))
	require.NoError(t, err)
	require.True(t, s.HasChanges())

	n, err := s.Count(all())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	ids, err := s.Delete(where(storage.Compare{Attr: "name", Op: storage.OpEqual, Value: "foo"}))
	require.NoError(t, err)
	require.Len(t, ids, 1)

	recs, err := s.Fetch(all())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	v, _ := recs[0].Get("name")
	require.Equal(t, "bar", v)

	require.NoError(t, s.Save())
	require.Equal(t, []string{"bar"}, fetchNames(t, b, all()))
}

func testDiscard(t *testing.T, b storage.Backend) {
	Seed(t, b, Widget("foo", 1, true))

	s, err := b.Begin(true)
	require.NoError(t, err)
	_, err = s.Insert(Widgets.Name, Widget("bar", 2, true))
	require.NoError(t, err)
	_, err = s.Delete(all())
	require.NoError(t, err)
	require.NoError(t, s.Discard())
	require.NoError(t, s.Discard())

	require.Equal(t, []string{"foo"}, fetchNames(t, b, all()))
}

func testFilters(t *testing.T, b storage.Backend) {
	seen := Widget("seen", 4, false)
	seen["seen"] = Start
	Seed(t, b,
		Widget("alpha", 1, true),
		Widget("beta", 2, false),
		Widget("alpine", 3, true),
		seen,
	)

	cases := []struct {
		filter storage.Filter
		want   []string
	}{
		{nil, []string{"alpha", "beta", "alpine", "seen"}},
		{storage.Compare{Attr: "size", Op: storage.OpEqual, Value: int64(2)}, []string{"beta"}},
		{storage.Compare{Attr: "size", Op: storage.OpNotEqual, Value: int64(2)}, []string{"alpha", "alpine", "seen"}},
		{storage.Compare{Attr: "size", Op: storage.OpLess, Value: int64(2)}, []string{"alpha"}},
		{storage.Compare{Attr: "size", Op: storage.OpLessOrEqual, Value: int64(2)}, []string{"alpha", "beta"}},
		{storage.Compare{Attr: "size", Op: storage.OpGreater, Value: int64(2)}, []string{"alpine", "seen"}},
		{storage.Compare{Attr: "size", Op: storage.OpGreaterOrEqual, Value: int64(3)}, []string{"alpine", "seen"}},
		{storage.Compare{Attr: "weight", Op: storage.OpGreater, Value: 1.0}, []string{"alpine", "seen"}},
		{storage.Compare{Attr: "active", Op: storage.OpEqual, Value: true}, []string{"alpha", "alpine"}},
		{storage.Compare{Attr: "name", Op: storage.OpHasPrefix, Value: "alp"}, []string{"alpha", "alpine"}},
		{storage.Compare{Attr: "name", Op: storage.OpIn, Value: []any{"beta", "seen", "nope"}}, []string{"beta", "seen"}},
		{storage.Compare{Attr: "name", Op: storage.OpIn, Value: []any{}}, []string{}},
		{storage.Compare{Attr: "seen", Op: storage.OpEqual, Value: nil}, []string{"alpha", "beta", "alpine"}},
		{storage.Compare{Attr: "seen", Op: storage.OpNotEqual, Value: nil}, []string{"seen"}},
		{storage.Compare{Attr: "seen", Op: storage.OpGreaterOrEqual, Value: Start}, []string{"seen"}},
		{storage.And{
			storage.Compare{Attr: "active", Op: storage.OpEqual, Value: true},
			storage.Compare{Attr: "size", Op: storage.OpGreater, Value: int64(1)},
		}, []string{"alpine"}},
		{storage.Or{
			storage.Compare{Attr: "size", Op: storage.OpEqual, Value: int64(1)},
			storage.Compare{Attr: "size", Op: storage.OpEqual, Value: int64(4)},
		}, []string{"alpha", "seen"}},
		{storage.Not{Filter: storage.Compare{Attr: "active", Op: storage.OpEqual, Value: true}}, []string{"beta", "seen"}},
	}
	for _, c := range cases {
		name := "all"
		if c.filter != nil {
			name = c.filter.String()
		}
		t.Run(name, func(t *testing.T) {
			require.Equal(t, c.want, fetchNames(t, b, where(c.filter)))
			require.Equal(t, len(c.want), count(t, b, where(c.filter)))
		})
	}
}

func testSortAndWindow(t *testing.T, b storage.Backend) {
	Seed(t, b,
		Widget("c", 2, true),
		Widget("a", 1, true),
		Widget("d", 2, false),
		Widget("b", 3, true),
	)

	bySizeDescName := func() *storage.Request {
		req := all()
		req.Sort = []storage.SortKey{{Attr: "size", Descending: true}, {Attr: "name"}}
		return req
	}

	require.Equal(t, []string{"b", "c", "d", "a"}, fetchNames(t, b, bySizeDescName()))

	req := bySizeDescName()
	req.Offset = 1
	req.Limit = 2
	require.Equal(t, []string{"c", "d"}, fetchNames(t, b, req))
	require.Equal(t, 2, count(t, b, req))

	req = bySizeDescName()
	req.Offset = 3
	require.Equal(t, []string{"a"}, fetchNames(t, b, req))
	require.Equal(t, 1, count(t, b, req))

	req = bySizeDescName()
	req.Offset = 1<<63 - 1
	require.Equal(t, []string{}, fetchNames(t, b, req))
	require.Equal(t, 0, count(t, b, req))

	req = bySizeDescName()
	req.Limit = 0
	require.Equal(t, []string{}, fetchNames(t, b, req))
	require.Equal(t, 0, count(t, b, req))

	req = all()
	req.Sort = []storage.SortKey{{Attr: "active"}, {Attr: "name", Descending: true}}
	require.Equal(t, []string{"d", "c", "b", "a"}, fetchNames(t, b, req))
}

func testSortByTime(t *testing.T, b storage.Backend) {
	at := func(name string, seen any) storage.Attributes {
		w := Widget(name, 1, true)
		w["seen"] = seen
		return w
	}
	Seed(t, b,
		at("start", Start),
		at("zero", time.Time{}),
		at("never", nil),
		at("far", Far),
		at("y2k", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)),
	)

	req := all()
	req.Sort = []storage.SortKey{{Attr: "seen"}}
	require.Equal(t, []string{"never", "zero", "y2k", "start", "far"}, fetchNames(t, b, req))

	req.Sort = []storage.SortKey{{Attr: "seen", Descending: true}}
	require.Equal(t, []string{"far", "start", "y2k", "zero", "never"}, fetchNames(t, b, req))

	req = where(storage.Compare{Attr: "seen", Op: storage.OpGreater, Value: Start})
	require.Equal(t, []string{"far"}, fetchNames(t, b, req))

	req = where(storage.Compare{Attr: "seen", Op: storage.OpLess, Value: Start})
	req.Sort = []storage.SortKey{{Attr: "seen"}}
	require.Equal(t, []string{"zero", "y2k"}, fetchNames(t, b, req))
	require.Equal(t, 2, count(t, b, req))

	req = where(storage.Compare{Attr: "seen", Op: storage.OpEqual, Value: time.Time{}})
	require.Equal(t, []string{"zero"}, fetchNames(t, b, req))
}

func testDelete(t *testing.T, b storage.Backend) {
	ids := Seed(t, b,
		Widget("a", 1, true),
		Widget("b", 2, true),
		Widget("c", 3, true),
	)

	s, err := b.Begin(true)
	require.NoError(t, err)
	defer s.Discard()
	deleted, err := s.Delete(where(storage.Compare{Attr: "size", Op: storage.OpGreaterOrEqual, Value: int64(2)}))
	require.NoError(t, err)
	require.ElementsMatch(t, ids[1:], deleted)
	require.True(t, s.HasChanges())
	require.NoError(t, s.Save())

	require.Equal(t, []string{"a"}, fetchNames(t, b, all()))
}

func testRemove(t *testing.T, b storage.Backend) {
	Seed(t, b, Widget("a", 1, true), Widget("b", 2, true))

	s, err := b.Begin(true)
	require.NoError(t, err)
	defer s.Discard()
	recs, err := s.Fetch(all())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.NoError(t, s.Remove(recs[0]))
	require.True(t, s.HasChanges())
	require.NoError(t, s.Save())

	require.Equal(t, []string{"b"}, fetchNames(t, b, all()))
}

func testIDsResult(t *testing.T, b storage.Backend) {
	ids := Seed(t, b, Widget("a", 1, true), Widget("b", 2, true))

	s, err := b.Begin(false)
	require.NoError(t, err)
	defer s.Discard()
	recs, err := s.Fetch(storage.All(Widgets.Name, storage.ResultIDs))
	require.NoError(t, err)
	require.Equal(t, ids, storage.IDs(recs))
	for _, rec := range recs {
		_, ok := rec.Get(storage.PayloadAttribute)
		require.False(t, ok, "IDs-only result carries a payload")
	}
}

func testReadOnly(t *testing.T, b storage.Backend) {
	Seed(t, b, Widget("a", 1, true))

	s, err := b.Begin(false)
	require.NoError(t, err)
	defer s.Discard()
	require.False(t, s.Writable())
	require.False(t, s.HasChanges())

	_, err = s.Insert(Widgets.Name, Widget("b", 2, true))
	require.Error(t, err)
	_, err = s.Delete(all())
	require.Error(t, err)
	require.Equal(t, 1, count(t, b, all()))
}

func testEntitiesAreSeparate(t *testing.T, b storage.Backend) {
	Seed(t, b, Widget("a", 1, true))

	s, err := b.Begin(true)
	require.NoError(t, err)
	defer s.Discard()
	_, err = s.Insert(Gadgets.Name, storage.Attributes{
		storage.PayloadAttribute: []byte("g"),
		"name":                   "g",
	})
	require.NoError(t, err)
	require.NoError(t, s.Save())

	require.Equal(t, 1, count(t, b, all()))
	require.Equal(t, 1, count(t, b, storage.All(Gadgets.Name, storage.ResultCount)))

	if l, ok := b.(storage.Lister); ok {
		names, err := l.Entities()
		require.NoError(t, err)
		require.Contains(t, names, Widgets.Name)
		require.Contains(t, names, Gadgets.Name)
	}
}

// Logger returns a logger writing into the test log.
func Logger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{
		Level: slog.Level(-8),
	}))
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	msg := string(buf)
	origLen := len(msg)
	c.t.Log(strings.TrimSuffix(msg, "\n"))
	return origLen, nil
}

// Describe renders records one per line, for failure messages.
func Describe(recs []*storage.Record) string {
	var buf strings.Builder
	for _, rec := range recs {
		fmt.Fprintln(&buf, rec.String())
	}
	return buf.String()
}
