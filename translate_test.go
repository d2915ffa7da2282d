package docstore

import (
	"math"
	"testing"

	"github.com/andreyvit/docstore/storage"
)

func TestTranslateDefaults(t *testing.T) {
	deepEqual(t, NewQuery[Note]().request("Note", storage.ResultRecords), &storage.Request{
		Entity: "Note",
		Result: storage.ResultRecords,
		Limit:  storage.NoLimit,
	})
}

func TestTranslateWindow(t *testing.T) {
	req := NewQuery[Note]().Skipping(7).Limited(0).request("Note", storage.ResultIDs)
	deepEqual(t, req.Offset, int64(7))
	deepEqual(t, req.Limit, int64(0))
	deepEqual(t, req.Result, storage.ResultIDs)
}

func TestTranslateClampsToInt64(t *testing.T) {
	req := NewQuery[Note]().Skipping(math.MaxUint64).Limited(math.MaxUint64).request("Note", storage.ResultCount)
	deepEqual(t, req.Offset, int64(math.MaxInt64))
	deepEqual(t, req.Limit, int64(math.MaxInt64))

	req = NewQuery[Note]().Skipping(math.MaxInt64 + 1).request("Note", storage.ResultCount)
	deepEqual(t, req.Offset, int64(math.MaxInt64))
}

func TestTranslatePredicate(t *testing.T) {
	q := Where(Or(
		notesByStars.Greater(2).And(notesByTitle.In("a", "b")),
		Not(notesByDue.IsNil()),
		HasPrefix(notesByTitle, "x"),
	))
	req := q.request("Note", storage.ResultRecords)
	deepEqual(t, req.Filter, storage.Filter(storage.Or{
		storage.And{
			storage.Compare{Attr: "stars", Op: storage.OpGreater, Value: int64(2)},
			storage.Compare{Attr: "title", Op: storage.OpIn, Value: []any{"a", "b"}},
		},
		storage.Not{Filter: storage.Compare{Attr: "due", Op: storage.OpEqual, Value: nil}},
		storage.Compare{Attr: "title", Op: storage.OpHasPrefix, Value: "x"},
	}))
}

func TestTranslateSort(t *testing.T) {
	q := NewQuery[Note]().Sorted(notesByStars.Descending()).ThenSorted(notesByTitle.Ascending())
	deepEqual(t, q.request("Note", storage.ResultRecords).Sort, []storage.SortKey{
		{Attr: "stars", Descending: true},
		{Attr: "title"},
	})
}

func TestTranslatedRequestMatches(t *testing.T) {
	n := Note{ID: "a", Title: "Hello", Stars: 5}
	attrs := noteDesc.attributes(n, nil)

	match := func(p Predicate[Note]) bool {
		return storage.Match(Where(p).request("Note", storage.ResultRecords).Filter, attrs)
	}
	deepEqual(t, match(notesByStars.Equal(5)), true)
	deepEqual(t, match(notesByStars.Less(5)), false)
	deepEqual(t, match(notesByDue.IsNil()), true)
	deepEqual(t, match(HasPrefix(notesByTitle, "He").And(notesByArchived.Equal(false))), true)
	deepEqual(t, match(notesByID.In()), false)
	deepEqual(t, match(Or[Note]()), false)
	deepEqual(t, match(And[Note]()), true)
}
