package docstore

import (
	"reflect"
	"testing"
	"time"

	"github.com/andreyvit/docstore/storage"
)

func TestIndexStorageInformation(t *testing.T) {
	deepEqual(t, notesByID.StorageInformation(), StorageInformation{
		Identifier: "id",
		Kind:       storage.String,
		Identity:   true,
		Document:   reflect.TypeFor[Note](),
	})
	deepEqual(t, notesByDue.StorageInformation(), StorageInformation{
		Identifier: "due",
		Kind:       storage.Time,
		Optional:   true,
		Document:   reflect.TypeFor[Note](),
	})
	deepEqual(t, notesByStars.StorageInformation().Kind, storage.Int)
	deepEqual(t, NewIndex("raw", func(Note) []byte { return nil }).StorageInformation().Kind, storage.Bytes)
	deepEqual(t, NewIndex("ratio", func(Note) *float32 { return nil }).StorageInformation().Attribute(), storage.AttributeSchema{
		Name:     "ratio",
		Kind:     storage.Float,
		Optional: true,
	})
}

func TestIndexValidate(t *testing.T) {
	deepEqual(t, notesByTitle.StorageInformation().Validate(), []string(nil))
	deepEqual(t, NewIndex("", func(Note) bool { return false }).StorageInformation().Validate(), []string{
		"Index identifiers may not be empty.",
	})
	for _, id := range []string{"_", "_Index"} {
		deepEqual(t, NewIndex(id, func(Note) bool { return false }).StorageInformation().Validate(), []string{
			"`" + id + "` is an invalid index identifier, identifiers may not start with `_`.",
		})
	}
}

func TestStorageInformationEqual(t *testing.T) {
	boolInfo := NewIndex("x", func(Note) *bool { return nil }).StorageInformation()
	stringInfo := NewIndex("x", func(Note) *string { return nil }).StorageInformation()
	otherStringInfo := NewIndex("y", func(Note) *string { return nil }).StorageInformation()
	otherDocInfo := NewIndex("x", func(Tag) *string { return nil }).StorageInformation()

	deepEqual(t, boolInfo.Equal(boolInfo), true)
	deepEqual(t, boolInfo.Equal(stringInfo), false)
	deepEqual(t, stringInfo.Equal(otherStringInfo), false)
	deepEqual(t, stringInfo.Equal(otherDocInfo), false)
	deepEqual(t, stringInfo.Equal(NewIndex("x", func(Note) string { return "" }).StorageInformation()), true)
}

func TestIndexIdentityIsACopy(t *testing.T) {
	idx := NewIndex("title", func(n Note) string { return n.Title })
	id := idx.Identity()
	deepEqual(t, idx.IsIdentity(), false)
	deepEqual(t, id.IsIdentity(), true)
	deepEqual(t, id.Resolve(Note{Title: "x"}), "x")
}

func TestIndexAttributeValues(t *testing.T) {
	tm := time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	n := Note{Stars: 4, Due: &tm}
	deepEqual(t, notesByStars.attributeValue(n), any(int64(4)))
	deepEqual(t, notesByDue.attributeValue(n), any(tm.UTC()))
	deepEqual(t, notesByDue.attributeValue(Note{}), nil)
}

func TestPredicateString(t *testing.T) {
	p := notesByStars.Greater(2).And(notesByTitle.In("a", "b"), notesByDue.IsNil().Not()).Or(HasPrefix(notesByTitle, "x"))
	deepEqual(t, p.String(), `((stars > 2) && (title in ["a", "b"]) && (!(due == nil))) || (title has prefix "x")`)
	deepEqual(t, Predicate[Note]{}.String(), "<none>")
	deepEqual(t, And[Note]().String(), "true")
	deepEqual(t, Or[Note]().String(), "false")
	deepEqual(t, And(Predicate[Note]{}, notesByArchived.Equal(true)).String(), "(archived == true)")
}

func TestNotOfZeroPredicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("** Not of a zero predicate did not panic")
		}
	}()
	Not(Predicate[Note]{})
}
