package docstore

import (
	"errors"
	"testing"
)

func TestValidDescriptor(t *testing.T) {
	deepEqual(t, noteDesc.Erase().Validate(), []string(nil))
	deepEqual(t, NewDescriptor[Note]("Note").Erase().Validate(), []string(nil))
}

func TestDescriptorEmptyIdentifier(t *testing.T) {
	deepEqual(t, NewDescriptor[Note]("").Erase().Validate(), []string{
		"DocumentDescriptor identifiers may not be empty.",
	})
}

func TestDescriptorReservedIdentifier(t *testing.T) {
	for _, id := range []string{"_", "_Something"} {
		deepEqual(t, NewDescriptor[Note](id).Erase().Validate(), []string{
			"`" + id + "` is an invalid DocumentDescriptor identifier, identifiers may not start with `_`.",
		})
	}
}

func TestDescriptorDuplicateIndexIdentifiers(t *testing.T) {
	d := NewDescriptor[Note]("Note",
		NewIndex("dup", func(Note) bool { return false }),
		NewIndex("other", func(Note) int { return 0 }),
		NewIndex("dup", func(Note) string { return "" }),
		NewIndex("dup", func(Note) float64 { return 0 }),
	)
	deepEqual(t, d.Erase().Validate(), []string{
		"DocumentDescriptor `Note` has multiple indices with `dup` as identifier, every index identifier must be unique.",
	})
}

func TestDescriptorInvalidIndex(t *testing.T) {
	invalid := NewIndex("_", func(Note) bool { return false })
	indexIssues := invalid.StorageInformation().Validate()
	if len(indexIssues) == 0 {
		t.Fatal("** index _ is valid")
	}
	deepEqual(t, NewDescriptor[Note]("Note", invalid).Erase().Validate(), indexIssues)
}

func TestDescriptorMultipleIssues(t *testing.T) {
	d := NewDescriptor[Note]("_",
		NewIndex("dup", func(Note) bool { return false }),
		NewIndex("_", func(Note) bool { return false }),
		NewIndex("dup", func(Note) string { return "" }),
		NewIndex("", func(Note) string { return "" }),
	)
	deepEqual(t, d.Erase().Validate(), []string{
		"`_` is an invalid DocumentDescriptor identifier, identifiers may not start with `_`.",
		"DocumentDescriptor `_` has multiple indices with `dup` as identifier, every index identifier must be unique.",
		"`_` is an invalid index identifier, identifiers may not start with `_`.",
		"Index identifiers may not be empty.",
	})
}

func TestDescriptorMultipleIdentities(t *testing.T) {
	d := NewDescriptor[Note]("Note",
		NewIndex("a", func(n Note) string { return n.ID }).Identity(),
		NewIndex("b", func(n Note) string { return n.Title }).Identity(),
	)
	deepEqual(t, d.Erase().Validate(), []string{
		"DocumentDescriptor `Note` declares multiple identity indices (`a`, `b`), at most one is allowed.",
	})
}

func TestDescriptorEqual(t *testing.T) {
	title := NewIndex("title", func(n Note) string { return n.Title })
	stars := NewIndex("stars", func(n Note) Stars { return n.Stars })

	a := NewDescriptor[Note]("Note", title, stars).Erase()
	deepEqual(t, a.Equal(a), true)
	deepEqual(t, a.Equal(NewDescriptor[Note]("Note", title, stars).Erase()), true)
	deepEqual(t, a.Equal(NewDescriptor[Note]("Other", title, stars).Erase()), false)
	deepEqual(t, a.Equal(NewDescriptor[Note]("Note", stars, title).Erase()), false)
	deepEqual(t, a.Equal(NewDescriptor[Note]("Note", title).Erase()), false)
	deepEqual(t, a.Equal(NewDescriptor[Note]("Note", title, NewIndex("stars", func(n Note) string { return "" })).Erase()), false)
	deepEqual(t, a.Equal(nil), false)
}

func TestDescriptorWithMethodsCopy(t *testing.T) {
	d := NewDescriptor[Note]("Note")
	deleting := d.OnCorruption(ResolutionDelete)
	deepEqual(t, d.CorruptionResolution(), ResolutionSkip)
	deepEqual(t, deleting.CorruptionResolution(), ResolutionDelete)
	deepEqual(t, deleting.Erase().Equal(d.Erase()), true)

	jsonDesc := d.WithCodec(JSON[Note]())
	raw := must(jsonDesc.Codec().Encode(Note{ID: "x"}))
	deepEqual(t, string(raw), `{"ID":"x","Title":"","Stars":0,"Archived":false,"Due":null}`)
}

func TestDescriptorString(t *testing.T) {
	deepEqual(t, noteDesc.String(), "Note(id:string identity, title:string, stars:int, archived:bool, due:?time)")
}

func TestOpenRejectsInvalidDescriptors(t *testing.T) {
	_, err := Open(&countingBackend{}, Options{}, NewDescriptor[Note]("_"), NewDescriptor[Tag](""))
	isErr(t, err, ErrConfiguration)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("** got %T, wanted ValidationError inside", err)
	}
	deepEqual(t, verr.Descriptor.Identifier, "_")
}
