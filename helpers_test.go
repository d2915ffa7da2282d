package docstore

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/andreyvit/docstore/storage"
	"github.com/andreyvit/docstore/storage/memstore"
)

type (
	Stars uint8

	Note struct {
		ID       string     `msgpack:"id"`
		Title    string     `msgpack:"title"`
		Stars    Stars      `msgpack:"stars"`
		Archived bool       `msgpack:"archived,omitempty"`
		Due      *time.Time `msgpack:"due,omitempty"`
	}

	// Draft deletes corrupted records.
	Draft struct {
		ID   string `msgpack:"id"`
		Body string `msgpack:"body"`
	}

	// Memo uses memoCodec.
	Memo struct {
		Text string `msgpack:"text"`
	}

	// Tag is never registered.
	Tag struct {
		Name string `msgpack:"name"`
	}

	// Ticket has an optional identity.
	Ticket struct {
		Ref  *string `msgpack:"ref"`
		Body string  `msgpack:"body"`
	}
)

var (
	notesByID       = NewIndex("id", func(n Note) string { return n.ID }).Identity()
	notesByTitle    = NewIndex("title", func(n Note) string { return n.Title })
	notesByStars    = NewIndex("stars", func(n Note) Stars { return n.Stars })
	notesByArchived = NewIndex("archived", func(n Note) bool { return n.Archived })
	notesByDue      = NewIndex("due", func(n Note) *time.Time { return n.Due })
	noteDesc        = NewDescriptor[Note]("Note", notesByID, notesByTitle, notesByStars, notesByArchived, notesByDue)

	draftsByID = NewIndex("id", func(d Draft) string { return d.ID })
	draftDesc  = NewDescriptor[Draft]("Draft", draftsByID).OnCorruption(ResolutionDelete)

	memosByText = NewIndex("text", func(m Memo) string { return m.Text })
	memoDesc    = NewDescriptor[Memo]("Memo", memosByText).WithCodec(memoCodec{})

	tagsByName = NewIndex("name", func(t Tag) string { return t.Name })
	tagDesc    = NewDescriptor[Tag]("Tag", tagsByName)

	ticketsByRef = NewIndex("ref", func(t Ticket) *string { return t.Ref }).Identity()
	ticketDesc   = NewDescriptor[Ticket]("Ticket", ticketsByRef)
)

func (Note) DocumentDescriptor() *DocumentDescriptor[Note]     { return noteDesc }
func (Draft) DocumentDescriptor() *DocumentDescriptor[Draft]   { return draftDesc }
func (Memo) DocumentDescriptor() *DocumentDescriptor[Memo]     { return memoDesc }
func (Tag) DocumentDescriptor() *DocumentDescriptor[Tag]       { return tagDesc }
func (Ticket) DocumentDescriptor() *DocumentDescriptor[Ticket] { return ticketDesc }

var errMemoRejected = errors.New("memo rejected")

// memoCodec refuses to encode empty memos and asks for deletion of memos it
// can't decode.
type memoCodec struct{}

func (memoCodec) Encode(m Memo) ([]byte, error) {
	if m.Text == "" {
		return nil, errMemoRejected
	}
	return MsgPack[Memo]().Encode(m)
}

func (memoCodec) Decode(data []byte) (Memo, error) {
	m, err := MsgPack[Memo]().Decode(data)
	if err != nil {
		return m, &CorruptionError{Resolution: ResolutionDelete, Err: err}
	}
	return m, nil
}

// countingBackend counts every session call that reaches the store.
type countingBackend struct {
	storage.Backend
	calls       int
	saves       int
	failSave    error
	failDiscard error
}

func (b *countingBackend) Begin(writable bool) (storage.Session, error) {
	s, err := b.Backend.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &countingSession{Session: s, b: b}, nil
}

type countingSession struct {
	storage.Session
	b *countingBackend
}

func (s *countingSession) Count(req *storage.Request) (int, error) {
	s.b.calls++
	return s.Session.Count(req)
}

func (s *countingSession) Fetch(req *storage.Request) ([]*storage.Record, error) {
	s.b.calls++
	return s.Session.Fetch(req)
}

func (s *countingSession) Delete(req *storage.Request) ([]storage.RecordID, error) {
	s.b.calls++
	return s.Session.Delete(req)
}

func (s *countingSession) Insert(entity string, attrs storage.Attributes) (*storage.Record, error) {
	s.b.calls++
	return s.Session.Insert(entity, attrs)
}

func (s *countingSession) Remove(rec *storage.Record) error {
	s.b.calls++
	return s.Session.Remove(rec)
}

func (s *countingSession) Save() error {
	s.b.saves++
	if s.b.failSave != nil {
		return s.b.failSave
	}
	return s.Session.Save()
}

func (s *countingSession) Discard() error {
	err := s.Session.Discard()
	if s.b.failDiscard != nil {
		return s.b.failDiscard
	}
	return err
}

type fixture struct {
	store   *Store
	backend *countingBackend
	logs    *bytes.Buffer
}

func setup(t testing.TB, descriptors ...Erasable) *fixture {
	t.Helper()
	f := &fixture{
		backend: &countingBackend{Backend: memstore.New()},
		logs:    new(bytes.Buffer),
	}
	logger := slog.New(slog.NewTextHandler(io.MultiWriter(f.logs, &logWriter{t}), &slog.HandlerOptions{
		Level: LevelTrace,
	}))
	store, err := Open(f.backend, Options{Logger: logger, Verbose: true}, descriptors...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	f.store = store
	return f
}

// raw returns every record of the entity straight from the backend.
func (f *fixture) raw(t testing.TB, entity string) []*storage.Record {
	t.Helper()
	s := must(f.backend.Backend.Begin(false))
	defer s.Discard()
	return must(s.Fetch(storage.All(entity, storage.ResultRecords)))
}

// insertRaw stores attrs bypassing docstore.
func (f *fixture) insertRaw(t testing.TB, entity string, attrs storage.Attributes) {
	t.Helper()
	s := must(f.backend.Backend.Begin(true))
	defer s.Discard()
	must(s.Insert(entity, attrs))
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) write(t testing.TB, fn func(wtx *WriteTx)) {
	t.Helper()
	err := f.store.Write(func(wtx *WriteTx) error {
		fn(wtx)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) read(t testing.TB, fn func(tx *Tx)) {
	t.Helper()
	err := f.store.Read(func(tx *Tx) error {
		fn(tx)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	c.t.Log(strings.TrimSuffix(string(buf), "\n"))
	return len(buf), nil
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ok(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("** unexpected error: %v", err)
	}
}

var typeComparer = cmp.Comparer(func(a, b reflect.Type) bool { return a == b })

func deepEqual[T any](t testing.TB, a, e T) {
	t.Helper()
	if diff := cmp.Diff(e, a, typeComparer); diff != "" {
		t.Errorf("** got %v, wanted %v, diff (-want +got):\n%s", a, e, diff)
	}
}

func isErr(t testing.TB, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("** got error %v, wanted %v", err, target)
	}
}

func ptr[T any](v T) *T {
	return &v
}
