// Package memstore is a transient in-memory storage.Backend, mainly for tests.
//
// Every session works on a private snapshot of the whole store; Save swaps the
// snapshot in. There is at most one writable session at a time, additional
// writers block in Begin until the current one ends.
package memstore

import (
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/andreyvit/docstore/storage"
)

type Backend struct {
	mu       sync.Mutex
	cond     *sync.Cond
	entities map[string]*entity
	closed   bool
	writer   bool
}

type entity struct {
	schema  storage.Entity
	lastID  uint64
	records []*storage.Record // insertion order
}

func (e *entity) clone() *entity {
	out := &entity{
		schema:  e.schema,
		lastID:  e.lastID,
		records: make([]*storage.Record, len(e.records)),
	}
	for i, rec := range e.records {
		out.records[i] = rec.Clone()
	}
	return out
}

func (e *entity) find(id storage.RecordID) int {
	return slices.IndexFunc(e.records, func(r *storage.Record) bool { return r.ID == id })
}

func New() *Backend {
	b := &Backend{entities: make(map[string]*entity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *Backend) Prepare(entities []storage.Entity) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("memstore: closed")
	}
	for _, e := range entities {
		if ent := b.entities[e.Name]; ent != nil {
			ent.schema = e
		} else {
			b.entities[e.Name] = &entity{schema: e}
		}
	}
	return nil
}

func (b *Backend) Entities() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.entities))
	for name := range b.entities {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (b *Backend) Begin(writable bool) (storage.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("memstore: closed")
	}
	if writable {
		for b.writer && !b.closed {
			b.cond.Wait()
		}
		if b.closed {
			return nil, fmt.Errorf("memstore: closed")
		}
		b.writer = true
	}

	snap := make(map[string]*entity, len(b.entities))
	for name, e := range b.entities {
		snap[name] = e.clone()
	}
	return &session{
		base:     b,
		writable: writable,
		entities: snap,
	}, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.entities = nil
	b.cond.Broadcast()
	return nil
}

type session struct {
	base     *Backend
	writable bool
	entities map[string]*entity
	changed  bool
	closed   bool
}

func (s *session) Writable() bool { return s.writable }

func (s *session) entity(name string) (*entity, error) {
	if s.closed {
		return nil, storage.ErrSessionClosed
	}
	e := s.entities[name]
	if e == nil {
		return nil, fmt.Errorf("memstore: %w %q", storage.ErrUnknownEntity, name)
	}
	return e, nil
}

func (s *session) writableEntity(name string) (*entity, error) {
	e, err := s.entity(name)
	if err != nil {
		return nil, err
	}
	if !s.writable {
		return nil, storage.ErrNotWritable
	}
	return e, nil
}

func (s *session) Count(req *storage.Request) (int, error) {
	e, err := s.entity(req.Entity)
	if err != nil {
		return 0, err
	}
	return len(storage.Evaluate(req, e.records)), nil
}

func (s *session) Fetch(req *storage.Request) ([]*storage.Record, error) {
	e, err := s.entity(req.Entity)
	if err != nil {
		return nil, err
	}
	matched := storage.Evaluate(req, e.records)
	out := make([]*storage.Record, len(matched))
	for i, rec := range matched {
		out[i] = rec.Clone()
	}
	return storage.Project(req, out), nil
}

func (s *session) Delete(req *storage.Request) ([]storage.RecordID, error) {
	e, err := s.writableEntity(req.Entity)
	if err != nil {
		return nil, err
	}
	ids := storage.IDs(storage.Evaluate(req, e.records))
	if len(ids) == 0 {
		return nil, nil
	}
	e.records = slices.DeleteFunc(e.records, func(r *storage.Record) bool {
		return slices.Contains(ids, r.ID)
	})
	s.changed = true
	return ids, nil
}

func (s *session) Insert(entityName string, attrs storage.Attributes) (*storage.Record, error) {
	e, err := s.writableEntity(entityName)
	if err != nil {
		return nil, err
	}
	e.lastID++
	rec := &storage.Record{
		ID:     storage.RecordID(strconv.FormatUint(e.lastID, 10)),
		Entity: entityName,
		Attrs:  attrs.Clone(),
	}
	e.records = append(e.records, rec)
	s.changed = true
	return rec.Clone(), nil
}

func (s *session) Remove(rec *storage.Record) error {
	e, err := s.writableEntity(rec.Entity)
	if err != nil {
		return err
	}
	i := e.find(rec.ID)
	if i < 0 {
		return nil
	}
	e.records = slices.Delete(e.records, i, i+1)
	s.changed = true
	return nil
}

func (s *session) HasChanges() bool {
	return s.changed
}

func (s *session) Save() error {
	if s.closed {
		return storage.ErrSessionClosed
	}
	if !s.writable {
		return storage.ErrNotWritable
	}
	s.base.mu.Lock()
	defer s.base.mu.Unlock()
	if s.base.closed {
		s.closeLocked()
		return fmt.Errorf("memstore: closed")
	}
	s.base.entities = s.entities
	s.closeLocked()
	return nil
}

func (s *session) Discard() error {
	s.base.mu.Lock()
	defer s.base.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	if s.writable {
		s.base.writer = false
		s.base.cond.Broadcast()
	}
}
