// Package boltstore implements storage.Backend on top of Bolt.
//
// Each entity is a root bucket. Keys are big-endian uint64 sequence numbers,
// so a cursor walks records in insertion order. Values are:
//
//  1. Format version (1 byte).
//  2. xxhash64 of the payload attribute, big-endian (8 bytes, zero when
//     there's no payload).
//  3. msgpack of the attribute map, keys sorted.
//
// Bolt has no query language, so filtering, sorting and windowing happen in
// process via storage.Evaluate.
package boltstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/andreyvit/docstore/storage"
)

type Options struct {
	Logger    *slog.Logger
	Verbose   bool
	IsTesting bool
	MmapSize  int
	Timeout   time.Duration
}

type Backend struct {
	bdb     *bbolt.DB
	logger  *slog.Logger
	verbose bool
}

func Open(path string, opt Options) (*Backend, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = opt.Timeout
	if bopt.Timeout == 0 {
		bopt.Timeout = 10 * time.Second
	}
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 64
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("boltstore: %w", err)
	}

	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		bdb:     bdb,
		logger:  logger,
		verbose: opt.Verbose,
	}, nil
}

func (b *Backend) Bolt() *bbolt.DB {
	return b.bdb
}

func (b *Backend) Prepare(entities []storage.Entity) error {
	return b.bdb.Update(func(btx *bbolt.Tx) error {
		for _, e := range entities {
			if _, err := btx.CreateBucketIfNotExists([]byte(e.Name)); err != nil {
				return fmt.Errorf("boltstore: creating bucket %s: %w", e.Name, err)
			}
		}
		return nil
	})
}

func (b *Backend) Entities() ([]string, error) {
	var names []string
	err := b.bdb.View(func(btx *bbolt.Tx) error {
		return btx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

func (b *Backend) Begin(writable bool) (storage.Session, error) {
	btx, err := b.bdb.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("boltstore: begin: %w", err)
	}
	return &session{b: b, btx: btx}, nil
}

func (b *Backend) Close() error {
	return b.bdb.Close()
}

func (b *Backend) trace(msg string, attrs ...slog.Attr) {
	if b.verbose {
		b.logger.LogAttrs(context.Background(), slog.Level(-8), msg, attrs...)
	}
}

type session struct {
	b       *Backend
	btx     *bbolt.Tx
	changed bool
	closed  bool
}

func (s *session) Writable() bool { return s.btx.Writable() }

func (s *session) bucket(entity string) (*bbolt.Bucket, error) {
	if s.closed {
		return nil, storage.ErrSessionClosed
	}
	buck := s.btx.Bucket([]byte(entity))
	if buck == nil {
		return nil, fmt.Errorf("boltstore: %w %q", storage.ErrUnknownEntity, entity)
	}
	return buck, nil
}

func (s *session) writableBucket(entity string) (*bbolt.Bucket, error) {
	buck, err := s.bucket(entity)
	if err != nil {
		return nil, err
	}
	if !s.btx.Writable() {
		return nil, storage.ErrNotWritable
	}
	return buck, nil
}

func (s *session) scan(entity string) ([]*storage.Record, error) {
	buck, err := s.bucket(entity)
	if err != nil {
		return nil, err
	}
	var records []*storage.Record
	c := buck.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		records = append(records, s.b.decodeRecord(entity, k, v))
	}
	return records, nil
}

func (s *session) Count(req *storage.Request) (int, error) {
	records, err := s.scan(req.Entity)
	if err != nil {
		return 0, err
	}
	return len(storage.Evaluate(req, records)), nil
}

func (s *session) Fetch(req *storage.Request) ([]*storage.Record, error) {
	records, err := s.scan(req.Entity)
	if err != nil {
		return nil, err
	}
	return storage.Project(req, storage.Evaluate(req, records)), nil
}

func (s *session) Delete(req *storage.Request) ([]storage.RecordID, error) {
	buck, err := s.writableBucket(req.Entity)
	if err != nil {
		return nil, err
	}
	records, err := s.scan(req.Entity)
	if err != nil {
		return nil, err
	}
	matched := storage.Evaluate(req, records)
	for _, rec := range matched {
		if err := s.deleteKey(buck, rec); err != nil {
			return nil, err
		}
	}
	return storage.IDs(matched), nil
}

func (s *session) Insert(entity string, attrs storage.Attributes) (*storage.Record, error) {
	buck, err := s.writableBucket(entity)
	if err != nil {
		return nil, err
	}
	seq, err := buck.NextSequence()
	if err != nil {
		return nil, fmt.Errorf("boltstore: %s: %w", entity, err)
	}
	value, err := encodeValue(attrs)
	if err != nil {
		return nil, fmt.Errorf("boltstore: %s: %w", entity, err)
	}
	key := makeKey(seq)
	if err := buck.Put(key, value); err != nil {
		return nil, fmt.Errorf("boltstore: %s: %w", entity, err)
	}
	s.changed = true

	rec := &storage.Record{ID: formatID(seq), Entity: entity, Attrs: attrs.Clone()}
	s.b.trace("boltstore: INSERT", slog.String("entity", entity), slog.String("id", string(rec.ID)), slog.Int("size", len(value)))
	return rec, nil
}

func (s *session) Remove(rec *storage.Record) error {
	buck, err := s.writableBucket(rec.Entity)
	if err != nil {
		return err
	}
	return s.deleteKey(buck, rec)
}

func (s *session) deleteKey(buck *bbolt.Bucket, rec *storage.Record) error {
	key, err := parseID(rec.ID)
	if err != nil {
		return fmt.Errorf("boltstore: %s: %w", rec.Entity, err)
	}
	if err := buck.Delete(key); err != nil {
		return fmt.Errorf("boltstore: %s/%s: %w", rec.Entity, rec.ID, err)
	}
	s.changed = true
	s.b.trace("boltstore: DELETE", slog.String("entity", rec.Entity), slog.String("id", string(rec.ID)))
	return nil
}

func (s *session) HasChanges() bool {
	return s.changed
}

func (s *session) Save() error {
	if s.closed {
		return storage.ErrSessionClosed
	}
	if !s.btx.Writable() {
		return storage.ErrNotWritable
	}
	s.closed = true
	if err := s.btx.Commit(); err != nil {
		return fmt.Errorf("boltstore: commit: %w", err)
	}
	return nil
}

func (s *session) Discard() error {
	s.closed = true
	// The only error Rollback returns is ErrTxClosed, which just means the
	// session was already committed or discarded.
	err := s.btx.Rollback()
	if err != nil && err != bbolt.ErrTxClosed {
		return fmt.Errorf("boltstore: rollback: %w", err)
	}
	return nil
}

func makeKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, seq)
}

func formatID(seq uint64) storage.RecordID {
	return storage.RecordID(strconv.FormatUint(seq, 10))
}

func parseID(id storage.RecordID) ([]byte, error) {
	seq, err := strconv.ParseUint(string(id), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid record ID %q", id)
	}
	return makeKey(seq), nil
}
