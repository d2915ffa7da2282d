package docstore

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"

	"github.com/andreyvit/docstore/storage"
)

type Options struct {
	Logger  *slog.Logger
	Verbose bool
}

// Store is a set of registered document types on top of a backend.
type Store struct {
	backend     storage.Backend
	descriptors []*AnyDocumentDescriptor
	logger      *slog.Logger
	verbose     bool
}

// Open validates and registers the descriptors, then prepares the backend
// entities. Registering the same descriptor twice is fine; two different
// descriptors with one identifier are not.
func Open(backend storage.Backend, opt Options, descriptors ...Erasable) (*Store, error) {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend: backend,
		logger:  logger,
		verbose: opt.Verbose,
	}

	var errs []error
	for _, e := range descriptors {
		ad := e.Erase()
		if issues := ad.Validate(); len(issues) > 0 {
			errs = append(errs, &Error{
				Kind:     ErrConfiguration,
				Document: ad.Identifier,
				Msg:      "invalid descriptor",
				Err:      &ValidationError{Descriptor: ad, Issues: issues},
			})
			continue
		}
		if i := slices.IndexFunc(s.descriptors, func(x *AnyDocumentDescriptor) bool { return x.Identifier == ad.Identifier }); i >= 0 {
			if !s.descriptors[i].Equal(ad) {
				errs = append(errs, &Error{
					Kind:     ErrConfiguration,
					Document: ad.Identifier,
					Msg:      fmt.Sprintf("conflicting descriptors %v and %v", s.descriptors[i], ad),
				})
			}
			continue
		}
		s.descriptors = append(s.descriptors, ad)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	entities := make([]storage.Entity, len(s.descriptors))
	for i, ad := range s.descriptors {
		entities[i] = ad.Entity()
	}
	if err := backend.Prepare(entities); err != nil {
		s.log(LevelError, "docstore: prepare failed", slog.Any("err", err))
		return nil, &Error{Kind: ErrRequestFailed, Msg: "prepare", Err: err}
	}
	s.trace("docstore: opened", slog.Int("documents", len(s.descriptors)))
	return s, nil
}

func (s *Store) Backend() storage.Backend {
	return s.backend
}

func (s *Store) Descriptors() []*AnyDocumentDescriptor {
	return slices.Clone(s.descriptors)
}

func (s *Store) IsRegistered(e Erasable) bool {
	ad := e.Erase()
	return slices.ContainsFunc(s.descriptors, ad.Equal)
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) begin(writable bool) (*Tx, error) {
	session, err := s.backend.Begin(writable)
	if err != nil {
		s.log(LevelError, "docstore: begin failed", slog.Bool("writable", writable), slog.Any("err", err))
		return nil, &Error{Kind: ErrRequestFailed, Msg: "begin", Err: err}
	}
	return &Tx{store: s, session: session}, nil
}

func (s *Store) BeginRead() (*Tx, error) {
	return s.begin(false)
}

func (s *Store) BeginWrite() (*WriteTx, error) {
	tx, err := s.begin(true)
	if err != nil {
		return nil, err
	}
	return &WriteTx{tx}, nil
}

// Read runs f in a read-only transaction, discarded afterwards.
func (s *Store) Read(f func(tx *Tx) error) error {
	tx, err := s.BeginRead()
	if err != nil {
		return err
	}
	defer tx.Discard()
	return safelyCall(f, tx)
}

// Write runs f in a read-write transaction. Changes are saved when f returns
// nil and discarded when it fails or panics. f may call SaveChanges or
// Discard itself.
func (s *Store) Write(f func(wtx *WriteTx) error) error {
	wtx, err := s.BeginWrite()
	if err != nil {
		return err
	}
	defer wtx.Discard()
	if err := safelyCall(f, wtx); err != nil {
		return err
	}
	if wtx.IsClosed() {
		return nil
	}
	return wtx.SaveChanges()
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall[X any](fn func(X) error, x X) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(x)
}
