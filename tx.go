package docstore

import (
	"errors"
	"log/slog"

	"github.com/andreyvit/docstore/storage"
)

// Txish is satisfied by *Tx and *WriteTx, so read operations accept either.
type Txish interface {
	DocTx() *Tx
}

// Tx is a read-only unit of work over one backend session. A Tx is
// single-use: once discarded or saved, every operation fails with
// ErrTransactionClosed.
type Tx struct {
	store   *Store
	session storage.Session
	closed  bool
}

// WriteTx additionally allows Delete, Add and SaveChanges.
type WriteTx struct {
	*Tx
}

// DocTx implements Txish
func (tx *Tx) DocTx() *Tx {
	return tx
}

func (tx *Tx) Store() *Store {
	return tx.store
}

func (tx *Tx) IsWritable() bool {
	return tx.session.Writable()
}

func (tx *Tx) IsClosed() bool {
	return tx.closed
}

// Discard abandons the transaction and its uncommitted changes. Calling it on
// a closed transaction does nothing.
func (tx *Tx) Discard() error {
	if tx.closed {
		return nil
	}
	tx.closed = true
	if err := tx.session.Discard(); err != nil {
		tx.store.log(LevelError, "docstore: discard failed", slog.Any("err", err))
		return &Error{Kind: ErrRequestFailed, Msg: "discard", Err: err}
	}
	return nil
}

// SaveChanges commits pending changes, if there are any, and closes the
// transaction.
func (wtx *WriteTx) SaveChanges() error {
	tx := wtx.Tx
	if tx.closed {
		return &Error{Kind: ErrTransactionClosed}
	}
	tx.closed = true
	if !tx.session.HasChanges() {
		tx.store.trace("docstore: nothing to save")
		if err := tx.session.Discard(); err != nil {
			tx.store.log(LevelWarn, "docstore: discard failed", slog.Any("err", err))
		}
		return nil
	}
	if err := tx.session.Save(); err != nil {
		if derr := tx.session.Discard(); derr != nil {
			tx.store.log(LevelWarn, "docstore: discard failed", slog.Any("err", derr))
		}
		tx.store.log(LevelError, "docstore: commit failed", slog.Any("err", err))
		return &Error{Kind: ErrCommitFailed, Err: err}
	}
	tx.store.trace("docstore: saved")
	return nil
}

// check returns the registered descriptor of T, or the error every operation
// must fail with before touching the store.
func check[T Document[T]](tx *Tx) (*DocumentDescriptor[T], error) {
	d := descriptorOf[T]()
	if tx.closed {
		return nil, &Error{Kind: ErrTransactionClosed, Document: d.identifier}
	}
	if !tx.store.IsRegistered(d) {
		return nil, &Error{Kind: ErrConfiguration, Document: d.identifier, Msg: "document type not registered"}
	}
	return d, nil
}

func (tx *Tx) requestFailed(d string, op string, req *storage.Request, err error) error {
	attrs := []slog.Attr{slog.String("document", d), slog.String("op", op)}
	if req != nil {
		attrs = append(attrs, slog.String("request", req.String()))
	}
	attrs = append(attrs, slog.Any("err", err))
	tx.store.log(LevelError, "docstore: request failed", attrs...)
	return &Error{Kind: ErrRequestFailed, Document: d, Msg: op, Err: err}
}

// Count returns how many documents the query selects, honoring its skip and
// limit.
func Count[T Document[T]](txish Txish, q Query[T]) (int, error) {
	tx := txish.DocTx()
	d, err := check[T](tx)
	if err != nil {
		return 0, err
	}
	req := q.request(d.identifier, storage.ResultCount)
	n, err := tx.session.Count(req)
	if err != nil {
		return 0, tx.requestFailed(d.identifier, "count", req, err)
	}
	tx.store.trace("docstore: COUNT", slog.String("request", req.String()), slog.Int("count", n))
	return n, nil
}

// Fetch returns the documents the query selects, in store order. Records that
// fail to decode are resolved (skipped or deleted) and logged instead of
// failing the fetch.
func Fetch[T Document[T]](txish Txish, q Query[T]) ([]T, error) {
	tx := txish.DocTx()
	d, err := check[T](tx)
	if err != nil {
		return nil, err
	}
	req := q.request(d.identifier, storage.ResultRecords)
	records, err := tx.session.Fetch(req)
	if err != nil {
		return nil, tx.requestFailed(d.identifier, "fetch", req, err)
	}
	tx.store.trace("docstore: FETCH", slog.String("request", req.String()), slog.Int("records", len(records)))

	docs := make([]T, 0, len(records))
	for _, rec := range records {
		doc, err := decodeRecord(d, rec)
		if err == nil {
			docs = append(docs, doc)
			continue
		}
		if err := tx.resolve(d.identifier, d.onCorruption, rec, err); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// FetchOne returns the first document the query selects.
func FetchOne[T Document[T]](txish Txish, q Query[T]) (T, bool, error) {
	var zero T
	docs, err := Fetch[T](txish, q.Limited(1))
	if err != nil || len(docs) == 0 {
		return zero, false, err
	}
	return docs[0], true, nil
}

func decodeRecord[T any](d *DocumentDescriptor[T], rec *storage.Record) (T, error) {
	var zero T
	raw, ok := rec.Attrs[storage.PayloadAttribute]
	if !ok || raw == nil {
		return zero, errMissingPayload
	}
	payload, ok := raw.([]byte)
	if !ok {
		return zero, dataErrf(nil, nil, "payload attribute holds %T instead of bytes", raw)
	}
	return d.codec.Decode(payload)
}

// resolve applies the corruption resolution for rec. It only fails when a
// delete resolution can't remove the record.
func (tx *Tx) resolve(document string, fallback Resolution, rec *storage.Record, cause error) error {
	ce := &CorruptionError{Resolution: fallback, Err: cause}
	var custom *CorruptionError
	if errors.As(cause, &custom) {
		ce.Resolution = custom.Resolution
		ce.Err = custom.Err
	}
	ce.Document = document
	ce.RecordID = rec.ID

	if ce.Resolution == ResolutionDelete && !tx.session.Writable() {
		tx.store.log(LevelWarn, "docstore: can't delete corrupted record in a read-only transaction, skipping",
			slog.String("document", document),
			slog.String("id", string(rec.ID)))
		ce.Resolution = ResolutionSkip
	}

	tx.store.log(LevelWarn, "docstore: corrupted record",
		slog.String("document", document),
		slog.String("id", string(rec.ID)),
		slog.String("resolution", ce.Resolution.String()),
		slog.Any("err", ce.Err))

	if ce.Resolution == ResolutionDelete {
		if err := tx.session.Remove(rec); err != nil {
			return tx.requestFailed(document, "remove corrupted record", nil, err)
		}
	}
	return nil
}

// Delete removes every document the query selects and returns how many were
// removed.
func Delete[T Document[T]](wtx *WriteTx, q Query[T]) (int, error) {
	tx := wtx.Tx
	d, err := check[T](tx)
	if err != nil {
		return 0, err
	}
	req := q.request(d.identifier, storage.ResultIDs)
	ids, err := tx.session.Delete(req)
	if err != nil {
		return 0, tx.requestFailed(d.identifier, "delete", req, err)
	}
	tx.store.trace("docstore: DELETE", slog.String("request", req.String()), slog.Int("deleted", len(ids)))
	return len(ids), nil
}

// Add stores doc as a new record: the encoded payload plus one attribute per
// index. If the descriptor has an identity index, records with the same
// identity value are replaced. A nil identity never matches another document.
func Add[T Document[T]](wtx *WriteTx, doc T) error {
	tx := wtx.Tx
	d, err := check[T](tx)
	if err != nil {
		return err
	}
	payload, err := d.codec.Encode(doc)
	if err != nil {
		return &Error{Kind: ErrSerializationFailed, Document: d.identifier, Err: err}
	}
	attrs := d.attributes(doc, payload)

	if idx := d.identityIndex(); idx != nil && attrs[idx.Identifier()] != nil {
		req := storage.All(d.identifier, storage.ResultIDs)
		req.Filter = storage.Compare{Attr: idx.Identifier(), Op: storage.OpEqual, Value: attrs[idx.Identifier()]}
		replaced, err := tx.session.Delete(req)
		if err != nil {
			return tx.requestFailed(d.identifier, "replace", req, err)
		}
		if len(replaced) > 0 {
			tx.store.trace("docstore: REPLACE", slog.String("document", d.identifier), slog.Int("replaced", len(replaced)))
		}
	}

	rec, err := tx.session.Insert(d.identifier, attrs)
	if err != nil {
		return tx.requestFailed(d.identifier, "insert", nil, err)
	}
	tx.store.trace("docstore: ADD", slog.String("document", d.identifier), slog.String("id", string(rec.ID)), slog.Int("size", len(payload)))
	return nil
}
