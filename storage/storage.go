// Package storage defines what docstore needs from a persistent store: named
// entities holding records, each record a bag of named attributes, plus
// count/fetch/delete/insert operations driven by a Request and committed by
// the session.
//
// The Filter tree and SortKey list in a Request are the store-level request
// format. Backends that can't evaluate them natively (memstore, boltstore,
// dynamostore's overlay) use Match, SortRecords and Window from this package.
package storage

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	// ReservedPrefix starts every attribute name owned by the storage layer
	// itself. Index identifiers may not use it.
	ReservedPrefix = "_"

	// PayloadAttribute holds the encoded document.
	PayloadAttribute = ReservedPrefix + "payload"

	// NoLimit is the Request.Limit value meaning "unbounded". A limit of 0 is a
	// valid request for zero records.
	NoLimit int64 = -1
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrNotWritable   = errors.New("session not writable")
	ErrUnknownEntity = errors.New("unknown entity")
)

type RecordID string

// Attributes maps attribute names to canonical values (see Canonical).
type Attributes map[string]any

func (a Attributes) Get(name string) (any, bool) {
	v, ok := a[name]
	return v, ok
}

func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		if b, ok := v.([]byte); ok {
			v = slices.Clone(b)
		}
		out[k] = v
	}
	return out
}

// Names returns attribute names in sorted order.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Record is a single stored record as returned by a session. Mutating a
// Record only changes the caller's copy.
type Record struct {
	ID     RecordID
	Entity string
	Attrs  Attributes
}

func (r *Record) Get(name string) (any, bool) {
	return r.Attrs.Get(name)
}

// Set stores the canonical form of value. It panics on values that have no
// storable representation.
func (r *Record) Set(name string, value any) {
	cv, ok := Canonical(value)
	if !ok {
		panic(fmt.Errorf("%s/%s: attribute %s: unsupported value %T", r.Entity, r.ID, name, value))
	}
	if r.Attrs == nil {
		r.Attrs = make(Attributes)
	}
	r.Attrs[name] = cv
}

func (r *Record) Clone() *Record {
	return &Record{ID: r.ID, Entity: r.Entity, Attrs: r.Attrs.Clone()}
}

func (r *Record) String() string {
	var buf strings.Builder
	buf.WriteString(r.Entity)
	buf.WriteByte('/')
	buf.WriteString(string(r.ID))
	for _, name := range r.Attrs.Names() {
		fmt.Fprintf(&buf, " %s=%s", name, FormatValue(r.Attrs[name]))
	}
	return buf.String()
}

type AttributeSchema struct {
	Name     string
	Kind     Kind
	Optional bool
}

// Entity declares one record type and the attributes docstore writes besides
// PayloadAttribute.
type Entity struct {
	Name       string
	Attributes []AttributeSchema
}

func (e Entity) Attribute(name string) (AttributeSchema, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeSchema{}, false
}

type ResultType int

const (
	ResultRecords ResultType = iota
	ResultIDs
	ResultCount
)

func (rt ResultType) String() string {
	switch rt {
	case ResultRecords:
		return "records"
	case ResultIDs:
		return "ids"
	case ResultCount:
		return "count"
	default:
		return fmt.Sprintf("ResultType(%d)", int(rt))
	}
}

// Request is the store-level form of a query.
type Request struct {
	Entity string
	Result ResultType
	Filter Filter // nil matches every record
	Sort   []SortKey
	Offset int64
	Limit  int64 // NoLimit for unbounded
}

// All returns a request matching every record of the entity.
func All(entity string, result ResultType) *Request {
	return &Request{Entity: entity, Result: result, Limit: NoLimit}
}

func (req *Request) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s %s", req.Result, req.Entity)
	if req.Filter != nil {
		fmt.Fprintf(&buf, " where %v", req.Filter)
	}
	if len(req.Sort) > 0 {
		buf.WriteString(" order by ")
		for i, k := range req.Sort {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(k.String())
		}
	}
	if req.Offset > 0 {
		fmt.Fprintf(&buf, " offset %d", req.Offset)
	}
	if req.Limit != NoLimit {
		fmt.Fprintf(&buf, " limit %d", req.Limit)
	}
	return buf.String()
}

// Backend is a persistent store.
type Backend interface {
	// Prepare declares the entities the caller is going to use. Backends
	// create whatever tables or buckets they need. It is safe to call
	// repeatedly with the same entities.
	Prepare(entities []Entity) error

	// Begin starts a session. A session is a single unit of work.
	Begin(writable bool) (Session, error)

	Close() error
}

// Session is a single unit of work against a Backend. Sessions are not safe
// for concurrent use.
type Session interface {
	Writable() bool

	Count(req *Request) (int, error)
	Fetch(req *Request) ([]*Record, error)
	// Delete removes every record the request selects and returns their IDs.
	Delete(req *Request) ([]RecordID, error)
	Insert(entity string, attrs Attributes) (*Record, error)
	// Remove deletes a record previously returned by Fetch or Insert.
	Remove(rec *Record) error

	// HasChanges reports whether Save would commit anything.
	HasChanges() bool
	// Save commits the session's changes and ends the session.
	Save() error
	// Discard abandons the session. It is safe to call after Save and to call
	// repeatedly.
	Discard() error
}

// Lister is implemented by backends that can enumerate the entities they
// hold, including ones never passed to Prepare.
type Lister interface {
	Entities() ([]string, error)
}
