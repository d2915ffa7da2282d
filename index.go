package docstore

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/andreyvit/docstore/storage"
)

type Index[T any, V Storable] struct {
	identifier string
	resolver   func(doc T) V
	kind       storage.Kind
	optional   bool
	identity   bool
}

func NewIndex[T any, V Storable](identifier string, resolver func(doc T) V) *Index[T, V] {
	kind, optional := storage.KindOfType(reflect.TypeFor[V]())
	return &Index[T, V]{
		identifier: identifier,
		resolver:   resolver,
		kind:       kind,
		optional:   optional,
	}
}

// Identity returns a copy of the index that supplies the document identity.
func (idx *Index[T, V]) Identity() *Index[T, V] {
	c := *idx
	c.identity = true
	return &c
}

func (idx *Index[T, V]) Identifier() string {
	return idx.identifier
}

func (idx *Index[T, V]) IsIdentity() bool {
	return idx.identity
}

func (idx *Index[T, V]) Resolve(doc T) V {
	return idx.resolver(doc)
}

func (idx *Index[T, V]) StorageInformation() StorageInformation {
	return StorageInformation{
		Identifier: idx.identifier,
		Kind:       idx.kind,
		Optional:   idx.optional,
		Identity:   idx.identity,
		Document:   reflect.TypeFor[T](),
	}
}

func (idx *Index[T, V]) String() string {
	return idx.identifier
}

func (idx *Index[T, V]) attributeValue(doc T) any {
	return canonical(idx.identifier, idx.resolver(doc))
}

func canonical(identifier string, v any) any {
	cv, ok := storage.Canonical(v)
	if !ok {
		panic(fmt.Errorf("index %s: unsupported value %T", identifier, v))
	}
	return cv
}

// AnyIndex is an index of T with its value type erased. Every *Index[T, V]
// implements it.
type AnyIndex[T any] interface {
	Identifier() string
	StorageInformation() StorageInformation
	attributeValue(doc T) any
}

// StorageInformation describes an index without its type parameters.
type StorageInformation struct {
	Identifier string
	Kind       storage.Kind
	Optional   bool
	Identity   bool
	Document   reflect.Type
}

// Equal reports whether both describe the same index: same identifier, same
// kind, same document type.
func (si StorageInformation) Equal(other StorageInformation) bool {
	return si.Identifier == other.Identifier && si.Kind == other.Kind && si.Document == other.Document
}

func (si StorageInformation) Validate() []string {
	switch {
	case si.Identifier == "":
		return []string{"Index identifiers may not be empty."}
	case strings.HasPrefix(si.Identifier, storage.ReservedPrefix):
		return []string{fmt.Sprintf("`%s` is an invalid index identifier, identifiers may not start with `%s`.", si.Identifier, storage.ReservedPrefix)}
	default:
		return nil
	}
}

func (si StorageInformation) Attribute() storage.AttributeSchema {
	return storage.AttributeSchema{Name: si.Identifier, Kind: si.Kind, Optional: si.Optional}
}

func (si StorageInformation) String() string {
	var buf strings.Builder
	buf.WriteString(si.Identifier)
	buf.WriteByte(':')
	if si.Optional {
		buf.WriteByte('?')
	}
	buf.WriteString(si.Kind.String())
	if si.Identity {
		buf.WriteString(" identity")
	}
	return buf.String()
}
