package docstore

import (
	"fmt"
	"slices"
	"strings"

	"github.com/andreyvit/docstore/storage"
)

// Document is implemented by document types. The method must not depend on
// the receiver's contents; it's called on the zero value.
type Document[T any] interface {
	DocumentDescriptor() *DocumentDescriptor[T]
}

func descriptorOf[T Document[T]]() *DocumentDescriptor[T] {
	var zero T
	d := zero.DocumentDescriptor()
	if d == nil {
		panic(fmt.Errorf("%T.DocumentDescriptor() returned nil", zero))
	}
	return d
}

// DocumentDescriptor is the schema of document type T, usually kept in a
// package-level var. It's immutable; With* methods return copies.
type DocumentDescriptor[T any] struct {
	identifier   string
	indices      []AnyIndex[T]
	codec        Codec[T]
	onCorruption Resolution
	erased       *AnyDocumentDescriptor
}

func NewDescriptor[T any](identifier string, indices ...AnyIndex[T]) *DocumentDescriptor[T] {
	d := &DocumentDescriptor[T]{
		identifier:   identifier,
		indices:      slices.Clone(indices),
		codec:        MsgPack[T](),
		onCorruption: ResolutionSkip,
	}
	d.erased = d.erase()
	return d
}

func (d *DocumentDescriptor[T]) Identifier() string {
	return d.identifier
}

func (d *DocumentDescriptor[T]) Indices() []AnyIndex[T] {
	return slices.Clone(d.indices)
}

func (d *DocumentDescriptor[T]) Codec() Codec[T] {
	return d.codec
}

// CorruptionResolution is what Fetch does with records that fail to decode,
// unless the codec returns a *CorruptionError choosing otherwise.
func (d *DocumentDescriptor[T]) CorruptionResolution() Resolution {
	return d.onCorruption
}

func (d *DocumentDescriptor[T]) WithCodec(codec Codec[T]) *DocumentDescriptor[T] {
	c := *d
	c.codec = codec
	return &c
}

func (d *DocumentDescriptor[T]) OnCorruption(r Resolution) *DocumentDescriptor[T] {
	c := *d
	c.onCorruption = r
	return &c
}

// Erase returns the type-erased form. The result is computed once and shared,
// don't modify it.
func (d *DocumentDescriptor[T]) Erase() *AnyDocumentDescriptor {
	return d.erased
}

func (d *DocumentDescriptor[T]) erase() *AnyDocumentDescriptor {
	infos := make([]StorageInformation, len(d.indices))
	for i, idx := range d.indices {
		infos[i] = idx.StorageInformation()
	}
	return &AnyDocumentDescriptor{
		Identifier: d.identifier,
		Indices:    infos,
	}
}

func (d *DocumentDescriptor[T]) identityIndex() AnyIndex[T] {
	for _, idx := range d.indices {
		if idx.StorageInformation().Identity {
			return idx
		}
	}
	return nil
}

// attributes builds the record contents for doc: the payload plus one
// attribute per index.
func (d *DocumentDescriptor[T]) attributes(doc T, payload []byte) storage.Attributes {
	attrs := make(storage.Attributes, len(d.indices)+1)
	attrs[storage.PayloadAttribute] = payload
	for _, idx := range d.indices {
		attrs[idx.Identifier()] = idx.attributeValue(doc)
	}
	return attrs
}

func (d *DocumentDescriptor[T]) String() string {
	return d.erased.String()
}

// Erasable is anything that can be registered with a Store: every
// *DocumentDescriptor[T] and *AnyDocumentDescriptor.
type Erasable interface {
	Erase() *AnyDocumentDescriptor
}

type AnyDocumentDescriptor struct {
	Identifier string
	Indices    []StorageInformation
}

func (ad *AnyDocumentDescriptor) Erase() *AnyDocumentDescriptor {
	return ad
}

// Validate returns every problem with the descriptor, in a stable order.
func (ad *AnyDocumentDescriptor) Validate() []string {
	var issues []string
	if ad.Identifier == "" {
		issues = append(issues, "DocumentDescriptor identifiers may not be empty.")
	} else if strings.HasPrefix(ad.Identifier, storage.ReservedPrefix) {
		issues = append(issues, fmt.Sprintf("`%s` is an invalid DocumentDescriptor identifier, identifiers may not start with `%s`.", ad.Identifier, storage.ReservedPrefix))
	}

	counts := make(map[string]int, len(ad.Indices))
	for _, si := range ad.Indices {
		counts[si.Identifier]++
	}
	reported := make(map[string]bool)
	for _, si := range ad.Indices {
		if counts[si.Identifier] > 1 && !reported[si.Identifier] {
			reported[si.Identifier] = true
			issues = append(issues, fmt.Sprintf("DocumentDescriptor `%s` has multiple indices with `%s` as identifier, every index identifier must be unique.", ad.Identifier, si.Identifier))
		}
	}

	for _, si := range ad.Indices {
		issues = append(issues, si.Validate()...)
	}

	var identities []string
	for _, si := range ad.Indices {
		if si.Identity {
			identities = append(identities, "`"+si.Identifier+"`")
		}
	}
	if len(identities) > 1 {
		issues = append(issues, fmt.Sprintf("DocumentDescriptor `%s` declares multiple identity indices (%s), at most one is allowed.", ad.Identifier, strings.Join(identities, ", ")))
	}
	return issues
}

// Equal compares identifiers and the ordered index lists.
func (ad *AnyDocumentDescriptor) Equal(other *AnyDocumentDescriptor) bool {
	if ad == other {
		return true
	}
	if ad == nil || other == nil {
		return false
	}
	return ad.Identifier == other.Identifier && slices.EqualFunc(ad.Indices, other.Indices, StorageInformation.Equal)
}

// Entity describes the storage entity holding the documents.
func (ad *AnyDocumentDescriptor) Entity() storage.Entity {
	attrs := make([]storage.AttributeSchema, len(ad.Indices))
	for i, si := range ad.Indices {
		attrs[i] = si.Attribute()
	}
	return storage.Entity{Name: ad.Identifier, Attributes: attrs}
}

func (ad *AnyDocumentDescriptor) String() string {
	strs := make([]string, len(ad.Indices))
	for i, si := range ad.Indices {
		strs[i] = si.String()
	}
	return fmt.Sprintf("%s(%s)", ad.Identifier, strings.Join(strs, ", "))
}
