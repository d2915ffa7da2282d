package docstore

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Query describes which documents of T to read or delete. Queries are values:
// every method returns a modified copy, and the zero Query selects every
// document.
type Query[T any] struct {
	predicate Predicate[T]
	skip      uint64
	limit     uint64
	hasLimit  bool
	sort      []SortDescriptor[T]
}

func NewQuery[T any]() Query[T] {
	return Query[T]{}
}

// Where is a shortcut for NewQuery[T]().Filtered(p).
func Where[T any](p Predicate[T]) Query[T] {
	return Query[T]{}.Filtered(p)
}

func (q Query[T]) Predicate() (Predicate[T], bool) {
	return q.predicate, q.predicate.node != nil
}

func (q Query[T]) Skip() uint64 {
	return q.skip
}

func (q Query[T]) Limit() (uint64, bool) {
	return q.limit, q.hasLimit
}

func (q Query[T]) SortDescriptors() []SortDescriptor[T] {
	return slices.Clone(q.sort)
}

// Filtered adds p to the predicate. Filters accumulate: an existing predicate
// becomes `existing AND p`.
func (q Query[T]) Filtered(p Predicate[T]) Query[T] {
	switch {
	case p.node == nil:
	case q.predicate.node == nil:
		q.predicate = p
	default:
		q.predicate = And(q.predicate, p)
	}
	return q
}

// Skipping skips n more documents. The total saturates at math.MaxUint64.
func (q Query[T]) Skipping(n uint64) Query[T] {
	if n > math.MaxUint64-q.skip {
		q.skip = math.MaxUint64
	} else {
		q.skip += n
	}
	return q
}

// Limited caps the number of documents at n. Limits only tighten.
func (q Query[T]) Limited(n uint64) Query[T] {
	if !q.hasLimit || n < q.limit {
		q.limit = n
		q.hasLimit = true
	}
	return q
}

// Sorted replaces the sort order with s.
func (q Query[T]) Sorted(s SortDescriptor[T]) Query[T] {
	q.sort = []SortDescriptor[T]{s}
	return q
}

// ThenSorted adds s as the lowest-priority sort key.
func (q Query[T]) ThenSorted(s SortDescriptor[T]) Query[T] {
	q.sort = append(slices.Clip(q.sort), s)
	return q
}

func (q Query[T]) String() string {
	var buf strings.Builder
	buf.WriteString("Query")
	if q.predicate.node != nil {
		buf.WriteString(" where ")
		buf.WriteString(q.predicate.String())
	}
	if len(q.sort) > 0 {
		buf.WriteString(" order by ")
		for i, s := range q.sort {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(s.String())
		}
	}
	if q.skip > 0 {
		fmt.Fprintf(&buf, " skip %d", q.skip)
	}
	if q.hasLimit {
		fmt.Fprintf(&buf, " limit %d", q.limit)
	}
	return buf.String()
}
