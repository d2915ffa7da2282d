package docstore

import (
	"fmt"
	"strings"

	"github.com/andreyvit/docstore/storage"
)

type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpLess
	OpLessOrEqual
	OpGreater
	OpGreaterOrEqual
	OpIn
	OpHasPrefix
)

func (op Operator) String() string {
	switch op {
	case OpEqual:
		return "=="
	case OpNotEqual:
		return "!="
	case OpLess:
		return "<"
	case OpLessOrEqual:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterOrEqual:
		return ">="
	case OpIn:
		return "in"
	case OpHasPrefix:
		return "has prefix"
	default:
		return fmt.Sprintf("Operator(%d)", int(op))
	}
}

// Predicate is a boolean expression over the indices of T. The zero value is
// no predicate at all.
type Predicate[T any] struct {
	node exprNode
}

// exprNode is the store-agnostic expression tree: comparisonExpr,
// conjunctionExpr, negationExpr.
type exprNode interface {
	format(buf *strings.Builder)
}

type comparisonExpr struct {
	index StorageInformation
	op    Operator
	value any   // canonical
	list  []any // OpIn operands, canonical
}

type conjunctionExpr struct {
	or       bool // OR when true, AND otherwise
	operands []exprNode
}

type negationExpr struct {
	operand exprNode
}

func (e comparisonExpr) format(buf *strings.Builder) {
	buf.WriteString(e.index.Identifier)
	buf.WriteByte(' ')
	buf.WriteString(e.op.String())
	buf.WriteByte(' ')
	if e.op == OpIn {
		buf.WriteByte('[')
		for i, v := range e.list {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(storage.FormatValue(v))
		}
		buf.WriteByte(']')
	} else {
		buf.WriteString(storage.FormatValue(e.value))
	}
}

func (e conjunctionExpr) format(buf *strings.Builder) {
	if len(e.operands) == 0 {
		if e.or {
			buf.WriteString("false")
		} else {
			buf.WriteString("true")
		}
		return
	}
	sep := " && "
	if e.or {
		sep = " || "
	}
	for i, op := range e.operands {
		if i > 0 {
			buf.WriteString(sep)
		}
		buf.WriteByte('(')
		op.format(buf)
		buf.WriteByte(')')
	}
}

func (e negationExpr) format(buf *strings.Builder) {
	buf.WriteString("!(")
	e.operand.format(buf)
	buf.WriteByte(')')
}

func (p Predicate[T]) IsZero() bool {
	return p.node == nil
}

func (p Predicate[T]) String() string {
	if p.node == nil {
		return "<none>"
	}
	var buf strings.Builder
	p.node.format(&buf)
	return buf.String()
}

func (p Predicate[T]) And(others ...Predicate[T]) Predicate[T] {
	return And(append([]Predicate[T]{p}, others...)...)
}

func (p Predicate[T]) Or(others ...Predicate[T]) Predicate[T] {
	return Or(append([]Predicate[T]{p}, others...)...)
}

func (p Predicate[T]) Not() Predicate[T] {
	return Not(p)
}

// And matches when every operand matches. Zero predicates are ignored; And of
// nothing matches everything.
func And[T any](preds ...Predicate[T]) Predicate[T] {
	return Predicate[T]{conjunctionExpr{or: false, operands: nodes(preds)}}
}

// Or matches when any operand matches. Zero predicates are ignored; Or of
// nothing matches nothing.
func Or[T any](preds ...Predicate[T]) Predicate[T] {
	return Predicate[T]{conjunctionExpr{or: true, operands: nodes(preds)}}
}

func Not[T any](p Predicate[T]) Predicate[T] {
	if p.node == nil {
		panic("docstore: Not of a zero Predicate")
	}
	return Predicate[T]{negationExpr{p.node}}
}

func nodes[T any](preds []Predicate[T]) []exprNode {
	result := make([]exprNode, 0, len(preds))
	for _, p := range preds {
		if p.node != nil {
			result = append(result, p.node)
		}
	}
	return result
}

func (idx *Index[T, V]) compare(op Operator, v V) Predicate[T] {
	return Predicate[T]{comparisonExpr{
		index: idx.StorageInformation(),
		op:    op,
		value: canonical(idx.identifier, v),
	}}
}

func (idx *Index[T, V]) Equal(v V) Predicate[T] {
	return idx.compare(OpEqual, v)
}

func (idx *Index[T, V]) NotEqual(v V) Predicate[T] {
	return idx.compare(OpNotEqual, v)
}

func (idx *Index[T, V]) Less(v V) Predicate[T] {
	return idx.compare(OpLess, v)
}

func (idx *Index[T, V]) LessOrEqual(v V) Predicate[T] {
	return idx.compare(OpLessOrEqual, v)
}

func (idx *Index[T, V]) Greater(v V) Predicate[T] {
	return idx.compare(OpGreater, v)
}

func (idx *Index[T, V]) GreaterOrEqual(v V) Predicate[T] {
	return idx.compare(OpGreaterOrEqual, v)
}

// In matches documents whose value equals any of values. In with no values
// matches nothing.
func (idx *Index[T, V]) In(values ...V) Predicate[T] {
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = canonical(idx.identifier, v)
	}
	return Predicate[T]{comparisonExpr{
		index: idx.StorageInformation(),
		op:    OpIn,
		list:  list,
	}}
}

// IsNil matches documents whose optional value is unset.
func (idx *Index[T, V]) IsNil() Predicate[T] {
	return Predicate[T]{comparisonExpr{index: idx.StorageInformation(), op: OpEqual}}
}

func (idx *Index[T, V]) IsNotNil() Predicate[T] {
	return Predicate[T]{comparisonExpr{index: idx.StorageInformation(), op: OpNotEqual}}
}

func HasPrefix[T any, V ~string](idx *Index[T, V], prefix string) Predicate[T] {
	return Predicate[T]{comparisonExpr{
		index: idx.StorageInformation(),
		op:    OpHasPrefix,
		value: prefix,
	}}
}
