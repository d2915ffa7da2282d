package docstore

import (
	"fmt"
	"math"

	"github.com/andreyvit/docstore/storage"
)

// request lowers the query into a storage request. This is the only place
// that knows the storage request format.
func (q Query[T]) request(entity string, result storage.ResultType) *storage.Request {
	req := &storage.Request{
		Entity: entity,
		Result: result,
		Offset: clampInt64(q.skip),
		Limit:  storage.NoLimit,
	}
	if q.hasLimit {
		req.Limit = clampInt64(q.limit)
	}
	if q.predicate.node != nil {
		req.Filter = lowerExpr(q.predicate.node)
	}
	if len(q.sort) > 0 {
		req.Sort = make([]storage.SortKey, len(q.sort))
		for i, s := range q.sort {
			req.Sort[i] = storage.SortKey{Attr: s.index.Identifier, Descending: s.order == Desc}
		}
	}
	return req
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

var operators = map[Operator]storage.Op{
	OpEqual:          storage.OpEqual,
	OpNotEqual:       storage.OpNotEqual,
	OpLess:           storage.OpLess,
	OpLessOrEqual:    storage.OpLessOrEqual,
	OpGreater:        storage.OpGreater,
	OpGreaterOrEqual: storage.OpGreaterOrEqual,
	OpIn:             storage.OpIn,
	OpHasPrefix:      storage.OpHasPrefix,
}

func lowerExpr(node exprNode) storage.Filter {
	switch e := node.(type) {
	case comparisonExpr:
		op, ok := operators[e.op]
		if !ok {
			panic(fmt.Errorf("docstore: unknown operator %v", e.op))
		}
		c := storage.Compare{Attr: e.index.Identifier, Op: op, Value: e.value}
		if e.op == OpIn {
			c.Value = append([]any{}, e.list...)
		}
		return c
	case conjunctionExpr:
		fs := make([]storage.Filter, len(e.operands))
		for i, sub := range e.operands {
			fs[i] = lowerExpr(sub)
		}
		if e.or {
			return storage.Or(fs)
		}
		return storage.And(fs)
	case negationExpr:
		return storage.Not{Filter: lowerExpr(e.operand)}
	default:
		panic(fmt.Errorf("docstore: unknown expression %T", node))
	}
}
