package dynamostore

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/andreyvit/docstore/storage"
)

func TestLowerFilter(t *testing.T) {
	tests := []struct {
		f     storage.Filter
		expr  string
		exact bool
	}{
		{nil, tautology, true},
		{storage.Compare{Attr: "name", Op: storage.OpEqual, Value: "x"}, "#a0 = :v0", true},
		{storage.Compare{Attr: "seen", Op: storage.OpEqual, Value: nil}, "(attribute_not_exists(#a0) OR attribute_type(#a0, :null))", true},
		{storage.Compare{Attr: "seen", Op: storage.OpNotEqual, Value: nil}, "NOT (attribute_not_exists(#a0) OR attribute_type(#a0, :null))", true},
		{storage.Compare{Attr: "size", Op: storage.OpNotEqual, Value: int64(1)}, "((attribute_not_exists(#a0) OR attribute_type(#a0, :null)) OR #a0 <> :v0)", true},
		{storage.Compare{Attr: "name", Op: storage.OpIn, Value: []any{}}, contradiction, true},
		{storage.Compare{Attr: "name", Op: storage.OpIn, Value: []any{"a", "b"}}, "#a0 IN (:v0, :v1)", true},
		{storage.Compare{Attr: "name", Op: storage.OpHasPrefix, Value: "al"}, "begins_with(#a0, :v0)", true},
		{storage.Compare{Attr: "active", Op: storage.OpLess, Value: true}, tautology, false},
		{storage.Not{Filter: storage.Compare{Attr: "active", Op: storage.OpLess, Value: true}}, tautology, false},
		{storage.Or{}, contradiction, true},
		{storage.And{
			storage.Compare{Attr: "size", Op: storage.OpGreaterOrEqual, Value: int64(2)},
			storage.Not{Filter: storage.Compare{Attr: "size", Op: storage.OpGreater, Value: int64(5)}},
		}, "(#a0 >= :v0) AND (NOT (#a0 > :v1))", true},
	}
	for _, tt := range tests {
		eb := newExprBuilder()
		expr, exact, err := eb.lowerFilter(tt.f)
		require.NoError(t, err)
		require.Equal(t, tt.expr, expr)
		require.Equal(t, tt.exact, exact, expr)
	}
}

func TestLowerLargeIn(t *testing.T) {
	values := make([]any, 150)
	for i := range values {
		values[i] = int64(i)
	}
	eb := newExprBuilder()
	expr, _, err := eb.lowerFilter(storage.Compare{Attr: "size", Op: storage.OpIn, Value: values})
	require.NoError(t, err)
	require.Regexp(t, `^#a0 IN \(:v0, .*:v99\) OR #a0 IN \(:v100, .*:v149\)$`, expr)
	require.Len(t, eb.values, 150)
}

func TestPrune(t *testing.T) {
	eb := newExprBuilder()
	expr, _, err := eb.lowerFilter(storage.Not{Filter: storage.Compare{Attr: "active", Op: storage.OpGreater, Value: false}})
	require.NoError(t, err)
	eb.values[":entity"] = &types.AttributeValueMemberS{Value: "Widget"}
	eb.prune("#e = :entity", expr)
	require.Equal(t, map[string]string{"#e": entityKey}, eb.names)
	require.Len(t, eb.values, 1)
}
