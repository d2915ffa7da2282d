package dynamostore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory API. It evaluates key conditions only and
// ignores FilterExpression, which the session re-checks anyway.
type fakeDynamo struct {
	mu       sync.Mutex
	tables   map[string]map[string]map[string]types.AttributeValue
	pageSize int

	// unprocessOnce makes the next multi-item BatchWriteItem leave its last
	// request unprocessed.
	unprocessOnce bool
	batchCalls    int
	queries       []*dynamodb.QueryInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		tables:   make(map[string]map[string]map[string]types.AttributeValue),
		pageSize: 2,
	}
}

func fakeKey(item map[string]types.AttributeValue) string {
	return str(item[entityKey]) + "\x00" + str(item[idKey])
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) table(name *string) (map[string]map[string]types.AttributeValue, error) {
	t := f.tables[aws.ToString(name)]
	if t == nil {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + aws.ToString(name))}
	}
	return t, nil
}

func checkPlaceholders(names map[string]string, values map[string]types.AttributeValue, exprs ...*string) error {
	all := ""
	for _, e := range exprs {
		all += " " + aws.ToString(e)
	}
	for ph := range names {
		if !strings.Contains(all, ph) {
			return fmt.Errorf("ValidationException: unused expression attribute name %s", ph)
		}
	}
	for ph := range values {
		if !strings.Contains(all, ph) {
			return fmt.Errorf("ValidationException: unused expression attribute value %s", ph)
		}
	}
	return nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	if err := checkPlaceholders(in.ExpressionAttributeNames, in.ExpressionAttributeValues, in.KeyConditionExpression, in.FilterExpression); err != nil {
		return nil, err
	}
	f.queries = append(f.queries, in)

	entity := str(in.ExpressionAttributeValues[":entity"])
	var items []map[string]types.AttributeValue
	for _, item := range t {
		if str(item[entityKey]) == entity {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b map[string]types.AttributeValue) int {
		return strings.Compare(str(a[idKey]), str(b[idKey]))
	})
	if in.ExclusiveStartKey != nil {
		start := str(in.ExclusiveStartKey[idKey])
		items = slices.DeleteFunc(items, func(item map[string]types.AttributeValue) bool {
			return str(item[idKey]) <= start
		})
	}
	out := &dynamodb.QueryOutput{}
	if len(items) > f.pageSize {
		items = items[:f.pageSize]
		last := items[len(items)-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{entityKey: last[entityKey], idKey: last[idKey]}
	}
	out.Items = items
	out.Count = int32(len(items))
	return out, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	out := &dynamodb.ScanOutput{}
	for _, item := range t {
		out.Items = append(out.Items, map[string]types.AttributeValue{entityKey: item[entityKey]})
	}
	return out, nil
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for name, reqs := range in.RequestItems {
		t, err := f.table(&name)
		if err != nil {
			return nil, err
		}
		if len(reqs) > 25 {
			return nil, fmt.Errorf("ValidationException: too many items in batch: %d", len(reqs))
		}
		if f.unprocessOnce && len(reqs) > 1 {
			f.unprocessOnce = false
			out.UnprocessedItems[name] = reqs[len(reqs)-1:]
			reqs = reqs[:len(reqs)-1]
		}
		for _, r := range reqs {
			switch {
			case r.PutRequest != nil:
				t[fakeKey(r.PutRequest.Item)] = r.PutRequest.Item
			case r.DeleteRequest != nil:
				delete(t, fakeKey(r.DeleteRequest.Key))
			}
		}
	}
	return out, nil
}

func (f *fakeDynamo) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.table(in.TableName); err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *fakeDynamo) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	if f.tables[name] != nil {
		return nil, &types.ResourceInUseException{Message: aws.String("table exists: " + name)}
	}
	f.tables[name] = make(map[string]map[string]types.AttributeValue)
	return &dynamodb.CreateTableOutput{TableDescription: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}
