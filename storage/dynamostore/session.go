package dynamostore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/andreyvit/docstore/storage"
)

const (
	maxBatchWrite  = 25
	maxBatchTries  = 8
	batchRetryBase = 50 * time.Millisecond
)

type session struct {
	b        *Backend
	ctx      context.Context
	writable bool
	changed  bool
	closed   bool

	// Pending writes, overlaid on every read.
	puts    map[string][]*storage.Record
	deletes map[string]map[storage.RecordID]bool
}

func (s *session) Writable() bool { return s.writable }

func (s *session) check(entity string, write bool) (map[string]storage.Kind, error) {
	if s.closed {
		return nil, storage.ErrSessionClosed
	}
	kinds, err := s.b.schema(entity)
	if err != nil {
		return nil, err
	}
	if write && !s.writable {
		return nil, storage.ErrNotWritable
	}
	return kinds, nil
}

// records returns the entity's records that may match the request filter, in
// insertion order, with pending writes applied.
func (s *session) records(req *storage.Request, kinds map[string]storage.Kind) ([]*storage.Record, error) {
	eb := newExprBuilder()
	input := &dynamodb.QueryInput{
		TableName:              &s.b.table,
		KeyConditionExpression: aws.String("#e = :entity"),
		ConsistentRead:         aws.Bool(true),
	}
	if req.Filter != nil {
		expr, _, err := eb.lowerFilter(req.Filter)
		if err != nil {
			return nil, fmt.Errorf("dynamostore: %s: %w", req.Entity, err)
		}
		input.FilterExpression = aws.String(expr)
	}
	eb.values[":entity"] = &types.AttributeValueMemberS{Value: req.Entity}
	eb.prune(*input.KeyConditionExpression, aws.ToString(input.FilterExpression))
	input.ExpressionAttributeNames = eb.names
	input.ExpressionAttributeValues = eb.values
	s.b.trace("dynamostore: QUERY", slog.String("entity", req.Entity), slog.Any("filter", input.FilterExpression))

	deleted := s.deletes[req.Entity]
	var records []*storage.Record
	for {
		out, err := s.b.client.Query(s.ctx, input)
		if err != nil {
			return nil, fmt.Errorf("dynamostore: query %s: %w", req.Entity, err)
		}
		for _, item := range out.Items {
			rec, err := decodeItem(req.Entity, kinds, item)
			if err != nil {
				return nil, fmt.Errorf("dynamostore: %w", err)
			}
			if !deleted[rec.ID] {
				records = append(records, rec)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	for _, rec := range s.puts[req.Entity] {
		records = append(records, rec.Clone())
	}
	return records, nil
}

func (s *session) Count(req *storage.Request) (int, error) {
	kinds, err := s.check(req.Entity, false)
	if err != nil {
		return 0, err
	}
	records, err := s.records(req, kinds)
	if err != nil {
		return 0, err
	}
	return len(storage.Evaluate(req, records)), nil
}

func (s *session) Fetch(req *storage.Request) ([]*storage.Record, error) {
	kinds, err := s.check(req.Entity, false)
	if err != nil {
		return nil, err
	}
	records, err := s.records(req, kinds)
	if err != nil {
		return nil, err
	}
	return storage.Project(req, storage.Evaluate(req, records)), nil
}

func (s *session) Delete(req *storage.Request) ([]storage.RecordID, error) {
	kinds, err := s.check(req.Entity, true)
	if err != nil {
		return nil, err
	}
	records, err := s.records(req, kinds)
	if err != nil {
		return nil, err
	}
	matched := storage.Evaluate(req, records)
	for _, rec := range matched {
		s.remove(rec.Entity, rec.ID)
	}
	return storage.IDs(matched), nil
}

func (s *session) Insert(entity string, attrs storage.Attributes) (*storage.Record, error) {
	if _, err := s.check(entity, true); err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("dynamostore: %w", err)
	}
	rec := &storage.Record{ID: storage.RecordID(id.String()), Entity: entity, Attrs: attrs.Clone()}
	s.puts[entity] = append(s.puts[entity], rec)
	s.changed = true
	s.b.trace("dynamostore: INSERT", slog.String("entity", entity), slog.String("id", string(rec.ID)))
	return rec.Clone(), nil
}

func (s *session) Remove(rec *storage.Record) error {
	if _, err := s.check(rec.Entity, true); err != nil {
		return err
	}
	s.remove(rec.Entity, rec.ID)
	return nil
}

func (s *session) remove(entity string, id storage.RecordID) {
	s.changed = true
	s.b.trace("dynamostore: DELETE", slog.String("entity", entity), slog.String("id", string(id)))
	puts := s.puts[entity]
	if i := slices.IndexFunc(puts, func(r *storage.Record) bool { return r.ID == id }); i >= 0 {
		s.puts[entity] = slices.Delete(puts, i, i+1)
		return
	}
	if s.deletes[entity] == nil {
		s.deletes[entity] = make(map[storage.RecordID]bool)
	}
	s.deletes[entity][id] = true
}

func (s *session) HasChanges() bool {
	return s.changed
}

func (s *session) Save() error {
	if s.closed {
		return storage.ErrSessionClosed
	}
	if !s.writable {
		return storage.ErrNotWritable
	}
	s.closed = true

	var reqs []types.WriteRequest
	for _, entity := range sortedKeys(s.deletes) {
		for id := range s.deletes[entity] {
			reqs = append(reqs, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: itemKey(entity, id)},
			})
		}
	}
	for _, entity := range sortedKeys(s.puts) {
		for _, rec := range s.puts[entity] {
			item, err := encodeItem(entity, rec.ID, rec.Attrs)
			if err != nil {
				return fmt.Errorf("dynamostore: %w", err)
			}
			reqs = append(reqs, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}
	}

	for chunk := range slices.Chunk(reqs, maxBatchWrite) {
		if err := s.b.batchWrite(s.ctx, chunk); err != nil {
			return err
		}
	}
	s.b.trace("dynamostore: SAVE", slog.Int("writes", len(reqs)))
	return nil
}

func (s *session) Discard() error {
	s.closed = true
	s.puts = nil
	s.deletes = nil
	return nil
}

// batchWrite writes up to 25 requests, resubmitting unprocessed items with
// exponential backoff.
func (b *Backend) batchWrite(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{b.table: reqs}
	for attempt := 0; ; attempt++ {
		out, err := b.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("dynamostore: batch write: %w", err)
		}
		if len(out.UnprocessedItems[b.table]) == 0 {
			return nil
		}
		if attempt+1 >= maxBatchTries {
			return fmt.Errorf("dynamostore: batch write: %d items still unprocessed after %d attempts", len(out.UnprocessedItems[b.table]), maxBatchTries)
		}
		pending = out.UnprocessedItems
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(batchRetryBase << attempt):
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
