// Package dynamostore implements storage.Backend on a single DynamoDB table.
//
// All entities share one table keyed by (_entity, _id). _id is a UUIDv7, so a
// partition query returns records in insertion order. Filters are pushed to
// DynamoDB as a FilterExpression that may over-approximate; the session
// re-applies the exact filter, then sorts and windows in process.
//
// Writes are buffered in the session and flushed by Save with BatchWriteItem.
// DynamoDB has no multi-item transactions here, so a failed Save may leave
// part of the batch applied.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/andreyvit/docstore/storage"
)

const (
	entityKey = storage.ReservedPrefix + "entity"
	idKey     = storage.ReservedPrefix + "id"
)

// API is the subset of *dynamodb.Client used by the backend.
type API interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

type Options struct {
	Table string

	// Connection settings used by NewClient. Empty AccessKey means the
	// default AWS credential chain.
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	// CreateTable makes Prepare create the table when it doesn't exist.
	CreateTable bool

	Logger  *slog.Logger
	Verbose bool
}

type Backend struct {
	client  API
	table   string
	create  bool
	logger  *slog.Logger
	verbose bool

	mu      sync.RWMutex
	schemas map[string]map[string]storage.Kind
}

// NewClient builds a DynamoDB client from the connection settings in opt.
func NewClient(ctx context.Context, opt Options) (*dynamodb.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opt.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opt.Region))
	}
	if opt.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opt.AccessKey, opt.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("dynamostore: failed to load AWS configuration: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opt.Endpoint != "" {
			o.BaseEndpoint = aws.String(opt.Endpoint)
		}
	}), nil
}

// Open connects using NewClient and returns a backend for opt.Table.
func Open(ctx context.Context, opt Options) (*Backend, error) {
	client, err := NewClient(ctx, opt)
	if err != nil {
		return nil, err
	}
	return New(client, opt)
}

func New(client API, opt Options) (*Backend, error) {
	if opt.Table == "" {
		return nil, errors.New("dynamostore: table name is empty")
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		client:  client,
		table:   opt.Table,
		create:  opt.CreateTable,
		logger:  logger,
		verbose: opt.Verbose,
		schemas: make(map[string]map[string]storage.Kind),
	}, nil
}

func (b *Backend) Client() API {
	return b.client
}

func (b *Backend) Table() string {
	return b.table
}

func (b *Backend) trace(msg string, attrs ...slog.Attr) {
	if b.verbose {
		b.logger.LogAttrs(context.Background(), slog.Level(-8), msg, attrs...)
	}
}

func (b *Backend) Prepare(entities []storage.Entity) error {
	ctx := context.Background()
	if err := b.ensureTable(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range entities {
		// Sessions hold on to the previous map, so build a new one. Attributes
		// known from earlier calls stay.
		prev := b.schemas[e.Name]
		kinds := make(map[string]storage.Kind, len(prev)+len(e.Attributes)+1)
		maps.Copy(kinds, prev)
		kinds[storage.PayloadAttribute] = storage.Bytes
		for _, a := range e.Attributes {
			kinds[a.Name] = a.Kind
		}
		b.schemas[e.Name] = kinds
	}
	return nil
}

func (b *Backend) ensureTable(ctx context.Context) error {
	_, err := b.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &b.table})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) || !b.create {
		return fmt.Errorf("dynamostore: describe table %s: %w", b.table, err)
	}

	b.logger.LogAttrs(ctx, slog.LevelInfo, "dynamostore: creating table", slog.String("table", b.table))
	out, err := b.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: &b.table,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(entityKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(idKey), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(entityKey), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(idKey), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("dynamostore: create table %s: %w", b.table, err)
	}
	if out.TableDescription != nil && out.TableDescription.TableStatus == types.TableStatusActive {
		return nil
	}
	waiter := dynamodb.NewTableExistsWaiter(b.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: &b.table}, 2*time.Minute); err != nil {
		return fmt.Errorf("dynamostore: waiting for table %s: %w", b.table, err)
	}
	return nil
}

func (b *Backend) schema(entity string) (map[string]storage.Kind, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	kinds := b.schemas[entity]
	if kinds == nil {
		return nil, fmt.Errorf("dynamostore: %w %q", storage.ErrUnknownEntity, entity)
	}
	return kinds, nil
}

// Entities scans the table for distinct _entity values.
func (b *Backend) Entities() ([]string, error) {
	ctx := context.Background()
	seen := make(map[string]bool)
	input := &dynamodb.ScanInput{
		TableName:                &b.table,
		ProjectionExpression:     aws.String("#e"),
		ExpressionAttributeNames: map[string]string{"#e": entityKey},
	}
	for {
		out, err := b.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("dynamostore: scan %s: %w", b.table, err)
		}
		for _, item := range out.Items {
			if s, ok := item[entityKey].(*types.AttributeValueMemberS); ok {
				seen[s.Value] = true
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (b *Backend) Begin(writable bool) (storage.Session, error) {
	return &session{
		b:        b,
		ctx:      context.Background(),
		writable: writable,
		puts:     make(map[string][]*storage.Record),
		deletes:  make(map[string]map[storage.RecordID]bool),
	}, nil
}

func (b *Backend) Close() error {
	return nil
}
