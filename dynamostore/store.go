// Package dynamostore provides an adapter that loads entities from
// DynamoDB for a sqlload session.
//
// Entities are loaded by primary key with BatchGetItem. A kind's primary
// key is the table's partition key, optionally followed by its sort key.
//
// Relations where the target holds the foreign key are loaded with one
// Query per parent key, either on the target table itself or on a global
// secondary index configured with WithIndex. The foreign key columns are the
// partition key (and optionally the sort key) of the table or index.
// Relations with a junction table are not supported.
package dynamostore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jjeffery/errors"
	"github.com/jjeffery/sqlload"
	"golang.org/x/sync/errgroup"
)

// maxBatchGet is the maximum number of keys in one BatchGetItem request.
const maxBatchGet = 100

// Client is the DynamoDB API used by the store.
// The *dynamodb.Client type implements this interface.
type Client interface {
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store is an adapter that loads entities from DynamoDB.
// It implements sqlload.Adapter and sqlload.FilterAdapter.
type Store struct {
	client        Client
	indexes       map[string]string
	filterIndexes map[string]string
	concurrency   int
	maxAttempts   int
	consistent    bool
}

// Option provides optional configuration for a Store.
type Option func(s *Store)

// WithIndex sets the global secondary index used to query the
// relation of the owner kind.
func WithIndex(owner, relation, index string) Option {
	return func(s *Store) {
		s.indexes[owner+"/"+relation] = index
	}
}

// WithFilterIndex sets the global secondary index used to query
// entities of kind by the columns.
func WithFilterIndex(kind string, columns []string, index string) Option {
	return func(s *Store) {
		sorted := append([]string(nil), columns...)
		sort.Strings(sorted)
		s.filterIndexes[filterName(kind, sorted)] = index
	}
}

// WithConcurrency sets the maximum number of requests sent
// at the same time for one batch.
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMaxAttempts sets the number of times a BatchGetItem request is
// sent while DynamoDB returns unprocessed keys.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithConsistentRead requests strongly consistent reads for BatchGetItem.
func WithConsistentRead() Option {
	return func(s *Store) {
		s.consistent = true
	}
}

// New returns a store that uses client.
func New(client Client, opts ...Option) *Store {
	if client == nil {
		panic("client cannot be nil")
	}
	s := &Store{
		client:        client,
		indexes:       make(map[string]string),
		filterIndexes: make(map[string]string),
		concurrency:   8,
		maxAttempts:   3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchByKeys implements sqlload.Adapter.
func (s *Store) FetchByKeys(ctx context.Context, kind *sqlload.Kind, keys []interface{}) (*sqlload.Results, error) {
	if len(kind.PrimaryKey) > 2 {
		return nil, errors.New("primary key has more than two columns").With("kind", kind.Name)
	}
	avKeys := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, key := range keys {
		av, err := keyAttributes(kind.PrimaryKey, key)
		if err != nil {
			return nil, err
		}
		avKeys = append(avKeys, av)
	}

	results := sqlload.NewResults()
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := 0; i < len(avKeys); i += maxBatchGet {
		end := i + maxBatchGet
		if end > len(avKeys) {
			end = len(avKeys)
		}
		chunk := avKeys[i:end]
		g.Go(func() error {
			items, err := s.batchGet(ctx, kind.Table, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, item := range items {
				e, err := unmarshalEntity(item)
				if err != nil {
					return err
				}
				if err := results.Add(kind, e); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// batchGet gets the items for the keys, retrying unprocessed keys.
func (s *Store) batchGet(ctx context.Context, table string, keys []map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	request := map[string]types.KeysAndAttributes{
		table: {
			Keys:           keys,
			ConsistentRead: aws.Bool(s.consistent),
		},
	}
	for attempt := 1; ; attempt++ {
		out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: request,
		})
		if err != nil {
			return nil, errors.Wrap(err, "cannot get items").With("table", table)
		}
		items = append(items, out.Responses[table]...)
		unprocessed, ok := out.UnprocessedKeys[table]
		if !ok || len(unprocessed.Keys) == 0 {
			return items, nil
		}
		if attempt >= s.maxAttempts {
			return nil, errors.New("unprocessed keys").With(
				"table", table,
				"keys", len(unprocessed.Keys),
				"attempts", attempt,
			)
		}
		request = map[string]types.KeysAndAttributes{table: unprocessed}
	}
}

// FetchByForeignKey implements sqlload.Adapter.
func (s *Store) FetchByForeignKey(ctx context.Context, rel *sqlload.Relation, parentKeys []interface{}) (*sqlload.Groups, error) {
	if rel.Through != nil {
		return nil, errors.New("junction relations are not supported").With(
			"owner", rel.Owner,
			"relation", rel.Name,
		)
	}
	index := s.indexes[rel.Owner+"/"+rel.Name]
	return s.queryGroups(ctx, rel.TargetKind().Table, index, rel.ForeignKey.Columns, parentKeys)
}

// FetchByFilter implements sqlload.FilterAdapter.
func (s *Store) FetchByFilter(ctx context.Context, kind *sqlload.Kind, columns []string, values []interface{}) (*sqlload.Groups, error) {
	index := s.filterIndexes[filterName(kind.Name, columns)]
	return s.queryGroups(ctx, kind.Table, index, columns, values)
}

// queryGroups runs one query for each key, on the table or index whose
// key is the columns.
func (s *Store) queryGroups(ctx context.Context, table, index string, columns []string, keys []interface{}) (*sqlload.Groups, error) {
	if len(columns) > 2 {
		return nil, errors.New("query key has more than two columns").With("table", table)
	}
	groups := sqlload.NewGroups()
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			entities, err := s.query(ctx, table, index, columns, key)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return groups.AddTo(key, entities...)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *Store) query(ctx context.Context, table, index string, columns []string, key interface{}) ([]sqlload.Entity, error) {
	values, err := keyAttributes(columns, key)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(columns))
	exprValues := make(map[string]types.AttributeValue, len(columns))
	var conds []string
	for i, col := range columns {
		name := fmt.Sprintf("#k%d", i)
		value := fmt.Sprintf(":v%d", i)
		names[name] = col
		exprValues[value] = values[col]
		conds = append(conds, name+" = "+value)
	}
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    aws.String(strings.Join(conds, " and ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: exprValues,
	}
	if index != "" {
		input.IndexName = aws.String(index)
	}

	var entities []sqlload.Entity
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "cannot query").With("table", table, "index", index)
		}
		for _, item := range page.Items {
			e, err := unmarshalEntity(item)
			if err != nil {
				return nil, err
			}
			entities = append(entities, e)
		}
	}
	return entities, nil
}

// keyAttributes marshals a key into attribute values for the columns.
func keyAttributes(columns []string, key interface{}) (map[string]types.AttributeValue, error) {
	parts := []interface{}{key}
	if tuple, ok := key.(sqlload.Tuple); ok {
		parts = tuple
	}
	if len(parts) != len(columns) {
		return nil, errors.New("key does not match columns").With(
			"columns", strings.Join(columns, ","),
			"key", fmt.Sprint(key),
		)
	}
	av := make(map[string]types.AttributeValue, len(columns))
	for i, col := range columns {
		v, err := attributevalue.Marshal(parts[i])
		if err != nil {
			return nil, errors.Wrap(err, "cannot marshal key").With("column", col)
		}
		av[col] = v
	}
	return av, nil
}

func unmarshalEntity(item map[string]types.AttributeValue) (sqlload.Entity, error) {
	var m map[string]interface{}
	if err := attributevalue.UnmarshalMap(item, &m); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal item")
	}
	return sqlload.Entity(m), nil
}

func filterName(kind string, columns []string) string {
	return kind + "?" + strings.Join(columns, ",")
}
