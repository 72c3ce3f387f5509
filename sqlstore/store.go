package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jjeffery/errors"
	"github.com/jjeffery/sqlload"
	"github.com/jjeffery/sqlload/private/dialect"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxKeys is the default maximum number of keys in one query.
const DefaultMaxKeys = 100

// ownerAlias is the prefix for junction table columns selected
// alongside the target columns of a many-to-many relation.
const ownerAlias = "sqlload_owner_"

// Querier is the database access used by the store.
//
// The *DB and *Tx types in package "github.com/jmoiron/sqlx"
// implement this interface.
type Querier interface {
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	Rebind(query string) string
	DriverName() string
}

// SQLLogger is an interface for logging the SQL queries run by the store.
type SQLLogger interface {
	// LogSQL is called after the store runs a query. The rowsAffected
	// variable is the number of rows returned by the query.
	LogSQL(query string, args []interface{}, rowsAffected int, err error)
}

// Store is an adapter that loads entities from an SQL database.
// It implements sqlload.Adapter and sqlload.FilterAdapter.
type Store struct {
	db          Querier
	dialect     dialect.Dialect
	maxKeys     int
	concurrency int
	logger      SQLLogger
}

// Option provides optional configuration for a Store.
type Option func(s *Store)

// WithDialect sets the SQL dialect used to quote table and column names.
// The default dialect is determined by the database driver name.
func WithDialect(name string) Option {
	return func(s *Store) {
		s.dialect = dialect.For(name)
	}
}

// WithMaxKeys sets the maximum number of keys in one query.
func WithMaxKeys(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxKeys = n
		}
	}
}

// WithConcurrency sets the maximum number of queries run at
// the same time for one batch.
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithSQLLogger sets a logger for the SQL queries run by the store.
func WithSQLLogger(logger SQLLogger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns a store that queries db.
func New(db Querier, opts ...Option) *Store {
	if db == nil {
		panic("db cannot be nil")
	}
	s := &Store{
		db:          db,
		dialect:     dialect.For(db.DriverName()),
		maxKeys:     DefaultMaxKeys,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchByKeys implements sqlload.Adapter.
func (s *Store) FetchByKeys(ctx context.Context, kind *sqlload.Kind, keys []interface{}) (*sqlload.Results, error) {
	results := sqlload.NewResults()
	var mu sync.Mutex
	err := s.chunks(ctx, keys, func(ctx context.Context, keys []interface{}) error {
		where, args, err := s.whereKeys("", kind.PrimaryKey, keys)
		if err != nil {
			return err
		}
		query := fmt.Sprintf("select %s from %s where %s",
			s.selectList("", kind.Columns),
			s.dialect.Quote(kind.Table),
			where,
		)
		entities, err := s.query(ctx, query, args)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		return newKeyMatcher(keys).putResults(results, kind, entities)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// FetchByForeignKey implements sqlload.Adapter. The store does not
// check whether parents exist, so it never reports a missing parent.
func (s *Store) FetchByForeignKey(ctx context.Context, rel *sqlload.Relation, parentKeys []interface{}) (*sqlload.Groups, error) {
	if rel.Through != nil {
		return s.fetchThrough(ctx, rel, parentKeys)
	}
	target := rel.TargetKind()
	groups := sqlload.NewGroups()
	var mu sync.Mutex
	err := s.chunks(ctx, parentKeys, func(ctx context.Context, keys []interface{}) error {
		where, args, err := s.whereKeys("", rel.ForeignKey.Columns, keys)
		if err != nil {
			return err
		}
		query := fmt.Sprintf("select %s from %s where %s%s",
			s.selectList("", target.Columns),
			s.dialect.Quote(target.Table),
			where,
			s.orderBy("", rel.OrderBy),
		)
		entities, err := s.query(ctx, query, args)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		return newKeyMatcher(keys).addGroups(groups, rel.ForeignKey.Columns, entities)
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// fetchThrough loads a many-to-many relation by joining the
// target table with the junction table.
func (s *Store) fetchThrough(ctx context.Context, rel *sqlload.Relation, parentKeys []interface{}) (*sqlload.Groups, error) {
	target := rel.TargetKind()
	through := rel.Through

	var aliases []string
	var selectOwner []string
	for i, col := range through.OwnerColumns {
		alias := fmt.Sprintf("%s%d", ownerAlias, i)
		aliases = append(aliases, alias)
		selectOwner = append(selectOwner, fmt.Sprintf("%s as %s", s.dialect.Quote("j."+col), s.dialect.Quote(alias)))
	}
	var join []string
	for i, col := range through.TargetColumns {
		join = append(join, fmt.Sprintf("%s = %s", s.dialect.Quote("t."+target.PrimaryKey[i]), s.dialect.Quote("j."+col)))
	}

	groups := sqlload.NewGroups()
	var mu sync.Mutex
	err := s.chunks(ctx, parentKeys, func(ctx context.Context, keys []interface{}) error {
		where, args, err := s.whereKeys("j", through.OwnerColumns, keys)
		if err != nil {
			return err
		}
		query := fmt.Sprintf("select %s, %s from %s t inner join %s j on %s where %s%s",
			s.selectList("t", target.Columns),
			strings.Join(selectOwner, ", "),
			s.dialect.Quote(target.Table),
			s.dialect.Quote(through.Table),
			strings.Join(join, " and "),
			where,
			s.orderBy("t", rel.OrderBy),
		)
		entities, err := s.query(ctx, query, args)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		m := newKeyMatcher(keys)
		for _, e := range entities {
			key, ok := e.Key(aliases)
			if !ok {
				return errors.New("junction row has no owner key").With("table", through.Table)
			}
			for _, alias := range aliases {
				delete(e, alias)
			}
			if err := m.addGroup(groups, key, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// FetchByFilter implements sqlload.FilterAdapter.
func (s *Store) FetchByFilter(ctx context.Context, kind *sqlload.Kind, columns []string, values []interface{}) (*sqlload.Groups, error) {
	groups := sqlload.NewGroups()
	var mu sync.Mutex
	err := s.chunks(ctx, values, func(ctx context.Context, values []interface{}) error {
		where, args, err := s.whereKeys("", columns, values)
		if err != nil {
			return err
		}
		query := fmt.Sprintf("select %s from %s where %s",
			s.selectList("", kind.Columns),
			s.dialect.Quote(kind.Table),
			where,
		)
		entities, err := s.query(ctx, query, args)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		return newKeyMatcher(values).addGroups(groups, columns, entities)
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// chunks calls fn for each chunk of at most maxKeys keys. Chunks are
// processed concurrently, and the first error is returned.
func (s *Store) chunks(ctx context.Context, keys []interface{}, fn func(context.Context, []interface{}) error) error {
	if len(keys) <= s.maxKeys {
		return fn(ctx, keys)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := 0; i < len(keys); i += s.maxKeys {
		end := i + s.maxKeys
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[i:end]
		g.Go(func() error {
			return fn(ctx, chunk)
		})
	}
	return g.Wait()
}

// query runs the query and returns the rows as entities.
func (s *Store) query(ctx context.Context, query string, args []interface{}) ([]sqlload.Entity, error) {
	query = s.db.Rebind(query)
	entities, err := s.scan(ctx, query, args)
	if s.logger != nil {
		s.logger.LogSQL(query, args, len(entities), err)
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot query").With("query", query)
	}
	return entities, nil
}

func (s *Store) scan(ctx context.Context, query string, args []interface{}) ([]sqlload.Entity, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []sqlload.Entity
	for rows.Next() {
		m := make(map[string]interface{})
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		entities = append(entities, sqlload.Entity(m))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entities, nil
}

// whereKeys returns a condition that matches any of the keys, along
// with its arguments. The query uses "?" placeholders.
func (s *Store) whereKeys(prefix string, columns []string, keys []interface{}) (string, []interface{}, error) {
	if len(columns) == 1 {
		return sqlx.In(fmt.Sprintf("%s in (?)", s.column(prefix, columns[0])), keys)
	}

	var conds []string
	var args []interface{}
	var cond strings.Builder
	for i, col := range columns {
		if i > 0 {
			cond.WriteString(" and ")
		}
		cond.WriteString(s.column(prefix, col))
		cond.WriteString(" = ?")
	}
	for _, key := range keys {
		tuple, ok := key.(sqlload.Tuple)
		if !ok || len(tuple) != len(columns) {
			return "", nil, errors.New("key does not match columns").With(
				"columns", strings.Join(columns, ","),
				"key", fmt.Sprint(key),
			)
		}
		conds = append(conds, "("+cond.String()+")")
		args = append(args, tuple...)
	}
	return strings.Join(conds, " or "), args, nil
}

func (s *Store) selectList(prefix string, columns []string) string {
	if len(columns) == 0 {
		if prefix != "" {
			return s.dialect.Quote(prefix) + ".*"
		}
		return "*"
	}
	list := make([]string, len(columns))
	for i, col := range columns {
		list[i] = s.column(prefix, col)
	}
	return strings.Join(list, ", ")
}

func (s *Store) orderBy(prefix string, columns []string) string {
	if len(columns) == 0 {
		return ""
	}
	return " order by " + s.selectList(prefix, columns)
}

func (s *Store) column(prefix, col string) string {
	if prefix != "" {
		return s.dialect.Quote(prefix + "." + col)
	}
	return s.dialect.Quote(col)
}
