package sqlload

import (
	"context"

	"github.com/jjeffery/errors"
	"github.com/jjeffery/sqlload/private/keycodec"
)

// Adapter fetches entities from a store. A session calls the adapter
// once for each batch of requests.
//
// Keys are either single values or Tuples, depending on the number of
// key columns. The adapter may return results in any order, and may
// return key values of a different type to the ones requested (for
// example int64 instead of int): keys are matched by value. A key that
// is absent from the results is not found.
//
// An adapter must be able to handle any number of keys. Adapters that
// have a limit on the number of keys per query should split the keys
// into multiple queries.
type Adapter interface {
	// FetchByKeys fetches entities of kind by primary key.
	FetchByKeys(ctx context.Context, kind *Kind, keys []interface{}) (*Results, error)

	// FetchByForeignKey fetches the target entities of a scoped
	// relation for each parent key, where parent keys are the
	// values of rel.ParentColumns().
	FetchByForeignKey(ctx context.Context, rel *Relation, parentKeys []interface{}) (*Groups, error)
}

// FilterAdapter is implemented by adapters that can fetch entities that
// match column values. Each element of values is a value for each of the
// columns, as a single value or a Tuple.
type FilterAdapter interface {
	FetchByFilter(ctx context.Context, kind *Kind, columns []string, values []interface{}) (*Groups, error)
}

// Results holds the entities returned by Adapter.FetchByKeys.
// It is not safe for concurrent use.
type Results struct {
	entities map[string]Entity
	errs     map[string]error
}

// NewResults returns an empty result set.
func NewResults() *Results {
	return &Results{
		entities: make(map[string]Entity),
		errs:     make(map[string]error),
	}
}

// Add adds entities, using the primary key columns of kind
// to determine each entity's key.
func (r *Results) Add(kind *Kind, entities ...Entity) error {
	for _, e := range entities {
		key, ok := e.Key(kind.PrimaryKey)
		if !ok {
			return errors.New("entity has no primary key").With("kind", kind.Name)
		}
		if err := r.Put(key, e); err != nil {
			return err
		}
	}
	return nil
}

// Put adds the entity for key.
func (r *Results) Put(key interface{}, e Entity) error {
	enc, err := keycodec.Encode(key)
	if err != nil {
		return err
	}
	r.entities[enc] = e
	return nil
}

// Fail records an error for one key. Other keys are unaffected.
func (r *Results) Fail(key interface{}, err error) error {
	enc, encErr := keycodec.Encode(key)
	if encErr != nil {
		return encErr
	}
	r.errs[enc] = err
	return nil
}

// Len returns the number of entities.
func (r *Results) Len() int {
	return len(r.entities)
}

func (r *Results) get(enc string) (Entity, error) {
	if r == nil {
		return nil, nil
	}
	if err := r.errs[enc]; err != nil {
		return nil, err
	}
	return r.entities[enc], nil
}

// Groups holds the entities returned by Adapter.FetchByForeignKey and
// FilterAdapter.FetchByFilter, grouped by parent key or filter value.
// It is not safe for concurrent use.
type Groups struct {
	groups  map[string][]Entity
	missing map[string]bool
	errs    map[string]error
}

// NewGroups returns an empty set of groups.
func NewGroups() *Groups {
	return &Groups{
		groups:  make(map[string][]Entity),
		missing: make(map[string]bool),
		errs:    make(map[string]error),
	}
}

// Add adds each entity to the group identified by the values
// of its columns.
func (g *Groups) Add(columns []string, entities ...Entity) error {
	for _, e := range entities {
		key, ok := e.Key(columns)
		if !ok {
			return errors.New("entity has no group key").With("columns", columns)
		}
		if err := g.AddTo(key, e); err != nil {
			return err
		}
	}
	return nil
}

// AddTo adds entities to the group for key. Calling AddTo with no
// entities records that the parent exists but has nothing related.
func (g *Groups) AddTo(key interface{}, entities ...Entity) error {
	enc, err := keycodec.Encode(key)
	if err != nil {
		return err
	}
	g.groups[enc] = append(g.groups[enc], entities...)
	return nil
}

// Missing records that the parent identified by key does not exist.
func (g *Groups) Missing(key interface{}) error {
	enc, err := keycodec.Encode(key)
	if err != nil {
		return err
	}
	g.missing[enc] = true
	return nil
}

// Fail records an error for one key. Other keys are unaffected.
func (g *Groups) Fail(key interface{}, err error) error {
	enc, encErr := keycodec.Encode(key)
	if encErr != nil {
		return encErr
	}
	g.errs[enc] = err
	return nil
}

// Len returns the number of groups.
func (g *Groups) Len() int {
	return len(g.groups)
}

func (g *Groups) get(enc string) (Collection, error) {
	if g == nil {
		return Collection{Entities: []Entity{}}, nil
	}
	if err := g.errs[enc]; err != nil {
		return Collection{}, err
	}
	entities := g.groups[enc]
	if entities == nil {
		entities = []Entity{}
	}
	return Collection{
		Entities: entities,
		Missing:  g.missing[enc] && len(entities) == 0,
	}, nil
}
