package sqlload

import (
	"context"
	"strings"
	"sync"

	"github.com/jjeffery/sqlload/private/keycodec"
)

func testRegistry() *Registry {
	return MustRegistry(
		[]*Kind{
			{Name: "User", Table: "users", PrimaryKey: []string{"id"}, Columns: []string{"id", "name"}},
			{Name: "Post", Table: "posts", PrimaryKey: []string{"id"}, Columns: []string{"id", "author_id", "editor_id", "title"}},
			{Name: "Comment", PrimaryKey: []string{"id"}},
			{Name: "Tag", PrimaryKey: []string{"id"}},
			{Name: "Profile", PrimaryKey: []string{"user_id"}},
			{Name: "Pet", PrimaryKey: []string{"id"}},
			{Name: "Toy", PrimaryKey: []string{"id"}},
		},
		[]*Relation{
			{
				Name: "posts", Owner: "User", Target: "Post",
				ForeignKey: ForeignKey{Side: OnTarget, Columns: []string{"author_id"}},
				OrderBy:    []string{"id"},
			},
			{
				Name: "profile", Owner: "User", Target: "Profile", Cardinality: One,
				ForeignKey: ForeignKey{Side: OnTarget, Columns: []string{"user_id"}},
			},
			{
				Name: "author", Owner: "Post", Target: "User",
				ForeignKey: ForeignKey{Side: OnOwner, Columns: []string{"author_id"}},
			},
			{
				Name: "editor", Owner: "Post", Target: "User",
				ForeignKey: ForeignKey{Side: OnOwner, Columns: []string{"editor_id"}},
			},
			{
				Name: "comments", Owner: "Post", Target: "Comment",
				ForeignKey: ForeignKey{Side: OnTarget, Columns: []string{"post_id"}},
			},
			{
				Name: "tags", Owner: "Post", Target: "Tag",
				Through: &Through{
					Table:         "post_tags",
					OwnerColumns:  []string{"post_id"},
					TargetColumns: []string{"tag_id"},
				},
			},
			{
				Name: "toys", Owner: "Pet", Target: "Toy",
				ForeignKey: ForeignKey{
					Side:       OnTarget,
					Columns:    []string{"owner_id"},
					References: []string{"owner_id"},
				},
			},
		},
	)
}

// testRows returns rows keyed by kind name, or junction table name.
// Numbers are int64, as they would be when read from a database.
func testRows() map[string][]Entity {
	return map[string][]Entity{
		"User": {
			{"id": int64(1), "name": "alice"},
			{"id": int64(2), "name": "bob"},
			{"id": int64(3), "name": "carol"},
		},
		"Post": {
			{"id": int64(10), "author_id": int64(1), "editor_id": int64(2), "title": "first"},
			{"id": int64(11), "author_id": int64(1), "editor_id": int64(3), "title": "second"},
			{"id": int64(12), "author_id": int64(2), "editor_id": nil, "title": "third"},
			{"id": int64(13), "author_id": int64(99), "editor_id": nil, "title": "orphan"},
		},
		"Comment": {
			{"id": int64(100), "post_id": int64(10), "body": "nice"},
			{"id": int64(101), "post_id": int64(10), "body": "agreed"},
			{"id": int64(102), "post_id": int64(12), "body": "hmm"},
		},
		"Tag": {
			{"id": int64(1000), "label": "go"},
			{"id": int64(1001), "label": "sql"},
		},
		"post_tags": {
			{"post_id": int64(10), "tag_id": int64(1000)},
			{"post_id": int64(10), "tag_id": int64(1001)},
			{"post_id": int64(12), "tag_id": int64(1001)},
		},
		"Profile": {
			{"user_id": int64(1), "bio": "writes things"},
		},
		"Pet": {
			{"id": int64(1), "owner_id": int64(10)},
			{"id": int64(2), "owner_id": int64(10)},
			{"id": int64(3), "owner_id": int64(99)},
			{"id": int64(4), "owner_id": nil},
		},
		"Toy": {
			{"id": int64(20), "owner_id": int64(10)},
			{"id": int64(21), "owner_id": int64(10)},
		},
	}
}

type adapterCall struct {
	Batch string
	Keys  []interface{}
}

// memAdapter is an in-memory adapter that records its calls.
type memAdapter struct {
	mu    sync.Mutex
	rows  map[string][]Entity
	calls []adapterCall
	fail  map[string]error // by batch name
}

func newMemAdapter() *memAdapter {
	return &memAdapter{
		rows: testRows(),
		fail: make(map[string]error),
	}
}

func (a *memAdapter) record(batch string, keys []interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, adapterCall{Batch: batch, Keys: append([]interface{}(nil), keys...)})
	return a.fail[batch]
}

func (a *memAdapter) setFail(batch string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.fail, batch)
	} else {
		a.fail[batch] = err
	}
}

func (a *memAdapter) getCalls() []adapterCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]adapterCall(nil), a.calls...)
}

// keysFetched returns the number of times each key was fetched for the batch.
func (a *memAdapter) keysFetched(batch string) map[string]int {
	counts := make(map[string]int)
	for _, call := range a.getCalls() {
		if call.Batch == batch {
			for _, key := range call.Keys {
				counts[keycodec.MustEncode(key)]++
			}
		}
	}
	return counts
}

func keySet(keys []interface{}) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, key := range keys {
		set[keycodec.MustEncode(key)] = true
	}
	return set
}

func (a *memAdapter) FetchByKeys(ctx context.Context, kind *Kind, keys []interface{}) (*Results, error) {
	if err := a.record(kind.Name, keys); err != nil {
		return nil, err
	}
	wanted := keySet(keys)
	results := NewResults()
	for _, e := range a.rows[kind.Name] {
		key, _ := e.Key(kind.PrimaryKey)
		if wanted[keycodec.MustEncode(key)] {
			if err := results.Add(kind, e); err != nil {
				return nil, err
			}
		}
	}
	return results, nil
}

func (a *memAdapter) FetchByForeignKey(ctx context.Context, rel *Relation, parentKeys []interface{}) (*Groups, error) {
	if err := a.record(rel.Owner+"/"+rel.Name, parentKeys); err != nil {
		return nil, err
	}
	wanted := keySet(parentKeys)
	groups := NewGroups()

	if rel.Through == nil {
		for _, e := range a.rows[rel.Target] {
			fk, ok := e.Key(rel.ForeignKey.Columns)
			if ok && wanted[keycodec.MustEncode(fk)] {
				if err := groups.AddTo(fk, e); err != nil {
					return nil, err
				}
			}
		}
	} else {
		targets := make(map[string]Entity)
		for _, e := range a.rows[rel.Target] {
			pk, _ := e.Key(rel.TargetKind().PrimaryKey)
			targets[keycodec.MustEncode(pk)] = e
		}
		for _, j := range a.rows[rel.Through.Table] {
			ok, _ := j.Key(rel.Through.OwnerColumns)
			tk, _ := j.Key(rel.Through.TargetColumns)
			if wanted[keycodec.MustEncode(ok)] {
				if t := targets[keycodec.MustEncode(tk)]; t != nil {
					if err := groups.AddTo(ok, t); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	// report parent keys that match no owner row
	owners := make(map[string]bool)
	for _, e := range a.rows[rel.Owner] {
		if key, ok := e.Key(rel.ParentColumns()); ok {
			owners[keycodec.MustEncode(key)] = true
		}
	}
	for _, key := range parentKeys {
		if !owners[keycodec.MustEncode(key)] {
			if err := groups.Missing(key); err != nil {
				return nil, err
			}
		}
	}
	return groups, nil
}

func (a *memAdapter) FetchByFilter(ctx context.Context, kind *Kind, columns []string, values []interface{}) (*Groups, error) {
	fp := Fingerprint{Kind: kind.Name, Filter: strings.Join(columns, ",")}
	if err := a.record(fp.Batch(), values); err != nil {
		return nil, err
	}
	wanted := keySet(values)
	groups := NewGroups()
	for _, e := range a.rows[kind.Name] {
		v, ok := e.Key(columns)
		if ok && wanted[keycodec.MustEncode(v)] {
			if err := groups.AddTo(v, e); err != nil {
				return nil, err
			}
		}
	}
	return groups, nil
}

// keysOnly hides the FilterAdapter methods of an adapter.
type keysOnly struct {
	Adapter
}
