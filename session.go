package sqlload

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jjeffery/sqlload/dataloader"
)

// A Session is a request-scoped data access coordinator. It collects
// load requests into batches, fetches each batch with one call to the
// adapter, and caches the results for the lifetime of the session.
//
// A session may be shared by any number of concurrent queries. They share
// the session's cache and its open batches, so identical requests from
// different queries are fetched once. The caller decides how long a session
// lives: usually one session is created for each top-level request.
type Session struct {
	context  context.Context
	adapter  Adapter
	registry *Registry
	naming   NamingStrategy
	logger   Logger
	metrics  *Metrics
	wait     time.Duration
	id       string
	loader   *dataloader.Loader
	closed   int32
}

// Thunk returns a loaded entity, or nil if it was not found.
type Thunk func() (Entity, error)

// CollectionThunk returns a loaded collection.
type CollectionThunk func() (Collection, error)

// NewSession returns a new, request-scoped session.
//
// The context is passed to the adapter for every batch.
func NewSession(ctx context.Context, adapter Adapter, registry *Registry, opts ...Option) *Session {
	if ctx == nil {
		ctx = context.Background()
	}
	if adapter == nil {
		panic("adapter cannot be nil")
	}
	if registry == nil {
		panic("registry cannot be nil")
	}
	sess := &Session{
		context:  ctx,
		adapter:  adapter,
		registry: registry,
		naming:   defaultNaming,
	}
	for _, opt := range opts {
		opt(sess)
	}
	if sess.id == "" {
		sess.id = uuid.New().String()
	}
	config := dataloader.Config{Wait: sess.wait}
	if sess.logger != nil || sess.metrics != nil {
		config.Observer = &observer{
			id:      sess.id,
			logger:  sess.logger,
			metrics: sess.metrics,
		}
	}
	sess.loader = dataloader.New(ctx, config)
	return sess
}

// ID returns the session ID.
func (sess *Session) ID() string {
	return sess.id
}

// Context returns the context passed to the adapter.
func (sess *Session) Context() context.Context {
	return sess.context
}

// Registry returns the session's registry.
func (sess *Session) Registry() *Registry {
	return sess.registry
}

// Naming returns the session's naming strategy.
func (sess *Session) Naming() NamingStrategy {
	return sess.naming
}

// Close prevents any further requests. Batches that are already
// dispatched run to completion, and thunks that have been returned
// can still be called.
//
// Close implements the io.Closer interface. It always returns nil.
func (sess *Session) Close() error {
	atomic.StoreInt32(&sess.closed, 1)
	return nil
}

func (sess *Session) isClosed() bool {
	return atomic.LoadInt32(&sess.closed) != 0
}

// Load returns a thunk for the entity of kind with the primary key.
// The key is a single value, or a Tuple for a composite primary key.
//
// An error is returned immediately if the kind is unknown or the key
// does not fit the kind's primary key. Otherwise the request is added
// to the open batch for the kind, and the thunk returns the entity once
// the batch has been fetched. The thunk returns a nil entity if it was
// not found.
func (sess *Session) Load(kind string, key interface{}) (Thunk, error) {
	if sess.isClosed() {
		return nil, ErrClosed
	}
	k, err := sess.kind(kind)
	if err != nil {
		return nil, err
	}
	return sess.load(k, key)
}

func (sess *Session) load(k *Kind, key interface{}) (Thunk, error) {
	nk, enc, err := encodeKey(k.PrimaryKey, key)
	if err != nil {
		return nil, configError(k.Name, "", "invalid key: "+err.Error())
	}
	fp := Fingerprint{Kind: k.Name, Key: enc}
	thunk := sess.loader.Load(dataloader.Request{
		Batch: fp.Batch(),
		ID:    fp,
		Key:   nk,
	}, sess.fetchByKeys(k))
	return func() (Entity, error) {
		v, err := thunk()
		if err != nil {
			return nil, err
		}
		e, _ := v.(Entity)
		return e, nil
	}, nil
}

// LoadMany returns a thunk for the target entities of the relation
// owned by kind, for the parent with the given key. The parent key is
// the value of the relation's ParentColumns, which is usually the
// owner's primary key.
//
// The relation must be scoped: relations where the owner holds the
// foreign key are loaded with Load or ResolveRelation.
func (sess *Session) LoadMany(kind, relation string, parentKey interface{}) (CollectionThunk, error) {
	if sess.isClosed() {
		return nil, ErrClosed
	}
	rel, err := sess.relation(kind, relation)
	if err != nil {
		return nil, err
	}
	if !rel.Scoped() {
		return nil, configError(rel.Owner, rel.Name, "relation is not loaded by parent key")
	}
	return sess.loadMany(rel, parentKey)
}

func (sess *Session) loadMany(rel *Relation, parentKey interface{}) (CollectionThunk, error) {
	nk, enc, err := encodeKey(rel.ParentColumns(), parentKey)
	if err != nil {
		return nil, configError(rel.Owner, rel.Name, "invalid parent key: "+err.Error())
	}
	fp := Fingerprint{Kind: rel.Owner, Relation: rel.Name, Key: enc}
	thunk := sess.loader.Load(dataloader.Request{
		Batch: fp.Batch(),
		ID:    fp,
		Key:   nk,
	}, sess.fetchByForeignKey(rel))
	return collectionThunk(thunk), nil
}

// LoadWhere returns a thunk for the entities of kind whose columns match
// the filter values exactly. Filter field names are converted with the
// session's naming strategy. Requests with the same set of columns are
// fetched together, so the adapter must implement FilterAdapter.
func (sess *Session) LoadWhere(kind string, filter map[string]interface{}) (CollectionThunk, error) {
	if sess.isClosed() {
		return nil, ErrClosed
	}
	k, err := sess.kind(kind)
	if err != nil {
		return nil, err
	}
	fa, ok := sess.adapter.(FilterAdapter)
	if !ok {
		return nil, configError(k.Name, "", "adapter does not support filters")
	}
	if len(filter) == 0 {
		return nil, configError(k.Name, "", "filter is empty")
	}

	values := make(map[string]interface{}, len(filter))
	for name, v := range filter {
		col := sess.column(k, name)
		if !k.HasColumn(col) {
			return nil, configError(k.Name, "", "unknown filter field "+name)
		}
		if _, dup := values[col]; dup {
			return nil, configError(k.Name, "", "duplicate filter field "+name)
		}
		values[col] = v
	}
	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	key := make(Tuple, len(columns))
	for i, col := range columns {
		key[i] = values[col]
	}

	nk, enc, err := encodeKey(columns, key)
	if err != nil {
		return nil, configError(k.Name, "", "invalid filter: "+err.Error())
	}
	fp := Fingerprint{Kind: k.Name, Filter: strings.Join(columns, ","), Key: enc}
	thunk := sess.loader.Load(dataloader.Request{
		Batch: fp.Batch(),
		ID:    fp,
		Key:   nk,
	}, sess.fetchByFilter(fa, k, columns))
	return collectionThunk(thunk), nil
}

func collectionThunk(thunk dataloader.Thunk) CollectionThunk {
	return func() (Collection, error) {
		v, err := thunk()
		if err != nil {
			return Collection{}, err
		}
		c, _ := v.(Collection)
		if c.Entities == nil {
			c.Entities = []Entity{}
		}
		return c, nil
	}
}

// Flush dispatches every open batch and waits for them to settle.
// Hosts that create all of the thunks for one level of a query before
// calling any of them do not need to call Flush, because calling a
// thunk flushes its batch.
func (sess *Session) Flush() {
	sess.loader.Flush()
}

// Prime adds an entity to the cache, so that a later Load of the same
// kind and primary key does not call the adapter. An entity that is
// already cached is not replaced.
func (sess *Session) Prime(kind string, e Entity) error {
	k, err := sess.kind(kind)
	if err != nil {
		return err
	}
	key, ok := e.Key(k.PrimaryKey)
	if !ok {
		return configError(k.Name, "", "entity has no primary key")
	}
	_, enc, err := encodeKey(k.PrimaryKey, key)
	if err != nil {
		return configError(k.Name, "", "invalid key: "+err.Error())
	}
	sess.loader.Prime(Fingerprint{Kind: k.Name, Key: enc}, e)
	return nil
}

// Clear removes the entity of kind with the primary key from the cache.
func (sess *Session) Clear(kind string, key interface{}) error {
	k, err := sess.kind(kind)
	if err != nil {
		return err
	}
	_, enc, err := encodeKey(k.PrimaryKey, key)
	if err != nil {
		return configError(k.Name, "", "invalid key: "+err.Error())
	}
	sess.loader.Clear(Fingerprint{Kind: k.Name, Key: enc})
	return nil
}

// ClearAll removes everything from the cache.
func (sess *Session) ClearAll() {
	sess.loader.ClearAll()
}

// Field returns the value of the named field of an entity. The
// name is converted with the session's naming strategy unless the
// entity has a column with exactly that name.
func (sess *Session) Field(e Entity, name string) (interface{}, bool) {
	if v, ok := e[name]; ok {
		return v, true
	}
	v, ok := e[sess.naming.Convert(name)]
	return v, ok
}

// kind looks up a kind by name, then by converted name.
func (sess *Session) kind(name string) (*Kind, error) {
	if k := sess.registry.Kind(name); k != nil {
		return k, nil
	}
	if k := sess.registry.Kind(sess.naming.Convert(name)); k != nil {
		return k, nil
	}
	return nil, configError(name, "", "unknown kind")
}

// relation looks up a relation by name, then by converted name.
func (sess *Session) relation(kind, name string) (*Relation, error) {
	k, err := sess.kind(kind)
	if err != nil {
		return nil, err
	}
	if rel := k.Relation(name); rel != nil {
		return rel, nil
	}
	if rel := k.Relation(sess.naming.Convert(name)); rel != nil {
		return rel, nil
	}
	return nil, configError(k.Name, name, "unknown relation")
}

// column converts a field name to a column name of the kind.
func (sess *Session) column(k *Kind, name string) string {
	if len(k.Columns) > 0 && k.HasColumn(name) {
		return name
	}
	return sess.naming.Convert(name)
}

type sessionKey struct{}

// NewContext returns a context that carries the session.
func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// FromContext returns the session carried by ctx, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(*Session)
	return sess, ok && sess != nil
}
