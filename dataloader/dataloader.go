package dataloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jjeffery/errors"
)

// Request is a request to load a single value.
type Request struct {
	// Batch identifies the class of batch that the request belongs to.
	// All requests with the same Batch are loaded by the same batch function.
	Batch string

	// ID identifies the request. Requests with equal IDs are the same
	// request. It must be comparable, and is usually a string.
	ID interface{}

	// Key is passed to the batch function.
	Key interface{}
}

// Result is the outcome of loading a single key. The zero Result
// means that nothing was found.
type Result struct {
	Value interface{}
	Err   error
}

// BatchFunc loads the values for a batch of keys. It must return
// one result per key, in the same order as keys.
type BatchFunc func(ctx context.Context, keys []interface{}) ([]Result, error)

// Thunk returns the result of a load request. It blocks until the
// request's batch has settled.
type Thunk func() (interface{}, error)

// Observer receives notifications about loader activity.
// Methods are called without any locks held, and may be called
// concurrently.
type Observer interface {
	CacheHit(batch string)
	Dispatched(batch string, keys int)
	Settled(batch string, keys int, err error)
}

// Config contains configuration for a Loader.
type Config struct {
	// Wait is the period after which a batch dispatches itself. If zero,
	// batches are only dispatched by Flush or by calling a thunk.
	Wait time.Duration

	// Observer, if not nil, is notified of cache hits and batches.
	Observer Observer
}

// Loader collects load requests into batches, and caches their results.
// It is safe for concurrent use.
type Loader struct {
	ctx      context.Context
	wait     time.Duration
	observer Observer

	mu      sync.Mutex
	cache   map[interface{}]Result  // settled results by ID
	open    map[string]*batch       // open batches by class
	members map[interface{}]*member // unsettled members by ID
}

type batch struct {
	class   string
	fn      BatchFunc
	ids     []interface{}
	keys    []interface{}
	members []*member
	closed  bool
	timer   *time.Timer
	done    chan struct{}
}

type member struct {
	batch  *batch
	result Result
}

// New returns a new loader. The context is passed to every batch function.
func New(ctx context.Context, config Config) *Loader {
	if ctx == nil {
		panic("nil context")
	}
	return &Loader{
		ctx:      ctx,
		wait:     config.Wait,
		observer: config.Observer,
		cache:    make(map[interface{}]Result),
		open:     make(map[string]*batch),
		members:  make(map[interface{}]*member),
	}
}

// Load returns a thunk for the request. If the request is not already
// cached or waiting in a batch, it is added to the open batch for its
// class, which is created with fn if it does not exist.
func (l *Loader) Load(req Request, fn BatchFunc) Thunk {
	l.mu.Lock()
	if result, ok := l.cache[req.ID]; ok {
		l.mu.Unlock()
		if l.observer != nil {
			l.observer.CacheHit(req.Batch)
		}
		return func() (interface{}, error) {
			return result.Value, result.Err
		}
	}
	m := l.members[req.ID]
	if m == nil {
		b := l.open[req.Batch]
		if b == nil {
			b = &batch{
				class: req.Batch,
				fn:    fn,
				done:  make(chan struct{}),
			}
			l.open[req.Batch] = b
			if l.wait > 0 {
				b.timer = time.AfterFunc(l.wait, func() { l.dispatch(b) })
			}
		}
		m = &member{batch: b}
		b.ids = append(b.ids, req.ID)
		b.keys = append(b.keys, req.Key)
		b.members = append(b.members, m)
		l.members[req.ID] = m
	}
	l.mu.Unlock()

	return func() (interface{}, error) {
		return l.await(m)
	}
}

func (l *Loader) await(m *member) (interface{}, error) {
	b := m.batch
	if l.wait == 0 {
		l.mu.Lock()
		closed := b.closed
		l.mu.Unlock()
		if !closed {
			l.Flush()
		}
	}
	<-b.done
	return m.result.Value, m.result.Err
}

// Flush dispatches all open batches, and returns when they have settled.
// Batches of different classes are dispatched concurrently.
func (l *Loader) Flush() {
	l.mu.Lock()
	batches := make([]*batch, 0, len(l.open))
	for class, b := range l.open {
		b.closed = true
		if b.timer != nil {
			b.timer.Stop()
		}
		batches = append(batches, b)
		delete(l.open, class)
	}
	l.mu.Unlock()

	if len(batches) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, b := range batches[1:] {
		wg.Add(1)
		go func(b *batch) {
			defer wg.Done()
			l.run(b)
		}(b)
	}
	l.run(batches[0])
	wg.Wait()
}

// dispatch is called when the wait period for a batch has elapsed.
func (l *Loader) dispatch(b *batch) {
	l.mu.Lock()
	if b.closed {
		l.mu.Unlock()
		return
	}
	b.closed = true
	if l.open[b.class] == b {
		delete(l.open, b.class)
	}
	l.mu.Unlock()
	l.run(b)
}

func (l *Loader) run(b *batch) {
	if l.observer != nil {
		l.observer.Dispatched(b.class, len(b.keys))
	}
	results, err := l.call(b)
	if err == nil && len(results) != len(b.keys) {
		err = errors.New("batch function returned wrong number of results").With(
			"batch", b.class,
			"keys", len(b.keys),
			"results", len(results),
		)
	}
	l.settle(b, results, err)
	if l.observer != nil {
		l.observer.Settled(b.class, len(b.keys), err)
	}
}

func (l *Loader) call(b *batch) (results []Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("batch function panicked").With(
				"batch", b.class,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	return b.fn(l.ctx, b.keys)
}

// settle stores the results in the cache and then releases the waiters.
func (l *Loader) settle(b *batch, results []Result, err error) {
	l.mu.Lock()
	for i, m := range b.members {
		id := b.ids[i]
		if err != nil {
			m.result = Result{Err: err}
		} else {
			m.result = results[i]
			l.cache[id] = m.result
		}
		if l.members[id] == m {
			delete(l.members, id)
		}
	}
	l.mu.Unlock()
	close(b.done)
}

// Prime adds a value to the cache, unless the ID is already cached.
// It returns true if the value was added.
func (l *Loader) Prime(id interface{}, value interface{}) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[id]; ok {
		return false
	}
	l.cache[id] = Result{Value: value}
	return true
}

// Clear removes the ID from the cache. A request that is waiting in
// a batch is not affected.
func (l *Loader) Clear(id interface{}) {
	l.mu.Lock()
	delete(l.cache, id)
	l.mu.Unlock()
}

// ClearAll removes everything from the cache.
func (l *Loader) ClearAll() {
	l.mu.Lock()
	l.cache = make(map[interface{}]Result)
	l.mu.Unlock()
}

// Cached returns the cached result for the ID, if any.
func (l *Loader) Cached(id interface{}) (Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	result, ok := l.cache[id]
	return result, ok
}

// Len returns the number of cached results.
func (l *Loader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache)
}

// Pending returns the number of requests waiting for their batch to settle.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.members)
}
