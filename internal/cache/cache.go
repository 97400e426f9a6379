package cache

import (
	"context"
	"reflect"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/sirupsen/logrus"
)

// Proxy is the read/write surface handed to mutation update callbacks.
type Proxy interface {
	// ReadQuery reads the cached result of a query.
	ReadQuery(ctx context.Context, doc *gql.Document, variables map[string]any) (map[string]any, error)
	// WriteQuery writes a result for a query, normalizing its objects.
	WriteQuery(ctx context.Context, doc *gql.Document, variables map[string]any, data map[string]any) error
}

// Options configures a Cache.
type Options struct {
	// Store holds the records, defaults to an in-memory store.
	Store RecordStore
	// KeyFunc identifies objects, defaults to DefaultKey.
	KeyFunc KeyFunc
	// PossibleTypes maps abstract types to their concrete members for
	// fragment matching.
	PossibleTypes map[string][]string
}

var _ Proxy = (*Cache)(nil)

// Cache is a normalized result cache. Reads run concurrently, writes and
// batches are serialized and notify watchers once per commit.
type Cache struct {
	mu            sync.RWMutex
	store         RecordStore
	keyFunc       KeyFunc
	possibleTypes map[string]mapset.Set[string]
	concrete      mapset.Set[string]

	seq      uint64
	watchMu  sync.Mutex
	watchers map[*watcher]struct{}
}

// New creates a cache.
func New(opts Options) *Cache {
	c := &Cache{
		store:         opts.Store,
		keyFunc:       opts.KeyFunc,
		possibleTypes: make(map[string]mapset.Set[string]),
		concrete:      mapset.NewSet[string](),
		watchers:      make(map[*watcher]struct{}),
	}
	if c.store == nil {
		c.store = NewMemory()
	}
	if c.keyFunc == nil {
		c.keyFunc = DefaultKey
	}
	for abstract, members := range opts.PossibleTypes {
		c.possibleTypes[abstract] = mapset.NewSet(members...)
		c.concrete.Append(members...)
	}

	return c
}

// Identify returns the record key of a result object.
func (c *Cache) Identify(obj map[string]any) (string, bool) {
	return c.keyFunc(obj)
}

func (c *Cache) ReadQuery(ctx context.Context, doc *gql.Document, variables map[string]any) (map[string]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, _, err := c.read(ctx, c.store.Get, doc, variables)
	return data, err
}

func (c *Cache) WriteQuery(ctx context.Context, doc *gql.Document, variables map[string]any, data map[string]any) error {
	return c.Batch(ctx, func(p Proxy) error {
		return p.WriteQuery(ctx, doc, variables, data)
	})
}

// Batch runs fn as one transaction. Writes made through the proxy are
// visible to its reads, committed together when fn succeeds and discarded
// when it fails.
func (c *Cache) Batch(ctx context.Context, fn func(p Proxy) error) error {
	c.mu.Lock()

	t := &tx{
		cache:   c,
		pending: make(map[string]Record),
		changed: mapset.NewThreadUnsafeSet[string](),
	}
	if err := fn(t); err != nil {
		c.mu.Unlock()
		return err
	}

	deliveries, err := c.commit(ctx, t.pending, nil, t.changed)
	c.mu.Unlock()

	deliver(deliveries)
	return err
}

// Evict removes records by key.
func (c *Cache) Evict(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	deliveries, err := c.commit(ctx, nil, keys, mapset.NewThreadUnsafeSet(keys...))
	c.mu.Unlock()

	deliver(deliveries)
	return err
}

// Reset drops every record.
func (c *Cache) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Clear(ctx)
}

// Extract returns a copy of all records.
func (c *Cache) Extract(ctx context.Context) (map[string]Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys, err := c.store.Keys(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Record, len(keys))
	for _, key := range keys {
		rec, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out[key] = copyRecord(rec)
		}
	}

	return out, nil
}

// Restore replaces the cache content with records.
func (c *Cache) Restore(ctx context.Context, records map[string]Record) error {
	c.mu.Lock()

	if err := c.store.Clear(ctx); err != nil {
		c.mu.Unlock()
		return err
	}

	pending := make(map[string]Record, len(records))
	changed := mapset.NewThreadUnsafeSet[string]()
	for key, rec := range records {
		pending[key] = copyRecord(rec)
		changed.Add(key)
	}

	deliveries, err := c.commit(ctx, pending, nil, changed)
	c.mu.Unlock()

	deliver(deliveries)
	return err
}

// Size returns the number of records.
func (c *Cache) Size(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys, err := c.store.Keys(ctx)
	return len(keys), err
}

// commit flushes pending records, removes evicted keys and recomputes the
// watchers that depend on changed keys. Called with mu held.
func (c *Cache) commit(ctx context.Context, pending map[string]Record, evicted []string, changed mapset.Set[string]) ([]delivery, error) {
	if changed.Cardinality() == 0 {
		return nil, nil
	}

	if len(pending) > 0 {
		if err := c.store.Put(ctx, pending); err != nil {
			return nil, err
		}
	}
	if len(evicted) > 0 {
		if err := c.store.Delete(ctx, evicted...); err != nil {
			return nil, err
		}
	}

	c.seq++
	logrus.Debugf("cache commit %d: %d records changed", c.seq, changed.Cardinality())

	return c.recompute(ctx, changed, c.seq), nil
}

// matches reports whether a fragment on condition applies to an object of
// typename. certain is false when the answer is a guess, reads then treat
// the fragment's missing fields as absent instead of missing.
func (c *Cache) matches(typename, condition string) (match, certain bool) {
	if condition == "" || typename == condition {
		return true, true
	}
	if typename == "" {
		return true, false
	}
	if members, ok := c.possibleTypes[condition]; ok {
		return members.Contains(typename), true
	}
	if c.concrete.Contains(condition) {
		return false, true
	}
	return true, false
}

// tx stages writes of a batch over the store.
type tx struct {
	cache   *Cache
	pending map[string]Record
	changed mapset.Set[string]
}

func (t *tx) get(ctx context.Context, key string) (Record, error) {
	if rec, ok := t.pending[key]; ok {
		return rec, nil
	}
	return t.cache.store.Get(ctx, key)
}

func (t *tx) put(key string, prev, next Record) {
	if reflect.DeepEqual(prev, next) {
		return
	}
	t.pending[key] = next
	t.changed.Add(key)
}

func (t *tx) ReadQuery(ctx context.Context, doc *gql.Document, variables map[string]any) (map[string]any, error) {
	data, _, err := t.cache.read(ctx, t.get, doc, variables)
	return data, err
}

func (t *tx) WriteQuery(ctx context.Context, doc *gql.Document, variables map[string]any, data map[string]any) error {
	typed, err := doc.WithTypename()
	if err != nil {
		return err
	}

	w := &writer{tx: t, doc: typed, variables: variables}
	return w.writeRecord(ctx, rootKey(typed.Kind()), typed.SelectionSet(), data)
}
