package cache

import (
	"context"
	"reflect"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/sirupsen/logrus"
)

// WatchFunc receives the complete result of a watched query after a commit
// changed it. It must not block or call back into the cache.
type WatchFunc func(data map[string]any)

type watcher struct {
	doc       *gql.Document
	variables map[string]any
	fn        WatchFunc

	// guarded by Cache.mu
	deps mapset.Set[string]
	last map[string]any

	mu        sync.Mutex
	delivered uint64
}

type delivery struct {
	w    *watcher
	seq  uint64
	data map[string]any
}

// Watch calls fn whenever a commit changes the complete result of doc. It
// returns a function that stops the watch.
func (c *Cache) Watch(ctx context.Context, doc *gql.Document, variables map[string]any, fn WatchFunc) (func(), error) {
	w := &watcher{doc: doc, variables: variables, fn: fn}

	c.mu.RLock()
	data, deps, err := c.read(ctx, c.store.Get, doc, variables)
	c.mu.RUnlock()
	if err != nil && deps == nil {
		return nil, err
	}

	w.deps = deps
	if err == nil {
		w.last = data
	}

	c.watchMu.Lock()
	c.watchers[w] = struct{}{}
	c.watchMu.Unlock()

	return func() {
		c.watchMu.Lock()
		delete(c.watchers, w)
		c.watchMu.Unlock()
	}, nil
}

// recompute re-reads every watcher that depends on a changed key. Called
// with mu held.
func (c *Cache) recompute(ctx context.Context, changed mapset.Set[string], seq uint64) []delivery {
	c.watchMu.Lock()
	watchers := make([]*watcher, 0, len(c.watchers))
	for w := range c.watchers {
		watchers = append(watchers, w)
	}
	c.watchMu.Unlock()

	var deliveries []delivery
	for _, w := range watchers {
		if w.deps == nil || !dependsOn(w.deps, changed) {
			continue
		}

		data, deps, err := c.read(ctx, c.store.Get, w.doc, w.variables)
		if deps != nil {
			w.deps = deps
		}
		if err != nil {
			logrus.Debugf("watched query %s is incomplete: %v", w.doc.Name(), err)
			continue
		}
		if reflect.DeepEqual(w.last, data) {
			continue
		}

		w.last = data
		deliveries = append(deliveries, delivery{w: w, seq: seq, data: data})
	}

	return deliveries
}

func dependsOn(deps, changed mapset.Set[string]) bool {
	hit := false
	changed.Each(func(key string) bool {
		hit = deps.Contains(key)
		return hit
	})
	return hit
}

// deliver runs watch callbacks outside the cache lock, dropping results
// older than what a watcher has already seen.
func deliver(deliveries []delivery) {
	for _, d := range deliveries {
		d.w.mu.Lock()
		if d.seq > d.w.delivered {
			d.w.delivered = d.seq
			d.w.fn(d.data)
		}
		d.w.mu.Unlock()
	}
}
