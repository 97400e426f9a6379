package client

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/emrgen/linkfeed/internal/cache"
	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/sirupsen/logrus"
)

type WatchOptions struct {
	Variables   map[string]any
	FetchPolicy FetchPolicy
	ErrorPolicy ErrorPolicy
}

// ObservableQuery is a query whose results keep arriving as the cache
// changes. Delivery is latest-wins: a reader that falls behind sees only
// the newest result.
type ObservableQuery struct {
	client      *Client
	doc         *gql.Document
	variables   map[string]any
	fetchPolicy FetchPolicy
	errorPolicy ErrorPolicy

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	unwatch func()

	mu      sync.Mutex
	latest  *Result
	pending bool
	current map[string]any

	signal  chan struct{}
	results chan *Result
}

// WatchQuery starts watching a query. The first result is either cached
// data or a loading result followed by the network outcome.
func (c *Client) WatchQuery(ctx context.Context, doc *gql.Document, opts WatchOptions) (*ObservableQuery, error) {
	if doc.Kind() != gql.KindQuery {
		return nil, errors.New("watch: only queries can be watched")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	q := &ObservableQuery{
		client:      c,
		doc:         doc,
		variables:   opts.Variables,
		fetchPolicy: c.fetchPolicyFor(opts.FetchPolicy),
		errorPolicy: c.errorPolicyFor(opts.ErrorPolicy),
		ctx:         watchCtx,
		cancel:      cancel,
		signal:      make(chan struct{}, 1),
		results:     make(chan *Result),
	}

	if q.fetchPolicy.writesCache() {
		unwatch, err := c.cache.Watch(watchCtx, doc, opts.Variables, func(data map[string]any) {
			q.emit(&Result{Data: data})
		})
		if err != nil {
			cancel()
			return nil, err
		}
		q.unwatch = unwatch
	}

	q.wg.Add(1)
	go q.pump()

	cached := false
	if q.fetchPolicy.readsCache() {
		data, err := c.cache.ReadQuery(watchCtx, doc, opts.Variables)
		switch {
		case err == nil:
			q.emit(&Result{Data: data})
			cached = true
		case !errors.Is(err, cache.ErrCacheMiss):
			q.emit(&Result{Err: err})
			cached = true
		case q.fetchPolicy == CacheOnly:
			q.emit(&Result{Err: err})
			cached = true
		}
	}

	if !cached {
		q.emit(&Result{Loading: true})
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.refetch(watchCtx)
		}()
	}

	return q, nil
}

// Results delivers the query's results until Close.
func (q *ObservableQuery) Results() <-chan *Result {
	return q.results
}

// Current returns the latest result, nil before the first one.
func (q *ObservableQuery) Current() *Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.latest
}

// Refetch runs the query over the network again and emits the outcome.
func (q *ObservableQuery) Refetch(ctx context.Context) (*Result, error) {
	if q.ctx.Err() != nil {
		return nil, ErrClosed
	}
	return q.refetch(ctx)
}

func (q *ObservableQuery) refetch(ctx context.Context) (*Result, error) {
	policy := q.fetchPolicy
	if policy != NoCache {
		policy = NetworkOnly
	}

	result, err := q.client.fetch(ctx, q.doc, q.variables, policy, q.errorPolicy)
	if err != nil {
		if q.ctx.Err() == nil {
			q.emit(&Result{Err: err})
		}
		return nil, err
	}

	q.emit(result)
	return result, nil
}

// UpdateQueryFunc merges a subscription payload into the query's current
// data. Returning nil leaves the data as it is.
type UpdateQueryFunc func(prev, next map[string]any) map[string]any

type SubscribeToMoreOptions struct {
	Variables   map[string]any
	UpdateQuery UpdateQueryFunc
	// OnError receives subscription failures, which are logged otherwise.
	OnError func(err error)
}

// SubscribeToMore runs a subscription for the life of the query. Payloads
// are written to the cache, so entities they carry update the query
// without an UpdateQuery.
func (q *ObservableQuery) SubscribeToMore(doc *gql.Document, opts SubscribeToMoreOptions) error {
	if q.ctx.Err() != nil {
		return ErrClosed
	}

	results, err := q.client.Subscribe(q.ctx, doc, SubscribeOptions{
		Variables:   opts.Variables,
		FetchPolicy: q.fetchPolicy,
	})
	if err != nil {
		return err
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		for result := range results {
			if result.Err != nil {
				if opts.OnError != nil {
					opts.OnError(result.Err)
				} else {
					logrus.Warnf("subscription %s: %v", doc.Name(), result.Err)
				}
				continue
			}
			if opts.UpdateQuery == nil || result.Data == nil {
				continue
			}
			if err := q.update(opts.UpdateQuery, result.Data); err != nil {
				logrus.Warnf("merge %s into %s: %v", doc.Name(), q.doc.Name(), err)
			}
		}
	}()

	return nil
}

// update applies fn to the current data: through the cache, whose watch
// emits the change, or directly for a query kept out of the cache.
func (q *ObservableQuery) update(fn UpdateQueryFunc, payload map[string]any) error {
	if q.fetchPolicy == NoCache {
		q.mu.Lock()
		prev := q.current
		q.mu.Unlock()
		if prev == nil {
			return nil
		}
		if next := fn(prev, payload); next != nil {
			q.emit(&Result{Data: next})
		}
		return nil
	}

	return q.client.cache.Batch(q.ctx, func(p cache.Proxy) error {
		prev, err := p.ReadQuery(q.ctx, q.doc, q.variables)
		if errors.Is(err, cache.ErrCacheMiss) {
			logrus.Debugf("%s is not cached, skipping update", q.doc.Name())
			return nil
		}
		if err != nil {
			return err
		}

		next := fn(prev, payload)
		if next == nil {
			return nil
		}
		return p.WriteQuery(q.ctx, q.doc, q.variables, next)
	})
}

// Close stops the watch and every subscription started with
// SubscribeToMore, then closes Results.
func (q *ObservableQuery) Close() {
	q.cancel()
	if q.unwatch != nil {
		q.unwatch()
	}
	q.wg.Wait()
}

// emit records a result for the reader, replacing one it has not taken
// yet. Repeated data is not emitted twice.
func (q *ObservableQuery) emit(r *Result) {
	q.mu.Lock()
	if !r.Loading && r.Err == nil && r.Data != nil && reflect.DeepEqual(r.Data, q.current) && len(r.Errors) == 0 {
		q.mu.Unlock()
		return
	}
	if r.Data != nil {
		q.current = r.Data
	}
	q.latest = r
	q.pending = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *ObservableQuery) pump() {
	defer q.wg.Done()
	defer close(q.results)

	for {
		select {
		case <-q.signal:
		case <-q.ctx.Done():
			return
		}

		q.mu.Lock()
		r, ok := q.latest, q.pending
		q.pending = false
		q.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case q.results <- r:
		case <-q.ctx.Done():
			return
		}
	}
}
