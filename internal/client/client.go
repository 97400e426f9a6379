package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/emrgen/linkfeed/internal/cache"
	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/emrgen/linkfeed/internal/transport"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by an ObservableQuery after Close.
var ErrClosed = errors.New("query closed")

// Result is one outcome of an operation.
type Result struct {
	Data map[string]any
	// Errors are the GraphQL errors kept under ErrorPolicyAll.
	Errors gql.Errors
	// Loading is set on the result emitted while a watched query waits for
	// its first network response.
	Loading bool
	// Err is set on watched query and subscription results that failed.
	Err error
}

type Options struct {
	Transport   transport.Transport
	Cache       *cache.Cache
	FetchPolicy FetchPolicy
	ErrorPolicy ErrorPolicy
}

// Client executes operations and keeps their results in a normalized cache.
type Client struct {
	transport   transport.Transport
	cache       *cache.Cache
	fetchPolicy FetchPolicy
	errorPolicy ErrorPolicy
}

func New(opts Options) *Client {
	c := &Client{
		transport:   opts.Transport,
		cache:       opts.Cache,
		fetchPolicy: opts.FetchPolicy,
		errorPolicy: opts.ErrorPolicy,
	}
	if c.cache == nil {
		c.cache = cache.New(cache.Options{})
	}
	if c.fetchPolicy == "" {
		c.fetchPolicy = CacheFirst
	}
	if c.errorPolicy == "" {
		c.errorPolicy = ErrorPolicyNone
	}
	return c
}

// Cache returns the client's cache.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

type QueryOptions struct {
	Variables   map[string]any
	FetchPolicy FetchPolicy
	ErrorPolicy ErrorPolicy
}

// Query runs a query under its fetch policy.
func (c *Client) Query(ctx context.Context, doc *gql.Document, opts QueryOptions) (*Result, error) {
	policy := c.fetchPolicyFor(opts.FetchPolicy)

	if policy.readsCache() {
		data, err := c.cache.ReadQuery(ctx, doc, opts.Variables)
		if err == nil {
			logrus.Debugf("query %s answered from cache", doc.Name())
			return &Result{Data: data}, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			return nil, err
		}
		if policy == CacheOnly {
			return nil, fmt.Errorf("%s: %w", CacheOnly, err)
		}
	}

	return c.fetch(ctx, doc, opts.Variables, policy, c.errorPolicyFor(opts.ErrorPolicy))
}

// fetch executes doc over the network and writes the result to the cache
// unless policy is NoCache.
func (c *Client) fetch(ctx context.Context, doc *gql.Document, variables map[string]any, policy FetchPolicy, errorPolicy ErrorPolicy) (*Result, error) {
	resp, err := c.execute(ctx, doc, variables)
	if err != nil {
		return nil, err
	}

	result, err := c.result(resp, errorPolicy)
	if err != nil {
		return nil, err
	}

	if policy.writesCache() && result.Data != nil {
		if err := c.cache.WriteQuery(ctx, doc, variables, result.Data); err != nil {
			return nil, fmt.Errorf("write %s to cache: %w", doc.Name(), err)
		}
	}

	return result, nil
}

func (c *Client) execute(ctx context.Context, doc *gql.Document, variables map[string]any) (*gql.Response, error) {
	wire, err := doc.WithTypename()
	if err != nil {
		return nil, err
	}

	req := wire.Request(variables)
	logrus.Debugf("executing %s %s", doc.Kind(), doc.Name())
	return c.transport.Execute(ctx, req)
}

func (c *Client) result(resp *gql.Response, errorPolicy ErrorPolicy) (*Result, error) {
	if len(resp.Errors) > 0 && errorPolicy != ErrorPolicyAll {
		return nil, resp.Errors
	}
	return &Result{Data: resp.Data, Errors: resp.Errors}, nil
}

func (c *Client) fetchPolicyFor(p FetchPolicy) FetchPolicy {
	if p == "" {
		return c.fetchPolicy
	}
	return p
}

func (c *Client) errorPolicyFor(p ErrorPolicy) ErrorPolicy {
	if p == "" {
		return c.errorPolicy
	}
	return p
}

// UpdateFunc patches the cache with a mutation result. It runs inside the
// batch that writes the result, so its reads see that write.
type UpdateFunc func(ctx context.Context, proxy cache.Proxy, data map[string]any) error

// Refetch names a query to run again after a mutation.
type Refetch struct {
	Document  *gql.Document
	Variables map[string]any
}

type MutateOptions struct {
	Variables      map[string]any
	Update         UpdateFunc
	RefetchQueries []Refetch
	ErrorPolicy    ErrorPolicy
	// FetchPolicy NoCache skips writing the result and the update.
	FetchPolicy FetchPolicy
}

// Mutate runs a mutation, merges its result into the cache together with
// the update callback and then runs the refetch queries.
func (c *Client) Mutate(ctx context.Context, doc *gql.Document, opts MutateOptions) (*Result, error) {
	if doc.Kind() != gql.KindMutation {
		return nil, fmt.Errorf("mutate: %s is a %s", doc.Name(), doc.Kind())
	}

	resp, err := c.execute(ctx, doc, opts.Variables)
	if err != nil {
		return nil, err
	}
	result, err := c.result(resp, c.errorPolicyFor(opts.ErrorPolicy))
	if err != nil {
		return nil, err
	}

	if opts.FetchPolicy != NoCache && result.Data != nil {
		err := c.cache.Batch(ctx, func(p cache.Proxy) error {
			if err := p.WriteQuery(ctx, doc, opts.Variables, result.Data); err != nil {
				return err
			}
			if opts.Update != nil {
				return opts.Update(ctx, p, result.Data)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("update cache after %s: %w", doc.Name(), err)
		}
	}

	for _, r := range opts.RefetchQueries {
		if _, err := c.fetch(ctx, r.Document, r.Variables, NetworkOnly, c.errorPolicy); err != nil {
			logrus.Warnf("refetch %s after %s: %v", r.Document.Name(), doc.Name(), err)
		}
	}

	return result, nil
}

type SubscribeOptions struct {
	Variables map[string]any
	// FetchPolicy NoCache keeps payloads out of the cache.
	FetchPolicy FetchPolicy
}

// Subscribe starts a subscription. Every payload is written to the cache
// before it is delivered, so entities it carries update watched queries.
// The channel closes when the subscription ends.
func (c *Client) Subscribe(ctx context.Context, doc *gql.Document, opts SubscribeOptions) (<-chan *Result, error) {
	if doc.Kind() != gql.KindSubscription {
		return nil, fmt.Errorf("subscribe: %s is a %s", doc.Name(), doc.Kind())
	}

	wire, err := doc.WithTypename()
	if err != nil {
		return nil, err
	}

	in, err := c.transport.Subscribe(ctx, wire.Request(opts.Variables))
	if err != nil {
		return nil, err
	}

	out := make(chan *Result)
	go func() {
		defer close(out)

		for resp := range in {
			result := &Result{Data: resp.Data, Errors: resp.Errors}
			if len(resp.Errors) > 0 {
				result.Err = resp.Errors
			}
			if resp.Data != nil && opts.FetchPolicy != NoCache {
				if err := c.cache.WriteQuery(ctx, doc, opts.Variables, resp.Data); err != nil {
					logrus.Warnf("write %s payload to cache: %v", doc.Name(), err)
				}
			}

			select {
			case out <- result:
			case <-ctx.Done():
				// drain so the transport can finish
				for range in {
				}
				return
			}
		}
	}()

	return out, nil
}
