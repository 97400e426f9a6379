package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/emrgen/linkfeed/internal/cache"
	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	feedDoc = gql.MustParse(`query FeedQuery { feed { count links { id url votes { id } } } }`)

	voteDoc = gql.MustParse(`mutation VoteMutation($linkId: ID!) {
		vote(linkId: $linkId) { id link { id votes { id } } }
	}`)

	newLinkDoc = gql.MustParse(`subscription NewLinks { newLink { id url votes { id } } }`)

	newVoteDoc = gql.MustParse(`subscription NewVotes { newVote { id link { id votes { id } } } }`)
)

const feedJSON = `{"feed":{"__typename":"Feed","count":1,"links":[
	{"__typename":"Link","id":"1","url":"https://go.dev","votes":[]}
]}}`

const voteJSON = `{"vote":{"__typename":"Vote","id":"v1","link":{
	"__typename":"Link","id":"1","votes":[{"__typename":"Vote","id":"v1"}]
}}}`

func decode(t *testing.T, src string) map[string]any {
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(src), &data))
	return data
}

// fakeTransport answers by operation name and streams what tests push.
type fakeTransport struct {
	mu        sync.Mutex
	responses map[string]*gql.Response
	calls     map[string]int
	queries   []string
	stream    chan *gql.Response
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: map[string]*gql.Response{},
		calls:     map[string]int{},
		stream:    make(chan *gql.Response),
	}
}

func (f *fakeTransport) respond(name string, resp *gql.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[name] = resp
}

func (f *fakeTransport) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeTransport) Execute(ctx context.Context, req *gql.Request) (*gql.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.OperationName]++
	f.queries = append(f.queries, req.Query)
	resp, ok := f.responses[req.OperationName]
	if !ok {
		return &gql.Response{Errors: gql.Errors{{Message: "no response for " + req.OperationName}}}, nil
	}
	return resp, nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, req *gql.Request) (<-chan *gql.Response, error) {
	f.mu.Lock()
	f.calls[req.OperationName]++
	f.mu.Unlock()

	out := make(chan *gql.Response)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case resp := <-f.stream:
				select {
				case out <- resp:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *fakeTransport) push(t *testing.T, resp *gql.Response) {
	select {
	case f.stream <- resp:
	case <-time.After(5 * time.Second):
		t.Fatal("nobody is subscribed")
	}
}

func setup(t *testing.T) (*Client, *fakeTransport) {
	ft := newFakeTransport()
	ft.respond("FeedQuery", &gql.Response{Data: decode(t, feedJSON)})
	ft.respond("VoteMutation", &gql.Response{Data: decode(t, voteJSON)})
	return New(Options{Transport: ft}), ft
}

func links(t *testing.T, data map[string]any) []any {
	feed, ok := data["feed"].(map[string]any)
	require.True(t, ok, "feed missing from %v", data)
	return feed["links"].([]any)
}

func TestQuery_CacheFirst(t *testing.T) {
	c, ft := setup(t)
	ctx := context.Background()

	first, err := c.Query(ctx, feedDoc, QueryOptions{})
	require.NoError(t, err)
	second, err := c.Query(ctx, feedDoc, QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, ft.count("FeedQuery"))
	assert.Equal(t, first.Data, second.Data)
	assert.Contains(t, ft.queries[0], "__typename")
}

func TestQuery_Policies(t *testing.T) {
	ctx := context.Background()

	t.Run("network-only", func(t *testing.T) {
		c, ft := setup(t)
		for i := 0; i < 2; i++ {
			_, err := c.Query(ctx, feedDoc, QueryOptions{FetchPolicy: NetworkOnly})
			require.NoError(t, err)
		}
		assert.Equal(t, 2, ft.count("FeedQuery"))
	})

	t.Run("no-cache", func(t *testing.T) {
		c, _ := setup(t)
		res, err := c.Query(ctx, feedDoc, QueryOptions{FetchPolicy: NoCache})
		require.NoError(t, err)
		assert.Len(t, links(t, res.Data), 1)

		size, err := c.Cache().Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, size)
	})

	t.Run("cache-only", func(t *testing.T) {
		c, ft := setup(t)
		_, err := c.Query(ctx, feedDoc, QueryOptions{FetchPolicy: CacheOnly})
		assert.ErrorIs(t, err, cache.ErrCacheMiss)
		assert.Equal(t, 0, ft.count("FeedQuery"))
	})
}

func TestQuery_ErrorPolicy(t *testing.T) {
	ctx := context.Background()
	c, ft := setup(t)
	ft.respond("FeedQuery", &gql.Response{
		Data:   decode(t, feedJSON),
		Errors: gql.Errors{{Message: "partial", Path: []any{"feed", "count"}}},
	})

	_, err := c.Query(ctx, feedDoc, QueryOptions{})
	var gqlErrs gql.Errors
	require.ErrorAs(t, err, &gqlErrs)
	assert.Equal(t, "partial", gqlErrs[0].Message)

	res, err := c.Query(ctx, feedDoc, QueryOptions{ErrorPolicy: ErrorPolicyAll})
	require.NoError(t, err)
	assert.Len(t, res.Errors, 1)
	assert.NotNil(t, res.Data)
}

func TestMutate_NormalizesIntoCachedQuery(t *testing.T) {
	c, ft := setup(t)
	ctx := context.Background()

	_, err := c.Query(ctx, feedDoc, QueryOptions{})
	require.NoError(t, err)

	var seen map[string]any
	_, err = c.Mutate(ctx, voteDoc, MutateOptions{
		Variables: map[string]any{"linkId": "1"},
		Update: func(ctx context.Context, proxy cache.Proxy, data map[string]any) error {
			seen = data
			feed, err := proxy.ReadQuery(ctx, feedDoc, nil)
			require.NoError(t, err)
			assert.Len(t, links(t, feed)[0].(map[string]any)["votes"], 1)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "v1", seen["vote"].(map[string]any)["id"])

	res, err := c.Query(ctx, feedDoc, QueryOptions{FetchPolicy: CacheOnly})
	require.NoError(t, err)
	assert.Len(t, links(t, res.Data)[0].(map[string]any)["votes"], 1)
	assert.Equal(t, 1, ft.count("FeedQuery"))
}

func TestMutate_Refetch(t *testing.T) {
	c, ft := setup(t)
	ctx := context.Background()

	_, err := c.Mutate(ctx, voteDoc, MutateOptions{
		Variables:      map[string]any{"linkId": "1"},
		RefetchQueries: []Refetch{{Document: feedDoc}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ft.count("FeedQuery"))

	_, err = c.Mutate(ctx, feedDoc, MutateOptions{})
	assert.Error(t, err)
}

func TestSubscribe_WritesPayloads(t *testing.T) {
	c, ft := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := c.Query(ctx, feedDoc, QueryOptions{})
	require.NoError(t, err)

	results, err := c.Subscribe(ctx, newVoteDoc, SubscribeOptions{})
	require.NoError(t, err)

	ft.push(t, &gql.Response{Data: decode(t, `{"newVote":{"__typename":"Vote","id":"v9","link":{
		"__typename":"Link","id":"1","votes":[{"__typename":"Vote","id":"v9"}]}}}`)})

	res := <-results
	require.NoError(t, res.Err)

	feed, err := c.Query(ctx, feedDoc, QueryOptions{FetchPolicy: CacheOnly})
	require.NoError(t, err)
	votes := links(t, feed.Data)[0].(map[string]any)["votes"].([]any)
	require.Len(t, votes, 1)
	assert.Equal(t, "v9", votes[0].(map[string]any)["id"])

	cancel()
	for range results {
	}
}

// next returns the next result that is not a loading one.
func next(t *testing.T, q *ObservableQuery) *Result {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case r, ok := <-q.Results():
			require.True(t, ok, "results closed")
			if r.Loading {
				continue
			}
			return r
		case <-timeout:
			t.Fatal("no result")
			return nil
		}
	}
}

func prependLink(prev, next map[string]any) map[string]any {
	link := next["newLink"].(map[string]any)
	feed := prev["feed"].(map[string]any)
	links := feed["links"].([]any)
	for _, l := range links {
		if l.(map[string]any)["id"] == link["id"] {
			return nil
		}
	}

	merged := map[string]any{}
	for k, v := range feed {
		merged[k] = v
	}
	merged["links"] = append([]any{link}, links...)
	merged["count"] = feed["count"].(float64) + 1
	return map[string]any{"feed": merged}
}

func TestWatchQuery(t *testing.T) {
	c, ft := setup(t)
	ctx := context.Background()

	q, err := c.WatchQuery(ctx, feedDoc, WatchOptions{})
	require.NoError(t, err)
	defer q.Close()

	res := next(t, q)
	require.NoError(t, res.Err)
	assert.Len(t, links(t, res.Data), 1)

	// a mutation touching a cached entity re-emits without a refetch
	_, err = c.Mutate(ctx, voteDoc, MutateOptions{Variables: map[string]any{"linkId": "1"}})
	require.NoError(t, err)
	res = next(t, q)
	assert.Len(t, links(t, res.Data)[0].(map[string]any)["votes"], 1)
	assert.Equal(t, 1, ft.count("FeedQuery"))

	require.NoError(t, q.SubscribeToMore(newLinkDoc, SubscribeToMoreOptions{UpdateQuery: prependLink}))

	link := func(id string) *gql.Response {
		return &gql.Response{Data: decode(t, `{"newLink":{"__typename":"Link","id":"`+id+`","url":"https://`+id+`.dev","votes":[]}}`)}
	}

	ft.push(t, link("2"))
	res = next(t, q)
	got := links(t, res.Data)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].(map[string]any)["id"])
	assert.Equal(t, float64(2), res.Data["feed"].(map[string]any)["count"])

	// the same link again is dropped, the next emission carries link 3
	ft.push(t, link("2"))
	ft.push(t, link("3"))
	res = next(t, q)
	got = links(t, res.Data)
	require.Len(t, got, 3)
	assert.Equal(t, "3", got[0].(map[string]any)["id"])
	assert.Equal(t, "2", got[1].(map[string]any)["id"])
}

func TestWatchQuery_CachedAndRefetch(t *testing.T) {
	c, ft := setup(t)
	ctx := context.Background()

	_, err := c.Query(ctx, feedDoc, QueryOptions{})
	require.NoError(t, err)

	q, err := c.WatchQuery(ctx, feedDoc, WatchOptions{})
	require.NoError(t, err)

	res := next(t, q)
	assert.Len(t, links(t, res.Data), 1)
	assert.Equal(t, 1, ft.count("FeedQuery"))

	ft.respond("FeedQuery", &gql.Response{Data: decode(t, `{"feed":{"__typename":"Feed","count":0,"links":[]}}`)})
	_, err = q.Refetch(ctx)
	require.NoError(t, err)
	res = next(t, q)
	assert.Empty(t, links(t, res.Data))
	assert.Equal(t, res, q.Current())

	q.Close()
	_, ok := <-q.Results()
	assert.False(t, ok)
	_, err = q.Refetch(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWatchQuery_Error(t *testing.T) {
	ft := newFakeTransport()
	c := New(Options{Transport: ft})

	q, err := c.WatchQuery(context.Background(), feedDoc, WatchOptions{FetchPolicy: NetworkOnly})
	require.NoError(t, err)
	defer q.Close()

	res := next(t, q)
	assert.Error(t, res.Err)
}

func TestParseFetchPolicy(t *testing.T) {
	p, err := ParseFetchPolicy("")
	require.NoError(t, err)
	assert.Equal(t, CacheFirst, p)

	p, err = ParseFetchPolicy("no-cache")
	require.NoError(t, err)
	assert.Equal(t, NoCache, p)

	_, err = ParseFetchPolicy("sometimes")
	assert.Error(t, err)
}
