package cache

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	feedQuery = gql.MustParse(`
		query FeedQuery {
			feed {
				count
				links {
					id
					url
					postedBy { id name }
					votes { id user { id } }
				}
			}
		}`)

	searchQuery = gql.MustParse(`
		query FeedSearchQuery($filter: String!) {
			feed(filter: $filter) {
				links { id url }
			}
		}`)

	voteMutation = gql.MustParse(`
		mutation VoteMutation($linkId: ID!) {
			vote(linkId: $linkId) {
				id
				link { id votes { id user { id } } }
				user { id }
			}
		}`)

	fragmentQuery = gql.MustParse(`
		query FeedFragmentQuery {
			feed { links { ...LinkParts } }
		}
		fragment LinkParts on Link { id url }`)
)

func link(id, url string, votes ...any) map[string]any {
	if votes == nil {
		votes = []any{}
	}
	return map[string]any{
		"__typename": "Link",
		"id":         id,
		"url":        url,
		"postedBy":   map[string]any{"__typename": "User", "id": "u1", "name": "alice"},
		"votes":      votes,
	}
}

func vote(id, userID string) map[string]any {
	return map[string]any{
		"__typename": "Vote",
		"id":         id,
		"user":       map[string]any{"__typename": "User", "id": userID},
	}
}

func feedData(links ...any) map[string]any {
	return map[string]any{
		"feed": map[string]any{
			"__typename": "Feed",
			"count":      float64(len(links)),
			"links":      links,
		},
	}
}

func links(t *testing.T, data map[string]any) []any {
	t.Helper()
	feed, ok := data["feed"].(map[string]any)
	require.True(t, ok)
	list, ok := feed["links"].([]any)
	require.True(t, ok)
	return list
}

func TestCache_WriteReadQuery(t *testing.T) {
	ctx := context.TODO()
	c := New(Options{})

	err := c.WriteQuery(ctx, feedQuery, nil, feedData(link("1", "https://go.dev"), link("2", "https://pkg.go.dev")))
	require.NoError(t, err)

	data, err := c.ReadQuery(ctx, feedQuery, nil)
	require.NoError(t, err)

	list := links(t, data)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, "1", first["id"])
	assert.Equal(t, "Link", first["__typename"])
	assert.Equal(t, "alice", first["postedBy"].(map[string]any)["name"])

	records, err := c.Extract(ctx)
	require.NoError(t, err)

	keys := make([]string, 0, len(records))
	for key := range records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"Link:1", "Link:2", RootQuery, "User:u1"}, keys)

	// the feed has no id and is embedded in the root record
	feed, ok := records[RootQuery]["feed"].(map[string]any)
	require.True(t, ok)
	ref, ok := RefKey(feed["links"].([]any)[0])
	require.True(t, ok)
	assert.Equal(t, "Link:1", ref)
}

func TestCache_MutationResultUpdatesSharedEntity(t *testing.T) {
	ctx := context.TODO()
	c := New(Options{})

	require.NoError(t, c.WriteQuery(ctx, feedQuery, nil, feedData(link("1", "https://go.dev"))))

	err := c.WriteQuery(ctx, voteMutation, map[string]any{"linkId": "1"}, map[string]any{
		"vote": map[string]any{
			"__typename": "Vote",
			"id":         "v1",
			"link": map[string]any{
				"__typename": "Link",
				"id":         "1",
				"votes":      []any{vote("v1", "u2")},
			},
			"user": map[string]any{"__typename": "User", "id": "u2"},
		},
	})
	require.NoError(t, err)

	data, err := c.ReadQuery(ctx, feedQuery, nil)
	require.NoError(t, err)
	first := links(t, data)[0].(map[string]any)
	assert.Len(t, first["votes"], 1)
	// fields not selected by the mutation are kept
	assert.Equal(t, "https://go.dev", first["url"])
}

func TestCache_ReadMissing(t *testing.T) {
	ctx := context.TODO()
	c := New(Options{})

	_, err := c.ReadQuery(ctx, feedQuery, nil)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.WriteQuery(ctx, searchQuery, map[string]any{"filter": "go"}, feedData(link("1", "https://go.dev"))))

	_, err = c.ReadQuery(ctx, searchQuery, map[string]any{"filter": "go"})
	require.NoError(t, err)

	_, err = c.ReadQuery(ctx, searchQuery, map[string]any{"filter": "rust"})
	var missing *MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "feed", missing.Field)

	// the search wrote Link:1 without votes
	_, err = c.ReadQuery(ctx, feedQuery, nil)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCache_Fragments(t *testing.T) {
	ctx := context.TODO()
	c := New(Options{})

	require.NoError(t, c.WriteQuery(ctx, fragmentQuery, nil, map[string]any{
		"feed": map[string]any{
			"__typename": "Feed",
			"links":      []any{map[string]any{"__typename": "Link", "id": "9", "url": "https://a.b"}},
		},
	}))

	data, err := c.ReadQuery(ctx, fragmentQuery, nil)
	require.NoError(t, err)
	first := links(t, data)[0].(map[string]any)
	assert.Equal(t, "https://a.b", first["url"])
}

func TestCache_BatchDiscardedOnError(t *testing.T) {
	ctx := context.TODO()
	c := New(Options{})
	boom := errors.New("boom")

	err := c.Batch(ctx, func(p Proxy) error {
		if err := p.WriteQuery(ctx, feedQuery, nil, feedData(link("1", "https://go.dev"))); err != nil {
			return err
		}

		// reads inside the batch see its writes
		_, err := p.ReadQuery(ctx, feedQuery, nil)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	size, err := c.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestCache_Watch(t *testing.T) {
	ctx := context.TODO()
	c := New(Options{})

	updates := make(chan map[string]any, 8)
	stop, err := c.Watch(ctx, feedQuery, nil, func(data map[string]any) {
		updates <- data
	})
	require.NoError(t, err)

	require.NoError(t, c.WriteQuery(ctx, feedQuery, nil, feedData(link("1", "https://go.dev"))))
	require.Len(t, updates, 1)
	assert.Len(t, links(t, <-updates), 1)

	// same content, nothing to deliver
	require.NoError(t, c.WriteQuery(ctx, feedQuery, nil, feedData(link("1", "https://go.dev"))))
	assert.Len(t, updates, 0)

	// an unrelated write does not touch the feed
	require.NoError(t, c.WriteQuery(ctx, searchQuery, map[string]any{"filter": "x"}, feedData()))
	assert.Len(t, updates, 0)

	// entity change reached through a reference
	require.NoError(t, c.WriteQuery(ctx, voteMutation, map[string]any{"linkId": "1"}, map[string]any{
		"vote": map[string]any{
			"__typename": "Vote",
			"id":         "v1",
			"link":       map[string]any{"__typename": "Link", "id": "1", "votes": []any{vote("v1", "u2")}},
			"user":       map[string]any{"__typename": "User", "id": "u2"},
		},
	}))
	require.Len(t, updates, 1)
	first := links(t, <-updates)[0].(map[string]any)
	assert.Len(t, first["votes"], 1)

	stop()
	require.NoError(t, c.WriteQuery(ctx, feedQuery, nil, feedData()))
	assert.Len(t, updates, 0)
}

func TestCache_EvictAndRestore(t *testing.T) {
	ctx := context.TODO()
	c := New(Options{})

	require.NoError(t, c.WriteQuery(ctx, feedQuery, nil, feedData(link("1", "https://go.dev"))))
	snapshot, err := c.Extract(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Evict(ctx, "Link:1"))
	_, err = c.ReadQuery(ctx, feedQuery, nil)
	assert.ErrorIs(t, err, ErrCacheMiss)

	restored := New(Options{})
	require.NoError(t, restored.Restore(ctx, snapshot))
	data, err := restored.ReadQuery(ctx, feedQuery, nil)
	require.NoError(t, err)
	assert.Len(t, links(t, data), 1)

	require.NoError(t, restored.Reset(ctx))
	size, err := restored.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestDefaultKey(t *testing.T) {
	tests := []struct {
		name string
		obj  map[string]any
		key  string
		ok   bool
	}{
		{name: "typename and id", obj: map[string]any{"__typename": "Link", "id": "1"}, key: "Link:1", ok: true},
		{name: "numeric id", obj: map[string]any{"__typename": "Link", "id": float64(7)}, key: "Link:7", ok: true},
		{name: "underscore id", obj: map[string]any{"__typename": "User", "_id": "a"}, key: "User:a", ok: true},
		{name: "no id", obj: map[string]any{"__typename": "Feed"}},
		{name: "no typename", obj: map[string]any{"id": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := DefaultKey(tt.obj)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestCache_PossibleTypes(t *testing.T) {
	c := New(Options{PossibleTypes: map[string][]string{"Node": {"Link", "User"}}})

	match, certain := c.matches("Link", "Node")
	assert.True(t, match)
	assert.True(t, certain)

	match, _ = c.matches("Vote", "Node")
	assert.False(t, match)

	match, certain = c.matches("User", "Link")
	assert.False(t, match)
	assert.True(t, certain)

	match, certain = c.matches("Vote", "Searchable")
	assert.True(t, match)
	assert.False(t, certain)
}
