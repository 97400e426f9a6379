package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/emrgen/linkfeed/internal/cache"
	"github.com/emrgen/linkfeed/internal/client"
	"github.com/emrgen/linkfeed/internal/gql"
	"github.com/emrgen/linkfeed/internal/model"
	"github.com/sirupsen/logrus"
)

// LinkService backs the feed, search and submit views.
type LinkService struct {
	client *client.Client
}

func NewLinkService(c *client.Client) *LinkService {
	return &LinkService{client: c}
}

// Feed returns the feed, from the cache when it holds it.
func (s *LinkService) Feed(ctx context.Context) (*model.Feed, error) {
	res, err := s.client.Query(ctx, FeedQuery, client.QueryOptions{FetchPolicy: client.CacheFirst})
	if err != nil {
		return nil, err
	}
	return decodeFeed(res.Data)
}

// Refresh fetches the feed from the server and updates the cache.
func (s *LinkService) Refresh(ctx context.Context) (*model.Feed, error) {
	res, err := s.client.Query(ctx, FeedQuery, client.QueryOptions{FetchPolicy: client.NetworkOnly})
	if err != nil {
		return nil, err
	}
	return decodeFeed(res.Data)
}

// Search returns exactly the links the server matches for filter.
func (s *LinkService) Search(ctx context.Context, filter string) ([]model.Link, error) {
	res, err := s.client.Query(ctx, FeedSearchQuery, client.QueryOptions{
		Variables:   map[string]any{"filter": filter},
		FetchPolicy: client.NetworkOnly,
	})
	if err != nil {
		return nil, err
	}

	feed, err := decodeFeed(res.Data)
	if err != nil {
		return nil, err
	}
	return feed.Links, nil
}

// Vote votes for a link and patches the cached feed with the link's new
// votes.
func (s *LinkService) Vote(ctx context.Context, linkID string) (*model.Vote, error) {
	res, err := s.client.Mutate(ctx, VoteMutation, client.MutateOptions{
		Variables: map[string]any{"linkId": linkID},
		Update: func(ctx context.Context, proxy cache.Proxy, data map[string]any) error {
			return updateCacheAfterVote(ctx, proxy, data, linkID)
		},
	})
	if err != nil {
		return nil, err
	}

	var vote model.Vote
	if err := decodeField(res.Data, "vote", &vote); err != nil {
		return nil, err
	}
	return &vote, nil
}

// updateCacheAfterVote reads the cached feed, replaces the voted link's
// votes with those the server returned and writes the feed back.
func updateCacheAfterVote(ctx context.Context, proxy cache.Proxy, data map[string]any, linkID string) error {
	feed, err := proxy.ReadQuery(ctx, FeedQuery, nil)
	if errors.Is(err, cache.ErrCacheMiss) {
		logrus.Debugf("feed is not cached, skipping vote update for %s", linkID)
		return nil
	}
	if err != nil {
		return err
	}

	vote, _ := data["vote"].(map[string]any)
	link, _ := vote["link"].(map[string]any)
	votes, ok := link["votes"].([]any)
	if !ok {
		return fmt.Errorf("vote result: %w", ErrUnexpectedResult)
	}

	found := false
	for _, l := range feedLinks(feed) {
		if cached, ok := l.(map[string]any); ok && cached["id"] == linkID {
			cached["votes"] = votes
			found = true
		}
	}
	if !found {
		logrus.Debugf("link %s is not in the cached feed", linkID)
		return nil
	}

	return proxy.WriteQuery(ctx, FeedQuery, nil, feed)
}

// Post submits a link and puts it at the top of the cached feed.
func (s *LinkService) Post(ctx context.Context, rawURL, description string) (*model.Link, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrEmptyDescription
	}
	if u, err := url.Parse(rawURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}

	res, err := s.client.Mutate(ctx, PostMutation, client.MutateOptions{
		Variables: map[string]any{"url": rawURL, "description": description},
		Update: func(ctx context.Context, proxy cache.Proxy, data map[string]any) error {
			link, ok := data["post"].(map[string]any)
			if !ok {
				return nil
			}
			return prependCachedLink(ctx, proxy, link)
		},
	})
	if err != nil {
		return nil, err
	}

	var link model.Link
	if err := decodeField(res.Data, "post", &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func prependCachedLink(ctx context.Context, proxy cache.Proxy, link map[string]any) error {
	prev, err := proxy.ReadQuery(ctx, FeedQuery, nil)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	if err != nil {
		return err
	}

	next := mergeNewLink(prev, map[string]any{"newLink": link})
	if next == nil {
		return nil
	}
	return proxy.WriteQuery(ctx, FeedQuery, nil, next)
}

// mergeNewLink prepends a newLink payload to the feed, once per link id. It
// returns nil when the link is already listed.
func mergeNewLink(prev, payload map[string]any) map[string]any {
	link, ok := payload["newLink"].(map[string]any)
	if !ok {
		return nil
	}
	feed, ok := prev["feed"].(map[string]any)
	if !ok {
		return nil
	}

	links := feedLinks(prev)
	for _, l := range links {
		if existing, ok := l.(map[string]any); ok && existing["id"] == link["id"] {
			return nil
		}
	}

	merged := make([]any, 0, len(links)+1)
	merged = append(merged, link)
	merged = append(merged, links...)

	next := make(map[string]any, len(prev))
	for k, v := range prev {
		next[k] = v
	}
	next["feed"] = map[string]any{
		gql.TypenameField: feed[gql.TypenameField],
		"links":           merged,
		"count":           len(links) + 1,
	}
	return next
}

func feedLinks(data map[string]any) []any {
	feed, _ := data["feed"].(map[string]any)
	links, _ := feed["links"].([]any)
	return links
}

func decodeFeed(data map[string]any) (*model.Feed, error) {
	var feed model.Feed
	if err := decodeField(data, "feed", &feed); err != nil {
		return nil, err
	}
	return &feed, nil
}

func decodeField(data map[string]any, field string, v any) error {
	value, ok := data[field]
	if !ok || value == nil {
		return fmt.Errorf("%s: %w", field, ErrUnexpectedResult)
	}
	return gql.Decode(value, v)
}
