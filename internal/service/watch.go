package service

import (
	"context"
	"sync"

	"github.com/emrgen/linkfeed/internal/client"
	"github.com/emrgen/linkfeed/internal/model"
	"github.com/sirupsen/logrus"
)

// FeedState is what the feed view shows: a loading indicator, an error or
// the links.
type FeedState struct {
	Loading bool
	Err     error
	Feed    *model.Feed
}

// FeedWatch follows the feed as links are posted and voted on.
type FeedWatch struct {
	query  *client.ObservableQuery
	states chan FeedState
	wg     sync.WaitGroup
}

// Watch watches the feed and subscribes to new links and new votes. New
// links are prepended at most once each; new votes reach the feed through
// the cache.
func (s *LinkService) Watch(ctx context.Context) (*FeedWatch, error) {
	query, err := s.client.WatchQuery(ctx, FeedQuery, client.WatchOptions{FetchPolicy: client.CacheFirst})
	if err != nil {
		return nil, err
	}

	err = query.SubscribeToMore(NewLinksSubscription, client.SubscribeToMoreOptions{
		UpdateQuery: mergeNewLink,
	})
	if err != nil {
		query.Close()
		return nil, err
	}

	if err := query.SubscribeToMore(NewVotesSubscription, client.SubscribeToMoreOptions{}); err != nil {
		query.Close()
		return nil, err
	}

	w := &FeedWatch{
		query:  query,
		states: make(chan FeedState),
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(w.states)

		for res := range query.Results() {
			state := FeedState{Loading: res.Loading, Err: res.Err}
			if !res.Loading && res.Err == nil {
				feed, err := decodeFeed(res.Data)
				if err != nil {
					logrus.Warnf("decode feed: %v", err)
					state.Err = err
				}
				state.Feed = feed
			}
			w.states <- state
		}
	}()

	return w, nil
}

// States delivers feed states until Close.
func (w *FeedWatch) States() <-chan FeedState {
	return w.states
}

// Refetch reloads the feed from the server.
func (w *FeedWatch) Refetch(ctx context.Context) error {
	_, err := w.query.Refetch(ctx)
	return err
}

// Close stops the watch and its subscriptions.
func (w *FeedWatch) Close() {
	w.query.Close()
	// drain what the forwarder still holds
	go func() {
		for range w.states {
		}
	}()
	w.wg.Wait()
}
