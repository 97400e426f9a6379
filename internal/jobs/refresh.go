package jobs

import (
	"context"
	"time"

	"github.com/emrgen/linkfeed/internal/model"
	"github.com/sirupsen/logrus"
)

// FeedRefresher reloads the feed from the server.
type FeedRefresher interface {
	Refresh(ctx context.Context) (*model.Feed, error)
}

// FeedRefreshTask keeps the cached feed fresh for views that are not
// subscribed.
type FeedRefreshTask struct {
	feed    FeedRefresher
	cron    string
	timeout time.Duration
}

func NewFeedRefreshTask(interval string, feed FeedRefresher) *FeedRefreshTask {
	return &FeedRefreshTask{
		feed:    feed,
		cron:    interval,
		timeout: 30 * time.Second,
	}
}

func (f *FeedRefreshTask) ID() string {
	return "feed_refresh"
}

func (f *FeedRefreshTask) Name() string {
	return "feed_refresh"
}

func (f *FeedRefreshTask) Schedule() string {
	return f.cron
}

func (f *FeedRefreshTask) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	feed, err := f.feed.Refresh(ctx)
	if err != nil {
		logrus.Warnf("feed refresh: %v", err)
		return
	}
	logrus.Debugf("feed refresh: %d links", len(feed.Links))
}
