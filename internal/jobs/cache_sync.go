package jobs

import (
	"context"
	"time"

	"github.com/emrgen/linkfeed/internal/model"
	"github.com/sirupsen/logrus"
)

// Snapshotter saves the client cache.
type Snapshotter interface {
	Save(ctx context.Context) (*model.Snapshot, error)
}

// CacheSyncTask writes a snapshot of the cache on every tick.
type CacheSyncTask struct {
	snapshots Snapshotter
	cron      string
	timeout   time.Duration
}

func NewCacheSyncTask(interval string, snapshots Snapshotter) *CacheSyncTask {
	return &CacheSyncTask{
		snapshots: snapshots,
		cron:      interval,
		timeout:   30 * time.Second,
	}
}

func (c *CacheSyncTask) ID() string {
	return "cache_sync"
}

func (c *CacheSyncTask) Name() string {
	return "cache_sync"
}

func (c *CacheSyncTask) Schedule() string {
	return c.cron
}

func (c *CacheSyncTask) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	snapshot, err := c.snapshots.Save(ctx)
	if err != nil {
		logrus.Errorf("cache sync: %v", err)
		return
	}
	logrus.Debugf("cache sync: saved %d records as %s", snapshot.Size, snapshot.ID)
}
