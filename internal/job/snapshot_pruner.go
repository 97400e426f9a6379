package job

import (
	"context"
	"sync"
	"time"

	goset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/linkfeed/internal/store"
	"github.com/sirupsen/logrus"
)

// SnapshotPruner drops cache snapshots older than the retention and thins
// the remaining ones of an endpoint to one per window.
type SnapshotPruner struct {
	store    store.SnapshotStore
	endpoint string
	retain   time.Duration
	window   time.Duration
	interval time.Duration
	done     chan struct{}
	stop     sync.Once
}

// NewSnapshotPruner creates a new SnapshotPruner instance.
func NewSnapshotPruner(store store.SnapshotStore, endpoint string, retain time.Duration) *SnapshotPruner {
	return &SnapshotPruner{
		store:    store,
		endpoint: endpoint,
		retain:   retain,
		window:   10 * time.Minute,
		interval: time.Minute,
		done:     make(chan struct{}),
	}
}

func (c *SnapshotPruner) Stop() {
	c.stop.Do(func() { close(c.done) })
}

func (c *SnapshotPruner) Run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if _, err := c.Prune(context.Background(), time.Now()); err != nil {
				logrus.Errorf("error pruning snapshots: %v", err)
			}
		}
	}
}

// Prune removes what is outside the retention and returns how many
// snapshots went.
func (c *SnapshotPruner) Prune(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	if c.retain > 0 {
		n, err := c.store.DeleteSnapshotsBefore(ctx, now.Add(-c.retain))
		if err != nil {
			return 0, err
		}
		removed += n
	}

	snapshots, err := c.store.ListSnapshots(ctx, c.endpoint)
	if err != nil {
		return removed, err
	}

	// newest first, so the first snapshot of a window is the one kept
	seen := goset.NewThreadUnsafeSet[int64]()
	var remove []string
	for _, snapshot := range snapshots {
		window := snapshot.CreatedAt.Truncate(c.window).Unix()
		if seen.Contains(window) {
			remove = append(remove, snapshot.ID)
			continue
		}
		seen.Add(window)
	}

	if err := c.store.DeleteSnapshots(ctx, remove...); err != nil {
		return removed, err
	}
	removed += int64(len(remove))

	if removed > 0 {
		logrus.Infof("removed %d snapshots of %s", removed, c.endpoint)
	}
	return removed, nil
}
