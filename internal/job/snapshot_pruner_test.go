package job

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/emrgen/linkfeed/internal/model"
	"github.com/emrgen/linkfeed/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotPruner_Prune(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(store.DriverSqlite, filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	s := store.NewGormStore(db)
	require.NoError(t, s.Migrate())

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	save := func(endpoint string, at time.Time) string {
		snapshot := &model.Snapshot{ID: uuid.NewString(), CreatedAt: at, Endpoint: endpoint, Compression: "none", Records: []byte("{}")}
		require.NoError(t, s.SaveSnapshot(ctx, snapshot))
		return snapshot.ID
	}

	expired := save("a", now.Add(-48*time.Hour))
	older := save("a", now.Add(-9*time.Minute))
	newer := save("a", now.Add(-time.Minute))
	recent := save("a", now.Add(-20*time.Minute))
	other := save("b", now.Add(-2*time.Minute))
	otherSameWindow := save("b", now.Add(-3*time.Minute))

	pruner := NewSnapshotPruner(s, "a", 24*time.Hour)
	removed, err := pruner.Prune(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	ids := func(endpoint string) []string {
		list, err := s.ListSnapshots(ctx, endpoint)
		require.NoError(t, err)
		var out []string
		for _, snapshot := range list {
			out = append(out, snapshot.ID)
		}
		return out
	}
	assert.Equal(t, []string{newer, recent}, ids("a"))
	assert.NotContains(t, ids("a"), expired)
	assert.NotContains(t, ids("a"), older)
	// other endpoints are only subject to the retention
	assert.Equal(t, []string{other, otherSameWindow}, ids("b"))
}

func TestSnapshotPruner_Stop(t *testing.T) {
	pruner := NewSnapshotPruner(nil, "a", time.Hour)
	done := make(chan struct{})
	go func() {
		pruner.Run()
		close(done)
	}()

	pruner.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop")
	}
}
