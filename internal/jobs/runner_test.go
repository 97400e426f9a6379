package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emrgen/linkfeed/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowJob struct {
	runs    atomic.Int32
	running atomic.Int32
	overlap atomic.Bool
	delay   time.Duration
}

func (s *slowJob) Schedule() string {
	return "@every 1s"
}

func (s *slowJob) Run() {
	if s.running.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.running.Add(-1)
	s.runs.Add(1)
	time.Sleep(s.delay)
}

func TestTaskExecutor(t *testing.T) {
	cronJob := &slowJob{delay: 1500 * time.Millisecond}
	job := &slowJob{delay: 10 * time.Millisecond}

	executor := NewTaskExecutor([]Job{job}, []CronJob{cronJob})
	require.NoError(t, executor.Run())
	defer executor.Stop()

	assert.Eventually(t, func() bool {
		return cronJob.runs.Load() >= 1 && job.runs.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond)
	time.Sleep(1200 * time.Millisecond)

	assert.False(t, cronJob.overlap.Load())
	assert.False(t, job.overlap.Load())
}

type badSchedule struct{ slowJob }

func (*badSchedule) Schedule() string {
	return "whenever"
}

func TestTaskExecutor_BadSchedule(t *testing.T) {
	executor := NewTaskExecutor(nil, []CronJob{&badSchedule{}})
	assert.Error(t, executor.Run())
}

type fakeSnapshotter struct {
	saved atomic.Int32
	err   error
}

func (f *fakeSnapshotter) Save(ctx context.Context) (*model.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.saved.Add(1)
	return &model.Snapshot{ID: "s1", Size: 3}, nil
}

func TestCacheSyncTask(t *testing.T) {
	s := &fakeSnapshotter{}
	task := NewCacheSyncTask("@every 1m", s)
	assert.Equal(t, "@every 1m", task.Schedule())
	assert.Equal(t, "cache_sync", task.ID())

	task.Run()
	assert.EqualValues(t, 1, s.saved.Load())

	// failures are logged, not raised
	s.err = errors.New("disk full")
	task.Run()
	assert.EqualValues(t, 1, s.saved.Load())
}

type fakeRefresher struct {
	calls atomic.Int32
}

func (f *fakeRefresher) Refresh(ctx context.Context) (*model.Feed, error) {
	f.calls.Add(1)
	return &model.Feed{Links: []model.Link{{ID: "1"}}, Count: 1}, nil
}

func TestFeedRefreshTask(t *testing.T) {
	r := &fakeRefresher{}
	task := NewFeedRefreshTask("@every 30s", r)
	assert.Equal(t, "feed_refresh", task.Name())

	task.Run()
	assert.EqualValues(t, 1, r.calls.Load())
}
