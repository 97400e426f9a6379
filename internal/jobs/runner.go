package jobs

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	cron "github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

type Job interface {
	Run()
}

// CronJob runs on a cron spec such as "@every 1m" or "0 */5 * * * *".
type CronJob interface {
	Schedule() string
	Job
}

// TaskExecutor runs cron jobs on their schedules and keeps plain jobs
// running, restarting them a second after they return. A job never runs
// twice at the same time.
type TaskExecutor struct {
	cron            *cron.Cron
	jobs            []Job
	cronJobs        []CronJob
	runningJobs     mapset.Set[Job]
	runningCronJobs mapset.Set[CronJob]
	muJobs          sync.Mutex
	muCronJobs      sync.Mutex
}

func NewTaskExecutor(jobs []Job, cronJobs []CronJob) *TaskExecutor {
	return &TaskExecutor{
		cron:            cron.New(),
		jobs:            jobs,
		cronJobs:        cronJobs,
		runningCronJobs: mapset.NewThreadUnsafeSet[CronJob](),
		runningJobs:     mapset.NewThreadUnsafeSet[Job](),
	}
}

// Run schedules the jobs and starts the cron in its own goroutine.
func (t *TaskExecutor) Run() error {
	for _, job := range t.cronJobs {
		err := t.cron.AddFunc(job.Schedule(), exclusive(&t.muCronJobs, t.runningCronJobs, job, "task is already scheduled"))
		if err != nil {
			logrus.Errorf("failed to add task to cron: %v", err)
			return err
		}
	}

	for _, job := range t.jobs {
		err := t.cron.AddFunc("@every 1s", exclusive(&t.muJobs, t.runningJobs, job, "task is already running"))
		if err != nil {
			return err
		}
	}

	t.cron.Start()
	return nil
}

type task interface {
	comparable
	Job
}

func exclusive[T task](mu *sync.Mutex, running mapset.Set[T], job T, busy string) func() {
	return func() {
		mu.Lock()
		if running.Contains(job) {
			mu.Unlock()
			logrus.Debug(busy)
			return
		}
		running.Add(job)
		mu.Unlock()

		defer func() {
			mu.Lock()
			defer mu.Unlock()
			running.Remove(job)
		}()

		job.Run()
	}
}

func (t *TaskExecutor) Stop() {
	logrus.Infof("stopping all tasks")
	t.cron.Stop()
}
