// Package scheduler drives the timing loop: it keeps a time-ordered index of
// every job's next due instant, sleeps until the soonest one, and hands due
// jobs to the dispatcher without blocking on their completion.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pocketcron/pocketcron/internal/model"
	"github.com/pocketcron/pocketcron/internal/schedule"
)

// maxSleep caps a single wait. Re-deriving the sleep duration from a fresh
// clock read at least once a minute keeps the loop correct across wall-clock
// jumps (NTP adjustment, suspend/resume).
const maxSleep = time.Minute

// Dispatcher launches a job run without blocking the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *model.Job, firedAt time.Time)
}

// Alerter receives scheduling-level alert conditions.
type Alerter interface {
	JobUnschedulable(job *model.Job)
}

// Scheduler owns the due-time index and the control loop. The index is only
// touched from the goroutine running Run; pending mirrors its size for
// observers on other goroutines.
type Scheduler struct {
	logger     *zap.Logger
	dispatcher Dispatcher
	alerts     Alerter
	index      dueIndex
	pending    atomic.Int64

	nowFunc func() time.Time
}

// New seeds the due-time index with every job's first fire instant, computed
// in the given location. Jobs whose schedule cannot produce a future instant
// are dropped and reported; they never make a load fail.
func New(jobs []*model.Job, loc *time.Location, dispatcher Dispatcher, alerts Alerter, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		logger:     logger.Named("scheduler"),
		dispatcher: dispatcher,
		alerts:     alerts,
		nowFunc:    func() time.Time { return time.Now().In(loc) },
	}

	now := s.nowFunc()
	for _, job := range jobs {
		next, err := job.Schedule.Next(now)
		if err != nil {
			s.dropJob(job, err)
			continue
		}
		s.index.insert(&dueEntry{job: job, at: next, seq: job.ID})
	}
	s.pending.Store(int64(s.index.len()))
	return s
}

// PendingCount returns the number of jobs with a pending due entry.
func (s *Scheduler) PendingCount() int {
	return int(s.pending.Load())
}

// Run blocks until ctx is cancelled. Each iteration sleeps until the soonest
// due instant (capped at maxSleep), then pops and dispatches everything due.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", zap.Int("jobs", s.index.len()))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-timer.C:
		}

		s.tick(ctx, s.nowFunc())
		timer.Reset(s.sleepDuration(s.nowFunc()))
	}
}

// sleepDuration computes how long to wait before the next wake. Always
// derived from the given fresh clock reading, never from accumulated elapsed
// time, and clamped to [0, maxSleep].
func (s *Scheduler) sleepDuration(now time.Time) time.Duration {
	d := maxSleep
	if at, ok := s.index.peekSoonest(); ok {
		if until := at.Sub(now); until < d {
			d = until
		}
	}
	if d < 0 {
		d = 0
	}
	return d
}

// tick dispatches every entry due at now, recomputes each job's next fire
// instant, and reinserts it. The reinsert happens before the next sleep is
// computed, so each job keeps exactly one pending entry.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	for _, entry := range s.index.popAllDue(now) {
		s.logger.Debug("job due",
			zap.Int("job_id", entry.job.ID),
			zap.String("command", entry.job.Command),
			zap.Time("due_at", entry.at))

		s.dispatcher.Dispatch(ctx, entry.job, entry.at)

		next, err := entry.job.Schedule.Next(now)
		if err != nil {
			s.dropJob(entry.job, err)
			s.pending.Add(-1)
			continue
		}
		entry.at = next
		s.index.insert(entry)
	}
}

// dropJob permanently removes a job from scheduling and reports it. One
// unschedulable job never stalls the loop for the others.
func (s *Scheduler) dropJob(job *model.Job, err error) {
	if errors.Is(err, schedule.ErrNoMatch) {
		s.logger.Error("job unschedulable, dropping",
			zap.Int("job_id", job.ID),
			zap.String("source", job.Source),
			zap.String("spec", job.Spec),
			zap.Error(err))
	} else {
		s.logger.Error("failed to compute next fire time, dropping job",
			zap.Int("job_id", job.ID),
			zap.String("source", job.Source),
			zap.Error(err))
	}
	if s.alerts != nil {
		s.alerts.JobUnschedulable(job)
	}
}
