// Package executor launches job runs without blocking the scheduler loop and
// reports their outcomes.
package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pocketcron/pocketcron/internal/model"
)

// Runner executes a job's command to completion and reports the outcome.
type Runner interface {
	Run(ctx context.Context, job *model.Job) *model.RunResult
}

// RunRecorder persists run outcomes.
type RunRecorder interface {
	RecordStart(ctx context.Context, run *model.RunResult) error
	RecordResult(ctx context.Context, run *model.RunResult) error
}

// ResultObserver receives every finished run result.
type ResultObserver interface {
	Observe(run *model.RunResult)
}

// Dispatcher fires job runs on their own goroutines. A slow or hung command
// never delays other jobs. Overlapping fires of the same job are skipped
// with a warning rather than stacked.
type Dispatcher struct {
	logger   *zap.Logger
	runner   Runner
	history  RunRecorder
	observer ResultObserver

	running  sync.Map // job ID -> struct{}, marks an in-flight run
	inflight sync.WaitGroup
	count    atomic.Int64

	nowFunc func() time.Time
}

// NewDispatcher creates a dispatcher. history and observer may be nil.
func NewDispatcher(runner Runner, history RunRecorder, observer ResultObserver, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger.Named("dispatcher"),
		runner:   runner,
		history:  history,
		observer: observer,
		nowFunc:  time.Now,
	}
}

// Dispatch starts the job's command and returns immediately. If a previous
// run of the same job is still in flight, this fire is recorded as skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, job *model.Job, firedAt time.Time) {
	if _, loaded := d.running.LoadOrStore(job.ID, struct{}{}); loaded {
		d.skip(ctx, job, firedAt)
		return
	}

	// The run must survive scheduler shutdown: in-flight commands are
	// allowed to finish, not killed with the loop's context.
	runCtx := context.WithoutCancel(ctx)

	d.inflight.Add(1)
	d.count.Add(1)
	go func() {
		defer func() {
			d.running.Delete(job.ID)
			d.count.Add(-1)
			d.inflight.Done()
		}()
		d.runOne(runCtx, job, firedAt)
	}()
}

// RunningCount returns the number of in-flight runs.
func (d *Dispatcher) RunningCount() int {
	return int(d.count.Load())
}

// Wait blocks until all in-flight runs finish or ctx expires.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrWaitTimeout
	}
}

func (d *Dispatcher) runOne(ctx context.Context, job *model.Job, firedAt time.Time) {
	run := &model.RunResult{
		RunID:     uuid.New().String(),
		JobID:     job.ID,
		Command:   job.Command,
		Status:    model.RunStatusRunning,
		FiredAt:   firedAt,
		StartedAt: d.nowFunc(),
	}

	d.logger.Info("job started",
		zap.Int("job_id", job.ID),
		zap.String("run_id", run.RunID),
		zap.String("command", job.Command))
	d.recordStart(ctx, run)

	result := d.runner.Run(ctx, job)
	result.RunID = run.RunID
	result.FiredAt = firedAt

	if result.Failed() {
		d.logger.Warn("job failed",
			zap.Int("job_id", job.ID),
			zap.String("run_id", result.RunID),
			zap.Int("exit_code", result.ExitCode),
			zap.String("error", result.Error),
			zap.Duration("duration", result.Duration))
	} else {
		d.logger.Info("job completed",
			zap.Int("job_id", job.ID),
			zap.String("run_id", result.RunID),
			zap.Duration("duration", result.Duration))
	}

	d.recordResult(ctx, result)
	if d.observer != nil {
		d.observer.Observe(result)
	}
}

// skip records an overlap skip. A warning, not an error: the job itself is
// healthy, the previous run just has not finished yet.
func (d *Dispatcher) skip(ctx context.Context, job *model.Job, firedAt time.Time) {
	now := d.nowFunc()
	run := &model.RunResult{
		RunID:       uuid.New().String(),
		JobID:       job.ID,
		Command:     job.Command,
		Status:      model.RunStatusSkipped,
		FiredAt:     firedAt,
		StartedAt:   now,
		CompletedAt: now,
	}

	d.logger.Warn("previous run still in flight, skipping",
		zap.Int("job_id", job.ID),
		zap.String("command", job.Command),
		zap.Time("due_at", firedAt))

	d.recordResult(context.WithoutCancel(ctx), run)
	if d.observer != nil {
		d.observer.Observe(run)
	}
}

func (d *Dispatcher) recordStart(ctx context.Context, run *model.RunResult) {
	if d.history == nil {
		return
	}
	if err := d.history.RecordStart(ctx, run); err != nil {
		d.logger.Warn("failed to record run start", zap.String("run_id", run.RunID), zap.Error(err))
	}
}

func (d *Dispatcher) recordResult(ctx context.Context, run *model.RunResult) {
	if d.history == nil {
		return
	}
	if err := d.history.RecordResult(ctx, run); err != nil {
		d.logger.Warn("failed to record run result", zap.String("run_id", run.RunID), zap.Error(err))
	}
}
