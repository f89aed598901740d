package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pocketcron/pocketcron/internal/model"
)

// memoryRecorder collects recorded runs for assertions.
type memoryRecorder struct {
	mu      sync.Mutex
	started []*model.RunResult
	results []*model.RunResult
}

func (r *memoryRecorder) RecordStart(_ context.Context, run *model.RunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, run)
	return nil
}

func (r *memoryRecorder) RecordResult(_ context.Context, run *model.RunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, run)
	return nil
}

func (r *memoryRecorder) byStatus(status model.RunStatus) []*model.RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.RunResult
	for _, run := range r.results {
		if run.Status == status {
			out = append(out, run)
		}
	}
	return out
}

// blockingRunner holds runs until released, to exercise the overlap policy.
type blockingRunner struct {
	release chan struct{}
	runs    counter
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (a *counter) inc() {
	a.mu.Lock()
	a.n++
	a.mu.Unlock()
}

func (a *counter) get() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

func (r *blockingRunner) Run(_ context.Context, job *model.Job) *model.RunResult {
	r.runs.inc()
	<-r.release
	return &model.RunResult{JobID: job.ID, Status: model.RunStatusCompleted}
}

func shellJob(id int, command string) *model.Job {
	return &model.Job{ID: id, Spec: "* * * * *", Command: command}
}

func TestShellRunner(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("CapturesOutputAndExitCode", func(t *testing.T) {
		runner := NewShellRunner("", 0, logger)
		result := runner.Run(context.Background(), shellJob(1, "echo hello   world"))

		assert.Equal(t, model.RunStatusCompleted, result.Status)
		assert.Equal(t, 0, result.ExitCode)
		assert.Equal(t, "hello world\n", string(result.Output))
		assert.False(t, result.CompletedAt.Before(result.StartedAt))
	})

	t.Run("NonZeroExit", func(t *testing.T) {
		runner := NewShellRunner("", 0, logger)
		result := runner.Run(context.Background(), shellJob(1, "echo oops >&2; exit 3"))

		assert.Equal(t, model.RunStatusFailed, result.Status)
		assert.Equal(t, 3, result.ExitCode)
		assert.Equal(t, "oops\n", string(result.Output))
		assert.NotEmpty(t, result.Error)
	})

	t.Run("Timeout", func(t *testing.T) {
		runner := NewShellRunner("", 100*time.Millisecond, logger)
		result := runner.Run(context.Background(), shellJob(1, "sleep 5"))

		assert.Equal(t, model.RunStatusFailed, result.Status)
		assert.Contains(t, result.Error, "timed out")
	})
}

func TestDispatcherRecordsOutcome(t *testing.T) {
	recorder := &memoryRecorder{}
	runner := NewShellRunner("", 0, zaptest.NewLogger(t))
	dispatcher := NewDispatcher(runner, recorder, nil, zaptest.NewLogger(t))

	firedAt := time.Now()
	dispatcher.Dispatch(context.Background(), shellJob(7, "exit 1"), firedAt)
	require.NoError(t, dispatcher.Wait(context.Background()))

	require.Len(t, recorder.started, 1)
	assert.Equal(t, model.RunStatusRunning, recorder.started[0].Status)

	failed := recorder.byStatus(model.RunStatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, 7, failed[0].JobID)
	assert.Equal(t, 1, failed[0].ExitCode)
	assert.Equal(t, firedAt, failed[0].FiredAt)
	assert.Equal(t, recorder.started[0].RunID, failed[0].RunID)
}

func TestDispatcherSkipsOverlappingRuns(t *testing.T) {
	recorder := &memoryRecorder{}
	runner := &blockingRunner{release: make(chan struct{})}
	dispatcher := NewDispatcher(runner, recorder, nil, zaptest.NewLogger(t))

	job := shellJob(1, "slow")
	dispatcher.Dispatch(context.Background(), job, time.Now())

	// Wait until the first run is actually in flight.
	require.Eventually(t, func() bool { return dispatcher.RunningCount() == 1 },
		time.Second, 10*time.Millisecond)

	// A second fire while the first is still running is skipped, and a
	// different job is unaffected by the overlap guard.
	dispatcher.Dispatch(context.Background(), job, time.Now())
	other := shellJob(2, "slow")
	dispatcher.Dispatch(context.Background(), other, time.Now())

	require.Eventually(t, func() bool { return runner.runs.get() == 2 },
		time.Second, 10*time.Millisecond)
	skipped := recorder.byStatus(model.RunStatusSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, 1, skipped[0].JobID)

	close(runner.release)
	require.NoError(t, dispatcher.Wait(context.Background()))
	assert.Equal(t, 0, dispatcher.RunningCount())
	assert.Len(t, recorder.byStatus(model.RunStatusCompleted), 2)

	// With the previous run finished the job can fire again.
	runner.release = make(chan struct{})
	close(runner.release)
	dispatcher.Dispatch(context.Background(), job, time.Now())
	require.NoError(t, dispatcher.Wait(context.Background()))
	assert.Len(t, recorder.byStatus(model.RunStatusSkipped), 1)
}

func TestDispatcherWaitTimeout(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	dispatcher := NewDispatcher(runner, nil, nil, zaptest.NewLogger(t))

	dispatcher.Dispatch(context.Background(), shellJob(1, "slow"), time.Now())
	require.Eventually(t, func() bool { return dispatcher.RunningCount() == 1 },
		time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, dispatcher.Wait(ctx), ErrWaitTimeout)

	close(runner.release)
	require.NoError(t, dispatcher.Wait(context.Background()))
}

func TestDispatcherSurvivesSchedulerCancellation(t *testing.T) {
	recorder := &memoryRecorder{}
	runner := NewShellRunner("", 0, zaptest.NewLogger(t))
	dispatcher := NewDispatcher(runner, recorder, nil, zaptest.NewLogger(t))

	// Cancelling the dispatch context must not kill the child process.
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher.Dispatch(ctx, shellJob(1, "sleep 0.2; echo done"), time.Now())
	cancel()

	require.NoError(t, dispatcher.Wait(context.Background()))
	completed := recorder.byStatus(model.RunStatusCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "done\n", string(completed[0].Output))
}
