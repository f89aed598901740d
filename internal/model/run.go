package model

import (
	"time"
)

// RunStatus represents the current status of a single job run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusSkipped   RunStatus = "skipped"
)

// RunResult represents the outcome of one dispatch of a job.
type RunResult struct {
	RunID   string    `json:"run_id"`
	JobID   int       `json:"job_id"`
	Command string    `json:"command"`
	Status  RunStatus `json:"status"`

	// ExitCode is the child process exit code. -1 when the process could
	// not be started or was terminated by a signal.
	ExitCode int    `json:"exit_code"`
	Output   []byte `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`

	// Timing fields
	FiredAt     time.Time     `json:"fired_at"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

// Failed reports whether the run ended in failure (as opposed to a clean
// completion or an overlap skip).
func (r *RunResult) Failed() bool {
	return r.Status == RunStatusFailed
}
