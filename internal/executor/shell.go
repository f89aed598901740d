package executor

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/pocketcron/pocketcron/internal/model"
)

// maxCapturedOutput bounds how much combined output is kept per run.
const maxCapturedOutput = 64 * 1024

// ShellRunner runs job commands through the shell as "<shell> -c <command>",
// capturing combined stdout/stderr and the exit code.
type ShellRunner struct {
	logger  *zap.Logger
	shell   string
	timeout time.Duration
}

// NewShellRunner creates a runner. shell defaults to /bin/sh; timeout 0 means
// runs are never killed.
func NewShellRunner(shell string, timeout time.Duration, logger *zap.Logger) *ShellRunner {
	if shell == "" {
		shell = "/bin/sh"
	}
	return &ShellRunner{
		logger:  logger.Named("shell"),
		shell:   shell,
		timeout: timeout,
	}
}

// Run implements Runner
func (r *ShellRunner) Run(ctx context.Context, job *model.Job) *model.RunResult {
	cmdCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	// Stdin is left nil so the child reads from the null device.
	cmd := exec.CommandContext(cmdCtx, r.shell, "-c", job.Command)

	start := time.Now()
	output, err := cmd.CombinedOutput()
	completed := time.Now()

	if len(output) > maxCapturedOutput {
		output = output[:maxCapturedOutput]
	}

	result := &model.RunResult{
		JobID:       job.ID,
		Command:     job.Command,
		Status:      model.RunStatusCompleted,
		Output:      output,
		StartedAt:   start,
		CompletedAt: completed,
		Duration:    completed.Sub(start),
	}

	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded):
		result.Status = model.RunStatusFailed
		result.ExitCode = exitCode(err)
		result.Error = "command timed out after " + r.timeout.String()
	default:
		result.Status = model.RunStatusFailed
		result.ExitCode = exitCode(err)
		result.Error = err.Error()
	}
	return result
}

// exitCode extracts the child exit code, or -1 when the process failed to
// start or was terminated by a signal.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
