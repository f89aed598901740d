// Package storage keeps a queryable history of job runs.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pocketcron/pocketcron/internal/model"
)

// DefaultDSN keeps history in memory only: run history does not survive a
// restart. Point it at a file to retain history on disk.
const DefaultDSN = ":memory:"

// RunHistory stores run outcomes in SQLite.
type RunHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewRunHistory opens (and if needed initializes) the history database.
func NewRunHistory(logger *zap.Logger, dsn string) (*RunHistory, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// The executor records from multiple goroutines; a single connection
	// avoids SQLITE_BUSY on the shared in-memory database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &RunHistory{
		logger: logger.Named("history"),
		db:     db,
	}
	if err := h.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

// initialize creates the run_history table if it doesn't exist
func (h *RunHistory) initialize() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_history (
			run_id TEXT PRIMARY KEY,
			job_id INTEGER NOT NULL,
			command TEXT NOT NULL,
			status TEXT NOT NULL,
			exit_code INTEGER,
			output TEXT,
			error TEXT,
			fired_at DATETIME NOT NULL,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			duration INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_run_history_job_id ON run_history(job_id);
		CREATE INDEX IF NOT EXISTS idx_run_history_status ON run_history(status);
		CREATE INDEX IF NOT EXISTS idx_run_history_started_at ON run_history(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize history database: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (h *RunHistory) Close() error {
	return h.db.Close()
}

// RecordStart inserts a row for a run that has just started.
func (h *RunHistory) RecordStart(ctx context.Context, run *model.RunResult) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO run_history (
			run_id, job_id, command, status, fired_at, started_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.JobID,
		run.Command,
		run.Status,
		run.FiredAt,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RecordResult upserts the final state of a run. Skipped fires have no start
// row, so this insert-or-replace covers both paths.
func (h *RunHistory) RecordResult(ctx context.Context, run *model.RunResult) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO run_history (
			run_id, job_id, command, status, exit_code, output, error,
			fired_at, started_at, completed_at, duration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.JobID,
		run.Command,
		run.Status,
		run.ExitCode,
		string(run.Output),
		sql.NullString{String: run.Error, Valid: run.Error != ""},
		run.FiredAt,
		run.StartedAt,
		sql.NullTime{Time: run.CompletedAt, Valid: !run.CompletedAt.IsZero()},
		sql.NullInt64{Int64: int64(run.Duration), Valid: run.Duration != 0},
	)
	if err != nil {
		return fmt.Errorf("failed to record run result: %w", err)
	}
	return nil
}

// List retrieves runs ordered by most recent first. jobID 0 means all jobs.
func (h *RunHistory) List(ctx context.Context, jobID int, offset, limit int) ([]*model.RunResult, error) {
	query := `
		SELECT run_id, job_id, command, status, exit_code, output, error,
		       fired_at, started_at, completed_at, duration
		FROM run_history`
	args := []interface{}{}
	if jobID > 0 {
		query += " WHERE job_id = ?"
		args = append(args, jobID)
	}
	query += " ORDER BY started_at DESC, run_id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list run history: %w", err)
	}
	defer rows.Close()

	var runs []*model.RunResult
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Count returns the number of stored runs for a job. jobID 0 means all jobs.
func (h *RunHistory) Count(ctx context.Context, jobID int) (int, error) {
	query := "SELECT COUNT(*) FROM run_history"
	args := []interface{}{}
	if jobID > 0 {
		query += " WHERE job_id = ?"
		args = append(args, jobID)
	}

	var count int
	if err := h.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count run history: %w", err)
	}
	return count, nil
}

// DeleteBefore removes runs that started before the given time.
func (h *RunHistory) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := h.db.ExecContext(ctx,
		"DELETE FROM run_history WHERE started_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete old run history: %w", err)
	}
	if deleted, err := result.RowsAffected(); err == nil && deleted > 0 {
		h.logger.Info("pruned run history", zap.Int64("deleted", deleted))
	}
	return nil
}

func scanRun(rows *sql.Rows) (*model.RunResult, error) {
	var run model.RunResult
	var exitCode sql.NullInt64
	var output, errText sql.NullString
	var completedAt sql.NullTime
	var duration sql.NullInt64

	err := rows.Scan(
		&run.RunID,
		&run.JobID,
		&run.Command,
		&run.Status,
		&exitCode,
		&output,
		&errText,
		&run.FiredAt,
		&run.StartedAt,
		&completedAt,
		&duration,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run history: %w", err)
	}

	if exitCode.Valid {
		run.ExitCode = int(exitCode.Int64)
	}
	if output.Valid && output.String != "" {
		run.Output = []byte(output.String)
	}
	if errText.Valid {
		run.Error = errText.String
	}
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time
	}
	if duration.Valid {
		run.Duration = time.Duration(duration.Int64)
	}
	return &run, nil
}
