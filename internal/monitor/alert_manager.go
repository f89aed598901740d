package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pocketcron/pocketcron/internal/model"
)

// DefaultFailureThreshold is the number of consecutive failures of one job
// that raises an alert.
const DefaultFailureThreshold = 3

// AlertManager tracks consecutive failures per job and raises alerts.
// Overlap skips are neutral: they neither count as failures nor reset the
// streak.
type AlertManager struct {
	logger    *zap.Logger
	threshold int

	mu       sync.Mutex
	failures map[int]int
	alerts   []*model.Alert
}

// NewAlertManager creates a new alert manager
func NewAlertManager(threshold int, logger *zap.Logger) *AlertManager {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &AlertManager{
		logger:    logger.Named("alerts"),
		threshold: threshold,
		failures:  make(map[int]int),
	}
}

// Observe implements executor.ResultObserver
func (m *AlertManager) Observe(run *model.RunResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch run.Status {
	case model.RunStatusCompleted:
		delete(m.failures, run.JobID)
	case model.RunStatusFailed:
		m.failures[run.JobID]++
		if m.failures[run.JobID] == m.threshold {
			m.raiseLocked(&model.Alert{
				JobID:    run.JobID,
				Type:     model.AlertTypeJobFailure,
				Severity: model.AlertSeverityCritical,
				Message: fmt.Sprintf("job %d failed %d times in a row: %s",
					run.JobID, m.threshold, run.Error),
			})
		}
	}
}

// JobUnschedulable implements scheduler.Alerter
func (m *AlertManager) JobUnschedulable(job *model.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.raiseLocked(&model.Alert{
		JobID:    job.ID,
		Type:     model.AlertTypeUnschedulable,
		Severity: model.AlertSeverityWarning,
		Message:  fmt.Sprintf("job %d (%s) has no future fire time and was dropped", job.ID, job.Source),
	})
}

// Alerts returns a snapshot of all raised alerts.
func (m *AlertManager) Alerts() []*model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

func (m *AlertManager) raiseLocked(alert *model.Alert) {
	alert.ID = uuid.New().String()
	alert.CreatedAt = time.Now()
	m.alerts = append(m.alerts, alert)

	m.logger.Error("alert raised",
		zap.String("id", alert.ID),
		zap.Int("job_id", alert.JobID),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message))
}
