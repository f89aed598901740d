package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pocketcron/pocketcron/internal/model"
)

func failedRun(jobID int) *model.RunResult {
	return &model.RunResult{JobID: jobID, Status: model.RunStatusFailed, Error: "exit status 1"}
}

func TestAlertManagerConsecutiveFailures(t *testing.T) {
	m := NewAlertManager(3, zaptest.NewLogger(t))

	t.Run("BelowThreshold", func(t *testing.T) {
		m.Observe(failedRun(1))
		m.Observe(failedRun(1))
		assert.Empty(t, m.Alerts())
	})

	t.Run("AtThreshold", func(t *testing.T) {
		m.Observe(failedRun(1))
		alerts := m.Alerts()
		require.Len(t, alerts, 1)
		assert.Equal(t, model.AlertTypeJobFailure, alerts[0].Type)
		assert.Equal(t, model.AlertSeverityCritical, alerts[0].Severity)
		assert.Equal(t, 1, alerts[0].JobID)
		assert.NotEmpty(t, alerts[0].ID)
	})

	t.Run("NoDuplicatePastThreshold", func(t *testing.T) {
		m.Observe(failedRun(1))
		assert.Len(t, m.Alerts(), 1)
	})
}

func TestAlertManagerSuccessResetsStreak(t *testing.T) {
	m := NewAlertManager(2, zaptest.NewLogger(t))

	m.Observe(failedRun(1))
	m.Observe(&model.RunResult{JobID: 1, Status: model.RunStatusCompleted})
	m.Observe(failedRun(1))
	assert.Empty(t, m.Alerts())

	m.Observe(failedRun(1))
	assert.Len(t, m.Alerts(), 1)
}

func TestAlertManagerSkipsAreNeutral(t *testing.T) {
	m := NewAlertManager(2, zaptest.NewLogger(t))

	m.Observe(failedRun(1))
	m.Observe(&model.RunResult{JobID: 1, Status: model.RunStatusSkipped})
	m.Observe(failedRun(1))
	assert.Len(t, m.Alerts(), 1)
}

func TestAlertManagerTracksJobsIndependently(t *testing.T) {
	m := NewAlertManager(2, zaptest.NewLogger(t))

	m.Observe(failedRun(1))
	m.Observe(failedRun(2))
	assert.Empty(t, m.Alerts())

	m.Observe(failedRun(2))
	alerts := m.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, 2, alerts[0].JobID)
}

func TestAlertManagerUnschedulable(t *testing.T) {
	m := NewAlertManager(0, zaptest.NewLogger(t))

	m.JobUnschedulable(&model.Job{ID: 4, Source: "crontab:10", Spec: "0 0 30 2 *"})
	alerts := m.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertTypeUnschedulable, alerts[0].Type)
	assert.Equal(t, model.AlertSeverityWarning, alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "crontab:10")
}
