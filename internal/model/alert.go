package model

import "time"

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertType represents the type of alert
type AlertType string

const (
	AlertTypeJobFailure    AlertType = "job_failure"
	AlertTypeUnschedulable AlertType = "job_unschedulable"
)

// Alert represents an alert event raised by the monitor.
type Alert struct {
	ID        string        `json:"id"`
	JobID     int           `json:"job_id"`
	Type      AlertType     `json:"type"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"created_at"`
}
