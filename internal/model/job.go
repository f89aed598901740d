package model

import (
	"github.com/pocketcron/pocketcron/internal/schedule"
)

// Job represents a single crontab entry. Jobs are created once at load time
// and never mutated afterwards.
type Job struct {
	// ID is the 1-based registration order across all loaded crontabs.
	// It doubles as the tie-break key for jobs due at the same instant.
	ID int `json:"id"`

	// Source identifies where the job was defined, as "path:line".
	Source string `json:"source"`

	// Spec is the schedule expression exactly as written in the crontab.
	Spec string `json:"spec"`

	// Command is the shell command line, spacing preserved.
	Command string `json:"command"`

	// Schedule is the parsed form of Spec.
	Schedule schedule.Schedule `json:"-"`
}
