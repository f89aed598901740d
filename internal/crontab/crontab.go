// Package crontab loads job definitions from crontab files.
package crontab

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/pocketcron/pocketcron/internal/model"
	"github.com/pocketcron/pocketcron/internal/schedule"
)

// LoadError describes a failure to load a crontab file. Loading is
// all-or-nothing: the first malformed entry aborts the whole registry.
type LoadError struct {
	Path string
	Line int
	Err  error
}

// Error implements the error interface
func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads the given crontab files in order and returns the parsed jobs.
// Job IDs are 1-based registration order across all files; that order is also
// the tie-break key for jobs due at the same instant.
//
// A crontab line is either blank, a "#" comment, or "<schedule> <command>",
// where the schedule is five cron fields, a descriptor like "@daily", or
// "@every <duration>". The command keeps its original spacing.
func Load(paths []string) ([]*model.Job, error) {
	var jobs []*model.Job
	for _, path := range paths {
		if err := loadFile(path, &jobs); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func loadFile(path string, jobs *[]*model.Job) error {
	file, err := os.Open(path)
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		job, err := parseLine(line)
		if err != nil {
			return &LoadError{Path: path, Line: lineNo, Err: err}
		}
		job.ID = len(*jobs) + 1
		job.Source = fmt.Sprintf("%s:%d", path, lineNo)
		*jobs = append(*jobs, job)
	}
	if err := scanner.Err(); err != nil {
		return &LoadError{Path: path, Line: lineNo, Err: err}
	}
	return nil
}

// parseLine splits a crontab line into schedule text and command. The split
// point is found by counting whitespace-separated fields so that spacing
// inside the command is preserved.
func parseLine(line string) (*model.Job, error) {
	nfields := 5
	if strings.HasPrefix(line, "@") {
		nfields = 1
		if strings.HasPrefix(line, "@every") {
			nfields = 2
		}
	}

	spec, command := splitAfterFields(line, nfields)
	if command == "" {
		return nil, fmt.Errorf("not enough fields: want schedule followed by a command")
	}

	sched, err := schedule.Parse(spec)
	if err != nil {
		return nil, err
	}
	return &model.Job{
		Spec:     spec,
		Command:  command,
		Schedule: sched,
	}, nil
}

// splitAfterFields returns the first n whitespace-separated fields of line as
// one string, and the remainder with leading whitespace trimmed.
func splitAfterFields(line string, n int) (head, rest string) {
	inField := false
	seen := 0
	for i, r := range line {
		if unicode.IsSpace(r) {
			inField = false
			continue
		}
		if !inField {
			inField = true
			seen++
			if seen > n {
				return strings.TrimSpace(line[:i]), line[i:]
			}
		}
	}
	return strings.TrimSpace(line), ""
}
