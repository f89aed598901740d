// Package schedule parses cron schedule expressions and computes the next
// matching instant after a reference time.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// LookaheadYears bounds the forward search in Next. A schedule that produces
// no matching instant within this horizon is considered unschedulable.
const LookaheadYears = 4

// ErrNoMatch is returned when a schedule has no matching instant within the
// lookahead bound.
var ErrNoMatch = errors.New("no matching instant within lookahead bound")

// Schedule describes a recurrence rule.
type Schedule interface {
	// Next returns the first instant strictly after the given reference
	// time at which the schedule matches. Schedules are minute-granular:
	// an instant is never its own next occurrence.
	Next(after time.Time) (time.Time, error)

	// String returns the textual form the schedule was parsed from.
	String() string
}

// ParseError describes a malformed schedule expression.
type ParseError struct {
	// Field names the offending part: "minute", "hour", "day-of-month",
	// "month", "day-of-week", or "expression" for structural errors.
	Field  string
	Value  string
	Reason string
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s field %q: %s", e.Field, e.Value, e.Reason)
}

// Expression is a parsed five-field cron expression. Each field is a bitset
// of allowed values; the star flags record whether day-of-month/day-of-week
// were unrestricted, which drives the conventional cron OR semantics between
// the two day fields.
type Expression struct {
	text string

	minute uint64 // bits 0-59
	hour   uint64 // bits 0-23
	dom    uint64 // bits 1-31
	month  uint64 // bits 1-12
	dow    uint64 // bits 0-6, Sunday = 0

	domStar bool
	dowStar bool
}

// Next implements Schedule. The search walks forward from the minute after
// the reference time, skipping whole months, days and hours that cannot
// match, using calendar-aware rollover.
func (e *Expression) Next(after time.Time) (time.Time, error) {
	loc := after.Location()
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.AddDate(LookaheadYears, 0, 0)

	for t.Before(limit) {
		if e.month&bit(int(t.Month())) == 0 {
			// First minute of the next month.
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
			continue
		}
		if !e.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
			continue
		}
		if e.hour&bit(t.Hour()) == 0 {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc).Add(time.Hour)
			continue
		}
		if e.minute&bit(t.Minute()) == 0 {
			t = t.Add(time.Minute)
			continue
		}
		return t, nil
	}
	return time.Time{}, ErrNoMatch
}

// String implements Schedule
func (e *Expression) String() string {
	return e.text
}

// dayMatches applies the cron day semantics: when both day-of-month and
// day-of-week are restricted they combine with OR; when either is "*" only
// the other constrains the day.
func (e *Expression) dayMatches(t time.Time) bool {
	domOK := e.dom&bit(t.Day()) != 0
	dowOK := e.dow&bit(int(t.Weekday())) != 0
	switch {
	case e.domStar && e.dowStar:
		return true
	case e.domStar:
		return dowOK
	case e.dowStar:
		return domOK
	default:
		return domOK || dowOK
	}
}

// Interval is a fixed-delay schedule created by "@every <duration>".
type Interval struct {
	text  string
	every time.Duration
}

// Next implements Schedule. The delay is rounded down to second granularity
// so successive instants stay aligned.
func (iv Interval) Next(after time.Time) (time.Time, error) {
	return after.Add(iv.every - time.Duration(after.Nanosecond())), nil
}

// String implements Schedule
func (iv Interval) String() string {
	return iv.text
}

func bit(v int) uint64 {
	return 1 << uint(v)
}
