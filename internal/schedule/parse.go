package schedule

import (
	"strconv"
	"strings"
	"time"
)

// fieldSpec describes one position of a five-field cron expression.
type fieldSpec struct {
	name  string
	min   int
	max   int
	names map[string]int
}

var (
	minuteField = fieldSpec{name: "minute", min: 0, max: 59}
	hourField   = fieldSpec{name: "hour", min: 0, max: 23}
	domField    = fieldSpec{name: "day-of-month", min: 1, max: 31}
	monthField  = fieldSpec{name: "month", min: 1, max: 12, names: monthNames}
	dowField    = fieldSpec{name: "day-of-week", min: 0, max: 7, names: dowNames}
)

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var dowNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

var descriptors = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

// Parse parses a schedule expression: a five-field cron expression
// ("30 4 * * 1-5"), a descriptor ("@daily"), or a fixed interval
// ("@every 90m"). The returned Schedule renders back to the given text.
func Parse(text string) (Schedule, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &ParseError{Field: "expression", Value: text, Reason: "empty expression"}
	}
	if strings.HasPrefix(trimmed, "@") {
		return parseDescriptor(trimmed)
	}

	fields := strings.Fields(trimmed)
	if len(fields) != 5 {
		return nil, &ParseError{
			Field:  "expression",
			Value:  trimmed,
			Reason: "expected 5 fields, got " + strconv.Itoa(len(fields)),
		}
	}

	expr := &Expression{text: trimmed}
	var err error
	if expr.minute, _, err = parseField(fields[0], minuteField); err != nil {
		return nil, err
	}
	if expr.hour, _, err = parseField(fields[1], hourField); err != nil {
		return nil, err
	}
	if expr.dom, expr.domStar, err = parseField(fields[2], domField); err != nil {
		return nil, err
	}
	if expr.month, _, err = parseField(fields[3], monthField); err != nil {
		return nil, err
	}
	if expr.dow, expr.dowStar, err = parseField(fields[4], dowField); err != nil {
		return nil, err
	}
	// Day-of-week 7 is an alias for Sunday.
	if expr.dow&bit(7) != 0 {
		expr.dow = (expr.dow | bit(0)) &^ bit(7)
	}
	return expr, nil
}

// parseDescriptor handles the "@" forms.
func parseDescriptor(text string) (Schedule, error) {
	fields := strings.Fields(text)
	if fields[0] == "@every" {
		if len(fields) != 2 {
			return nil, &ParseError{Field: "expression", Value: text, Reason: "@every requires a duration"}
		}
		d, err := time.ParseDuration(fields[1])
		if err != nil {
			return nil, &ParseError{Field: "expression", Value: fields[1], Reason: "invalid duration"}
		}
		if d < time.Second {
			return nil, &ParseError{Field: "expression", Value: fields[1], Reason: "interval must be at least one second"}
		}
		return Interval{text: text, every: d - d%time.Second}, nil
	}
	if len(fields) != 1 {
		return nil, &ParseError{Field: "expression", Value: text, Reason: "unexpected tokens after descriptor"}
	}
	equiv, ok := descriptors[strings.ToLower(fields[0])]
	if !ok {
		return nil, &ParseError{Field: "expression", Value: fields[0], Reason: "unknown descriptor"}
	}
	sched, err := Parse(equiv)
	if err != nil {
		return nil, err
	}
	expr := sched.(*Expression)
	expr.text = fields[0]
	return expr, nil
}

// parseField parses one cron field into a bitset of allowed values.
// Supported syntax: "*", "*/step", "lo-hi", "lo-hi/step", "v", and
// comma-separated lists of any of these. Month and weekday fields also
// accept three-letter names.
func parseField(field string, spec fieldSpec) (bits uint64, star bool, err error) {
	if field == "*" {
		return rangeBits(spec.min, spec.max, 1), true, nil
	}

	for _, part := range strings.Split(field, ",") {
		expr, stepText, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			step, err = strconv.Atoi(stepText)
			if err != nil || step <= 0 {
				return 0, false, &ParseError{Field: spec.name, Value: part, Reason: "invalid step"}
			}
		}

		lo, hi := 0, 0
		switch loText, hiText, isRange := strings.Cut(expr, "-"); {
		case expr == "*":
			lo, hi = spec.min, spec.max
		case isRange:
			if lo, err = parseValue(loText, spec); err != nil {
				return 0, false, err
			}
			if hi, err = parseValue(hiText, spec); err != nil {
				return 0, false, err
			}
			if lo > hi {
				return 0, false, &ParseError{Field: spec.name, Value: part, Reason: "range start after range end"}
			}
		default:
			if lo, err = parseValue(expr, spec); err != nil {
				return 0, false, err
			}
			hi = lo
			if hasStep {
				// "N/step" counts from N to the field maximum.
				hi = spec.max
			}
		}
		bits |= rangeBits(lo, hi, step)
	}
	return bits, false, nil
}

// parseValue resolves a single field value, numeric or named.
func parseValue(text string, spec fieldSpec) (int, error) {
	if spec.names != nil {
		if v, ok := spec.names[strings.ToLower(text)]; ok {
			return v, nil
		}
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, &ParseError{Field: spec.name, Value: text, Reason: "not a number"}
	}
	if v < spec.min || v > spec.max {
		return 0, &ParseError{
			Field:  spec.name,
			Value:  text,
			Reason: "out of range [" + strconv.Itoa(spec.min) + "," + strconv.Itoa(spec.max) + "]",
		}
	}
	return v, nil
}

func rangeBits(lo, hi, step int) uint64 {
	var bits uint64
	for v := lo; v <= hi; v += step {
		bits |= bit(v)
	}
	return bits
}
