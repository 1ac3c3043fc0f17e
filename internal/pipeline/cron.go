package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronSchedule is a parsed five-field cron expression:
// "minute hour day-of-month month day-of-week". Fields accept "*", plain
// values, comma lists, "a-b" ranges, and "*/n" or "a-b/n" steps.
type cronSchedule struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

type cronField struct {
	wildcard bool
	values   map[int]bool
}

func (f cronField) matches(v int) bool {
	return f.wildcard || f.values[v]
}

func (s cronSchedule) matchesTime(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dayOfMonth.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dayOfWeek.matches(int(t.Weekday()))
}

var cronFieldNames = [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}

var cronFieldBounds = [5]struct{ lo, hi int }{
	{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6},
}

func parseCron(expr string) (cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSchedule{}, fmt.Errorf("cron expression needs 5 fields, got %d", len(fields))
	}

	var parsed [5]cronField
	for i, field := range fields {
		f, err := parseCronField(field, cronFieldBounds[i].lo, cronFieldBounds[i].hi)
		if err != nil {
			return cronSchedule{}, fmt.Errorf("%s field: %w", cronFieldNames[i], err)
		}
		parsed[i] = f
	}

	return cronSchedule{
		minute:     parsed[0],
		hour:       parsed[1],
		dayOfMonth: parsed[2],
		month:      parsed[3],
		dayOfWeek:  parsed[4],
	}, nil
}

func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	values := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)

		step := 1
		if i := strings.IndexByte(part, '/'); i >= 0 {
			n, err := strconv.Atoi(part[i+1:])
			if err != nil || n < 1 {
				return cronField{}, fmt.Errorf("invalid step in %q", part)
			}
			step, part = n, part[:i]
		}

		var from, to int
		switch {
		case part == "*":
			from, to = lo, hi
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err1, err2 error
			from, err1 = strconv.Atoi(a)
			to, err2 = strconv.Atoi(b)
			if err1 != nil || err2 != nil || from > to {
				return cronField{}, fmt.Errorf("invalid range %q", part)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid value %q", part)
			}
			from, to = v, v
		}

		if from < lo || to > hi {
			return cronField{}, fmt.Errorf("value out of range %d-%d in %q", lo, hi, part)
		}
		for v := from; v <= to; v += step {
			values[v] = true
		}
	}
	return cronField{values: values}, nil
}

// nextCronTime returns the first time after 'after' that matches the
// expression, walking minute boundaries up to a year ahead.
func nextCronTime(expr string, after time.Time) (time.Time, error) {
	sched, err := parseCron(expr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if sched.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching time within a year for %q", expr)
}
