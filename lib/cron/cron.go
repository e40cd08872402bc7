// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package cron parses 5-field cron expressions and computes the next
// firing time in a given location. Factionkeep uses it for the weekly
// points reset, which must follow the community's wall clock across
// daylight-saving transitions rather than a fixed UTC offset.
//
// Supported syntax per field: *, N, N-M, */S, N-M/S and comma lists.
// Month and weekday fields also accept three-letter English names
// (jan..dec, sun..sat). The descriptors @hourly, @daily, @weekly and
// @monthly are accepted as shorthands.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed cron expression bound to a location.
type Schedule struct {
	minutes     bitset64
	hours       bitset64
	daysOfMonth bitset64
	months      bitset64
	daysOfWeek  bitset64

	// Standard cron ORs the two day fields when both are restricted.
	restrictedDayOfMonth bool
	restrictedDayOfWeek  bool

	location *time.Location
}

type bitset64 uint64

func (b bitset64) has(value int) bool { return b&(1<<uint(value)) != 0 }
func (b *bitset64) set(value int)     { *b |= 1 << uint(value) }

var descriptors = map[string]string{
	"@hourly":  "0 * * * *",
	"@daily":   "0 0 * * *",
	"@weekly":  "0 0 * * 0",
	"@monthly": "0 0 1 * *",
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var weekdayNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// Parse parses expression and binds it to location. A nil location
// means UTC.
func Parse(expression string, location *time.Location) (Schedule, error) {
	if location == nil {
		location = time.UTC
	}
	trimmed := strings.TrimSpace(strings.ToLower(expression))
	if expanded, ok := descriptors[trimmed]; ok {
		trimmed = expanded
	}

	fields := strings.Fields(trimmed)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron: expected 5 fields, got %d in %q", len(fields), expression)
	}

	schedule := Schedule{location: location}
	var err error
	if schedule.minutes, err = parseField(fields[0], 0, 59, nil); err != nil {
		return Schedule{}, fmt.Errorf("cron: minute field: %w", err)
	}
	if schedule.hours, err = parseField(fields[1], 0, 23, nil); err != nil {
		return Schedule{}, fmt.Errorf("cron: hour field: %w", err)
	}
	if schedule.daysOfMonth, err = parseField(fields[2], 1, 31, nil); err != nil {
		return Schedule{}, fmt.Errorf("cron: day-of-month field: %w", err)
	}
	if schedule.months, err = parseField(fields[3], 1, 12, monthNames); err != nil {
		return Schedule{}, fmt.Errorf("cron: month field: %w", err)
	}
	if schedule.daysOfWeek, err = parseField(fields[4], 0, 6, weekdayNames); err != nil {
		return Schedule{}, fmt.Errorf("cron: day-of-week field: %w", err)
	}
	schedule.restrictedDayOfMonth = fields[2] != "*"
	schedule.restrictedDayOfWeek = fields[4] != "*"
	return schedule, nil
}

// Location returns the location the schedule is evaluated in.
func (s Schedule) Location() *time.Location {
	if s.location == nil {
		return time.UTC
	}
	return s.location
}

// Next returns the earliest wall-clock minute strictly after t that
// matches the schedule, evaluated in the schedule's location. It gives
// up after four years so impossible dates (Feb 31) return an error.
func (s Schedule) Next(t time.Time) (time.Time, error) {
	location := s.Location()
	t = t.In(location).Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		if !s.months.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, location)
			continue
		}
		if !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, location)
			continue
		}
		if !s.hours.has(t.Hour()) {
			next := time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, location)
			if !next.After(t) {
				// Repeated hour at a DST fall-back.
				next = t.Add(time.Hour).Truncate(time.Hour)
			}
			t = next
			continue
		}
		if !s.minutes.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cron: no matching time within 4 years of %s", t.Format(time.RFC3339))
}

func (s Schedule) dayMatches(t time.Time) bool {
	dayOfMonth := s.daysOfMonth.has(t.Day())
	dayOfWeek := s.daysOfWeek.has(int(t.Weekday()))
	if s.restrictedDayOfMonth && s.restrictedDayOfWeek {
		return dayOfMonth || dayOfWeek
	}
	return dayOfMonth && dayOfWeek
}

func parseField(field string, minimum, maximum int, names map[string]int) (bitset64, error) {
	var result bitset64
	for _, term := range strings.Split(field, ",") {
		bits, err := parseTerm(term, minimum, maximum, names)
		if err != nil {
			return 0, err
		}
		result |= bits
	}
	return result, nil
}

// parseTerm parses *, */S, V, V-V and V-V/S.
func parseTerm(term string, minimum, maximum int, names map[string]int) (bitset64, error) {
	rangeExpression, stepExpression, hasStep := strings.Cut(term, "/")
	step := 1
	if hasStep {
		parsed, err := strconv.Atoi(stepExpression)
		if err != nil {
			return 0, fmt.Errorf("invalid step %q", stepExpression)
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", parsed)
		}
		step = parsed
	}

	rangeStart, rangeEnd := minimum, maximum
	if rangeExpression != "*" {
		startText, endText, isRange := strings.Cut(rangeExpression, "-")
		var err error
		if rangeStart, err = parseValue(startText, names); err != nil {
			return 0, err
		}
		rangeEnd = rangeStart
		if isRange {
			if rangeEnd, err = parseValue(endText, names); err != nil {
				return 0, err
			}
		}
		if rangeStart > rangeEnd {
			return 0, fmt.Errorf("range start %d > end %d", rangeStart, rangeEnd)
		}
	}
	if rangeStart < minimum || rangeEnd > maximum {
		return 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", minimum, maximum, rangeStart, rangeEnd)
	}

	var result bitset64
	for value := rangeStart; value <= rangeEnd; value += step {
		result.set(value)
	}
	return result, nil
}

func parseValue(text string, names map[string]int) (int, error) {
	if value, ok := names[text]; ok {
		return value, nil
	}
	value, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", text)
	}
	return value, nil
}
