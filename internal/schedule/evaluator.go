/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule decides whether a playlist item may display at a given
// wall-clock time. It is pure: no state, no I/O, deterministic given now.
package schedule

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/signbeam/signbeam_player/internal/models"
)

var clockTimePattern = regexp.MustCompile(`(\d+):(\d+)`)

// IsEligible reports whether the item's schedule rule permits display at
// now. Eligibility is time-dependent and must be re-evaluated on every
// check; callers must not cache the result.
func IsEligible(item models.PlaylistItem, now time.Time) bool {
	switch item.Schedule.Kind {
	case models.RuleDoNotPlay:
		return false
	case models.RuleDefault:
		return true
	case models.RuleCustomWindow:
		return withinWindow(item.Schedule.Window, now)
	default:
		return false
	}
}

// withinWindow requires all three clauses to hold: date range (date-only
// comparison, time-of-day ignored), weekday set, and time-of-day range.
func withinWindow(w models.CustomWindow, now time.Time) bool {
	if w.DateFrom.IsZero() || w.DateTo.IsZero() {
		return false
	}

	day := truncateToDate(now)
	if day.Before(truncateToDate(w.DateFrom)) || day.After(truncateToDate(w.DateTo)) {
		return false
	}

	if !w.Days[int(now.Weekday())] {
		return false
	}

	start := ParseClockTime(w.TimeStart)
	end := ParseClockTime(w.TimeEnd)
	if start < 0 || end < 0 {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	return minute >= start && minute <= end
}

// ParseClockTime parses a "H:MM" or "H:MMam"/"H:MMpm" string into minutes
// since midnight. It returns -1 for an absent or unparsable value, which
// makes the enclosing window clause false.
func ParseClockTime(s string) int {
	if s == "" {
		return -1
	}
	match := clockTimePattern.FindStringSubmatch(s)
	if match == nil {
		return -1
	}
	hours, _ := strconv.Atoi(match[1])
	minutes, _ := strconv.Atoi(match[2])
	if strings.Contains(strings.ToLower(s), "pm") {
		return ((hours % 12) + 12) * 60 + minutes
	}
	if strings.Contains(strings.ToLower(s), "am") {
		return (hours%12)*60 + minutes
	}
	return hours*60 + minutes
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
