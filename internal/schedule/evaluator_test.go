package schedule

import (
	"testing"
	"time"

	"github.com/signbeam/signbeam_player/internal/models"
)

// Wednesday 2026-03-04 14:30 local time.
var testNow = time.Date(2026, 3, 4, 14, 30, 0, 0, time.Local)

func windowItem(w models.CustomWindow) models.PlaylistItem {
	return models.PlaylistItem{
		ID:       "item-1",
		Schedule: models.ScheduleRule{Kind: models.RuleCustomWindow, Window: w},
	}
}

func openWindow() models.CustomWindow {
	var days [7]bool
	for i := range days {
		days[i] = true
	}
	return models.CustomWindow{
		DateFrom:  testNow.AddDate(0, 0, -7),
		DateTo:    testNow.AddDate(0, 0, 7),
		Days:      days,
		TimeStart: "0:00",
		TimeEnd:   "23:59",
	}
}

func TestIsEligible_DefaultAlwaysPlays(t *testing.T) {
	t.Parallel()

	item := models.PlaylistItem{Schedule: models.ScheduleRule{Kind: models.RuleDefault}}
	if !IsEligible(item, testNow) {
		t.Fatal("default rule should always be eligible")
	}
}

func TestIsEligible_DoNotPlayNeverPlays(t *testing.T) {
	t.Parallel()

	item := models.PlaylistItem{Schedule: models.ScheduleRule{Kind: models.RuleDoNotPlay}}
	if IsEligible(item, testNow) {
		t.Fatal("do-not-play rule should never be eligible")
	}
}

func TestIsEligible_WindowAllClausesHold(t *testing.T) {
	t.Parallel()

	if !IsEligible(windowItem(openWindow()), testNow) {
		t.Fatal("expected eligible inside a fully open window")
	}
}

func TestIsEligible_WindowDateRange(t *testing.T) {
	t.Parallel()

	w := openWindow()
	w.DateFrom = testNow.AddDate(0, 0, 1)
	if IsEligible(windowItem(w), testNow) {
		t.Fatal("window starting tomorrow should not be eligible")
	}

	w = openWindow()
	w.DateTo = testNow.AddDate(0, 0, -1)
	if IsEligible(windowItem(w), testNow) {
		t.Fatal("window ended yesterday should not be eligible")
	}

	// Date comparison ignores time of day: a DateTo of today-midnight
	// still covers the whole of today.
	w = openWindow()
	w.DateTo = time.Date(testNow.Year(), testNow.Month(), testNow.Day(), 0, 0, 0, 0, time.Local)
	if !IsEligible(windowItem(w), testNow) {
		t.Fatal("window ending today should cover the whole day")
	}
}

func TestIsEligible_WindowWeekdays(t *testing.T) {
	t.Parallel()

	w := openWindow()
	w.Days = [7]bool{}
	w.Days[int(testNow.Weekday())] = true
	if !IsEligible(windowItem(w), testNow) {
		t.Fatal("expected eligible on an allowed weekday")
	}

	w.Days = [7]bool{}
	w.Days[int(testNow.AddDate(0, 0, 1).Weekday())] = true
	if IsEligible(windowItem(w), testNow) {
		t.Fatal("expected ineligible on a disallowed weekday")
	}
}

func TestIsEligible_WindowTimeOfDay(t *testing.T) {
	t.Parallel()

	w := openWindow()
	w.TimeStart = "2:00pm"
	w.TimeEnd = "3:00pm"
	if !IsEligible(windowItem(w), testNow) {
		t.Fatal("14:30 should fall inside 2:00pm-3:00pm")
	}

	w.TimeStart = "3:00pm"
	w.TimeEnd = "5:00pm"
	if IsEligible(windowItem(w), testNow) {
		t.Fatal("14:30 should fall outside 3:00pm-5:00pm")
	}

	// Bounds are inclusive.
	w.TimeStart = "14:30"
	w.TimeEnd = "14:30"
	if !IsEligible(windowItem(w), testNow) {
		t.Fatal("exact-minute window should include its bound")
	}
}

func TestIsEligible_WindowUnparsableBounds(t *testing.T) {
	t.Parallel()

	w := openWindow()
	w.TimeStart = ""
	if IsEligible(windowItem(w), testNow) {
		t.Fatal("missing start bound should make the window ineligible")
	}

	w = openWindow()
	w.TimeEnd = "noon"
	if IsEligible(windowItem(w), testNow) {
		t.Fatal("garbage end bound should make the window ineligible")
	}

	w = openWindow()
	w.DateFrom = time.Time{}
	if IsEligible(windowItem(w), testNow) {
		t.Fatal("zero date bound should make the window ineligible")
	}
}

func TestParseClockTime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int
	}{
		{"9:00am", 9 * 60},
		{"9:00pm", 21 * 60},
		{"12:00am", 0},
		{"12:00pm", 12 * 60},
		{"12:30 PM", 12*60 + 30},
		{"0:00", 0},
		{"13:45", 13*60 + 45},
		{"23:59", 23*60 + 59},
		{"", -1},
		{"noon", -1},
	}

	for _, tc := range cases {
		if got := ParseClockTime(tc.in); got != tc.want {
			t.Errorf("ParseClockTime(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
