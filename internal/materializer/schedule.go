package materializer

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PlanLoom/PlanLoom/internal/models"
)

// Working window used when a task carries no time information of its own.
const (
	windowStartHour = 9
	windowEndHour   = 20
)

// deadlineBuffer is subtracted from "before X" / "by X" deadlines so the
// derived start time leaves room to actually do the task.
const deadlineBuffer = 2 * time.Hour

var (
	clockTimeRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	deadlineRe  = regexp.MustCompile(`(?i)\b(?:before|by)\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
)

// Named day periods mapped to representative start hours.
var periodHours = map[string]int{
	"morning":   9,
	"noon":      12,
	"afternoon": 14,
	"evening":   18,
	"night":     20,
}

// deriveDueDate computes the effective due date/time for a task draft.
// index and total describe the draft's position among its siblings and
// drive the even-distribution fallback. Returns nil when the draft has
// no scheduled date at all.
func deriveDueDate(draft models.TaskDraft, index, total int) *time.Time {
	if draft.ScheduledDate == "" {
		return nil
	}
	day, err := time.Parse("2006-01-02", draft.ScheduledDate)
	if err != nil {
		return nil
	}

	if draft.StartTime != "" {
		if hour, minute, ok := parseClock(draft.StartTime); ok {
			due := day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
			return &due
		}
	}

	text := draft.Title + " " + draft.Description
	if due, ok := timeFromText(day, text); ok {
		return &due
	}

	// Distribute across the working window by sibling position.
	if total < 1 {
		total = 1
	}
	hour := windowStartHour + (windowEndHour-windowStartHour)*index/total
	due := day.Add(time.Duration(hour) * time.Hour)
	return &due
}

// timeFromText scans freeform task text for natural-language time phrases.
func timeFromText(day time.Time, text string) (time.Time, bool) {
	if m := deadlineRe.FindStringSubmatch(text); m != nil {
		hour, minute := clockParts(m[1], m[2], m[3])
		due := day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute).Add(-deadlineBuffer)
		if due.Before(day) {
			due = day
		}
		return due, true
	}
	if m := clockTimeRe.FindStringSubmatch(text); m != nil {
		hour, minute := clockParts(m[1], m[2], m[3])
		return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), true
	}
	lower := strings.ToLower(text)
	for period, hour := range periodHours {
		if strings.Contains(lower, period) {
			return day.Add(time.Duration(hour) * time.Hour), true
		}
	}
	return time.Time{}, false
}

// parseClock parses "14:00", "2:30 PM" or "2 PM" style time strings.
func parseClock(s string) (hour, minute int, ok bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "3:04 PM", "3:04PM", "3 PM", "3PM", "15"} {
		if t, err := time.Parse(layout, strings.ToUpper(s)); err == nil {
			return t.Hour(), t.Minute(), true
		}
	}
	if m := clockTimeRe.FindStringSubmatch(s); m != nil {
		h, mnt := clockParts(m[1], m[2], m[3])
		return h, mnt, true
	}
	return 0, 0, false
}

// clockParts converts matched hour/minute/meridiem strings to 24h values.
func clockParts(hourStr, minuteStr, meridiem string) (int, int) {
	hour, _ := strconv.Atoi(hourStr)
	minute := 0
	if minuteStr != "" {
		minute, _ = strconv.Atoi(minuteStr)
	}
	switch strings.ToLower(meridiem) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour, minute
}
