package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"chorepoints/models"
)

// MinLeadTime is the minimum distance between "now" and a template's next
// occurrence at creation/edit time. Anything closer would materialize an
// instance that is overdue the moment it exists.
const MinLeadTime = 30 * time.Minute

// lookBackHorizon bounds how far into the past DueOccurrences walks. A
// template disabled for a year must not flood the family with historical
// instances when it wakes up.
const lookBackHorizon = 62 * 24 * time.Hour

// Schedule is the parsed recurrence rule of a template.
type Schedule struct {
	Pattern    string
	Hour       int
	Minute     int
	Days       map[time.Weekday]bool // weekly only
	DayOfMonth int                   // monthly only, clamped to shorter months
}

// ParseSchedule validates and parses the recurrence fields of a template.
func ParseSchedule(t *models.Task) (Schedule, error) {
	s := Schedule{Pattern: t.RecurringPattern}

	parts := strings.Split(t.RecurringTime, ":")
	if len(parts) != 2 {
		return s, fmt.Errorf("invalid recurring time %q, expected HH:MM", t.RecurringTime)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return s, fmt.Errorf("invalid hour in %q", t.RecurringTime)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return s, fmt.Errorf("invalid minute in %q", t.RecurringTime)
	}
	s.Hour, s.Minute = hour, minute

	switch t.RecurringPattern {
	case models.PatternDaily:
	case models.PatternWeekly:
		s.Days = make(map[time.Weekday]bool)
		for _, d := range strings.Split(t.RecurringDays, ",") {
			d = strings.TrimSpace(d)
			if d == "" {
				continue
			}
			n, err := strconv.Atoi(d)
			if err != nil || n < 0 || n > 6 {
				return s, fmt.Errorf("invalid weekday %q", d)
			}
			s.Days[time.Weekday(n)] = true
		}
		if len(s.Days) == 0 {
			return s, fmt.Errorf("weekly template has no weekdays")
		}
	case models.PatternMonthly:
		if t.RecurringDayOfMonth < 1 || t.RecurringDayOfMonth > 31 {
			return s, fmt.Errorf("invalid day of month %d", t.RecurringDayOfMonth)
		}
		s.DayOfMonth = t.RecurringDayOfMonth
	default:
		return s, fmt.Errorf("unknown recurring pattern %q", t.RecurringPattern)
	}
	return s, nil
}

// occursOn reports whether the schedule has an occurrence on the given
// calendar day, and at what timestamp.
func (s Schedule) occursOn(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	switch s.Pattern {
	case models.PatternDaily:
	case models.PatternWeekly:
		wd := time.Date(year, month, day, 0, 0, 0, 0, loc).Weekday()
		if !s.Days[wd] {
			return time.Time{}, false
		}
	case models.PatternMonthly:
		target := s.DayOfMonth
		if last := daysIn(year, month); target > last {
			target = last // Jan 31 -> Feb 28/29
		}
		if day != target {
			return time.Time{}, false
		}
	default:
		return time.Time{}, false
	}
	return time.Date(year, month, day, s.Hour, s.Minute, 0, 0, loc), true
}

// DueOccurrences returns the occurrence timestamps that should have a
// materialized instance as of now. Policy for missed slots: only the single
// most recent missed occurrence is backfilled, plus the current one; older
// slots are dropped rather than flooding a long-dormant template's series.
func (s Schedule) DueOccurrences(anchor, now time.Time) []time.Time {
	start := anchor
	if h := now.Add(-lookBackHorizon); start.Before(h) {
		start = h
	}
	if now.Before(start) {
		return nil
	}

	var due []time.Time
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, now.Location())
	for !day.After(now) {
		if occ, ok := s.occursOn(day.Year(), day.Month(), day.Day(), now.Location()); ok {
			if !occ.Before(anchor) && !occ.After(now) {
				due = append(due, occ)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	if len(due) > 2 {
		due = due[len(due)-2:]
	}
	return due
}

// NextOccurrence returns the first occurrence strictly after the given time,
// or the zero time if none exists within a year (cannot happen for a valid
// schedule, but callers should not loop on it).
func (s Schedule) NextOccurrence(after time.Time) time.Time {
	day := time.Date(after.Year(), after.Month(), after.Day(), 0, 0, 0, 0, after.Location())
	for i := 0; i < 366; i++ {
		if occ, ok := s.occursOn(day.Year(), day.Month(), day.Day(), after.Location()); ok && occ.After(after) {
			return occ
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}

// ValidateLeadTime rejects schedules whose next occurrence is closer than
// MinLeadTime: such a template would generate an instance that is already
// overdue (or immediately so) when materialized.
func (s Schedule) ValidateLeadTime(now time.Time) error {
	next := s.NextOccurrence(now)
	if next.IsZero() || next.Sub(now) < MinLeadTime {
		return ErrInvalidSchedule
	}
	return nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
