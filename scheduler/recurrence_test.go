package scheduler

import (
	"testing"
	"time"

	"chorepoints/models"
)

func mustParse(t *testing.T, task *models.Task) Schedule {
	t.Helper()
	s, err := ParseSchedule(task)
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	return s
}

func TestParseScheduleRejectsBadInput(t *testing.T) {
	cases := []models.Task{
		{RecurringPattern: models.PatternDaily, RecurringTime: "8am"},
		{RecurringPattern: models.PatternDaily, RecurringTime: "25:00"},
		{RecurringPattern: models.PatternWeekly, RecurringTime: "08:00", RecurringDays: ""},
		{RecurringPattern: models.PatternWeekly, RecurringTime: "08:00", RecurringDays: "7"},
		{RecurringPattern: models.PatternMonthly, RecurringTime: "08:00", RecurringDayOfMonth: 0},
		{RecurringPattern: models.PatternMonthly, RecurringTime: "08:00", RecurringDayOfMonth: 32},
		{RecurringPattern: "yearly", RecurringTime: "08:00"},
	}
	for i := range cases {
		if _, err := ParseSchedule(&cases[i]); err == nil {
			t.Errorf("case %d: expected error, got none", i)
		}
	}
}

func TestDailyDueOccurrencesKeepsLastTwo(t *testing.T) {
	s := mustParse(t, &models.Task{RecurringPattern: models.PatternDaily, RecurringTime: "08:00"})

	anchor := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 9, 1, 0, 0, time.UTC)

	due := s.DueOccurrences(anchor, now)
	if len(due) != 2 {
		t.Fatalf("expected 2 occurrences (latest missed + current), got %d: %v", len(due), due)
	}
	want0 := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	want1 := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	if !due[0].Equal(want0) || !due[1].Equal(want1) {
		t.Fatalf("got %v, want [%v %v]", due, want0, want1)
	}
}

func TestDueOccurrencesRespectsAnchor(t *testing.T) {
	s := mustParse(t, &models.Task{RecurringPattern: models.PatternDaily, RecurringTime: "08:00"})

	// Template created after today's slot: nothing is due yet.
	anchor := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	if due := s.DueOccurrences(anchor, now); len(due) != 0 {
		t.Fatalf("expected no occurrences before the first slot, got %v", due)
	}
}

func TestWeeklyOccurrences(t *testing.T) {
	// Monday and Thursday at 18:30.
	s := mustParse(t, &models.Task{
		RecurringPattern: models.PatternWeekly,
		RecurringTime:    "18:30",
		RecurringDays:    "1,4",
	})

	anchor := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) // Sunday
	now := time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)   // Friday

	due := s.DueOccurrences(anchor, now)
	// Mon Mar 2 and Thu Mar 5.
	if len(due) != 2 {
		t.Fatalf("expected 2 occurrences, got %v", due)
	}
	if due[0].Weekday() != time.Monday || due[1].Weekday() != time.Thursday {
		t.Fatalf("wrong weekdays: %v", due)
	}
}

func TestMonthlyClampsToShortMonths(t *testing.T) {
	s := mustParse(t, &models.Task{
		RecurringPattern:    models.PatternMonthly,
		RecurringTime:       "09:00",
		RecurringDayOfMonth: 31,
	})

	// February 2026 has 28 days; the day-31 rule fires on the 28th.
	next := s.NextOccurrence(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	want := time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}

	// March has a real 31st.
	next = s.NextOccurrence(want)
	want = time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}
}

func TestNextOccurrenceIsStrictlyAfter(t *testing.T) {
	s := mustParse(t, &models.Task{RecurringPattern: models.PatternDaily, RecurringTime: "08:00"})

	at := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	next := s.NextOccurrence(at)
	want := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("occurrence at the exact moment must not count: got %v, want %v", next, want)
	}
}

func TestValidateLeadTime(t *testing.T) {
	s := mustParse(t, &models.Task{RecurringPattern: models.PatternDaily, RecurringTime: "08:00"})

	// 29 minutes before the slot: too close.
	now := time.Date(2026, 3, 10, 7, 31, 0, 0, time.UTC)
	if err := s.ValidateLeadTime(now); err == nil {
		t.Fatal("expected lead time violation")
	}

	// 31 minutes before: fine.
	now = time.Date(2026, 3, 10, 7, 29, 0, 0, time.UTC)
	if err := s.ValidateLeadTime(now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
