package domain

import (
	"testing"
	"time"
)

func TestLocalTimeAppliesOffset(t *testing.T) {
	u := &User{TimezoneOffset: 3}
	now := time.Date(2024, 1, 1, 5, 30, 0, 0, time.UTC)

	got := u.LocalTime(now)
	want := time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLocalTimeNegativeOffsetCrossesDay(t *testing.T) {
	u := &User{TimezoneOffset: -5}
	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)

	got := u.LocalTime(now)
	if got.Day() != 29 || got.Month() != time.February || got.Hour() != 21 {
		t.Fatalf("unexpected local time %v", got)
	}
}

func TestTaskIsDue(t *testing.T) {
	deadline, err := ParseDeadline("2024-01-01 09:00:00")
	if err != nil {
		t.Fatalf("ParseDeadline failed: %v", err)
	}
	task := &Task{Deadline: deadline}

	if task.IsDue(time.Date(2024, 1, 1, 8, 59, 59, 0, time.UTC)) {
		t.Error("task should not be due before the deadline")
	}
	if !task.IsDue(deadline) {
		t.Error("task should be due exactly at the deadline")
	}
}

func TestParseDeadlineLayouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-02 18:30:00", time.Date(2024, 5, 2, 18, 30, 0, 0, time.UTC)},
		{"2024-05-02T18:30:00", time.Date(2024, 5, 2, 18, 30, 0, 0, time.UTC)},
		{"2024-05-02 18:30", time.Date(2024, 5, 2, 18, 30, 0, 0, time.UTC)},
		{" 2024-05-02 ", time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseDeadline(tt.in)
		if err != nil {
			t.Errorf("ParseDeadline(%q) failed: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseDeadline(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "tomorrow", "02.05.2024 18:30"} {
		if _, err := ParseDeadline(bad); err == nil {
			t.Errorf("ParseDeadline(%q) expected error", bad)
		}
	}
}

func TestDayBounds(t *testing.T) {
	start, end := DayBounds(time.Date(2024, 1, 1, 13, 45, 0, 0, time.UTC))
	if FormatDeadline(start) != "2024-01-01 00:00:00" {
		t.Errorf("unexpected start %s", FormatDeadline(start))
	}
	if FormatDeadline(end) != "2024-01-01 23:59:59" {
		t.Errorf("unexpected end %s", FormatDeadline(end))
	}
}

func TestValidOffset(t *testing.T) {
	for _, ok := range []int{-12, 0, 3, 14} {
		if !ValidOffset(ok) {
			t.Errorf("expected %d to be valid", ok)
		}
	}
	for _, bad := range []int{-13, 15, 100} {
		if ValidOffset(bad) {
			t.Errorf("expected %d to be invalid", bad)
		}
	}
}
