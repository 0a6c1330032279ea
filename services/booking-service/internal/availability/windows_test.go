package availability

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

func TestWindowsForDate_WeeklyUTC(t *testing.T) {
	weekly := []model.WeeklySlot{
		{UserID: "u1", Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60},
		{UserID: "u1", Weekday: time.Tuesday, StartMinute: 10 * 60, EndMinute: 12 * 60},
	}

	windows, err := WindowsForDate(weekly, nil, "2026-01-26", time.UTC) // Monday
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	want := Interval{
		Start: time.Date(2026, 1, 26, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 26, 17, 0, 0, 0, time.UTC),
	}
	if !windows[0].Start.Equal(want.Start) || !windows[0].End.Equal(want.End) {
		t.Fatalf("expected %v-%v, got %v-%v", want.Start, want.End, windows[0].Start, windows[0].End)
	}
}

func TestWindowsForDate_NoMatchingWeekday(t *testing.T) {
	weekly := []model.WeeklySlot{
		{UserID: "u1", Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60},
	}
	windows, err := WindowsForDate(weekly, nil, "2026-01-27", time.UTC) // Tuesday
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 0 {
		t.Fatalf("expected no windows, got %d", len(windows))
	}
}

func TestWindowsForDate_UnavailableOverrideWinsOverWeekly(t *testing.T) {
	weekly := []model.WeeklySlot{
		{UserID: "u1", Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60},
	}
	override := &model.DateOverride{UserID: "u1", Date: "2026-01-26", Available: false}

	windows, err := WindowsForDate(weekly, override, "2026-01-26", time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 0 {
		t.Fatalf("expected no windows for unavailable override, got %d", len(windows))
	}
}

func TestWindowsForDate_AvailableOverrideReplacesWeekly(t *testing.T) {
	weekly := []model.WeeklySlot{
		{UserID: "u1", Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60},
	}
	override := &model.DateOverride{
		UserID: "u1", Date: "2026-01-26", Available: true,
		StartMinute: 13 * 60, EndMinute: 15 * 60,
	}

	windows, err := WindowsForDate(weekly, override, "2026-01-26", time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if !windows[0].Start.Equal(time.Date(2026, 1, 26, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected override window 13:00, got %v", windows[0].Start)
	}
}

func TestWindowsForDate_MergesOverlappingWeeklySlots(t *testing.T) {
	weekly := []model.WeeklySlot{
		{UserID: "u1", Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60},
		{UserID: "u1", Weekday: time.Monday, StartMinute: 11 * 60, EndMinute: 14 * 60},
	}
	windows, err := WindowsForDate(weekly, nil, "2026-01-26", time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected merged window, got %d", len(windows))
	}
	if !windows[0].End.Equal(time.Date(2026, 1, 26, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected merged end 14:00, got %v", windows[0].End)
	}
}

func TestWindowsForDate_WallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	weekly := []model.WeeklySlot{
		{UserID: "u1", Weekday: time.Saturday, StartMinute: 9 * 60, EndMinute: 17 * 60},
		{UserID: "u1", Weekday: time.Sunday, StartMinute: 9 * 60, EndMinute: 17 * 60},
	}

	// 2024-03-09 is standard time (UTC-5): 09:00 local = 14:00 UTC.
	before, err := WindowsForDate(weekly, nil, "2024-03-09", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !before[0].Start.Equal(time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 14:00 UTC before transition, got %v", before[0].Start)
	}

	// 2024-03-10 springs forward (UTC-4): 09:00 local = 13:00 UTC, and the
	// window still spans eight wall-clock hours.
	after, err := WindowsForDate(weekly, nil, "2024-03-10", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !after[0].Start.Equal(time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 13:00 UTC after transition, got %v", after[0].Start)
	}
	if got := after[0].End.Sub(after[0].Start); got != 8*time.Hour {
		t.Fatalf("expected 8h window after transition, got %s", got)
	}
}

func TestWindowsForDate_EndOfDaySentinel(t *testing.T) {
	weekly := []model.WeeklySlot{
		{UserID: "u1", Weekday: time.Monday, StartMinute: 22 * 60, EndMinute: 24 * 60},
	}
	windows, err := WindowsForDate(weekly, nil, "2026-01-26", time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !windows[0].End.Equal(time.Date(2026, 1, 27, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected window to end at midnight, got %v", windows[0].End)
	}
}

func TestWindowsForDate_BadDate(t *testing.T) {
	if _, err := WindowsForDate(nil, nil, "26-01-2026", time.UTC); err == nil {
		t.Fatal("expected error for malformed date")
	}
}
