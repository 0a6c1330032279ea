package availability

import (
	"testing"
	"time"
)

func TestGenerateSlots_FullDayGrid(t *testing.T) {
	day := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC) // a Monday
	window := Interval{Start: day.Add(9 * time.Hour), End: day.Add(17 * time.Hour)}

	slots := GenerateSlots(window, 30*time.Minute, 15*time.Minute, day)
	if len(slots) != 31 {
		t.Fatalf("expected 31 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Start.Format(time.RFC3339))
	}
	if !slots[30].Start.Equal(day.Add(16*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected last slot 16:30, got %s", slots[30].Start.Format(time.RFC3339))
	}
	if !slots[30].End.Equal(day.Add(17 * time.Hour)) {
		t.Fatalf("expected last slot to end 17:00, got %s", slots[30].End.Format(time.RFC3339))
	}
}

func TestGenerateSlots_SkipsBeforeEarliest(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	window := Interval{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}

	// Earliest bookable instant is 09:31; 09:00, 09:15 and 09:30 are too soon.
	earliest := day.Add(9*time.Hour + 31*time.Minute)
	slots := GenerateSlots(window, 15*time.Minute, 15*time.Minute, earliest)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if !slots[0].Start.Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected slot 09:45, got %s", slots[0].Start.Format(time.RFC3339))
	}
}

func TestGenerateSlots_DurationLongerThanWindow(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	window := Interval{Start: day.Add(9 * time.Hour), End: day.Add(9*time.Hour + 20*time.Minute)}

	if slots := GenerateSlots(window, 30*time.Minute, 15*time.Minute, day); slots != nil {
		t.Fatalf("expected no slots, got %d", len(slots))
	}
}

func TestGenerateSlots_RejectsDegenerateInput(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	window := Interval{Start: day.Add(10 * time.Hour), End: day.Add(9 * time.Hour)}
	if slots := GenerateSlots(window, 30*time.Minute, 15*time.Minute, day); slots != nil {
		t.Fatalf("expected no slots for inverted window, got %d", len(slots))
	}
	window = Interval{Start: day.Add(9 * time.Hour), End: day.Add(17 * time.Hour)}
	if slots := GenerateSlots(window, 0, 15*time.Minute, day); slots != nil {
		t.Fatalf("expected no slots for zero duration, got %d", len(slots))
	}
}

func TestGenerateAll_OrderedAcrossWindows(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	windows := []Interval{
		{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)},
		{Start: day.Add(14 * time.Hour), End: day.Add(15 * time.Hour)},
	}

	slots := GenerateAll(windows, 30*time.Minute, 15*time.Minute, day)
	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if !slots[i].Start.After(slots[i-1].Start) {
			t.Fatalf("slots out of order at %d: %s then %s", i,
				slots[i-1].Start.Format(time.RFC3339), slots[i].Start.Format(time.RFC3339))
		}
	}
}
