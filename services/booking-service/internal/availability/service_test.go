package availability

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

type fakeSchedules struct {
	weekly    []model.WeeklySlot
	overrides map[string]*model.DateOverride
}

func (f *fakeSchedules) WeeklySlots(ctx context.Context, userID string) ([]model.WeeklySlot, error) {
	return f.weekly, nil
}

func (f *fakeSchedules) DateOverride(ctx context.Context, userID, date string) (*model.DateOverride, error) {
	return f.overrides[date], nil
}

type fakeBusy struct {
	intervals []BusyInterval
}

func (f *fakeBusy) BusyIntervals(ctx context.Context, userID string, from, to time.Time) ([]BusyInterval, error) {
	return f.intervals, nil
}

type fakeExternal struct {
	intervals []Interval
}

func (f *fakeExternal) ExternalBusy(ctx context.Context, userID string, from, to time.Time) []Interval {
	return f.intervals
}

func mondayNineToFive() *fakeSchedules {
	return &fakeSchedules{
		weekly: []model.WeeklySlot{
			{UserID: "u1", Weekday: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60},
		},
		overrides: map[string]*model.DateOverride{},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestService_SlotsForDate_FullDay(t *testing.T) {
	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	svc := NewService(mondayNineToFive(), &fakeBusy{}, nil, fixedClock(now))

	slots, err := svc.SlotsForDate(context.Background(), Params{
		HostID:   "u1",
		Location: time.UTC,
		Duration: 30 * time.Minute,
	}, "2026-01-26")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 31 {
		t.Fatalf("expected 31 slots, got %d", len(slots))
	}
}

func TestService_SlotsForDate_UnavailableOverride(t *testing.T) {
	schedules := mondayNineToFive()
	schedules.overrides["2024-01-15"] = &model.DateOverride{
		UserID: "u1", Date: "2024-01-15", Available: false,
	}
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	svc := NewService(schedules, &fakeBusy{}, nil, fixedClock(now))

	slots, err := svc.SlotsForDate(context.Background(), Params{
		HostID:   "u1",
		Location: time.UTC,
		Duration: 30 * time.Minute,
	}, "2024-01-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots on an unavailable date, got %d", len(slots))
	}
}

func TestService_SlotsForDate_MinimumNotice(t *testing.T) {
	now := time.Date(2026, 1, 26, 8, 0, 0, 0, time.UTC)
	svc := NewService(mondayNineToFive(), &fakeBusy{}, nil, fixedClock(now))

	p := Params{
		HostID:        "u1",
		Location:      time.UTC,
		Duration:      30 * time.Minute,
		MinimumNotice: 2 * time.Hour,
	}
	slots, err := svc.SlotsForDate(context.Background(), p, "2026-01-26")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("expected slots")
	}
	earliest := now.Add(p.MinimumNotice)
	for _, s := range slots {
		if s.Start.Before(earliest) {
			t.Fatalf("slot %s starts before now+notice %s",
				s.Start.Format(time.RFC3339), earliest.Format(time.RFC3339))
		}
	}
	if !slots[0].Start.Equal(time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected first slot 10:00, got %s", slots[0].Start.Format(time.RFC3339))
	}
}

func TestService_SlotsForDate_BookingWindowCap(t *testing.T) {
	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	svc := NewService(mondayNineToFive(), &fakeBusy{}, nil, fixedClock(now))

	p := Params{
		HostID:     "u1",
		Location:   time.UTC,
		Duration:   30 * time.Minute,
		WindowDays: 3,
	}
	// 2026-02-02 is a Monday 13 days out, past the 3-day window.
	slots, err := svc.SlotsForDate(context.Background(), p, "2026-02-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots past the booking window, got %d", len(slots))
	}
}

func TestService_SlotsForDate_ExternalBusyApplied(t *testing.T) {
	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	external := &fakeExternal{intervals: []Interval{{
		Start: time.Date(2026, 1, 26, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 26, 12, 0, 0, 0, time.UTC),
	}}}
	svc := NewService(mondayNineToFive(), &fakeBusy{}, external, fixedClock(now))

	slots, err := svc.SlotsForDate(context.Background(), Params{
		HostID:   "u1",
		Location: time.UTC,
		Duration: 30 * time.Minute,
	}, "2026-01-26")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("expected slots after noon")
	}
	if !slots[0].Start.Equal(time.Date(2026, 1, 26, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected first slot 12:00, got %s", slots[0].Start.Format(time.RFC3339))
	}
}

func TestService_SlotFree(t *testing.T) {
	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	busy := &fakeBusy{intervals: []BusyInterval{{
		Start: time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 26, 11, 0, 0, 0, time.UTC),
	}}}
	svc := NewService(mondayNineToFive(), busy, nil, fixedClock(now))

	p := Params{HostID: "u1", Location: time.UTC, Duration: 30 * time.Minute}
	ctx := context.Background()

	free, err := svc.SlotFree(ctx, p, time.Date(2026, 1, 26, 14, 0, 0, 0, time.UTC), time.Date(2026, 1, 26, 14, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !free {
		t.Fatal("expected 14:00 to be free")
	}

	free, err = svc.SlotFree(ctx, p, time.Date(2026, 1, 26, 10, 30, 0, 0, time.UTC), time.Date(2026, 1, 26, 11, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if free {
		t.Fatal("expected 10:30 to conflict with the existing booking")
	}

	// 07:00 is outside the 09:00-17:00 schedule window.
	free, err = svc.SlotFree(ctx, p, time.Date(2026, 1, 26, 7, 0, 0, 0, time.UTC), time.Date(2026, 1, 26, 7, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if free {
		t.Fatal("expected 07:00 to be outside the schedule window")
	}
}

func TestService_SlotsForRange(t *testing.T) {
	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	svc := NewService(mondayNineToFive(), &fakeBusy{}, nil, fixedClock(now))

	days, err := svc.SlotsForRange(context.Background(), Params{
		HostID:   "u1",
		Location: time.UTC,
		Duration: 30 * time.Minute,
	}, "2026-01-25", "2026-01-27")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	if days[0].Date != "2026-01-25" || days[2].Date != "2026-01-27" {
		t.Fatalf("unexpected date order: %s .. %s", days[0].Date, days[2].Date)
	}
	// Only the Monday in the middle has windows.
	if len(days[0].Slots) != 0 || len(days[2].Slots) != 0 {
		t.Fatal("expected empty slots on non-scheduled days")
	}
	if len(days[1].Slots) != 31 {
		t.Fatalf("expected 31 Monday slots, got %d", len(days[1].Slots))
	}
}
