package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

// ScheduleSource loads a host's recurring schedule and date overrides.
type ScheduleSource interface {
	WeeklySlots(ctx context.Context, userID string) ([]model.WeeklySlot, error)
	// DateOverride returns the override for the date ("2006-01-02") or nil
	// when none exists.
	DateOverride(ctx context.Context, userID, date string) (*model.DateOverride, error)
}

// BusySource yields booking-backed busy time. Implementations must return
// every interval whose buffer-expanded span overlaps [from, to), so callers
// never miss a conflict hiding just outside the query range.
type BusySource interface {
	BusyIntervals(ctx context.Context, userID string, from, to time.Time) ([]BusyInterval, error)
}

// ExternalBusySource yields busy time from connected external calendars.
// Implementations absorb per-calendar failures and return whatever the
// healthy calendars reported; a degraded result means "no additional
// conflict known", never an error.
type ExternalBusySource interface {
	ExternalBusy(ctx context.Context, userID string, from, to time.Time) []Interval
}

// Params carries the event-type settings one slot computation runs under.
// Location is the host's timezone; dates are interpreted in it.
type Params struct {
	HostID        string
	Location      *time.Location
	Duration      time.Duration
	MinimumNotice time.Duration
	// WindowDays caps how far past now slots may start; 0 means uncapped.
	WindowDays int
}

// Service generates bookable slots from schedule windows, persisted
// bookings and external calendars. All dependencies, the clock included,
// are injected so tests run against fakes and a fixed now.
type Service struct {
	schedules ScheduleSource
	busy      BusySource
	external  ExternalBusySource
	now       func() time.Time
	step      time.Duration
}

func NewService(schedules ScheduleSource, busy BusySource, external ExternalBusySource, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		schedules: schedules,
		busy:      busy,
		external:  external,
		now:       now,
		step:      DefaultStepMinutes * time.Minute,
	}
}

// SlotsForDate returns the bookable slots for one host and one date, ordered
// by start time. An unavailable date (override or no matching weekly slots)
// yields an empty sequence, not an error.
func (s *Service) SlotsForDate(ctx context.Context, p Params, date string) ([]Slot, error) {
	windows, err := s.windowsForDate(ctx, p, date)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}

	now := s.now()
	earliest := now.Add(p.MinimumNotice)
	slots := GenerateAll(windows, p.Duration, s.step, earliest)
	slots = capToWindow(slots, now, p.WindowDays)
	if len(slots) == 0 {
		return nil, nil
	}

	busy, err := s.busyAround(ctx, p.HostID, windows[0].Start, windows[len(windows)-1].End)
	if err != nil {
		return nil, err
	}
	return FilterAvailable(slots, busy), nil
}

// DaySlots is one date's slot list inside a range response.
type DaySlots struct {
	Date  string
	Slots []Slot
}

// SlotsForRange runs SlotsForDate for every date in [fromDate, toDate],
// inclusive on both ends. Dates are stepped in the host's location so DST
// days advance correctly.
func (s *Service) SlotsForRange(ctx context.Context, p Params, fromDate, toDate string) ([]DaySlots, error) {
	from, err := time.ParseInLocation("2006-01-02", fromDate, p.Location)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", fromDate, err)
	}
	to, err := time.ParseInLocation("2006-01-02", toDate, p.Location)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", toDate, err)
	}

	var out []DaySlots
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		date := d.Format("2006-01-02")
		slots, err := s.SlotsForDate(ctx, p, date)
		if err != nil {
			return nil, err
		}
		out = append(out, DaySlots{Date: date, Slots: slots})
	}
	return out, nil
}

// SlotFree reports whether the exact [start, end) interval is currently
// bookable for the host: inside a schedule window on its date, at or past
// the minimum notice, within the booking window, and clear of direct and
// buffer conflicts. The booking ledger re-validates inside its transaction;
// this read-only form serves team validation and pre-checks.
func (s *Service) SlotFree(ctx context.Context, p Params, start, end time.Time) (bool, error) {
	if !end.After(start) {
		return false, nil
	}
	now := s.now()
	if start.Before(now.Add(p.MinimumNotice)) {
		return false, nil
	}
	if p.WindowDays > 0 && start.After(now.AddDate(0, 0, p.WindowDays)) {
		return false, nil
	}

	date := start.In(p.Location).Format("2006-01-02")
	windows, err := s.windowsForDate(ctx, p, date)
	if err != nil {
		return false, err
	}
	inWindow := false
	for _, w := range windows {
		if w.Contains(start, end) {
			inWindow = true
			break
		}
	}
	if !inWindow {
		return false, nil
	}

	busy, err := s.busyAround(ctx, p.HostID, start, end)
	if err != nil {
		return false, err
	}
	return Check(start, end, busy) == ConflictNone, nil
}

func (s *Service) windowsForDate(ctx context.Context, p Params, date string) ([]Interval, error) {
	override, err := s.schedules.DateOverride(ctx, p.HostID, date)
	if err != nil {
		return nil, fmt.Errorf("load date override: %w", err)
	}
	var weekly []model.WeeklySlot
	if override == nil {
		weekly, err = s.schedules.WeeklySlots(ctx, p.HostID)
		if err != nil {
			return nil, fmt.Errorf("load weekly slots: %w", err)
		}
	}
	return WindowsForDate(weekly, override, date, p.Location)
}

func (s *Service) busyAround(ctx context.Context, hostID string, from, to time.Time) ([]BusyInterval, error) {
	busy, err := s.busy.BusyIntervals(ctx, hostID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load busy intervals: %w", err)
	}
	if s.external != nil {
		for _, iv := range s.external.ExternalBusy(ctx, hostID, from, to) {
			busy = append(busy, BusyInterval{Start: iv.Start, End: iv.End})
		}
	}
	return busy, nil
}

// capToWindow drops slots starting past now + windowDays.
func capToWindow(slots []Slot, now time.Time, windowDays int) []Slot {
	if windowDays <= 0 {
		return slots
	}
	horizon := now.AddDate(0, 0, windowDays)
	out := slots[:0]
	for _, s := range slots {
		if !s.Start.After(horizon) {
			out = append(out, s)
		}
	}
	return out
}
