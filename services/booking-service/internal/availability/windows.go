package availability

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

// WindowsForDate projects a host's schedule onto one calendar date and
// returns the open windows as UTC intervals.
//
// A DateOverride, when present, is the sole source of truth for its date: an
// unavailable override yields no windows no matter what the weekly schedule
// says, and an available one replaces the weekly windows entirely. Without an
// override, every weekly slot matching the date's weekday contributes a
// window.
//
// Windows are built from wall-clock hour/minute in the host's location, so
// "09:00" stays 09:00 local across DST transitions; the UTC width of a
// window shifts with the offset, never the local clock times.
func WindowsForDate(weekly []model.WeeklySlot, override *model.DateOverride, date string, loc *time.Location) ([]Interval, error) {
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}

	if override != nil {
		if !override.Available {
			return nil, nil
		}
		iv := clockInterval(day, override.StartMinute, override.EndMinute, loc)
		if !iv.End.After(iv.Start) {
			return nil, nil
		}
		return []Interval{iv}, nil
	}

	var windows []Interval
	for _, ws := range weekly {
		if ws.Weekday != day.Weekday() {
			continue
		}
		iv := clockInterval(day, ws.StartMinute, ws.EndMinute, loc)
		if iv.End.After(iv.Start) {
			windows = append(windows, iv)
		}
	}
	return Merge(windows), nil
}

// clockInterval builds the UTC interval for [startMinute, endMinute) wall
// clock on the given day. time.Date normalizes nonexistent local times (the
// spring-forward gap) and resolves ambiguous ones (the fall-back repeat), so
// no offset arithmetic happens here.
func clockInterval(day time.Time, startMinute, endMinute int, loc *time.Location) Interval {
	y, m, d := day.Date()
	start := time.Date(y, m, d, startMinute/60, startMinute%60, 0, 0, loc)
	end := time.Date(y, m, d, endMinute/60, endMinute%60, 0, 0, loc)
	return Interval{Start: start.UTC(), End: end.UTC()}
}
