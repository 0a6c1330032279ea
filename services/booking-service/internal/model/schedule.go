package model

import (
	"fmt"
	"time"
)

// WeeklySlot is one recurring availability window on a host's weekly
// schedule. Times are stored as minutes from local midnight in the host's
// timezone; conversion to concrete instants happens per date so DST
// transitions are handled by the location database, not by arithmetic.
type WeeklySlot struct {
	UserID      string
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
}

// DateOverride replaces the weekly pattern entirely for one calendar date.
// When Available is false the host has no windows that day regardless of the
// weekly schedule; when true, StartMinute/EndMinute define the sole window.
type DateOverride struct {
	UserID      string
	Date        string // "2006-01-02" in the host's timezone
	Available   bool
	StartMinute int
	EndMinute   int
}

// ParseClock parses "HH:MM" into minutes from midnight. The 24:00 sentinel is
// accepted so a window may end exactly at the end of the day.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%2d:%2d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("parse clock %q: want HH:MM", s)
	}
	if h == 24 && m == 0 {
		return 24 * 60, nil
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("parse clock %q: out of range", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes from midnight as "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
