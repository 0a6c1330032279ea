// Package schedule manages host weekly availability and per-date overrides.
// It validates what hosts submit; reading for slot generation goes through
// the availability package, which shares the same store.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

const minutesPerDay = 24 * 60

// Store persists schedules. The postgres implementation lives in the
// storage package.
type Store interface {
	WeeklySlots(ctx context.Context, userID string) ([]model.WeeklySlot, error)
	DateOverride(ctx context.Context, userID, date string) (*model.DateOverride, error)
	ListDateOverrides(ctx context.Context, userID, fromDate, toDate string) ([]model.DateOverride, error)
	// ReplaceWeeklySlots swaps the user's entire weekly schedule in one
	// transaction.
	ReplaceWeeklySlots(ctx context.Context, userID string, rows []model.WeeklySlot) error
	UpsertDateOverride(ctx context.Context, ov model.DateOverride) error
	DeleteDateOverride(ctx context.Context, userID, date string) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) WeeklySchedule(ctx context.Context, userID string) ([]model.WeeklySlot, error) {
	rows, err := s.store.WeeklySlots(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load weekly schedule: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Weekday != rows[j].Weekday {
			return rows[i].Weekday < rows[j].Weekday
		}
		return rows[i].StartMinute < rows[j].StartMinute
	})
	return rows, nil
}

// SetWeeklySchedule validates and replaces the user's whole weekly schedule.
// Submitting an empty set clears it.
func (s *Service) SetWeeklySchedule(ctx context.Context, userID string, rows []model.WeeklySlot) error {
	fieldErrs := make(map[string]string)
	for i, r := range rows {
		field := fmt.Sprintf("slots[%d]", i)
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			fieldErrs[field] = "weekday out of range"
			continue
		}
		if msg := checkWindow(r.StartMinute, r.EndMinute); msg != "" {
			fieldErrs[field] = msg
		}
	}
	if len(fieldErrs) == 0 {
		for field, pair := range overlappingRows(rows) {
			fieldErrs[field] = pair
		}
	}
	if len(fieldErrs) > 0 {
		return &model.ValidationError{FieldErrors: fieldErrs}
	}

	normalized := make([]model.WeeklySlot, len(rows))
	for i, r := range rows {
		r.UserID = userID
		normalized[i] = r
	}
	if err := s.store.ReplaceWeeklySlots(ctx, userID, normalized); err != nil {
		return fmt.Errorf("replace weekly schedule: %w", err)
	}
	return nil
}

// SetDateOverride validates and stores one override. An unavailable override
// needs no window; an available one needs a valid [start, end).
func (s *Service) SetDateOverride(ctx context.Context, ov model.DateOverride) error {
	fieldErrs := make(map[string]string)
	if _, err := time.Parse("2006-01-02", ov.Date); err != nil {
		fieldErrs["date"] = "want YYYY-MM-DD"
	}
	if ov.Available {
		if msg := checkWindow(ov.StartMinute, ov.EndMinute); msg != "" {
			fieldErrs["window"] = msg
		}
	} else {
		// Normalize so unavailable overrides compare equal regardless of
		// whatever window the client sent along.
		ov.StartMinute, ov.EndMinute = 0, 0
	}
	if len(fieldErrs) > 0 {
		return &model.ValidationError{FieldErrors: fieldErrs}
	}

	if err := s.store.UpsertDateOverride(ctx, ov); err != nil {
		return fmt.Errorf("store date override: %w", err)
	}
	return nil
}

func (s *Service) RemoveDateOverride(ctx context.Context, userID, date string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return model.Invalid("date", "want YYYY-MM-DD")
	}
	if err := s.store.DeleteDateOverride(ctx, userID, date); err != nil {
		return fmt.Errorf("delete date override: %w", err)
	}
	return nil
}

// Overrides lists the user's overrides in [fromDate, toDate], ordered by date.
func (s *Service) Overrides(ctx context.Context, userID, fromDate, toDate string) ([]model.DateOverride, error) {
	for field, date := range map[string]string{"from": fromDate, "to": toDate} {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return nil, model.Invalid(field, "want YYYY-MM-DD")
		}
	}
	out, err := s.store.ListDateOverrides(ctx, userID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("list date overrides: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func checkWindow(startMinute, endMinute int) string {
	if startMinute < 0 || startMinute >= minutesPerDay {
		return "start out of range"
	}
	if endMinute <= 0 || endMinute > minutesPerDay {
		return "end out of range"
	}
	if endMinute <= startMinute {
		return "end must be after start"
	}
	return ""
}

// overlappingRows flags rows that overlap another window on the same
// weekday. Keys are "slots[i]" for the later of each offending pair.
func overlappingRows(rows []model.WeeklySlot) map[string]string {
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ra, rb := rows[idx[a]], rows[idx[b]]
		if ra.Weekday != rb.Weekday {
			return ra.Weekday < rb.Weekday
		}
		return ra.StartMinute < rb.StartMinute
	})

	out := make(map[string]string)
	for k := 1; k < len(idx); k++ {
		prev, cur := rows[idx[k-1]], rows[idx[k]]
		if prev.Weekday == cur.Weekday && cur.StartMinute < prev.EndMinute {
			out[fmt.Sprintf("slots[%d]", idx[k])] = fmt.Sprintf("overlaps %s window starting %s",
				cur.Weekday, model.FormatClock(prev.StartMinute))
		}
	}
	return out
}
