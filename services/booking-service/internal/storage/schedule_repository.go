package storage

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/timeslot/libs/db"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

// ScheduleRepository persists weekly schedules and date overrides. It backs
// both the schedule service (writes) and slot generation (reads).
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) WeeklySlots(ctx context.Context, userID string) ([]model.WeeklySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id::text, weekday, start_minute, end_minute
		FROM weekly_slots
		WHERE user_id = $1
		ORDER BY weekday ASC, start_minute ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WeeklySlot
	for rows.Next() {
		var ws model.WeeklySlot
		if err := rows.Scan(&ws.UserID, &ws.Weekday, &ws.StartMinute, &ws.EndMinute); err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// DateOverride returns nil when the date has no override.
func (r *ScheduleRepository) DateOverride(ctx context.Context, userID, date string) (*model.DateOverride, error) {
	var ov model.DateOverride
	err := r.pool.QueryRow(ctx, `
		SELECT user_id::text, override_date::text, available, start_minute, end_minute
		FROM date_overrides
		WHERE user_id = $1 AND override_date = $2::date
	`, userID, date).Scan(&ov.UserID, &ov.Date, &ov.Available, &ov.StartMinute, &ov.EndMinute)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ov, nil
}

func (r *ScheduleRepository) ListDateOverrides(ctx context.Context, userID, fromDate, toDate string) ([]model.DateOverride, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id::text, override_date::text, available, start_minute, end_minute
		FROM date_overrides
		WHERE user_id = $1
			AND override_date >= $2::date
			AND override_date <= $3::date
		ORDER BY override_date ASC
	`, userID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DateOverride
	for rows.Next() {
		var ov model.DateOverride
		if err := rows.Scan(&ov.UserID, &ov.Date, &ov.Available, &ov.StartMinute, &ov.EndMinute); err != nil {
			return nil, err
		}
		out = append(out, ov)
	}
	return out, rows.Err()
}

// ReplaceWeeklySlots swaps the whole weekly schedule in one transaction so
// readers never observe a half-applied schedule.
func (r *ScheduleRepository) ReplaceWeeklySlots(ctx context.Context, userID string, slots []model.WeeklySlot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM weekly_slots WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear weekly slots: %w", err)
	}
	for _, ws := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO weekly_slots (user_id, weekday, start_minute, end_minute)
			VALUES ($1, $2, $3, $4)
		`, userID, int(ws.Weekday), ws.StartMinute, ws.EndMinute)
		if err != nil {
			return fmt.Errorf("insert weekly slot: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *ScheduleRepository) UpsertDateOverride(ctx context.Context, ov model.DateOverride) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO date_overrides (user_id, override_date, available, start_minute, end_minute)
		VALUES ($1, $2::date, $3, $4, $5)
		ON CONFLICT (user_id, override_date)
		DO UPDATE SET available = EXCLUDED.available,
		              start_minute = EXCLUDED.start_minute,
		              end_minute = EXCLUDED.end_minute,
		              updated_at = now()
	`, ov.UserID, ov.Date, ov.Available, ov.StartMinute, ov.EndMinute)
	return err
}

func (r *ScheduleRepository) DeleteDateOverride(ctx context.Context, userID, date string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM date_overrides
		WHERE user_id = $1 AND override_date = $2::date
	`, userID, date)
	return err
}
