package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/timeslot/libs/db"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/questions"
)

type EventTypeRepository struct {
	pool *db.Pool
}

func NewEventTypeRepository(pool *db.Pool) *EventTypeRepository {
	return &EventTypeRepository{pool: pool}
}

const eventTypeColumns = `id::text, host_id::text, COALESCE(team_id::text, ''), title, slug,
	duration_minutes, buffer_before_minutes, buffer_after_minutes,
	minimum_notice_minutes, booking_window_days,
	scheduling_type, location, requires_confirmation,
	reminder_offsets_minutes, questions, created_at`

func scanEventType(row rowScanner) (model.EventType, error) {
	var et model.EventType
	var offsets, qs []byte
	err := row.Scan(
		&et.ID,
		&et.HostID,
		&et.TeamID,
		&et.Title,
		&et.Slug,
		&et.DurationMinutes,
		&et.BufferBeforeMinutes,
		&et.BufferAfterMinutes,
		&et.MinimumNoticeMinutes,
		&et.BookingWindowDays,
		&et.SchedulingType,
		&et.Location,
		&et.RequiresConfirmation,
		&offsets,
		&qs,
		&et.CreatedAt,
	)
	if err != nil {
		return model.EventType{}, err
	}
	if len(offsets) > 0 {
		if err := json.Unmarshal(offsets, &et.ReminderOffsetsMinutes); err != nil {
			return model.EventType{}, fmt.Errorf("decode reminder offsets for event type %s: %w", et.ID, err)
		}
	}
	if len(qs) > 0 {
		if err := json.Unmarshal(qs, &et.Questions); err != nil {
			return model.EventType{}, fmt.Errorf("decode questions for event type %s: %w", et.ID, err)
		}
	}
	return et, nil
}

func (r *EventTypeRepository) EventType(ctx context.Context, id string) (model.EventType, error) {
	et, err := scanEventType(r.pool.QueryRow(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE id = $1
	`, id))
	if IsNotFound(err) {
		return model.EventType{}, &model.NotFoundError{Entity: "event type", ID: id}
	}
	return et, err
}

// EventTypeBySlug resolves the public booking-page path host/slug.
func (r *EventTypeRepository) EventTypeBySlug(ctx context.Context, hostID, slug string) (model.EventType, error) {
	et, err := scanEventType(r.pool.QueryRow(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE host_id = $1 AND slug = $2
	`, hostID, slug))
	if IsNotFound(err) {
		return model.EventType{}, &model.NotFoundError{Entity: "event type", ID: slug}
	}
	return et, err
}

func (r *EventTypeRepository) ListByHost(ctx context.Context, hostID string) ([]model.EventType, error) {
	return r.list(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE host_id = $1
		ORDER BY created_at ASC
	`, hostID)
}

func (r *EventTypeRepository) ListByTeam(ctx context.Context, teamID string) ([]model.EventType, error) {
	return r.list(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE team_id = $1::uuid
		ORDER BY created_at ASC
	`, teamID)
}

func (r *EventTypeRepository) list(ctx context.Context, sql string, args ...any) ([]model.EventType, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EventType
	for rows.Next() {
		et, err := scanEventType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

// Create rejects a duplicate slug per host with *model.ValidationError.
func (r *EventTypeRepository) Create(ctx context.Context, et *model.EventType) error {
	offsets, qs, err := encodeEventTypeDocs(et)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO event_types
			(id, host_id, team_id, title, slug,
			duration_minutes, buffer_before_minutes, buffer_after_minutes,
			minimum_notice_minutes, booking_window_days,
			scheduling_type, location, requires_confirmation,
			reminder_offsets_minutes, questions, created_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5,
			$6, $7, $8,
			$9, $10,
			$11, $12, $13,
			$14, $15, $16)
	`, et.ID, et.HostID, et.TeamID, et.Title, et.Slug,
		et.DurationMinutes, et.BufferBeforeMinutes, et.BufferAfterMinutes,
		et.MinimumNoticeMinutes, et.BookingWindowDays,
		string(et.SchedulingType), string(et.Location), et.RequiresConfirmation,
		offsets, qs, et.CreatedAt)
	if IsUniqueViolation(err) {
		return model.Invalid("slug", "already in use")
	}
	return err
}

func (r *EventTypeRepository) Update(ctx context.Context, et *model.EventType) error {
	offsets, qs, err := encodeEventTypeDocs(et)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE event_types
		SET title = $2,
			slug = $3,
			duration_minutes = $4,
			buffer_before_minutes = $5,
			buffer_after_minutes = $6,
			minimum_notice_minutes = $7,
			booking_window_days = $8,
			location = $9,
			requires_confirmation = $10,
			reminder_offsets_minutes = $11,
			questions = $12,
			updated_at = now()
		WHERE id = $1
	`, et.ID, et.Title, et.Slug,
		et.DurationMinutes, et.BufferBeforeMinutes, et.BufferAfterMinutes,
		et.MinimumNoticeMinutes, et.BookingWindowDays,
		string(et.Location), et.RequiresConfirmation,
		offsets, qs)
	if IsUniqueViolation(err) {
		return model.Invalid("slug", "already in use")
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Entity: "event type", ID: et.ID}
	}
	return nil
}

func (r *EventTypeRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM event_types WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Entity: "event type", ID: id}
	}
	return nil
}

func encodeEventTypeDocs(et *model.EventType) ([]byte, []byte, error) {
	offsets, err := json.Marshal(et.ReminderOffsetsMinutes)
	if err != nil {
		return nil, nil, fmt.Errorf("encode reminder offsets: %w", err)
	}
	if et.Questions == nil {
		et.Questions = []questions.Question{}
	}
	qs, err := json.Marshal(et.Questions)
	if err != nil {
		return nil, nil, fmt.Errorf("encode questions: %w", err)
	}
	return offsets, qs, nil
}
