package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/timeslot/libs/db"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/questions"
)

// BookingStore is the postgres implementation of booking.Store. Conflict
// serialization is a per-host advisory lock inside InTx; the exclusion
// constraint on bookings backstops it at the storage level.
type BookingStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingStore(pool *db.Pool, outboxRepo *outbox.Repository) *BookingStore {
	return &BookingStore{pool: pool, outbox: outboxRepo}
}

const bookingColumns = `id::text, host_id::text, event_type_id::text, COALESCE(group_id::text, ''), group_primary,
	guest_name, guest_email, COALESCE(guest_phone, ''), guest_timezone,
	start_time, end_time, status,
	duration_minutes, buffer_before_minutes, buffer_after_minutes,
	location, COALESCE(meeting_url, ''), answers,
	reschedule_token, cancel_token, COALESCE(cancellation_reason, ''), cancelled_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (model.Booking, error) {
	var b model.Booking
	var answers []byte
	err := row.Scan(
		&b.ID,
		&b.HostID,
		&b.EventTypeID,
		&b.GroupID,
		&b.GroupPrimary,
		&b.GuestName,
		&b.GuestEmail,
		&b.GuestPhone,
		&b.GuestTimezone,
		&b.StartTime,
		&b.EndTime,
		&b.Status,
		&b.DurationMinutes,
		&b.BufferBeforeMinutes,
		&b.BufferAfterMinutes,
		&b.Location,
		&b.MeetingURL,
		&answers,
		&b.RescheduleToken,
		&b.CancelToken,
		&b.CancelReason,
		&b.CancelledAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &b.Answers); err != nil {
			return model.Booking{}, fmt.Errorf("decode answers for booking %s: %w", b.ID, err)
		}
	}
	return b, nil
}

// InTx opens one transaction, takes a per-host advisory lock for every
// listed host in sorted order (sorted so two multi-host transactions can
// never deadlock on each other), runs fn, and commits. fn's error rolls
// everything back.
func (s *BookingStore) InTx(ctx context.Context, hostIDs []string, fn func(tx booking.TxStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sorted := append([]string(nil), hostIDs...)
	sort.Strings(sorted)
	for _, hostID := range sorted {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, hostID); err != nil {
			return fmt.Errorf("acquire host lock: %w", err)
		}
	}

	if err := fn(&bookingTx{tx: tx, outbox: s.outbox}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *BookingStore) Booking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id))
	if IsNotFound(err) {
		return model.Booking{}, &model.NotFoundError{Entity: "booking", ID: id}
	}
	return b, err
}

func (s *BookingStore) GroupBookings(ctx context.Context, groupID string) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE group_id = $1::uuid
		ORDER BY group_primary DESC, id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (s *BookingStore) ListByHost(ctx context.Context, hostID string, from, to time.Time, limit int) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE host_id = $1
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
		LIMIT $4
	`, hostID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

// CountByHost serves round-robin load balancing: non-cancelled bookings
// whose start time falls in [from, to).
func (s *BookingStore) CountByHost(ctx context.Context, hostID string, from, to time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings
		WHERE host_id = $1
			AND status != 'CANCELLED'
			AND start_time >= $2
			AND start_time < $3
	`, hostID, from, to).Scan(&n)
	return n, err
}

// BusyIntervals is the pool-backed read used by slot generation outside a
// booking transaction. Same contract as the transactional variant: every
// non-cancelled booking whose buffer-expanded span overlaps [from, to).
func (s *BookingStore) BusyIntervals(ctx context.Context, hostID string, from, to time.Time) ([]availability.BusyInterval, error) {
	return queryBusyIntervals(ctx, s.pool, hostID, from, to, "")
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryBusyIntervals(ctx context.Context, q querier, hostID string, from, to time.Time, excludeBookingID string) ([]availability.BusyInterval, error) {
	rows, err := q.Query(ctx, `
		SELECT start_time, end_time, buffer_before_minutes, buffer_after_minutes
		FROM bookings
		WHERE host_id = $1
			AND status != 'CANCELLED'
			AND id::text <> $4
			AND start_time - make_interval(mins => buffer_before_minutes) < $3
			AND end_time + make_interval(mins => buffer_after_minutes) > $2
		ORDER BY start_time ASC
	`, hostID, from, to, excludeBookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.BusyInterval
	for rows.Next() {
		var iv availability.BusyInterval
		var before, after int
		if err := rows.Scan(&iv.Start, &iv.End, &before, &after); err != nil {
			return nil, err
		}
		iv.BufferBefore = time.Duration(before) * time.Minute
		iv.BufferAfter = time.Duration(after) * time.Minute
		out = append(out, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// bookingTx binds booking.TxStore to one open transaction.
type bookingTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *bookingTx) BusyIntervals(ctx context.Context, hostID string, from, to time.Time, excludeBookingID string) ([]availability.BusyInterval, error) {
	return queryBusyIntervals(ctx, t.tx, hostID, from, to, excludeBookingID)
}

func (t *bookingTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	answers, err := marshalAnswers(b.Answers)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO bookings
			(id, host_id, event_type_id, group_id, group_primary,
			guest_name, guest_email, guest_phone, guest_timezone,
			start_time, end_time, status,
			duration_minutes, buffer_before_minutes, buffer_after_minutes,
			location, answers, reschedule_token, cancel_token, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5,
			$6, $7, NULLIF($8, ''), $9,
			$10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19, $20, $21)
	`, b.ID, b.HostID, b.EventTypeID, b.GroupID, b.GroupPrimary,
		b.GuestName, b.GuestEmail, b.GuestPhone, b.GuestTimezone,
		b.StartTime, b.EndTime, string(b.Status),
		b.DurationMinutes, b.BufferBeforeMinutes, b.BufferAfterMinutes,
		string(b.Location), answers, b.RescheduleToken, b.CancelToken, b.CreatedAt, b.UpdatedAt)
	if IsConflict(err) {
		return &model.SlotUnavailableError{Start: b.StartTime, End: b.EndTime}
	}
	return err
}

func (t *bookingTx) BookingForUpdate(ctx context.Context, bookingID string) (model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, bookingID))
	if IsNotFound(err) {
		return model.Booking{}, &model.NotFoundError{Entity: "booking", ID: bookingID}
	}
	return b, err
}

func (t *bookingTx) UpdateBookingTimes(ctx context.Context, bookingID string, start, end time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET start_time = $2,
			end_time = $3,
			updated_at = now()
		WHERE id = $1
	`, bookingID, start, end)
	if IsConflict(err) {
		return &model.SlotUnavailableError{Start: start, End: end}
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Entity: "booking", ID: bookingID}
	}
	return nil
}

func (t *bookingTx) SetBookingStatus(ctx context.Context, bookingID string, status model.BookingStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2,
			updated_at = now()
		WHERE id = $1
	`, bookingID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Entity: "booking", ID: bookingID}
	}
	return nil
}

func (t *bookingTx) CancelBooking(ctx context.Context, bookingID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'CANCELLED',
			cancelled_at = now(),
			cancellation_reason = NULLIF($2, ''),
			updated_at = now()
		WHERE id = $1
		RETURNING cancelled_at
	`, bookingID, reason).Scan(&cancelledAt)
	if IsNotFound(err) {
		return time.Time{}, &model.NotFoundError{Entity: "booking", ID: bookingID}
	}
	return cancelledAt, err
}

// SetMeetingURL is used by the meeting consumer after provisioning.
func (t *bookingTx) SetMeetingURL(ctx context.Context, bookingID, url string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET meeting_url = $2,
			updated_at = now()
		WHERE id = $1
	`, bookingID, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Entity: "booking", ID: bookingID}
	}
	return nil
}

// LockIdempotencyKey implements the claim dance: select the key row with a
// row lock, insert it if absent, then select again. A concurrent claimer
// blocks on the row lock until the first transaction commits, after which it
// observes the bound booking ID and replays.
func (t *bookingTx) LockIdempotencyKey(ctx context.Context, hostID, key string) (string, bool, error) {
	bookingID, err := t.selectIdempotencyForUpdate(ctx, hostID, key)
	if err == nil {
		return bookingID, bookingID != "", nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, err
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (host_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (host_id, idempotency_key) DO NOTHING
	`, hostID, key)
	if err != nil {
		return "", false, err
	}

	bookingID, err = t.selectIdempotencyForUpdate(ctx, hostID, key)
	if err != nil {
		return "", false, err
	}
	return bookingID, bookingID != "", nil
}

func (t *bookingTx) selectIdempotencyForUpdate(ctx context.Context, hostID, key string) (string, error) {
	var bookingID string
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(booking_id::text, '')
		FROM booking_idempotency_keys
		WHERE host_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, hostID, key).Scan(&bookingID)
	return bookingID, err
}

func (t *bookingTx) FinalizeIdempotency(ctx context.Context, hostID, key, bookingID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3,
			updated_at = now()
		WHERE host_id = $1 AND idempotency_key = $2
	`, hostID, key, bookingID)
	return err
}

func (t *bookingTx) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func marshalAnswers(answers map[string]questions.Answer) ([]byte, error) {
	if len(answers) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	return raw, nil
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
