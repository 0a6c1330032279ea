package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/outbox"
)

// TxStore is the slice of storage the ledger uses inside one transaction.
// The postgres implementation binds these to a pgx.Tx; test fakes hold a
// mutex instead.
type TxStore interface {
	// BusyIntervals returns the host's non-cancelled bookings whose
	// buffer-expanded interval overlaps [from, to). excludeBookingID is
	// skipped when non-empty (rescheduling a booking must not conflict with
	// itself).
	BusyIntervals(ctx context.Context, hostID string, from, to time.Time, excludeBookingID string) ([]availability.BusyInterval, error)
	// InsertBooking persists the booking. A storage-level overlap (the
	// exclusion constraint closing the create race) surfaces as
	// *model.SlotUnavailableError.
	InsertBooking(ctx context.Context, b *model.Booking) error
	// BookingForUpdate row-locks and returns the booking, or
	// *model.NotFoundError.
	BookingForUpdate(ctx context.Context, bookingID string) (model.Booking, error)
	UpdateBookingTimes(ctx context.Context, bookingID string, start, end time.Time) error
	SetBookingStatus(ctx context.Context, bookingID string, status model.BookingStatus) error
	// CancelBooking sets status=CANCELLED with the reason and returns the
	// cancellation instant.
	CancelBooking(ctx context.Context, bookingID, reason string) (time.Time, error)
	// SetMeetingURL stores the provisioned meeting link on a video booking.
	SetMeetingURL(ctx context.Context, bookingID, url string) error
	// LockIdempotencyKey claims a create key scoped to the primary host.
	// Concurrent requests carrying the same key serialize on the claim; a
	// key already bound to a completed create returns that booking's ID
	// with replay true.
	LockIdempotencyKey(ctx context.Context, hostID, key string) (existingBookingID string, replay bool, err error)
	// FinalizeIdempotency binds the claimed key to the created booking, in
	// the same transaction, so the claim and the create commit or roll back
	// together.
	FinalizeIdempotency(ctx context.Context, hostID, key, bookingID string) error
	// InsertEvent writes an outbox row in the same transaction.
	InsertEvent(ctx context.Context, evt outbox.Event) error
}

// Store opens ledger transactions and serves point reads.
type Store interface {
	// InTx runs fn in one transaction holding a per-host advisory lock for
	// every listed host, acquired in sorted order. Concurrent creates for
	// the same host serialize here; fn's error rolls everything back.
	InTx(ctx context.Context, hostIDs []string, fn func(tx TxStore) error) error
	// Booking returns the booking or *model.NotFoundError.
	Booking(ctx context.Context, id string) (model.Booking, error)
	// GroupBookings returns every booking sharing a collective group ID,
	// primary first.
	GroupBookings(ctx context.Context, groupID string) ([]model.Booking, error)
	ListByHost(ctx context.Context, hostID string, from, to time.Time, limit int) ([]model.Booking, error)
}

// EventTypeSource loads event types; unknown IDs yield *model.NotFoundError.
type EventTypeSource interface {
	EventType(ctx context.Context, id string) (model.EventType, error)
}

// UserSource loads hosts; unknown IDs yield *model.NotFoundError.
type UserSource interface {
	User(ctx context.Context, id string) (model.User, error)
}

// HoldChecker reports who currently holds a slot through checkout, empty
// when unheld. Satisfied by hold.Store.
type HoldChecker interface {
	HeldBy(ctx context.Context, hostID string, start, end time.Time) (string, error)
}
