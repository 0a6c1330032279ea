package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

// Get returns one booking by ID.
func (l *Ledger) Get(ctx context.Context, bookingID string) (model.Booking, error) {
	return l.store.Booking(ctx, bookingID)
}

// GetForGuest returns the booking when the presented token matches either
// capability token. Unknown IDs and wrong tokens are indistinguishable to
// the caller.
func (l *Ledger) GetForGuest(ctx context.Context, bookingID, token string) (model.Booking, error) {
	b, err := l.store.Booking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if !TokenMatches(b.RescheduleToken, token) && !TokenMatches(b.CancelToken, token) {
		return model.Booking{}, &model.NotFoundError{Entity: "booking", ID: bookingID}
	}
	return b, nil
}

func (l *Ledger) ListByHost(ctx context.Context, hostID string, from, to time.Time, limit int) ([]model.Booking, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return l.store.ListByHost(ctx, hostID, from, to, limit)
}

// Reschedule moves a booking, and its whole collective group when grouped,
// to a new interval. Host-side entry point; guests go through
// RescheduleWithToken.
func (l *Ledger) Reschedule(ctx context.Context, bookingID string, newStart, newEnd time.Time) (model.Booking, error) {
	return l.reschedule(ctx, bookingID, "", newStart, newEnd)
}

func (l *Ledger) RescheduleWithToken(ctx context.Context, bookingID, token string, newStart, newEnd time.Time) (model.Booking, error) {
	if token == "" {
		return model.Booking{}, &model.NotFoundError{Entity: "booking", ID: bookingID}
	}
	return l.reschedule(ctx, bookingID, token, newStart, newEnd)
}

func (l *Ledger) reschedule(ctx context.Context, bookingID, token string, newStart, newEnd time.Time) (model.Booking, error) {
	current, err := l.store.Booking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if token != "" && !TokenMatches(current.RescheduleToken, token) {
		return model.Booking{}, &model.NotFoundError{Entity: "booking", ID: bookingID}
	}
	if current.Status == model.BookingCancelled {
		return model.Booking{}, &model.AlreadyCancelledError{BookingID: bookingID}
	}
	if current.Status != model.BookingPending && current.Status != model.BookingConfirmed {
		return model.Booking{}, model.Invalid("status", "booking can no longer be rescheduled")
	}

	// Duration comes from the booking's own snapshot, so later event type
	// edits never change what an existing booking may move to.
	start, end := newStart.UTC(), newEnd.UTC()
	if err := validateInterval(current.DurationMinutes, start, end); err != nil {
		return model.Booking{}, err
	}

	et, err := l.eventTypes.EventType(ctx, current.EventTypeID)
	if err != nil {
		return model.Booking{}, err
	}
	group, err := l.group(ctx, current)
	if err != nil {
		return model.Booking{}, err
	}

	now := l.now().UTC()
	for _, member := range group {
		if member.Status == model.BookingCancelled {
			continue
		}
		if err := l.checkOffered(ctx, et, member.HostID, start, end, now); err != nil {
			return model.Booking{}, err
		}
	}

	var out model.Booking
	err = l.store.InTx(ctx, hostsOf(group), func(tx TxStore) error {
		for _, member := range group {
			b, err := tx.BookingForUpdate(ctx, member.ID)
			if err != nil {
				return err
			}
			if b.Status == model.BookingCancelled {
				if b.ID == current.ID {
					return &model.AlreadyCancelledError{BookingID: b.ID}
				}
				continue
			}
			// A member's own old interval must not count against its new one.
			busy, err := tx.BusyIntervals(ctx, b.HostID, start, end, b.ID)
			if err != nil {
				return fmt.Errorf("load busy intervals: %w", err)
			}
			switch availability.Check(start, end, busy) {
			case availability.ConflictDirect:
				return &model.SlotUnavailableError{Start: start, End: end}
			case availability.ConflictBuffer:
				return &model.BufferConflictError{Start: start, End: end}
			}
			oldStart := b.StartTime
			if err := tx.UpdateBookingTimes(ctx, b.ID, start, end); err != nil {
				return err
			}
			b.StartTime, b.EndTime, b.UpdatedAt = start, end, now
			if err := l.emitRescheduled(ctx, tx, &b, oldStart); err != nil {
				return err
			}
			if b.GroupPrimary {
				// Pending reminders for the old time are discarded; new ones
				// derive from the new start.
				if err := l.cancelReminders(ctx, tx, b.ID); err != nil {
					return err
				}
				if b.Status == model.BookingConfirmed {
					l.enqueueReminders(ctx, tx, &b, et)
				}
			}
			if b.ID == current.ID {
				out = b
			}
		}
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

// Cancel cancels a booking and, for collective groups, every member
// booking. A second cancel reports AlreadyCancelledError and dispatches no
// side effects.
func (l *Ledger) Cancel(ctx context.Context, bookingID, reason string) (model.Booking, error) {
	return l.cancel(ctx, bookingID, "", reason)
}

func (l *Ledger) CancelWithToken(ctx context.Context, bookingID, token, reason string) (model.Booking, error) {
	if token == "" {
		return model.Booking{}, &model.NotFoundError{Entity: "booking", ID: bookingID}
	}
	return l.cancel(ctx, bookingID, token, reason)
}

func (l *Ledger) cancel(ctx context.Context, bookingID, token, reason string) (model.Booking, error) {
	current, err := l.store.Booking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if token != "" && !TokenMatches(current.CancelToken, token) {
		return model.Booking{}, &model.NotFoundError{Entity: "booking", ID: bookingID}
	}
	if current.Status == model.BookingCancelled {
		return model.Booking{}, &model.AlreadyCancelledError{BookingID: bookingID}
	}
	if !model.CanTransition(current.Status, model.BookingCancelled) {
		return model.Booking{}, model.Invalid("status", "booking can no longer be cancelled")
	}

	group, err := l.group(ctx, current)
	if err != nil {
		return model.Booking{}, err
	}

	var out model.Booking
	err = l.store.InTx(ctx, hostsOf(group), func(tx TxStore) error {
		for _, member := range group {
			b, err := tx.BookingForUpdate(ctx, member.ID)
			if err != nil {
				return err
			}
			if b.Status == model.BookingCancelled {
				if b.ID == current.ID {
					return &model.AlreadyCancelledError{BookingID: b.ID}
				}
				continue
			}
			if !model.CanTransition(b.Status, model.BookingCancelled) {
				if b.ID == current.ID {
					return model.Invalid("status", "booking can no longer be cancelled")
				}
				continue
			}
			cancelledAt, err := tx.CancelBooking(ctx, b.ID, reason)
			if err != nil {
				return err
			}
			b.Status = model.BookingCancelled
			b.CancelledAt = &cancelledAt
			b.CancelReason = reason
			b.UpdatedAt = cancelledAt
			if err := l.emitCancelled(ctx, tx, &b, reason, cancelledAt); err != nil {
				return err
			}
			if b.GroupPrimary {
				if err := l.cancelReminders(ctx, tx, b.ID); err != nil {
					return err
				}
			}
			if b.ID == current.ID {
				out = b
			}
		}
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

// Confirm moves a pending booking and its group to CONFIRMED and schedules
// reminders. Host action for event types that require confirmation.
func (l *Ledger) Confirm(ctx context.Context, bookingID string) (model.Booking, error) {
	current, err := l.store.Booking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if current.Status == model.BookingCancelled {
		return model.Booking{}, &model.AlreadyCancelledError{BookingID: bookingID}
	}
	if current.Status != model.BookingPending {
		return model.Booking{}, model.Invalid("status", "only pending bookings can be confirmed")
	}
	et, err := l.eventTypes.EventType(ctx, current.EventTypeID)
	if err != nil {
		return model.Booking{}, err
	}
	group, err := l.group(ctx, current)
	if err != nil {
		return model.Booking{}, err
	}

	var out model.Booking
	err = l.store.InTx(ctx, hostsOf(group), func(tx TxStore) error {
		for _, member := range group {
			b, err := tx.BookingForUpdate(ctx, member.ID)
			if err != nil {
				return err
			}
			if b.Status != model.BookingPending {
				if b.ID == current.ID {
					if b.Status == model.BookingCancelled {
						return &model.AlreadyCancelledError{BookingID: b.ID}
					}
					return model.Invalid("status", "only pending bookings can be confirmed")
				}
				continue
			}
			if err := tx.SetBookingStatus(ctx, b.ID, model.BookingConfirmed); err != nil {
				return err
			}
			b.Status = model.BookingConfirmed
			if err := l.emitConfirmed(ctx, tx, &b); err != nil {
				return err
			}
			if b.GroupPrimary {
				l.enqueueReminders(ctx, tx, &b, et)
			}
			if b.ID == current.ID {
				out = b
			}
		}
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

// Complete marks a confirmed booking as held.
func (l *Ledger) Complete(ctx context.Context, bookingID string) (model.Booking, error) {
	return l.finish(ctx, bookingID, model.BookingCompleted)
}

// MarkNoShow records that the guest did not attend.
func (l *Ledger) MarkNoShow(ctx context.Context, bookingID string) (model.Booking, error) {
	return l.finish(ctx, bookingID, model.BookingNoShow)
}

func (l *Ledger) finish(ctx context.Context, bookingID string, target model.BookingStatus) (model.Booking, error) {
	current, err := l.store.Booking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	group, err := l.group(ctx, current)
	if err != nil {
		return model.Booking{}, err
	}

	var out model.Booking
	err = l.store.InTx(ctx, hostsOf(group), func(tx TxStore) error {
		for _, member := range group {
			b, err := tx.BookingForUpdate(ctx, member.ID)
			if err != nil {
				return err
			}
			if !model.CanTransition(b.Status, target) {
				if b.ID == current.ID {
					if b.Status == model.BookingCancelled {
						return &model.AlreadyCancelledError{BookingID: b.ID}
					}
					return model.Invalid("status", fmt.Sprintf("cannot move a %s booking to %s", b.Status, target))
				}
				continue
			}
			if err := tx.SetBookingStatus(ctx, b.ID, target); err != nil {
				return err
			}
			b.Status = target
			if b.ID == current.ID {
				out = b
			}
		}
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

// group returns the booking's collective group with the presented booking
// first, or just the booking itself when ungrouped.
func (l *Ledger) group(ctx context.Context, b model.Booking) ([]model.Booking, error) {
	if b.GroupID == "" {
		return []model.Booking{b}, nil
	}
	members, err := l.store.GroupBookings(ctx, b.GroupID)
	if err != nil {
		return nil, err
	}
	out := []model.Booking{b}
	for _, m := range members {
		if m.ID != b.ID {
			out = append(out, m)
		}
	}
	return out, nil
}

func hostsOf(group []model.Booking) []string {
	out := make([]string, 0, len(group))
	seen := make(map[string]bool, len(group))
	for _, b := range group {
		if !seen[b.HostID] {
			seen[b.HostID] = true
			out = append(out, b.HostID)
		}
	}
	return out
}
