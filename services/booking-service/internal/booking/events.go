package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/outbox"
)

func (l *Ledger) emitCreated(ctx context.Context, tx TxStore, b *model.Booking) error {
	payload, err := json.Marshal(map[string]any{
		"booking_id":     b.ID,
		"host_id":        b.HostID,
		"event_type_id":  b.EventTypeID,
		"group_id":       b.GroupID,
		"group_primary":  b.GroupPrimary,
		"status":         string(b.Status),
		"location":       string(b.Location),
		"guest_name":     b.GuestName,
		"guest_email":    b.GuestEmail,
		"guest_timezone": b.GuestTimezone,
		"start_time":     b.StartTime.UTC().Format(time.RFC3339),
		"end_time":       b.EndTime.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("build created payload: %w", err)
	}
	return tx.InsertEvent(ctx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     "booking.created.v1",
		Payload:       payload,
	})
}

func (l *Ledger) emitConfirmed(ctx context.Context, tx TxStore, b *model.Booking) error {
	payload, err := json.Marshal(map[string]any{
		"booking_id":  b.ID,
		"host_id":     b.HostID,
		"group_id":    b.GroupID,
		"guest_email": b.GuestEmail,
		"start_time":  b.StartTime.UTC().Format(time.RFC3339),
		"end_time":    b.EndTime.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("build confirmed payload: %w", err)
	}
	return tx.InsertEvent(ctx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     "booking.confirmed.v1",
		Payload:       payload,
	})
}

func (l *Ledger) emitRescheduled(ctx context.Context, tx TxStore, b *model.Booking, oldStart time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"booking_id":     b.ID,
		"host_id":        b.HostID,
		"group_id":       b.GroupID,
		"guest_email":    b.GuestEmail,
		"old_start_time": oldStart.UTC().Format(time.RFC3339),
		"start_time":     b.StartTime.UTC().Format(time.RFC3339),
		"end_time":       b.EndTime.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("build rescheduled payload: %w", err)
	}
	return tx.InsertEvent(ctx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     "booking.rescheduled.v1",
		Payload:       payload,
	})
}

func (l *Ledger) emitCancelled(ctx context.Context, tx TxStore, b *model.Booking, reason string, cancelledAt time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"booking_id":   b.ID,
		"host_id":      b.HostID,
		"group_id":     b.GroupID,
		"guest_email":  b.GuestEmail,
		"start_time":   b.StartTime.UTC().Format(time.RFC3339),
		"end_time":     b.EndTime.UTC().Format(time.RFC3339),
		"cancelled_at": cancelledAt.UTC().Format(time.RFC3339),
		"reason":       reason,
	})
	if err != nil {
		return fmt.Errorf("build cancelled payload: %w", err)
	}
	return tx.InsertEvent(ctx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     "booking.cancelled.v1",
		Payload:       payload,
	})
}

// cancelReminders asks the scheduler to drop every pending reminder for the
// booking. Idempotent on the consumer side.
func (l *Ledger) cancelReminders(ctx context.Context, tx TxStore, bookingID string) error {
	payload, err := json.Marshal(map[string]any{"booking_id": bookingID})
	if err != nil {
		return fmt.Errorf("build reminder cancel payload: %w", err)
	}
	return tx.InsertEvent(ctx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   bookingID,
		EventType:     "booking.reminder.cancelled.v1",
		Payload:       payload,
	})
}

// enqueueReminders writes one reminder request per configured offset and
// channel. Best effort: a marshalling or insert failure is logged and never
// fails the booking transaction.
func (l *Ledger) enqueueReminders(ctx context.Context, tx TxStore, b *model.Booking, et model.EventType) {
	var offsets []time.Duration
	for _, m := range et.ReminderOffsetsMinutes {
		if m > 0 {
			offsets = append(offsets, time.Duration(m)*time.Minute)
		}
	}
	if len(offsets) == 0 {
		offsets = l.defaultOffsets
	}

	now := l.now().UTC()
	for _, offset := range offsets {
		remindAt := b.StartTime.Add(-offset)
		if remindAt.Before(now) {
			continue
		}
		l.enqueueReminder(ctx, tx, b, et, remindAt, "email", b.GuestEmail)
		l.enqueueReminder(ctx, tx, b, et, remindAt, "sms", b.GuestPhone)
	}
}

func (l *Ledger) enqueueReminder(ctx context.Context, tx TxStore, b *model.Booking, et model.EventType, remindAt time.Time, channel, recipient string) {
	if recipient == "" {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"booking_id": b.ID,
		"host_id":    b.HostID,
		"channel":    channel,
		"recipient":  recipient,
		"remind_at":  remindAt.UTC().Format(time.RFC3339),
		"template_data": map[string]any{
			"guest_name":     b.GuestName,
			"event_title":    et.Title,
			"start_time":     b.StartTime.UTC().Format(time.RFC3339),
			"guest_timezone": b.GuestTimezone,
		},
	})
	if err != nil {
		l.logger.Error("failed to build reminder payload", "err", err)
		return
	}
	if err := tx.InsertEvent(ctx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     "booking.reminder.requested.v1",
		Payload:       payload,
	}); err != nil {
		l.logger.Error("failed to enqueue reminder", "err", err)
	}
}
