// Package booking implements the booking ledger: the single writer of
// booking state and the authoritative conflict check at creation and
// reschedule time. Side effects (meeting links, reminders, notifications)
// leave through the transactional outbox and never influence whether a
// booking succeeds.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/questions"
)

type Ledger struct {
	store      Store
	eventTypes EventTypeSource
	users      UserSource
	schedules  availability.ScheduleSource
	external   availability.ExternalBusySource
	holds      HoldChecker
	logger     *slog.Logger
	now        func() time.Time
	// Fallback reminder offsets for event types that configure none.
	defaultOffsets []time.Duration
}

// Deps collects the ledger's injected dependencies. External and Holds may
// be nil (no connected calendars, no hold store); Now defaults to time.Now.
type Deps struct {
	Store                  Store
	EventTypes             EventTypeSource
	Users                  UserSource
	Schedules              availability.ScheduleSource
	External               availability.ExternalBusySource
	Holds                  HoldChecker
	Logger                 *slog.Logger
	Now                    func() time.Time
	DefaultReminderOffsets []time.Duration
}

func NewLedger(d Deps) *Ledger {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Ledger{
		store:          d.Store,
		eventTypes:     d.EventTypes,
		users:          d.Users,
		schedules:      d.Schedules,
		external:       d.External,
		holds:          d.Holds,
		logger:         d.Logger,
		now:            d.Now,
		defaultOffsets: d.DefaultReminderOffsets,
	}
}

type CreateRequest struct {
	EventTypeID   string
	GuestName     string
	GuestEmail    string
	GuestPhone    string
	GuestTimezone string
	Start         time.Time
	End           time.Time
	Answers       map[string]questions.RawAnswer
	// HoldRef identifies the checkout hold the guest took on this slot, if
	// any, so their own hold does not block them.
	HoldRef string
	// IdempotencyKey makes the create safe to retry: a second request with
	// the same key returns the booking the first one made instead of
	// double-booking the slot.
	IdempotencyKey string
}

// Create books an individual event type with its owning host. Team event
// types go through CreateForHosts after the coordinator picks members.
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (model.Booking, error) {
	et, err := l.eventTypes.EventType(ctx, req.EventTypeID)
	if err != nil {
		return model.Booking{}, err
	}
	if et.SchedulingType != model.SchedulingIndividual {
		return model.Booking{}, model.Invalid("eventTypeId", "team event types are booked through the team endpoint")
	}
	bookings, err := l.createForHosts(ctx, et, []string{et.HostID}, req)
	if err != nil {
		return model.Booking{}, err
	}
	return bookings[0], nil
}

// CreateForHosts books every listed host for the same guest interval in one
// transaction; all succeed or none do. More than one host forms a collective
// group: the first host's booking is the primary, carrying the guest's
// tokens and reminders, and the returned slice keeps that order.
func (l *Ledger) CreateForHosts(ctx context.Context, eventTypeID string, hostIDs []string, req CreateRequest) ([]model.Booking, error) {
	if len(hostIDs) == 0 {
		return nil, model.Invalid("hosts", "at least one host is required")
	}
	et, err := l.eventTypes.EventType(ctx, eventTypeID)
	if err != nil {
		return nil, err
	}
	return l.createForHosts(ctx, et, hostIDs, req)
}

func (l *Ledger) createForHosts(ctx context.Context, et model.EventType, hostIDs []string, req CreateRequest) ([]model.Booking, error) {
	answers, err := validateGuest(et, &req)
	if err != nil {
		return nil, err
	}
	start, end := req.Start.UTC(), req.End.UTC()
	if err := validateInterval(et.DurationMinutes, start, end); err != nil {
		return nil, err
	}

	now := l.now().UTC()
	for _, hostID := range hostIDs {
		if err := l.checkOffered(ctx, et, hostID, start, end, now); err != nil {
			return nil, err
		}
		if err := l.checkHold(ctx, hostID, start, end, req.HoldRef); err != nil {
			return nil, err
		}
	}

	groupID := ""
	if len(hostIDs) > 1 {
		groupID = uuid.NewString()
	}
	status := model.BookingConfirmed
	if et.RequiresConfirmation {
		status = model.BookingPending
	}

	bookings := make([]*model.Booking, 0, len(hostIDs))
	for i, hostID := range hostIDs {
		rescheduleToken, err := NewToken()
		if err != nil {
			return nil, fmt.Errorf("mint reschedule token: %w", err)
		}
		cancelToken, err := NewToken()
		if err != nil {
			return nil, fmt.Errorf("mint cancel token: %w", err)
		}
		bookings = append(bookings, &model.Booking{
			ID:                  uuid.NewString(),
			HostID:              hostID,
			EventTypeID:         et.ID,
			GroupID:             groupID,
			GroupPrimary:        i == 0,
			GuestName:           req.GuestName,
			GuestEmail:          req.GuestEmail,
			GuestPhone:          req.GuestPhone,
			GuestTimezone:       req.GuestTimezone,
			StartTime:           start,
			EndTime:             end,
			Status:              status,
			DurationMinutes:     et.DurationMinutes,
			BufferBeforeMinutes: et.BufferBeforeMinutes,
			BufferAfterMinutes:  et.BufferAfterMinutes,
			Location:            et.Location,
			Answers:             answers,
			RescheduleToken:     rescheduleToken,
			CancelToken:         cancelToken,
			CreatedAt:           now,
			UpdatedAt:           now,
		})
	}

	// The transaction holds every host's advisory lock, so the validate and
	// insert below cannot interleave with a competing create for any of
	// these hosts. The bookings table's exclusion constraint backstops this.
	var replayID string
	err = l.store.InTx(ctx, hostIDs, func(tx TxStore) error {
		if req.IdempotencyKey != "" {
			existingID, replay, err := tx.LockIdempotencyKey(ctx, hostIDs[0], req.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("claim idempotency key: %w", err)
			}
			if replay {
				replayID = existingID
				return nil
			}
		}
		for _, b := range bookings {
			busy, err := tx.BusyIntervals(ctx, b.HostID, start, end, "")
			if err != nil {
				return fmt.Errorf("load busy intervals: %w", err)
			}
			switch availability.Check(start, end, busy) {
			case availability.ConflictDirect:
				return &model.SlotUnavailableError{Start: start, End: end}
			case availability.ConflictBuffer:
				return &model.BufferConflictError{Start: start, End: end}
			}
			if err := tx.InsertBooking(ctx, b); err != nil {
				return err
			}
			if err := l.emitCreated(ctx, tx, b); err != nil {
				return err
			}
			if b.GroupPrimary && b.Status == model.BookingConfirmed {
				l.enqueueReminders(ctx, tx, b, et)
			}
		}
		if req.IdempotencyKey != "" {
			if err := tx.FinalizeIdempotency(ctx, hostIDs[0], req.IdempotencyKey, bookings[0].ID); err != nil {
				return fmt.Errorf("finalize idempotency key: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replayID != "" {
		return l.replayedBookings(ctx, replayID)
	}

	out := make([]model.Booking, len(bookings))
	for i, b := range bookings {
		out[i] = *b
	}
	return out, nil
}

// replayedBookings reloads the result of the create a retried idempotency
// key originally performed, primary booking first.
func (l *Ledger) replayedBookings(ctx context.Context, bookingID string) ([]model.Booking, error) {
	prior, err := l.store.Booking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load replayed booking: %w", err)
	}
	if prior.GroupID == "" {
		return []model.Booking{prior}, nil
	}
	return l.store.GroupBookings(ctx, prior.GroupID)
}

// checkOffered verifies the interval is something the host's calendar
// currently offers: enough notice, inside the booking window, inside a
// schedule window on its date, and clear of external calendar busy time.
// External calendars are advisory: a reported overlap blocks, an unreachable
// calendar does not.
func (l *Ledger) checkOffered(ctx context.Context, et model.EventType, hostID string, start, end, now time.Time) error {
	if start.Before(now.Add(time.Duration(et.MinimumNoticeMinutes) * time.Minute)) {
		return &model.SlotUnavailableError{Start: start, End: end}
	}
	if et.BookingWindowDays > 0 && start.After(now.AddDate(0, 0, et.BookingWindowDays)) {
		return &model.SlotUnavailableError{Start: start, End: end}
	}

	loc, err := l.hostLocation(ctx, hostID)
	if err != nil {
		return err
	}
	date := start.In(loc).Format("2006-01-02")
	override, err := l.schedules.DateOverride(ctx, hostID, date)
	if err != nil {
		return fmt.Errorf("load date override: %w", err)
	}
	var weekly []model.WeeklySlot
	if override == nil {
		weekly, err = l.schedules.WeeklySlots(ctx, hostID)
		if err != nil {
			return fmt.Errorf("load weekly slots: %w", err)
		}
	}
	windows, err := availability.WindowsForDate(weekly, override, date, loc)
	if err != nil {
		return err
	}
	inWindow := false
	for _, w := range windows {
		if w.Contains(start, end) {
			inWindow = true
			break
		}
	}
	if !inWindow {
		return &model.SlotUnavailableError{Start: start, End: end}
	}

	if l.external != nil {
		requested := availability.Interval{Start: start, End: end}
		for _, iv := range l.external.ExternalBusy(ctx, hostID, start, end) {
			if iv.Overlaps(requested) {
				return &model.SlotUnavailableError{Start: start, End: end}
			}
		}
	}
	return nil
}

// checkHold blocks a slot another guest is holding through checkout. Holds
// are advisory: a hold store failure counts as no hold, never as a failed
// booking.
func (l *Ledger) checkHold(ctx context.Context, hostID string, start, end time.Time, holdRef string) error {
	if l.holds == nil {
		return nil
	}
	holder, err := l.holds.HeldBy(ctx, hostID, start, end)
	if err != nil {
		l.logger.Warn("hold lookup failed", "host_id", hostID, "err", err)
		return nil
	}
	if holder != "" && holder != holdRef {
		return &model.SlotUnavailableError{Start: start, End: end}
	}
	return nil
}

func (l *Ledger) hostLocation(ctx context.Context, hostID string) (*time.Location, error) {
	u, err := l.users.User(ctx, hostID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return nil, fmt.Errorf("host %s has invalid timezone %q: %w", hostID, u.Timezone, err)
	}
	return loc, nil
}

func validateGuest(et model.EventType, req *CreateRequest) (map[string]questions.Answer, error) {
	req.GuestName = strings.TrimSpace(req.GuestName)
	req.GuestEmail = strings.TrimSpace(req.GuestEmail)
	req.GuestPhone = strings.TrimSpace(req.GuestPhone)
	req.GuestTimezone = strings.TrimSpace(req.GuestTimezone)

	fieldErrs := make(map[string]string)
	if req.GuestName == "" {
		fieldErrs["guestName"] = "required"
	}
	if req.GuestEmail == "" {
		fieldErrs["guestEmail"] = "required"
	} else if !strings.Contains(req.GuestEmail, "@") {
		fieldErrs["guestEmail"] = "not an email address"
	}
	if req.GuestTimezone == "" {
		fieldErrs["guestTimezone"] = "required"
	} else if _, err := time.LoadLocation(req.GuestTimezone); err != nil {
		fieldErrs["guestTimezone"] = "unknown IANA timezone"
	}

	answers, answerErrs := questions.ValidateAnswers(et.Questions, req.Answers)
	for field, msg := range answerErrs {
		fieldErrs["responses."+field] = msg
	}
	if len(fieldErrs) > 0 {
		return nil, &model.ValidationError{FieldErrors: fieldErrs}
	}
	return answers, nil
}

func validateInterval(durationMinutes int, start, end time.Time) error {
	if !end.After(start) {
		return model.Invalid("endTime", "must be after startTime")
	}
	if end.Sub(start) != time.Duration(durationMinutes)*time.Minute {
		return model.Invalid("endTime", fmt.Sprintf("slot must be exactly %d minutes", durationMinutes))
	}
	return nil
}
