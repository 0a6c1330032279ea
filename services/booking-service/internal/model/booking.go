package model

import (
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/questions"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingNoShow    BookingStatus = "NO_SHOW"
)

// Blocks reports whether a booking in this status still occupies its interval
// for conflict purposes. Cancelled bookings never block; completed and no-show
// bookings keep blocking their (past) interval.
func (s BookingStatus) Blocks() bool {
	return s != BookingCancelled
}

// Terminal reports whether no further scheduling transition is allowed.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingCancelled, BookingCompleted, BookingNoShow:
		return true
	}
	return false
}

// CanTransition validates the booking state machine:
// PENDING -> CONFIRMED -> {CANCELLED | COMPLETED | NO_SHOW}, with PENDING
// also cancellable directly (host declines or guest withdraws).
func CanTransition(from, to BookingStatus) bool {
	switch from {
	case BookingPending:
		return to == BookingConfirmed || to == BookingCancelled
	case BookingConfirmed:
		return to == BookingCancelled || to == BookingCompleted || to == BookingNoShow
	}
	return false
}

type Booking struct {
	ID          string
	HostID      string
	EventTypeID string
	// GroupID ties together the per-member bookings created for one collective
	// team reservation; empty for individual bookings. GroupPrimary marks the
	// one member booking whose tokens the guest holds and whose reminders are
	// scheduled; lifecycle operations fan out from it to the whole group.
	GroupID       string
	GroupPrimary  bool
	GuestName     string
	GuestEmail    string
	GuestPhone    string
	GuestTimezone string
	StartTime     time.Time
	EndTime       time.Time
	Status        BookingStatus

	// Snapshots of the event type taken at creation time. Conflict checks read
	// these instead of the live event type so later edits never change the
	// footprint of an existing booking.
	DurationMinutes     int
	BufferBeforeMinutes int
	BufferAfterMinutes  int

	Location   LocationType
	MeetingURL string
	Answers    map[string]questions.Answer

	RescheduleToken string
	CancelToken     string
	CancelReason    string
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
