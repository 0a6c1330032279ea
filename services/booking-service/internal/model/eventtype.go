package model

import (
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/questions"
)

type SchedulingType string

const (
	SchedulingIndividual SchedulingType = "INDIVIDUAL"
	SchedulingCollective SchedulingType = "COLLECTIVE"
	SchedulingRoundRobin SchedulingType = "ROUND_ROBIN"
)

type LocationType string

const (
	LocationVideo    LocationType = "VIDEO"
	LocationPhone    LocationType = "PHONE"
	LocationInPerson LocationType = "IN_PERSON"
)

// EventType is a bookable meeting template owned by a host or a team.
type EventType struct {
	ID     string
	HostID string
	// TeamID is set only for COLLECTIVE and ROUND_ROBIN event types.
	TeamID string
	Title  string
	Slug   string

	DurationMinutes     int
	BufferBeforeMinutes int
	BufferAfterMinutes  int

	// MinimumNoticeMinutes hides slots that start sooner than this from now.
	MinimumNoticeMinutes int
	// BookingWindowDays caps how far into the future slots are offered.
	BookingWindowDays int

	SchedulingType       SchedulingType
	Location             LocationType
	RequiresConfirmation bool

	// ReminderOffsetsMinutes lists how long before the start time each
	// reminder fires, e.g. [1440, 60] for 24h and 1h ahead.
	ReminderOffsetsMinutes []int

	Questions []questions.Question

	CreatedAt time.Time
}
