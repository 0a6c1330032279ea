// Package team aggregates per-member availability into team-level slot
// lists and picks hosts for team bookings. Members are computed
// independently and concurrently; results meet only at the fan-in.
package team

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

// TeamStore enumerates teams and their members.
type TeamStore interface {
	Team(ctx context.Context, teamID string) (model.Team, error)
	// AcceptedMembers returns members with accepted invites in a stable
	// order (joined-at, then user id). Round-robin tie-breaking depends on
	// that order.
	AcceptedMembers(ctx context.Context, teamID string) ([]model.TeamMember, error)
}

// UserSource resolves member timezones.
type UserSource interface {
	User(ctx context.Context, id string) (model.User, error)
}

// SlotSource is the per-member availability computation, satisfied by
// availability.Service.
type SlotSource interface {
	SlotsForDate(ctx context.Context, p availability.Params, date string) ([]availability.Slot, error)
	SlotFree(ctx context.Context, p availability.Params, start, end time.Time) (bool, error)
}

// BookingCounter reports how many non-cancelled bookings a host holds with a
// start time inside [from, to).
type BookingCounter interface {
	CountByHost(ctx context.Context, hostID string, from, to time.Time) (int, error)
}

type Coordinator struct {
	teams  TeamStore
	users  UserSource
	slots  SlotSource
	counts BookingCounter
	now    func() time.Time
}

func NewCoordinator(teams TeamStore, users UserSource, slots SlotSource, counts BookingCounter, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{teams: teams, users: users, slots: slots, counts: counts, now: now}
}

// TeamAvailability returns the team's bookable slots for one date under the
// event type's scheduling mode. COLLECTIVE keeps only slots every member
// offers; ROUND_ROBIN keeps slots any member offers. Slot identity is the
// exact (start, end) pair, so members in different timezones agree as long
// as their windows line up on the same instants.
func (c *Coordinator) TeamAvailability(ctx context.Context, teamID, date string, et model.EventType) ([]availability.Slot, error) {
	if err := teamMode(et); err != nil {
		return nil, err
	}
	members, err := c.teams.AcceptedMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	perMember, err := c.fanOutSlots(ctx, members, date, et)
	if err != nil {
		return nil, err
	}
	if et.SchedulingType == model.SchedulingCollective {
		return intersectSlots(perMember), nil
	}
	return unionSlots(perMember), nil
}

// AssignRoundRobin picks the member to host the exact [start, end) interval:
// among members individually free for it, the one with the fewest bookings
// started in the trailing 30 days. Ties go to the earlier member in the
// stable enumeration order. Returns *model.SlotUnavailableError when no
// member is free.
func (c *Coordinator) AssignRoundRobin(ctx context.Context, teamID string, et model.EventType, start, end time.Time) (string, error) {
	members, err := c.teams.AcceptedMembers(ctx, teamID)
	if err != nil {
		return "", err
	}
	free, err := c.fanOutFree(ctx, members, et, start, end)
	if err != nil {
		return "", err
	}

	now := c.now()
	windowStart := now.AddDate(0, 0, -30)
	chosen := ""
	chosenLoad := 0
	for i, m := range members {
		if !free[i] {
			continue
		}
		load, err := c.counts.CountByHost(ctx, m.UserID, windowStart, now)
		if err != nil {
			return "", fmt.Errorf("count bookings for %s: %w", m.UserID, err)
		}
		if chosen == "" || load < chosenLoad {
			chosen, chosenLoad = m.UserID, load
		}
	}
	if chosen == "" {
		return "", &model.SlotUnavailableError{Start: start, End: end}
	}
	return chosen, nil
}

// ValidateTeamSlot resolves the host set for booking the exact [start, end)
// interval. COLLECTIVE returns every accepted member after checking each one
// is free; ROUND_ROBIN returns the single assigned member. Failure is
// *model.SlotUnavailableError.
func (c *Coordinator) ValidateTeamSlot(ctx context.Context, teamID string, et model.EventType, start, end time.Time) ([]string, error) {
	if err := teamMode(et); err != nil {
		return nil, err
	}
	if et.SchedulingType == model.SchedulingRoundRobin {
		host, err := c.AssignRoundRobin(ctx, teamID, et, start, end)
		if err != nil {
			return nil, err
		}
		return []string{host}, nil
	}

	members, err := c.teams.AcceptedMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, &model.SlotUnavailableError{Start: start, End: end}
	}
	free, err := c.fanOutFree(ctx, members, et, start, end)
	if err != nil {
		return nil, err
	}
	hosts := make([]string, len(members))
	for i, m := range members {
		if !free[i] {
			return nil, &model.SlotUnavailableError{Start: start, End: end}
		}
		hosts[i] = m.UserID
	}
	return hosts, nil
}

// fanOutSlots computes every member's slot list concurrently. Each goroutine
// writes only its own index, so the fan-in needs no locking.
func (c *Coordinator) fanOutSlots(ctx context.Context, members []model.TeamMember, date string, et model.EventType) ([][]availability.Slot, error) {
	slots := make([][]availability.Slot, len(members))
	errs := make([]error, len(members))
	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			p, err := c.memberParams(ctx, userID, et)
			if err != nil {
				errs[i] = err
				return
			}
			slots[i], errs[i] = c.slots.SlotsForDate(ctx, p, date)
		}(i, m.UserID)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return slots, nil
}

func (c *Coordinator) fanOutFree(ctx context.Context, members []model.TeamMember, et model.EventType, start, end time.Time) ([]bool, error) {
	free := make([]bool, len(members))
	errs := make([]error, len(members))
	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			p, err := c.memberParams(ctx, userID, et)
			if err != nil {
				errs[i] = err
				return
			}
			free[i], errs[i] = c.slots.SlotFree(ctx, p, start, end)
		}(i, m.UserID)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return free, nil
}

// memberParams builds the availability parameters for one member: the event
// type's settings in the member's own timezone.
func (c *Coordinator) memberParams(ctx context.Context, userID string, et model.EventType) (availability.Params, error) {
	u, err := c.users.User(ctx, userID)
	if err != nil {
		return availability.Params{}, err
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return availability.Params{}, fmt.Errorf("load timezone %q for %s: %w", u.Timezone, userID, err)
	}
	return availability.Params{
		HostID:        userID,
		Location:      loc,
		Duration:      time.Duration(et.DurationMinutes) * time.Minute,
		MinimumNotice: time.Duration(et.MinimumNoticeMinutes) * time.Minute,
		WindowDays:    et.BookingWindowDays,
	}, nil
}

func teamMode(et model.EventType) error {
	switch et.SchedulingType {
	case model.SchedulingCollective, model.SchedulingRoundRobin:
		return nil
	}
	return model.Invalid("schedulingType", "not a team event type")
}

type slotKey struct {
	start, end int64
}

func keyOf(s availability.Slot) slotKey {
	return slotKey{s.Start.UnixNano(), s.End.UnixNano()}
}

// intersectSlots keeps the slots present in every member's list, in the
// first member's order.
func intersectSlots(memberSlots [][]availability.Slot) []availability.Slot {
	if len(memberSlots) == 0 {
		return nil
	}
	sets := make([]map[slotKey]struct{}, len(memberSlots))
	for i := 1; i < len(memberSlots); i++ {
		set := make(map[slotKey]struct{}, len(memberSlots[i]))
		for _, s := range memberSlots[i] {
			set[keyOf(s)] = struct{}{}
		}
		sets[i] = set
	}

	var out []availability.Slot
	for _, s := range memberSlots[0] {
		k := keyOf(s)
		inAll := true
		for i := 1; i < len(memberSlots); i++ {
			if _, ok := sets[i][k]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, s)
		}
	}
	return out
}

// unionSlots merges every member's list, deduplicated and sorted by start.
func unionSlots(memberSlots [][]availability.Slot) []availability.Slot {
	seen := make(map[slotKey]struct{})
	var out []availability.Slot
	for _, slots := range memberSlots {
		for _, s := range slots {
			k := keyOf(s)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
