package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/team"
)

// maxRangeDays caps multi-day slot queries; the event type's booking window
// usually cuts the range shorter anyway.
const maxRangeDays = 62

type SlotsHandler struct {
	avail      *availability.Service
	eventTypes *storage.EventTypeRepository
	users      *storage.UserRepository
	teams      *team.Coordinator
	logger     *slog.Logger
}

func NewSlotsHandler(avail *availability.Service, eventTypes *storage.EventTypeRepository, users *storage.UserRepository, teams *team.Coordinator, logger *slog.Logger) *SlotsHandler {
	return &SlotsHandler{
		avail:      avail,
		eventTypes: eventTypes,
		users:      users,
		teams:      teams,
		logger:     logger,
	}
}

type daySlotsItem struct {
	Date  string     `json:"date"`
	Slots []slotItem `json:"slots"`
}

type slotsResponse struct {
	HostID          string         `json:"host_id"`
	EventTypeID     string         `json:"event_type_id"`
	DurationMinutes int            `json:"duration_minutes"`
	Date            string         `json:"date,omitempty"`
	Slots           []slotItem     `json:"slots,omitempty"`
	Days            []daySlotsItem `json:"days,omitempty"`
}

// Slots serves the public single-date and date-range availability queries
// for one host's event type. The event type is addressed by its slug, the
// way booking pages link to it.
func (h *SlotsHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	hostID := strings.TrimSpace(q.Get("host_id"))
	slug := strings.TrimSpace(q.Get("event_type"))
	if hostID == "" || slug == "" {
		http.Error(w, "host_id and event_type are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	et, err := h.eventTypes.EventTypeBySlug(ctx, hostID, slug)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if et.SchedulingType != model.SchedulingIndividual {
		http.Error(w, "team event types are served by the team slots endpoint", http.StatusBadRequest)
		return
	}
	params, err := h.paramsFor(r, et, et.HostID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	resp := slotsResponse{
		HostID:          et.HostID,
		EventTypeID:     et.ID,
		DurationMinutes: et.DurationMinutes,
	}

	date := strings.TrimSpace(q.Get("date"))
	fromDate := strings.TrimSpace(q.Get("date_from"))
	toDate := strings.TrimSpace(q.Get("date_to"))
	switch {
	case date != "":
		slots, err := h.avail.SlotsForDate(ctx, params, date)
		if err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
		resp.Date = date
		resp.Slots = toSlotItems(slots)
	case fromDate != "" && toDate != "":
		if err := checkRange(fromDate, toDate); err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
		days, err := h.avail.SlotsForRange(ctx, params, fromDate, toDate)
		if err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
		for _, d := range days {
			resp.Days = append(resp.Days, daySlotsItem{Date: d.Date, Slots: toSlotItems(d.Slots)})
		}
	default:
		http.Error(w, "date or date_from/date_to required", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type teamSlotsResponse struct {
	TeamID          string     `json:"team_id"`
	EventTypeID     string     `json:"event_type_id"`
	DurationMinutes int        `json:"duration_minutes"`
	Date            string     `json:"date"`
	Slots           []slotItem `json:"slots"`
}

// TeamSlots serves one date of combined availability for a COLLECTIVE or
// ROUND_ROBIN event type.
func (h *SlotsHandler) TeamSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	teamID := strings.TrimSpace(q.Get("team_id"))
	eventTypeID := strings.TrimSpace(q.Get("event_type_id"))
	date := strings.TrimSpace(q.Get("date"))
	if teamID == "" || eventTypeID == "" || date == "" {
		http.Error(w, "team_id, event_type_id and date are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	et, err := h.eventTypes.EventType(ctx, eventTypeID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if et.TeamID != teamID {
		http.Error(w, "event type does not belong to this team", http.StatusBadRequest)
		return
	}

	slots, err := h.teams.TeamAvailability(ctx, teamID, date, et)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, teamSlotsResponse{
		TeamID:          teamID,
		EventTypeID:     et.ID,
		DurationMinutes: et.DurationMinutes,
		Date:            date,
		Slots:           toSlotItems(slots),
	})
}

// paramsFor resolves the host's timezone into the slot computation
// parameters for one event type.
func (h *SlotsHandler) paramsFor(r *http.Request, et model.EventType, hostID string) (availability.Params, error) {
	u, err := h.users.User(r.Context(), hostID)
	if err != nil {
		return availability.Params{}, err
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return availability.Params{}, fmt.Errorf("host %s has invalid timezone %q: %w", u.ID, u.Timezone, err)
	}
	return availability.Params{
		HostID:        hostID,
		Location:      loc,
		Duration:      time.Duration(et.DurationMinutes) * time.Minute,
		MinimumNotice: time.Duration(et.MinimumNoticeMinutes) * time.Minute,
		WindowDays:    et.BookingWindowDays,
	}, nil
}

func checkRange(fromDate, toDate string) error {
	from, err := time.Parse("2006-01-02", fromDate)
	if err != nil {
		return model.Invalid("date_from", "want YYYY-MM-DD")
	}
	to, err := time.Parse("2006-01-02", toDate)
	if err != nil {
		return model.Invalid("date_to", "want YYYY-MM-DD")
	}
	if to.Before(from) {
		return model.Invalid("date_to", "before date_from")
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return model.Invalid("date_to", fmt.Sprintf("range longer than %d days", maxRangeDays))
	}
	return nil
}

func toSlotItems(slots []availability.Slot) []slotItem {
	out := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
		})
	}
	return out
}
