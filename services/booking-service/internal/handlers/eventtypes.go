package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/questions"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/storage"
)

var slugRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

type EventTypesHandler struct {
	eventTypes *storage.EventTypeRepository
	logger     *slog.Logger
}

func NewEventTypesHandler(eventTypes *storage.EventTypeRepository, logger *slog.Logger) *EventTypesHandler {
	return &EventTypesHandler{eventTypes: eventTypes, logger: logger}
}

type eventTypeItem struct {
	ID                     string               `json:"id"`
	HostID                 string               `json:"host_id"`
	TeamID                 string               `json:"team_id,omitempty"`
	Title                  string               `json:"title"`
	Slug                   string               `json:"slug"`
	DurationMinutes        int                  `json:"duration_minutes"`
	BufferBeforeMinutes    int                  `json:"buffer_before_minutes"`
	BufferAfterMinutes     int                  `json:"buffer_after_minutes"`
	MinimumNoticeMinutes   int                  `json:"minimum_notice_minutes"`
	BookingWindowDays      int                  `json:"booking_window_days"`
	SchedulingType         string               `json:"scheduling_type"`
	Location               string               `json:"location"`
	RequiresConfirmation   bool                 `json:"requires_confirmation"`
	ReminderOffsetsMinutes []int                `json:"reminder_offsets_minutes"`
	Questions              []questions.Question `json:"questions"`
	CreatedAt              time.Time            `json:"created_at"`
}

func toEventTypeItem(et model.EventType) eventTypeItem {
	return eventTypeItem{
		ID:                     et.ID,
		HostID:                 et.HostID,
		TeamID:                 et.TeamID,
		Title:                  et.Title,
		Slug:                   et.Slug,
		DurationMinutes:        et.DurationMinutes,
		BufferBeforeMinutes:    et.BufferBeforeMinutes,
		BufferAfterMinutes:     et.BufferAfterMinutes,
		MinimumNoticeMinutes:   et.MinimumNoticeMinutes,
		BookingWindowDays:      et.BookingWindowDays,
		SchedulingType:         string(et.SchedulingType),
		Location:               string(et.Location),
		RequiresConfirmation:   et.RequiresConfirmation,
		ReminderOffsetsMinutes: et.ReminderOffsetsMinutes,
		Questions:              et.Questions,
		CreatedAt:              et.CreatedAt,
	}
}

// List serves both the host console and the public booking page: event types
// carry nothing secret.
func (h *EventTypesHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		items []model.EventType
		err   error
	)
	if teamID := strings.TrimSpace(r.URL.Query().Get("team_id")); teamID != "" {
		items, err = h.eventTypes.ListByTeam(r.Context(), teamID)
	} else {
		hostID := hostFrom(r)
		if hostID == "" {
			http.Error(w, "host_id required", http.StatusBadRequest)
			return
		}
		items, err = h.eventTypes.ListByHost(r.Context(), hostID)
	}
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	out := make([]eventTypeItem, 0, len(items))
	for _, et := range items {
		out = append(out, toEventTypeItem(et))
	}
	writeJSON(w, http.StatusOK, out)
}

type eventTypeRequest struct {
	Title                  string               `json:"title"`
	Slug                   string               `json:"slug"`
	TeamID                 string               `json:"team_id"`
	DurationMinutes        int                  `json:"duration_minutes"`
	BufferBeforeMinutes    int                  `json:"buffer_before_minutes"`
	BufferAfterMinutes     int                  `json:"buffer_after_minutes"`
	MinimumNoticeMinutes   int                  `json:"minimum_notice_minutes"`
	BookingWindowDays      int                  `json:"booking_window_days"`
	SchedulingType         string               `json:"scheduling_type"`
	Location               string               `json:"location"`
	RequiresConfirmation   bool                 `json:"requires_confirmation"`
	ReminderOffsetsMinutes []int                `json:"reminder_offsets_minutes"`
	Questions              []questions.Question `json:"questions"`
}

func (h *EventTypesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hostID := hostFrom(r)
	if hostID == "" {
		http.Error(w, "host_id required", http.StatusBadRequest)
		return
	}

	var req eventTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	et := model.EventType{
		ID:                     uuid.NewString(),
		HostID:                 hostID,
		TeamID:                 strings.TrimSpace(req.TeamID),
		Title:                  strings.TrimSpace(req.Title),
		Slug:                   strings.TrimSpace(req.Slug),
		DurationMinutes:        req.DurationMinutes,
		BufferBeforeMinutes:    req.BufferBeforeMinutes,
		BufferAfterMinutes:     req.BufferAfterMinutes,
		MinimumNoticeMinutes:   req.MinimumNoticeMinutes,
		BookingWindowDays:      req.BookingWindowDays,
		SchedulingType:         model.SchedulingType(strings.TrimSpace(req.SchedulingType)),
		Location:               model.LocationType(strings.TrimSpace(req.Location)),
		RequiresConfirmation:   req.RequiresConfirmation,
		ReminderOffsetsMinutes: req.ReminderOffsetsMinutes,
		Questions:              req.Questions,
		CreatedAt:              time.Now().UTC(),
	}
	if et.SchedulingType == "" {
		et.SchedulingType = model.SchedulingIndividual
	}
	if et.BookingWindowDays == 0 {
		et.BookingWindowDays = 60
	}
	if err := validateEventType(&et); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	if err := h.eventTypes.Create(r.Context(), &et); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventTypeItem(et))
}

// Update changes the mutable fields of an event type. Scheduling type and
// team are fixed at creation; bookings already made keep the duration and
// buffers they were created with.
func (h *EventTypesHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hostID := hostFrom(r)
	if hostID == "" {
		http.Error(w, "host_id required", http.StatusBadRequest)
		return
	}

	var req struct {
		ID string `json:"id"`
		eventTypeRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	et, err := h.eventTypes.EventType(ctx, req.ID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if et.HostID != hostID {
		writeDomainError(w, h.logger, &model.NotFoundError{Entity: "event type", ID: req.ID})
		return
	}

	et.Title = strings.TrimSpace(req.Title)
	et.Slug = strings.TrimSpace(req.Slug)
	et.DurationMinutes = req.DurationMinutes
	et.BufferBeforeMinutes = req.BufferBeforeMinutes
	et.BufferAfterMinutes = req.BufferAfterMinutes
	et.MinimumNoticeMinutes = req.MinimumNoticeMinutes
	et.BookingWindowDays = req.BookingWindowDays
	et.Location = model.LocationType(strings.TrimSpace(req.Location))
	et.RequiresConfirmation = req.RequiresConfirmation
	et.ReminderOffsetsMinutes = req.ReminderOffsetsMinutes
	et.Questions = req.Questions
	if et.BookingWindowDays == 0 {
		et.BookingWindowDays = 60
	}
	if err := validateEventType(&et); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	if err := h.eventTypes.Update(ctx, &et); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventTypeItem(et))
}

func (h *EventTypesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hostID := hostFrom(r)
	if hostID == "" {
		http.Error(w, "host_id required", http.StatusBadRequest)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	et, err := h.eventTypes.EventType(ctx, id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if et.HostID != hostID {
		writeDomainError(w, h.logger, &model.NotFoundError{Entity: "event type", ID: id})
		return
	}

	if err := h.eventTypes.Delete(ctx, id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validateEventType(et *model.EventType) error {
	fieldErrs := make(map[string]string)
	if et.Title == "" {
		fieldErrs["title"] = "required"
	} else if len(et.Title) > 200 {
		fieldErrs["title"] = "at most 200 characters"
	}
	if !slugRe.MatchString(et.Slug) || len(et.Slug) > 60 {
		fieldErrs["slug"] = "lowercase letters, digits and hyphens"
	}
	if et.DurationMinutes < 5 || et.DurationMinutes > 480 {
		fieldErrs["duration_minutes"] = "must be between 5 and 480"
	}
	if et.BufferBeforeMinutes < 0 || et.BufferBeforeMinutes > 120 {
		fieldErrs["buffer_before_minutes"] = "must be between 0 and 120"
	}
	if et.BufferAfterMinutes < 0 || et.BufferAfterMinutes > 120 {
		fieldErrs["buffer_after_minutes"] = "must be between 0 and 120"
	}
	if et.MinimumNoticeMinutes < 0 {
		fieldErrs["minimum_notice_minutes"] = "must not be negative"
	}
	if et.BookingWindowDays < 1 || et.BookingWindowDays > 365 {
		fieldErrs["booking_window_days"] = "must be between 1 and 365"
	}

	switch et.SchedulingType {
	case model.SchedulingIndividual:
		if et.TeamID != "" {
			fieldErrs["team_id"] = "only team event types have a team"
		}
	case model.SchedulingCollective, model.SchedulingRoundRobin:
		if et.TeamID == "" {
			fieldErrs["team_id"] = "required for team event types"
		}
	default:
		fieldErrs["scheduling_type"] = "one of INDIVIDUAL, COLLECTIVE, ROUND_ROBIN"
	}

	switch et.Location {
	case model.LocationVideo, model.LocationPhone, model.LocationInPerson:
	default:
		fieldErrs["location"] = "one of VIDEO, PHONE, IN_PERSON"
	}

	if len(et.ReminderOffsetsMinutes) > 5 {
		fieldErrs["reminder_offsets_minutes"] = "at most 5 reminders"
	} else {
		for _, m := range et.ReminderOffsetsMinutes {
			if m < 1 || m > 28*24*60 {
				fieldErrs["reminder_offsets_minutes"] = "each offset must be between 1 minute and 28 days"
				break
			}
		}
	}

	if len(et.Questions) > 10 {
		fieldErrs["questions"] = "at most 10 questions"
	} else {
		seen := make(map[string]bool, len(et.Questions))
		for i, q := range et.Questions {
			field := fmt.Sprintf("questions[%d]", i)
			if err := q.Validate(); err != nil {
				fieldErrs[field] = err.Error()
				continue
			}
			if seen[q.ID] {
				fieldErrs[field] = "duplicate question id"
			}
			seen[q.ID] = true
		}
	}

	if len(fieldErrs) > 0 {
		return &model.ValidationError{FieldErrors: fieldErrs}
	}
	return nil
}
