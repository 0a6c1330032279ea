package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/questions"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/team"
)

type BookingsHandler struct {
	ledger     *booking.Ledger
	teams      *team.Coordinator
	eventTypes *storage.EventTypeRepository
	logger     *slog.Logger
}

func NewBookingsHandler(ledger *booking.Ledger, teams *team.Coordinator, eventTypes *storage.EventTypeRepository, logger *slog.Logger) *BookingsHandler {
	return &BookingsHandler{
		ledger:     ledger,
		teams:      teams,
		eventTypes: eventTypes,
		logger:     logger,
	}
}

type bookRequest struct {
	EventTypeID   string                         `json:"event_type_id"`
	GuestName     string                         `json:"guest_name"`
	GuestEmail    string                         `json:"guest_email"`
	GuestPhone    string                         `json:"guest_phone"`
	GuestTimezone string                         `json:"guest_timezone"`
	StartTime     string                         `json:"start_time"`
	EndTime       string                         `json:"end_time"`
	Responses     map[string]questions.RawAnswer `json:"responses"`
	HoldRef       string                         `json:"hold_ref"`
}

// Book creates a booking for any event type. Individual event types book
// their owning host; COLLECTIVE books every member as one group and
// ROUND_ROBIN books the least loaded free member. Safe to retry with an
// Idempotency-Key header.
func (h *BookingsHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.EventTypeID = strings.TrimSpace(req.EventTypeID)
	if req.EventTypeID == "" {
		http.Error(w, "event_type_id required", http.StatusBadRequest)
		return
	}
	start, end, err := parseInterval(req.StartTime, req.EndTime)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	createReq := booking.CreateRequest{
		EventTypeID:    req.EventTypeID,
		GuestName:      req.GuestName,
		GuestEmail:     req.GuestEmail,
		GuestPhone:     req.GuestPhone,
		GuestTimezone:  req.GuestTimezone,
		Start:          start,
		End:            end,
		Answers:        req.Responses,
		HoldRef:        strings.TrimSpace(req.HoldRef),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}

	ctx := r.Context()
	et, err := h.eventTypes.EventType(ctx, req.EventTypeID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	var b model.Booking
	if et.SchedulingType == model.SchedulingIndividual {
		b, err = h.ledger.Create(ctx, createReq)
	} else {
		var hostIDs []string
		hostIDs, err = h.teams.ValidateTeamSlot(ctx, et.TeamID, et, start, end)
		if err == nil {
			var group []model.Booking
			group, err = h.ledger.CreateForHosts(ctx, req.EventTypeID, hostIDs, createReq)
			if err == nil {
				b = group[0]
			}
		}
	}
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookingItem(b, true))
}

// GuestBooking serves the guest's own view, addressed by booking ID plus
// either capability token.
func (h *BookingsHandler) GuestBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	bookingID := strings.TrimSpace(q.Get("booking_id"))
	token := strings.TrimSpace(q.Get("token"))
	if bookingID == "" || token == "" {
		http.Error(w, "booking_id and token are required", http.StatusBadRequest)
		return
	}

	b, err := h.ledger.GetForGuest(r.Context(), bookingID, token)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(b, true))
}

type guestRescheduleRequest struct {
	BookingID string `json:"booking_id"`
	Token     string `json:"token"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *BookingsHandler) GuestReschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req guestRescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	req.Token = strings.TrimSpace(req.Token)
	if req.BookingID == "" || req.Token == "" {
		http.Error(w, "booking_id and token are required", http.StatusBadRequest)
		return
	}
	start, end, err := parseInterval(req.StartTime, req.EndTime)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	b, err := h.ledger.RescheduleWithToken(r.Context(), req.BookingID, req.Token, start, end)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(b, true))
}

type guestCancelRequest struct {
	BookingID string `json:"booking_id"`
	Token     string `json:"token"`
	Reason    string `json:"reason"`
}

func (h *BookingsHandler) GuestCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req guestCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	req.Token = strings.TrimSpace(req.Token)
	if req.BookingID == "" || req.Token == "" {
		http.Error(w, "booking_id and token are required", http.StatusBadRequest)
		return
	}

	b, err := h.ledger.CancelWithToken(r.Context(), req.BookingID, req.Token, strings.TrimSpace(req.Reason))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(b, true))
}

// List returns the calling host's bookings overlapping [from, to), newest
// window first capped at limit rows.
func (h *BookingsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hostID := hostFrom(r)
	if hostID == "" {
		http.Error(w, "host_id required", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now.AddDate(0, 0, 90)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = t
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		to = t
	}
	limit := 50
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	bookings, err := h.ledger.ListByHost(r.Context(), hostID, from, to, limit)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingItem(b, false))
	}
	writeJSON(w, http.StatusOK, items)
}

type hostActionRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

func (h *BookingsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.hostAction(w, r, func(ctx context.Context, bookingID, _ string) (model.Booking, error) {
		return h.ledger.Confirm(ctx, bookingID)
	})
}

func (h *BookingsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.hostAction(w, r, func(ctx context.Context, bookingID, reason string) (model.Booking, error) {
		return h.ledger.Cancel(ctx, bookingID, reason)
	})
}

func (h *BookingsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.hostAction(w, r, func(ctx context.Context, bookingID, _ string) (model.Booking, error) {
		return h.ledger.Complete(ctx, bookingID)
	})
}

func (h *BookingsHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.hostAction(w, r, func(ctx context.Context, bookingID, _ string) (model.Booking, error) {
		return h.ledger.MarkNoShow(ctx, bookingID)
	})
}

// hostAction handles the shared shape of the host lifecycle endpoints:
// POST with a booking_id the calling host must own.
func (h *BookingsHandler) hostAction(w http.ResponseWriter, r *http.Request, act func(ctx context.Context, bookingID, reason string) (model.Booking, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hostID := hostFrom(r)
	if hostID == "" {
		http.Error(w, "host_id required", http.StatusBadRequest)
		return
	}

	var req hostActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	current, err := h.ledger.Get(ctx, req.BookingID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	// Collective members act on their own member booking, which carries
	// their host ID.
	if current.HostID != hostID {
		writeDomainError(w, h.logger, &model.NotFoundError{Entity: "booking", ID: req.BookingID})
		return
	}

	b, err := act(ctx, req.BookingID, strings.TrimSpace(req.Reason))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(b, false))
}

func hostFrom(r *http.Request) string {
	hostID := strings.TrimSpace(r.Header.Get("X-Host-Id"))
	if hostID == "" {
		hostID = strings.TrimSpace(r.URL.Query().Get("host_id"))
	}
	return hostID
}

func parseInterval(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(startRaw))
	if err != nil {
		return time.Time{}, time.Time{}, model.Invalid("startTime", "want RFC 3339")
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(endRaw))
	if err != nil {
		return time.Time{}, time.Time{}, model.Invalid("endTime", "want RFC 3339")
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, model.Invalid("endTime", "must be after startTime")
	}
	return start, end, nil
}
