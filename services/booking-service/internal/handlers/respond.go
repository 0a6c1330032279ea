package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/questions"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps the closed error taxonomy onto HTTP statuses.
// Validation failures carry their per-field messages; everything else is a
// plain text body like the rest of the API's errors.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var vErr *model.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": vErr.FieldErrors,
		})
		return
	}
	var nfErr *model.NotFoundError
	if errors.As(err, &nfErr) {
		http.Error(w, nfErr.Error(), http.StatusNotFound)
		return
	}
	var slotErr *model.SlotUnavailableError
	if errors.As(err, &slotErr) {
		http.Error(w, "slot is no longer available", http.StatusConflict)
		return
	}
	var bufErr *model.BufferConflictError
	if errors.As(err, &bufErr) {
		http.Error(w, "slot conflicts with buffer time around another booking", http.StatusConflict)
		return
	}
	var cancelledErr *model.AlreadyCancelledError
	if errors.As(err, &cancelledErr) {
		http.Error(w, "booking is already cancelled", http.StatusConflict)
		return
	}
	var extErr *model.ExternalServiceError
	if errors.As(err, &extErr) {
		logger.Error("dependency failed", "service", extErr.Service, "err", extErr.Err)
		http.Error(w, "service temporarily unavailable", http.StatusServiceUnavailable)
		return
	}
	logger.Error("request failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

type bookingItem struct {
	BookingID       string                      `json:"booking_id"`
	HostID          string                      `json:"host_id"`
	EventTypeID     string                      `json:"event_type_id"`
	GroupID         string                      `json:"group_id,omitempty"`
	Status          string                      `json:"status"`
	GuestName       string                      `json:"guest_name"`
	GuestEmail      string                      `json:"guest_email"`
	GuestTimezone   string                      `json:"guest_timezone"`
	StartTime       string                      `json:"start_time"`
	EndTime         string                      `json:"end_time"`
	DurationMinutes int                         `json:"duration_minutes"`
	Location        string                      `json:"location"`
	MeetingURL      string                      `json:"meeting_url,omitempty"`
	Answers         map[string]questions.Answer `json:"answers,omitempty"`
	RescheduleToken string                      `json:"reschedule_token,omitempty"`
	CancelToken     string                      `json:"cancel_token,omitempty"`
	CancelledAt     string                      `json:"cancelled_at,omitempty"`
	CancelReason    string                      `json:"cancellation_reason,omitempty"`
	CreatedAt       string                      `json:"created_at"`
}

// toBookingItem renders a booking for API responses. Tokens ride along only
// when includeTokens is set: guests get them on create and token-addressed
// reads, host-facing lists never leak them.
func toBookingItem(b model.Booking, includeTokens bool) bookingItem {
	item := bookingItem{
		BookingID:       b.ID,
		HostID:          b.HostID,
		EventTypeID:     b.EventTypeID,
		GroupID:         b.GroupID,
		Status:          string(b.Status),
		GuestName:       b.GuestName,
		GuestEmail:      b.GuestEmail,
		GuestTimezone:   b.GuestTimezone,
		StartTime:       b.StartTime.UTC().Format(time.RFC3339),
		EndTime:         b.EndTime.UTC().Format(time.RFC3339),
		DurationMinutes: b.DurationMinutes,
		Location:        string(b.Location),
		MeetingURL:      b.MeetingURL,
		Answers:         b.Answers,
		CancelReason:    b.CancelReason,
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if includeTokens {
		item.RescheduleToken = b.RescheduleToken
		item.CancelToken = b.CancelToken
	}
	if b.CancelledAt != nil {
		item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}
