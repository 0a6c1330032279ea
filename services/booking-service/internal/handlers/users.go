package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/storage"
)

type UsersHandler struct {
	users  *storage.UserRepository
	logger *slog.Logger
}

func NewUsersHandler(users *storage.UserRepository, logger *slog.Logger) *UsersHandler {
	return &UsersHandler{users: users, logger: logger}
}

type userItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hostID := hostFrom(r)
	if hostID == "" {
		http.Error(w, "host_id required", http.StatusBadRequest)
		return
	}

	u, err := h.users.User(r.Context(), hostID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userItem{
		ID: u.ID, Name: u.Name, Email: u.Email, Timezone: u.Timezone, CreatedAt: u.CreatedAt,
	})
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Timezone string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Timezone = strings.TrimSpace(req.Timezone)

	fieldErrs := make(map[string]string)
	if req.Name == "" {
		fieldErrs["name"] = "required"
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		fieldErrs["email"] = "valid email required"
	}
	if msg := checkTimezone(req.Timezone); msg != "" {
		fieldErrs["timezone"] = msg
	}
	if len(fieldErrs) > 0 {
		writeDomainError(w, h.logger, &model.ValidationError{FieldErrors: fieldErrs})
		return
	}

	u := model.User{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		Timezone:  req.Timezone,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.users.Create(r.Context(), &u); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, userItem{
		ID: u.ID, Name: u.Name, Email: u.Email, Timezone: u.Timezone, CreatedAt: u.CreatedAt,
	})
}

// SetTimezone changes how the weekly schedule projects onto dates from now
// on. Existing bookings keep their absolute instants.
func (h *UsersHandler) SetTimezone(w http.ResponseWriter, r *http.Request) {
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
		Timezone string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Timezone = strings.TrimSpace(req.Timezone)
	if msg := checkTimezone(req.Timezone); msg != "" {
		writeDomainError(w, h.logger, model.Invalid("timezone", msg))
		return
	}

	if err := h.users.SetTimezone(r.Context(), hostID, req.Timezone); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type calendarConnectionItem struct {
	ID         string    `json:"id"`
	Provider   string    `json:"provider"`
	CalendarID string    `json:"calendar_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListCalendars returns the host's calendar connections without their
// credential settings.
func (h *UsersHandler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hostID := hostFrom(r)
	if hostID == "" {
		http.Error(w, "host_id required", http.StatusBadRequest)
		return
	}

	conns, err := h.users.CalendarConnections(r.Context(), hostID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	items := make([]calendarConnectionItem, 0, len(conns))
	for _, c := range conns {
		items = append(items, calendarConnectionItem{
			ID:         c.ID,
			Provider:   c.Provider,
			CalendarID: c.CalendarID,
			CreatedAt:  c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *UsersHandler) ConnectCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hostID := hostFrom(r)
	if hostID == "" {
		http.Error(w, "host_id required", http.StatusBadRequest)
		return
	}

	var req struct {
		Provider   string          `json:"provider"`
		CalendarID string          `json:"calendar_id"`
		Settings   json.RawMessage `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Provider = strings.TrimSpace(strings.ToLower(req.Provider))
	req.CalendarID = strings.TrimSpace(req.CalendarID)

	fieldErrs := make(map[string]string)
	if req.Provider != "google" && req.Provider != "caldav" {
		fieldErrs["provider"] = "one of google, caldav"
	}
	if req.CalendarID == "" {
		fieldErrs["calendar_id"] = "required"
	}
	if len(req.Settings) == 0 {
		fieldErrs["settings"] = "required"
	}
	if len(fieldErrs) > 0 {
		writeDomainError(w, h.logger, &model.ValidationError{FieldErrors: fieldErrs})
		return
	}

	c := model.CalendarConnection{
		ID:         uuid.NewString(),
		UserID:     hostID,
		Provider:   req.Provider,
		CalendarID: req.CalendarID,
		Settings:   req.Settings,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.users.AddCalendarConnection(r.Context(), &c); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, calendarConnectionItem{
		ID:         c.ID,
		Provider:   c.Provider,
		CalendarID: c.CalendarID,
		CreatedAt:  c.CreatedAt,
	})
}

func (h *UsersHandler) DisconnectCalendar(w http.ResponseWriter, r *http.Request) {
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

	if err := h.users.RemoveCalendarConnection(r.Context(), hostID, id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// checkTimezone accepts only IANA zone names the local tz database knows;
// fixed offsets would freeze DST at whatever the offset happened to be.
func checkTimezone(tz string) string {
	if tz == "" {
		return "required"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "unknown IANA timezone"
	}
	return ""
}
