package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/schedule"
)

type ScheduleHandler struct {
	schedules *schedule.Service
	logger    *slog.Logger
}

func NewScheduleHandler(schedules *schedule.Service, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, logger: logger}
}

// weeklySlotItem is the wire form of one weekly window. Weekday follows
// time.Weekday numbering, 0 is Sunday. Clock strings are "HH:MM" in the
// host's own timezone; "24:00" is a valid end.
type weeklySlotItem struct {
	Weekday int    `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func (h *ScheduleHandler) Weekly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hostID := hostFrom(r)
	if hostID == "" {
		http.Error(w, "host_id required", http.StatusBadRequest)
		return
	}

	rows, err := h.schedules.WeeklySchedule(r.Context(), hostID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	items := make([]weeklySlotItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, weeklySlotItem{
			Weekday: int(row.Weekday),
			Start:   model.FormatClock(row.StartMinute),
			End:     model.FormatClock(row.EndMinute),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// SetWeekly replaces the host's whole weekly schedule with the submitted
// windows. An empty slots list clears it.
func (h *ScheduleHandler) SetWeekly(w http.ResponseWriter, r *http.Request) {
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
		Slots []weeklySlotItem `json:"slots"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	fieldErrs := make(map[string]string)
	rows := make([]model.WeeklySlot, 0, len(req.Slots))
	for i, item := range req.Slots {
		startMin, errStart := model.ParseClock(item.Start)
		endMin, errEnd := model.ParseClock(item.End)
		if errStart != nil || errEnd != nil {
			fieldErrs[fmt.Sprintf("slots[%d]", i)] = "want HH:MM"
			continue
		}
		rows = append(rows, model.WeeklySlot{
			Weekday:     time.Weekday(item.Weekday),
			StartMinute: startMin,
			EndMinute:   endMin,
		})
	}
	if len(fieldErrs) > 0 {
		writeDomainError(w, h.logger, &model.ValidationError{FieldErrors: fieldErrs})
		return
	}

	if err := h.schedules.SetWeeklySchedule(r.Context(), hostID, rows); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type overrideItem struct {
	Date      string `json:"date"`
	Available bool   `json:"available"`
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
}

func (h *ScheduleHandler) ListOverrides(w http.ResponseWriter, r *http.Request) {
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
	from := strings.TrimSpace(q.Get("from"))
	to := strings.TrimSpace(q.Get("to"))
	if from == "" || to == "" {
		http.Error(w, "from and to are required", http.StatusBadRequest)
		return
	}

	overrides, err := h.schedules.Overrides(r.Context(), hostID, from, to)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	items := make([]overrideItem, 0, len(overrides))
	for _, ov := range overrides {
		item := overrideItem{Date: ov.Date, Available: ov.Available}
		if ov.Available {
			item.Start = model.FormatClock(ov.StartMinute)
			item.End = model.FormatClock(ov.EndMinute)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

// SetOverride upserts one date override. An unavailable override blocks the
// whole date and needs no window.
func (h *ScheduleHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hostID := hostFrom(r)
	if hostID == "" {
		http.Error(w, "host_id required", http.StatusBadRequest)
		return
	}

	var req overrideItem
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	ov := model.DateOverride{
		UserID:    hostID,
		Date:      strings.TrimSpace(req.Date),
		Available: req.Available,
	}
	if req.Available {
		fieldErrs := make(map[string]string)
		var err error
		if ov.StartMinute, err = model.ParseClock(req.Start); err != nil {
			fieldErrs["start"] = "want HH:MM"
		}
		if ov.EndMinute, err = model.ParseClock(req.End); err != nil {
			fieldErrs["end"] = "want HH:MM"
		}
		if len(fieldErrs) > 0 {
			writeDomainError(w, h.logger, &model.ValidationError{FieldErrors: fieldErrs})
			return
		}
	}

	if err := h.schedules.SetDateOverride(r.Context(), ov); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hostID := hostFrom(r)
	if hostID == "" {
		http.Error(w, "host_id required", http.StatusBadRequest)
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}

	if err := h.schedules.RemoveDateOverride(r.Context(), hostID, date); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
