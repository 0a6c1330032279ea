package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/hold"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

// HoldsHandler exposes checkout holds. A hold keeps a slot out of other
// guests' way for a few minutes while forms are filled in; booking creation
// never trusts it, the transaction re-checks.
type HoldsHandler struct {
	holds  *hold.Store
	logger *slog.Logger
}

func NewHoldsHandler(holds *hold.Store, logger *slog.Logger) *HoldsHandler {
	return &HoldsHandler{holds: holds, logger: logger}
}

type holdRequest struct {
	HostID    string `json:"host_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	HolderRef string `json:"holder_ref"`
}

// Acquire takes or refreshes a hold. The first call leaves holder_ref empty
// and gets one back; refreshes send it again.
func (h *HoldsHandler) Acquire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.HostID = strings.TrimSpace(req.HostID)
	if req.HostID == "" {
		http.Error(w, "host_id required", http.StatusBadRequest)
		return
	}
	start, end, err := parseInterval(req.StartTime, req.EndTime)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	holderRef := strings.TrimSpace(req.HolderRef)
	if holderRef == "" {
		holderRef = uuid.NewString()
	}

	granted, err := h.holds.Acquire(r.Context(), req.HostID, start, end, holderRef)
	if err != nil {
		writeDomainError(w, h.logger, &model.ExternalServiceError{Service: "hold store", Err: err})
		return
	}
	if !granted {
		http.Error(w, "slot is held by another guest", http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		HolderRef string    `json:"holder_ref"`
		ExpiresAt time.Time `json:"expires_at"`
	}{
		HolderRef: holderRef,
		ExpiresAt: time.Now().UTC().Add(h.holds.TTL()),
	})
}

// Release gives the hold back early. Missing or foreign holds are fine,
// they expire on their own.
func (h *HoldsHandler) Release(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.HostID = strings.TrimSpace(req.HostID)
	req.HolderRef = strings.TrimSpace(req.HolderRef)
	if req.HostID == "" || req.HolderRef == "" {
		http.Error(w, "host_id and holder_ref are required", http.StatusBadRequest)
		return
	}
	start, end, err := parseInterval(req.StartTime, req.EndTime)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	if err := h.holds.Release(r.Context(), req.HostID, start, end, req.HolderRef); err != nil {
		writeDomainError(w, h.logger, &model.ExternalServiceError{Service: "hold store", Err: err})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
