package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/storage"
)

type TeamsHandler struct {
	teams  *storage.TeamRepository
	logger *slog.Logger
}

func NewTeamsHandler(teams *storage.TeamRepository, logger *slog.Logger) *TeamsHandler {
	return &TeamsHandler{teams: teams, logger: logger}
}

type teamItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

type teamMemberItem struct {
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	Accepted bool      `json:"accepted"`
	JoinedAt time.Time `json:"joined_at"`
}

// Get returns the team with its full member list, pending invites included.
func (h *TeamsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	teamID := strings.TrimSpace(r.URL.Query().Get("team_id"))
	if teamID == "" {
		http.Error(w, "team_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	t, err := h.teams.Team(ctx, teamID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	members, err := h.teams.Members(ctx, teamID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	items := make([]teamMemberItem, 0, len(members))
	for _, m := range members {
		items = append(items, teamMemberItem{
			UserID:   m.UserID,
			Role:     string(m.Role),
			Accepted: m.Accepted,
			JoinedAt: m.JoinedAt,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Team    teamItem         `json:"team"`
		Members []teamMemberItem `json:"members"`
	}{
		Team:    teamItem{ID: t.ID, Name: t.Name, Slug: t.Slug, CreatedAt: t.CreatedAt},
		Members: items,
	})
}

// Create makes a team with the calling host as its accepted owner.
func (h *TeamsHandler) Create(w http.ResponseWriter, r *http.Request) {
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
		Name string `json:"name"`
		Slug string `json:"slug"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Slug = strings.TrimSpace(req.Slug)

	fieldErrs := make(map[string]string)
	if req.Name == "" {
		fieldErrs["name"] = "required"
	} else if len(req.Name) > 120 {
		fieldErrs["name"] = "at most 120 characters"
	}
	if !slugRe.MatchString(req.Slug) || len(req.Slug) > 60 {
		fieldErrs["slug"] = "lowercase letters, digits and hyphens"
	}
	if len(fieldErrs) > 0 {
		writeDomainError(w, h.logger, &model.ValidationError{FieldErrors: fieldErrs})
		return
	}

	now := time.Now().UTC()
	t := model.Team{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Slug:      req.Slug,
		CreatedAt: now,
	}
	owner := model.TeamMember{
		TeamID:   t.ID,
		UserID:   hostID,
		Role:     model.TeamRoleOwner,
		Accepted: true,
		JoinedAt: now,
	}
	if err := h.teams.CreateWithOwner(r.Context(), &t, &owner); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, teamItem{ID: t.ID, Name: t.Name, Slug: t.Slug, CreatedAt: t.CreatedAt})
}

// Invite adds a user as a pending member. Only an accepted owner may invite.
func (h *TeamsHandler) Invite(w http.ResponseWriter, r *http.Request) {
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
		TeamID string `json:"team_id"`
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.TeamID = strings.TrimSpace(req.TeamID)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.TeamID == "" || req.UserID == "" {
		http.Error(w, "team_id and user_id are required", http.StatusBadRequest)
		return
	}
	role := model.TeamRole(strings.TrimSpace(req.Role))
	if role == "" {
		role = model.TeamRoleMember
	}
	if role != model.TeamRoleOwner && role != model.TeamRoleMember {
		http.Error(w, "role must be OWNER or MEMBER", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := h.requireOwner(ctx, req.TeamID, hostID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	m := model.TeamMember{
		TeamID:   req.TeamID,
		UserID:   req.UserID,
		Role:     role,
		Accepted: false,
		JoinedAt: time.Now().UTC(),
	}
	if err := h.teams.AddMember(ctx, &m); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Accept marks the calling host's own pending invite as accepted.
func (h *TeamsHandler) Accept(w http.ResponseWriter, r *http.Request) {
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
		TeamID string `json:"team_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.TeamID = strings.TrimSpace(req.TeamID)
	if req.TeamID == "" {
		http.Error(w, "team_id is required", http.StatusBadRequest)
		return
	}

	if err := h.teams.AcceptInvite(r.Context(), req.TeamID, hostID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Remove drops a member. Owners may remove anyone; members may remove
// themselves (leave).
func (h *TeamsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hostID := hostFrom(r)
	if hostID == "" {
		http.Error(w, "host_id required", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	teamID := strings.TrimSpace(q.Get("team_id"))
	userID := strings.TrimSpace(q.Get("user_id"))
	if teamID == "" || userID == "" {
		http.Error(w, "team_id and user_id are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if userID != hostID {
		if err := h.requireOwner(ctx, teamID, hostID); err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
	}

	if err := h.teams.RemoveMember(ctx, teamID, userID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TeamsHandler) requireOwner(ctx context.Context, teamID, hostID string) error {
	members, err := h.teams.Members(ctx, teamID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.UserID == hostID && m.Role == model.TeamRoleOwner && m.Accepted {
			return nil
		}
	}
	return &model.NotFoundError{Entity: "team", ID: teamID}
}
