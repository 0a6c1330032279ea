package storage

import (
	"context"

	"github.com/md-rashed-zaman/timeslot/libs/db"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

type TeamRepository struct {
	pool *db.Pool
}

func NewTeamRepository(pool *db.Pool) *TeamRepository {
	return &TeamRepository{pool: pool}
}

func (r *TeamRepository) Team(ctx context.Context, teamID string) (model.Team, error) {
	var t model.Team
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, slug, created_at
		FROM teams
		WHERE id = $1
	`, teamID).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt)
	if IsNotFound(err) {
		return model.Team{}, &model.NotFoundError{Entity: "team", ID: teamID}
	}
	return t, err
}

// AcceptedMembers orders by join time, then user ID, so round-robin
// tie-breaking is deterministic across calls.
func (r *TeamRepository) AcceptedMembers(ctx context.Context, teamID string) ([]model.TeamMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT team_id::text, user_id::text, role, accepted, joined_at
		FROM team_members
		WHERE team_id = $1 AND accepted
		ORDER BY joined_at ASC, user_id ASC
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TeamMember
	for rows.Next() {
		var m model.TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.Accepted, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Members lists every member including pending invites.
func (r *TeamRepository) Members(ctx context.Context, teamID string) ([]model.TeamMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT team_id::text, user_id::text, role, accepted, joined_at
		FROM team_members
		WHERE team_id = $1
		ORDER BY joined_at ASC, user_id ASC
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TeamMember
	for rows.Next() {
		var m model.TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.Accepted, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateWithOwner creates the team and seeds its owner as an accepted member
// in one transaction, so a team never exists without an owner.
func (r *TeamRepository) CreateWithOwner(ctx context.Context, t *model.Team, owner *model.TeamMember) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO teams (id, name, slug, created_at)
		VALUES ($1, $2, $3, $4)
	`, t.ID, t.Name, t.Slug, t.CreatedAt)
	if IsUniqueViolation(err) {
		return model.Invalid("slug", "already in use")
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, role, accepted, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, owner.TeamID, owner.UserID, string(owner.Role), owner.Accepted, owner.JoinedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// AddMember invites a user; Accepted starts false unless the caller is
// seeding the owner.
func (r *TeamRepository) AddMember(ctx context.Context, m *model.TeamMember) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO team_members (team_id, user_id, role, accepted, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.TeamID, m.UserID, string(m.Role), m.Accepted, m.JoinedAt)
	if IsUniqueViolation(err) {
		return model.Invalid("userId", "already a member")
	}
	return err
}

func (r *TeamRepository) AcceptInvite(ctx context.Context, teamID, userID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE team_members
		SET accepted = true,
			joined_at = now()
		WHERE team_id = $1 AND user_id = $2
	`, teamID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Entity: "team member", ID: userID}
	}
	return nil
}

func (r *TeamRepository) RemoveMember(ctx context.Context, teamID, userID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM team_members
		WHERE team_id = $1 AND user_id = $2
	`, teamID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Entity: "team member", ID: userID}
	}
	return nil
}
