package storage

import (
	"context"

	"github.com/md-rashed-zaman/timeslot/libs/db"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) User(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, email, timezone, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.Timezone, &u.CreatedAt)
	if IsNotFound(err) {
		return model.User{}, &model.NotFoundError{Entity: "user", ID: id}
	}
	return u, err
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, timezone, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Name, u.Email, u.Timezone, u.CreatedAt)
	if IsUniqueViolation(err) {
		return model.Invalid("email", "already registered")
	}
	return err
}

// SetTimezone changes how the user's weekly schedule projects onto dates.
// Existing bookings keep their absolute instants.
func (r *UserRepository) SetTimezone(ctx context.Context, userID, timezone string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET timezone = $2,
			updated_at = now()
		WHERE id = $1
	`, userID, timezone)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Entity: "user", ID: userID}
	}
	return nil
}

// CalendarConnections feeds the external calendar bridge.
func (r *UserRepository) CalendarConnections(ctx context.Context, userID string) ([]model.CalendarConnection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, user_id::text, provider, calendar_id, settings, created_at
		FROM calendar_connections
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CalendarConnection
	for rows.Next() {
		var c model.CalendarConnection
		if err := rows.Scan(&c.ID, &c.UserID, &c.Provider, &c.CalendarID, &c.Settings, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *UserRepository) AddCalendarConnection(ctx context.Context, c *model.CalendarConnection) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO calendar_connections (id, user_id, provider, calendar_id, settings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.UserID, c.Provider, c.CalendarID, c.Settings, c.CreatedAt)
	return err
}

func (r *UserRepository) RemoveCalendarConnection(ctx context.Context, userID, connectionID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM calendar_connections
		WHERE id = $1 AND user_id = $2
	`, connectionID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Entity: "calendar connection", ID: connectionID}
	}
	return nil
}
