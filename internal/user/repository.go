package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Store is the persistence surface the user service depends on.
type Store interface {
	Create(ctx context.Context, u *User) error
	ByEmail(ctx context.Context, email string) (*User, error)
	ByID(ctx context.Context, id string) (*User, error)
	UpdateDeviceToken(ctx context.Context, id string, token *string, at time.Time) error
	UpdatePreferences(ctx context.Context, id string, pushEnabled, emailEnabled bool, at time.Time) error
	Delete(ctx context.Context, id string) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, email, password_hash, display_name, device_token, push_enabled, email_enabled, is_admin, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.DeviceToken,
		&u.PushEnabled, &u.EmailEnabled, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, email, password_hash, display_name, push_enabled, email_enabled, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.DisplayName, u.PushEnabled, u.EmailEnabled, u.IsAdmin, u.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *Repository) ByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return u, err
}

func (r *Repository) ByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return u, err
}

// UpdateDeviceToken sets or clears the user's push endpoint.
func (r *Repository) UpdateDeviceToken(ctx context.Context, id string, token *string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET device_token = $1, updated_at = $2 WHERE id = $3`, token, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *Repository) UpdatePreferences(ctx context.Context, id string, pushEnabled, emailEnabled bool, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET push_enabled = $1, email_enabled = $2, updated_at = $3 WHERE id = $4`,
		pushEnabled, emailEnabled, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes the account; bookings, connections and notifications go
// with it via the schema's cascades.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
