// Package connection implements friend-style connections between users
// who met at a dinner.
package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusDeclined = "declined"
)

var (
	ErrNotFound      = errors.New("connection not found")
	ErrSelfConnect   = errors.New("cannot connect with yourself")
	ErrAlreadyLinked = errors.New("connection already exists")
	ErrNotPending    = errors.New("connection is not pending")
)

// Connection links two users. Only the receiver may accept or decline.
type Connection struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store is the persistence surface the connection service depends on.
type Store interface {
	Create(ctx context.Context, c *Connection) error
	ByID(ctx context.Context, id string) (*Connection, error)
	Between(ctx context.Context, userA, userB string) (*Connection, error)
	ForUser(ctx context.Context, userID string) ([]*Connection, error)
	SetStatus(ctx context.Context, id, status string, at time.Time) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const connectionColumns = `id, sender_id, receiver_id, status, created_at, updated_at`

func scanConnection(row interface{ Scan(dest ...any) error }) (*Connection, error) {
	var c Connection
	err := row.Scan(&c.ID, &c.SenderID, &c.ReceiverID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) Create(ctx context.Context, c *Connection) error {
	query := `
		INSERT INTO connections (id, sender_id, receiver_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`
	_, err := r.db.ExecContext(ctx, query, c.ID, c.SenderID, c.ReceiverID, c.Status, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert connection: %w", err)
	}
	return nil
}

func (r *Repository) ByID(ctx context.Context, id string) (*Connection, error) {
	c, err := scanConnection(r.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// Between finds any non-declined connection in either direction.
func (r *Repository) Between(ctx context.Context, userA, userB string) (*Connection, error) {
	c, err := scanConnection(r.db.QueryRowContext(ctx, `
		SELECT `+connectionColumns+` FROM connections
		WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		  AND status != 'declined'
		LIMIT 1`, userA, userB))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

func (r *Repository) ForUser(ctx context.Context, userID string) ([]*Connection, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+connectionColumns+` FROM connections
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var connections []*Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, c)
	}
	return connections, rows.Err()
}

func (r *Repository) SetStatus(ctx context.Context, id, status string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE connections SET status = $1, updated_at = $2 WHERE id = $3`, status, at, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
