// Package chat implements the per-dinner group chat: a websocket hub for
// live fan-out plus message persistence for history.
package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Message is one chat message, as stored and as broadcast.
type Message struct {
	ID       string    `json:"id"`
	DinnerID string    `json:"dinner_id"`
	UserID   string    `json:"user_id"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

// MessageStore persists chat history.
type MessageStore interface {
	Save(ctx context.Context, m *Message) error
	History(ctx context.Context, dinnerID string, limit int) ([]*Message, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Save(ctx context.Context, m *Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, dinner_id, user_id, body, sent_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.DinnerID, m.UserID, m.Body, m.SentAt)
	return err
}

// History returns the latest messages in chronological order.
func (r *Repository) History(ctx context.Context, dinnerID string, limit int) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, dinner_id, user_id, body, sent_at FROM (
			SELECT id, dinner_id, user_id, body, sent_at
			FROM chat_messages WHERE dinner_id = $1
			ORDER BY sent_at DESC LIMIT $2
		) recent ORDER BY sent_at ASC`, dinnerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.DinnerID, &m.UserID, &m.Body, &m.SentAt); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Service ties the hub and the store together.
type Service struct {
	hub    *Hub
	store  MessageStore
	logger *slog.Logger
}

func NewService(hub *Hub, store MessageStore, logger *slog.Logger) *Service {
	return &Service{hub: hub, store: store, logger: logger}
}

// ServeWS upgrades the request and joins the user to the dinner's room.
func (s *Service) ServeWS(w http.ResponseWriter, r *http.Request, dinnerID, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, 32),
		dinnerID: dinnerID,
		userID:   userID,
	}
	s.hub.register <- client

	go client.writePump()
	go client.readPump(func(userID, body string) {
		s.handleMessage(dinnerID, userID, body)
	})
}

// handleMessage persists an inbound message and broadcasts it to the
// room. Persistence failure drops the broadcast too; history and live
// view must not diverge.
func (s *Service) handleMessage(dinnerID, userID, body string) {
	if body == "" {
		return
	}

	m := &Message{
		ID:       uuid.NewString(),
		DinnerID: dinnerID,
		UserID:   userID,
		Body:     body,
		SentAt:   time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, m); err != nil {
		s.logger.Error("failed to persist chat message", "dinner_id", dinnerID, "error", err)
		return
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return
	}
	s.hub.Broadcast(dinnerID, payload)
}

// History returns recent messages for a dinner room.
func (s *Service) History(ctx context.Context, dinnerID string, limit int) ([]*Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.History(ctx, dinnerID, limit)
}
