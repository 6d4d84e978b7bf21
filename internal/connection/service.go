package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tablemate/tablemate/internal/notification"
)

// Notifier is the slice of the notification service the connection flow
// uses.
type Notifier interface {
	Create(ctx context.Context, p notification.CreateParams) (*notification.Notification, error)
}

// Service owns the connection lifecycle: request, accept, decline.
type Service struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Request creates a pending connection and notifies the receiver.
func (s *Service) Request(ctx context.Context, senderID, receiverID, senderName string) (*Connection, error) {
	if senderID == receiverID {
		return nil, ErrSelfConnect
	}

	existing, err := s.store.Between(ctx, senderID, receiverID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyLinked
	}

	c := &Connection{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     StatusPending,
		CreatedAt:  s.now().UTC(),
	}
	c.UpdatedAt = c.CreatedAt

	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}

	connectionID := c.ID
	_, err = s.notifier.Create(ctx, notification.CreateParams{
		UserID:       receiverID,
		Type:         notification.TypeConnectionRequest,
		Title:        "New Connection Request",
		Message:      fmt.Sprintf("%s wants to connect with you!", senderName),
		ConnectionID: &connectionID,
	})
	if err != nil {
		s.logger.Warn("failed to notify connection request", "connection_id", c.ID, "error", err)
	}

	return c, nil
}

// Accept marks the connection accepted and notifies the original sender.
// Only the receiver may accept.
func (s *Service) Accept(ctx context.Context, connectionID, userID, accepterName string) (*Connection, error) {
	c, err := s.store.ByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if c.ReceiverID != userID {
		return nil, ErrNotFound
	}
	if c.Status != StatusPending {
		return nil, ErrNotPending
	}

	if err := s.store.SetStatus(ctx, connectionID, StatusAccepted, s.now().UTC()); err != nil {
		return nil, err
	}
	c.Status = StatusAccepted

	id := c.ID
	_, err = s.notifier.Create(ctx, notification.CreateParams{
		UserID:       c.SenderID,
		Type:         notification.TypeConnectionAccepted,
		Title:        "Connection Accepted!",
		Message:      fmt.Sprintf("%s accepted your connection request.", accepterName),
		ConnectionID: &id,
	})
	if err != nil {
		s.logger.Warn("failed to notify connection accepted", "connection_id", c.ID, "error", err)
	}

	return c, nil
}

// Decline marks the connection declined. The sender is not notified.
func (s *Service) Decline(ctx context.Context, connectionID, userID string) error {
	c, err := s.store.ByID(ctx, connectionID)
	if err != nil {
		return err
	}
	if c.ReceiverID != userID {
		return ErrNotFound
	}
	if c.Status != StatusPending {
		return ErrNotPending
	}
	return s.store.SetStatus(ctx, connectionID, StatusDeclined, s.now().UTC())
}

func (s *Service) ForUser(ctx context.Context, userID string) ([]*Connection, error) {
	return s.store.ForUser(ctx, userID)
}
