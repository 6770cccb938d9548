// Package notify queues user notifications and forwards them to the chat
// webhook.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/degentalk/progression/internal/mattermost"
	"github.com/degentalk/progression/internal/metrics"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/repository"
	"github.com/degentalk/progression/pkg/logger"
)

// Notification types.
const (
	TypeLevelUp          = "level_up"
	TypeMissionCompleted = "mission_completed"
)

// Outbox persists notifications.
type Outbox interface {
	Create(ctx context.Context, n *models.Notification) error
}

// Sender delivers a notification to chat.
type Sender interface {
	Enabled() bool
	SendNotification(ctx context.Context, username, kind, title, body string, fields map[string]string) error
}

// UserRepository resolves display names.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Service writes notifications to the outbox and forwards them.
type Service struct {
	outbox   Outbox
	sender   Sender
	users    UserRepository
	log      *logger.Logger
	inflight sync.WaitGroup
}

// NewService creates a new notification service with concrete dependencies.
func NewService(
	outbox *repository.NotificationRepository,
	sender *mattermost.Client,
	users *repository.UserRepository,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(outbox, sender, users, log)
}

// NewServiceWithInterfaces creates a new notification service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(outbox Outbox, sender Sender, users UserRepository, log *logger.Logger) *Service {
	return &Service{
		outbox: outbox,
		sender: sender,
		users:  users,
		log:    log.Component("notify"),
	}
}

// Enqueue stores a notification for a user. Webhook delivery happens in the
// background and its failures are only logged.
func (s *Service) Enqueue(ctx context.Context, userID, kind, title, body string, data map[string]interface{}) error {
	n := &models.Notification{
		UserID: userID,
		Type:   kind,
		Title:  title,
		Body:   body,
		Data:   data,
	}
	if err := s.outbox.Create(ctx, n); err != nil {
		metrics.RecordNotification(kind, "failed")
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	metrics.RecordNotification(kind, "queued")

	if s.sender == nil || !s.sender.Enabled() {
		return nil
	}

	fields := make(map[string]string, len(data))
	for k, v := range data {
		fields[k] = fmt.Sprint(v)
	}

	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.forward(ctx, userID, kind, title, body, fields)
	}()
	return nil
}

// Wait blocks until background deliveries finish.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) forward(ctx context.Context, userID, kind, title, body string, fields map[string]string) {
	username := userID
	if s.users != nil {
		if u, err := s.users.GetByID(ctx, userID); err == nil {
			username = u.Username
		}
	}

	if err := s.sender.SendNotification(ctx, username, kind, title, body, fields); err != nil {
		metrics.RecordNotification(kind, "delivery_failed")
		s.log.Warn().
			Err(err).
			Str("user_id", userID).
			Str("type", kind).
			Msg("Failed to deliver notification")
		return
	}
	metrics.RecordNotification(kind, "delivered")
}
