package repository

import (
	"context"
	"fmt"

	"github.com/degentalk/progression/internal/models"
)

// WalletRepository is the append-only currency ledger.
type WalletRepository struct {
	db *DB
}

// NewWalletRepository creates a new wallet repository.
func NewWalletRepository(db *DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Create appends a ledger row.
func (r *WalletRepository) Create(ctx context.Context, tx *models.WalletTransaction) error {
	if err := r.db.Conn(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create wallet transaction: %w", err)
	}
	return nil
}

// Balance sums the ledger of a user.
func (r *WalletRepository) Balance(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.Conn(ctx).Model(&models.WalletTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ?", userID).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum wallet for user %s: %w", userID, err)
	}
	return total, nil
}

// NotificationRepository is the notification outbox.
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create appends an outbox row.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if err := r.db.Conn(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListForUser returns the notifications of a user, newest first.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var rows []models.Notification
	err := r.db.Conn(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for user %s: %w", userID, err)
	}
	return rows, nil
}
