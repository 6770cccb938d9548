package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/models"
)

// ActionRepository handles action configuration rows.
type ActionRepository struct {
	db *DB
}

// NewActionRepository creates a new action repository.
func NewActionRepository(db *DB) *ActionRepository {
	return &ActionRepository{db: db}
}

// List returns every configured action.
func (r *ActionRepository) List(ctx context.Context) ([]models.ActionConfig, error) {
	var actions []models.ActionConfig
	if err := r.db.Conn(ctx).Order("action_key ASC").Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	return actions, nil
}

// Get returns one action configuration.
func (r *ActionRepository) Get(ctx context.Context, key string) (*models.ActionConfig, error) {
	var action models.ActionConfig
	if err := r.db.Conn(ctx).Where("action_key = ?", key).First(&action).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("action", key)
		}
		return nil, fmt.Errorf("failed to get action %s: %w", key, err)
	}
	return &action, nil
}

// Upsert creates or replaces an action configuration.
func (r *ActionRepository) Upsert(ctx context.Context, action *models.ActionConfig) error {
	err := r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "action_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"base_value", "daily_cap", "cooldown_seconds", "enabled", "description", "updated_at"}),
	}).Create(action).Error
	if err != nil {
		return fmt.Errorf("failed to upsert action %s: %w", action.ActionKey, err)
	}
	return nil
}

// AwardLogRepository appends and queries XP award log rows.
type AwardLogRepository struct {
	db *DB
}

// NewAwardLogRepository creates a new award log repository.
func NewAwardLogRepository(db *DB) *AwardLogRepository {
	return &AwardLogRepository{db: db}
}

// Create appends an award log row.
func (r *AwardLogRepository) Create(ctx context.Context, entry *models.ActionAwardLog) error {
	entry.CreatedAt = entry.CreatedAt.UTC()
	if err := r.db.Conn(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create award log: %w", err)
	}
	return nil
}

// CountInWindow counts awards of one action to one user in [from, to).
func (r *AwardLogRepository) CountInWindow(ctx context.Context, userID, actionKey string, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.Conn(ctx).Model(&models.ActionAwardLog{}).
		Where("user_id = ? AND action_key = ? AND created_at >= ? AND created_at < ?",
			userID, actionKey, from.UTC(), to.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count awards for %s/%s: %w", userID, actionKey, err)
	}
	return count, nil
}

// LatestAt returns the time of the most recent award of an action to a
// user, or nil if there is none.
func (r *AwardLogRepository) LatestAt(ctx context.Context, userID, actionKey string) (*time.Time, error) {
	var entry models.ActionAwardLog
	err := r.db.Conn(ctx).
		Where("user_id = ? AND action_key = ?", userID, actionKey).
		Order("created_at DESC").
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get latest award for %s/%s: %w", userID, actionKey, err)
	}
	if entry.ID == 0 {
		return nil, nil
	}
	at := entry.CreatedAt.UTC()
	return &at, nil
}

// ListForUser returns the most recent award rows of a user.
func (r *AwardLogRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.ActionAwardLog, error) {
	var entries []models.ActionAwardLog
	err := r.db.Conn(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list awards for user %s: %w", userID, err)
	}
	return entries, nil
}

// AdjustmentLogRepository appends and queries adjustment log rows.
type AdjustmentLogRepository struct {
	db *DB
}

// NewAdjustmentLogRepository creates a new adjustment log repository.
func NewAdjustmentLogRepository(db *DB) *AdjustmentLogRepository {
	return &AdjustmentLogRepository{db: db}
}

// Create appends an adjustment log row.
func (r *AdjustmentLogRepository) Create(ctx context.Context, entry *models.AdjustmentLog) error {
	entry.CreatedAt = entry.CreatedAt.UTC()
	if err := r.db.Conn(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create adjustment log: %w", err)
	}
	return nil
}

// ListForUser returns the adjustments applied to a user, newest first.
func (r *AdjustmentLogRepository) ListForUser(ctx context.Context, userID string) ([]models.AdjustmentLog, error) {
	var entries []models.AdjustmentLog
	err := r.db.Conn(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments for user %s: %w", userID, err)
	}
	return entries, nil
}

// ContextMultiplierRepository handles per-context XP multipliers.
type ContextMultiplierRepository struct {
	db *DB
}

// NewContextMultiplierRepository creates a new context multiplier repository.
func NewContextMultiplierRepository(db *DB) *ContextMultiplierRepository {
	return &ContextMultiplierRepository{db: db}
}

// Get returns the multiplier of a context; ok is false when none is set.
func (r *ContextMultiplierRepository) Get(ctx context.Context, contextID string) (value float64, ok bool, err error) {
	var m models.ContextMultiplier
	err = r.db.Conn(ctx).Where("context_id = ?", contextID).Limit(1).Find(&m).Error
	if err != nil {
		return 0, false, fmt.Errorf("failed to get multiplier for context %s: %w", contextID, err)
	}
	if m.ContextID == "" {
		return 0, false, nil
	}
	return m.Multiplier, true, nil
}

// Upsert creates or replaces a context multiplier.
func (r *ContextMultiplierRepository) Upsert(ctx context.Context, m *models.ContextMultiplier) error {
	err := r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "context_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"multiplier", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("failed to upsert multiplier for context %s: %w", m.ContextID, err)
	}
	return nil
}
