package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/models"
)

// ProgressionRepository reads and mutates user XP balances.
// Writes go through CompareAndSwap only.
type ProgressionRepository struct {
	db *DB
}

// NewProgressionRepository creates a new progression repository.
func NewProgressionRepository(db *DB) *ProgressionRepository {
	return &ProgressionRepository{db: db}
}

// Get returns the progression row of a user.
func (r *ProgressionRepository) Get(ctx context.Context, userID string) (*models.UserProgression, error) {
	return r.get(r.db.Conn(ctx), userID)
}

// GetForUpdate returns the progression row and locks it until the
// surrounding transaction ends. SQLite has no row locks; there the version
// check in CompareAndSwap is what serialises writers.
func (r *ProgressionRepository) GetForUpdate(ctx context.Context, userID string) (*models.UserProgression, error) {
	return r.get(r.db.Conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID)
}

func (r *ProgressionRepository) get(q *gorm.DB, userID string) (*models.UserProgression, error) {
	var p models.UserProgression
	if err := q.Where("user_id = ?", userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, fmt.Errorf("failed to get progression for user %s: %w", userID, err)
	}
	return &p, nil
}

// CompareAndSwap writes a new balance and level if the row still carries
// expectedVersion, bumping the version. It returns ErrConcurrentUpdate when
// another writer got there first.
func (r *ProgressionRepository) CompareAndSwap(ctx context.Context, userID string, expectedVersion, xp int64, level int) error {
	if xp < 0 {
		return apperrors.Invalid("xp", "balance cannot be negative (%d)", xp)
	}
	res := r.db.Conn(ctx).Model(&models.UserProgression{}).
		Where("user_id = ? AND version = ?", userID, expectedVersion).
		Updates(map[string]interface{}{
			"xp":         xp,
			"level":      level,
			"version":    gorm.Expr("version + 1"),
			"updated_at": utcNow(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update progression for user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrConcurrentUpdate
	}
	return nil
}

// TopByXP returns the highest balances, earliest to reach them first.
func (r *ProgressionRepository) TopByXP(ctx context.Context, limit int) ([]models.UserProgression, error) {
	var rows []models.UserProgression
	err := r.db.Conn(ctx).
		Order("xp DESC").
		Order("updated_at ASC").
		Order("user_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list top progressions: %w", err)
	}
	return rows, nil
}

// RankOf returns the 1-based leaderboard position of a user.
func (r *ProgressionRepository) RankOf(ctx context.Context, userID string) (int64, error) {
	p, err := r.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	var ahead int64
	err = r.db.Conn(ctx).Model(&models.UserProgression{}).
		Where("xp > ? OR (xp = ? AND updated_at < ?) OR (xp = ? AND updated_at = ? AND user_id < ?)",
			p.XP, p.XP, p.UpdatedAt, p.XP, p.UpdatedAt, p.UserID).
		Count(&ahead).Error
	if err != nil {
		return 0, fmt.Errorf("failed to rank user %s: %w", userID, err)
	}
	return ahead + 1, nil
}

// Count returns the number of users with a progression row.
func (r *ProgressionRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.Conn(ctx).Model(&models.UserProgression{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count progressions: %w", err)
	}
	return n, nil
}
