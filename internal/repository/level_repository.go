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

// LevelRepository handles the level threshold table.
type LevelRepository struct {
	db *DB
}

// NewLevelRepository creates a new level repository.
func NewLevelRepository(db *DB) *LevelRepository {
	return &LevelRepository{db: db}
}

// List returns all levels in ascending order.
func (r *LevelRepository) List(ctx context.Context) ([]models.Level, error) {
	var levels []models.Level
	if err := r.db.Conn(ctx).Order("level ASC").Find(&levels).Error; err != nil {
		return nil, fmt.Errorf("failed to list levels: %w", err)
	}
	return levels, nil
}

// Upsert creates or replaces a level definition.
func (r *LevelRepository) Upsert(ctx context.Context, level *models.Level) error {
	err := r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "level"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"min_xp", "name", "rarity", "reward_currency", "reward_title_id", "reward_badge_id", "unlocks", "updated_at",
		}),
	}).Create(level).Error
	if err != nil {
		return fmt.Errorf("failed to upsert level %d: %w", level.Level, err)
	}
	return nil
}

// TitleRepository handles titles and the titles users hold.
type TitleRepository struct {
	db *DB
}

// NewTitleRepository creates a new title repository.
func NewTitleRepository(db *DB) *TitleRepository {
	return &TitleRepository{db: db}
}

// Upsert creates or replaces a title.
func (r *TitleRepository) Upsert(ctx context.Context, title *models.Title) error {
	err := r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "rarity"}),
	}).Create(title).Error
	if err != nil {
		return fmt.Errorf("failed to upsert title %s: %w", title.ID, err)
	}
	return nil
}

// GetByID retrieves a title.
func (r *TitleRepository) GetByID(ctx context.Context, id string) (*models.Title, error) {
	var title models.Title
	if err := r.db.Conn(ctx).Where("id = ?", id).First(&title).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("title", id)
		}
		return nil, fmt.Errorf("failed to get title %s: %w", id, err)
	}
	return &title, nil
}

// HasTitle checks if a user holds a title.
func (r *TitleRepository) HasTitle(ctx context.Context, userID, titleID string) (bool, error) {
	var count int64
	err := r.db.Conn(ctx).Model(&models.UserTitle{}).
		Where("user_id = ? AND title_id = ?", userID, titleID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check title %s for user %s: %w", titleID, userID, err)
	}
	return count > 0, nil
}

// Grant gives a title to a user unless they already hold it.
func (r *TitleRepository) Grant(ctx context.Context, userID, titleID string) (models.GrantStatus, error) {
	held, err := r.HasTitle(ctx, userID, titleID)
	if err != nil {
		return "", err
	}
	if held {
		return models.GrantAlreadyHeld, nil
	}

	row := &models.UserTitle{UserID: userID, TitleID: titleID, GrantedAt: utcNow()}
	res := r.db.Conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return "", fmt.Errorf("failed to grant title %s to user %s: %w", titleID, userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.GrantAlreadyHeld, nil
	}
	return models.GrantNewlyGranted, nil
}

// GetUserTitles returns the titles a user holds, newest first.
func (r *TitleRepository) GetUserTitles(ctx context.Context, userID string) ([]models.UserTitle, error) {
	var titles []models.UserTitle
	err := r.db.Conn(ctx).
		Where("user_id = ?", userID).
		Preload("Title").
		Order("granted_at DESC").
		Find(&titles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list titles for user %s: %w", userID, err)
	}
	return titles, nil
}

// RewardGrantRepository records level rewards that have no ownership row of
// their own, so replays of the same level-up can be detected.
type RewardGrantRepository struct {
	db *DB
}

// NewRewardGrantRepository creates a new reward grant repository.
func NewRewardGrantRepository(db *DB) *RewardGrantRepository {
	return &RewardGrantRepository{db: db}
}

// Exists checks whether a level reward of a kind was already granted.
func (r *RewardGrantRepository) Exists(ctx context.Context, userID string, level int, kind models.RewardKind) (bool, error) {
	var count int64
	err := r.db.Conn(ctx).Model(&models.LevelRewardGrant{}).
		Where("user_id = ? AND level = ? AND kind = ?", userID, level, kind).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check %s reward for level %d: %w", kind, level, err)
	}
	return count > 0, nil
}

// Record inserts the grant marker. It reports false when a concurrent
// writer recorded the same grant first.
func (r *RewardGrantRepository) Record(ctx context.Context, grant *models.LevelRewardGrant) (bool, error) {
	res := r.db.Conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(grant)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record %s reward for level %d: %w", grant.Kind, grant.Level, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListForUser returns the recorded level grants of a user.
func (r *RewardGrantRepository) ListForUser(ctx context.Context, userID string) ([]models.LevelRewardGrant, error) {
	var grants []models.LevelRewardGrant
	err := r.db.Conn(ctx).
		Where("user_id = ?", userID).
		Order("level ASC").
		Order("kind ASC").
		Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reward grants for user %s: %w", userID, err)
	}
	return grants, nil
}
