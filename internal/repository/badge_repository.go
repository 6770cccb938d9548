package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/models"
)

// BadgeRepository handles badge-related database operations.
type BadgeRepository struct {
	db *DB
}

// NewBadgeRepository creates a new badge repository.
func NewBadgeRepository(db *DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// Create creates a new badge in the database.
func (r *BadgeRepository) Create(ctx context.Context, badge *models.Badge) error {
	if err := r.db.Conn(ctx).Create(badge).Error; err != nil {
		return fmt.Errorf("failed to create badge %s: %w", badge.Name, err)
	}
	return nil
}

// Upsert creates a badge or updates it by name, filling in badge.ID.
func (r *BadgeRepository) Upsert(ctx context.Context, badge *models.Badge) error {
	existing, err := r.GetByName(ctx, badge.Name)
	switch {
	case err == nil:
		badge.ID = existing.ID
		badge.CreatedAt = existing.CreatedAt
		if err := r.db.Conn(ctx).Save(badge).Error; err != nil {
			return fmt.Errorf("failed to update badge %s: %w", badge.Name, err)
		}
		return nil
	case apperrors.IsNotFound(err):
		return r.Create(ctx, badge)
	default:
		return err
	}
}

// GetByID retrieves a badge by its ID.
func (r *BadgeRepository) GetByID(ctx context.Context, id uint) (*models.Badge, error) {
	var badge models.Badge
	if err := r.db.Conn(ctx).First(&badge, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("badge", strconv.FormatUint(uint64(id), 10))
		}
		return nil, fmt.Errorf("failed to get badge %d: %w", id, err)
	}
	return &badge, nil
}

// GetByName retrieves a badge by its name.
func (r *BadgeRepository) GetByName(ctx context.Context, name string) (*models.Badge, error) {
	var badge models.Badge
	if err := r.db.Conn(ctx).Where("name = ?", name).First(&badge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("badge", name)
		}
		return nil, fmt.Errorf("failed to get badge %s: %w", name, err)
	}
	return &badge, nil
}

// GetAll retrieves all badges from the database.
func (r *BadgeRepository) GetAll(ctx context.Context) ([]models.Badge, error) {
	var badges []models.Badge
	err := r.db.Conn(ctx).Order("created_at ASC").Order("id ASC").Find(&badges).Error
	return badges, err
}

// Grant awards a badge to a user. Awarding a badge the user already holds
// is not an error and reports GrantAlreadyHeld.
func (r *BadgeRepository) Grant(ctx context.Context, userID string, badgeID uint) (models.GrantStatus, error) {
	exists, err := r.HasUserEarnedBadge(ctx, userID, badgeID)
	if err != nil {
		return "", err
	}
	if exists {
		return models.GrantAlreadyHeld, nil
	}

	userBadge := &models.UserBadge{
		UserID:   userID,
		BadgeID:  badgeID,
		EarnedAt: utcNow(),
	}
	res := r.db.Conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(userBadge)
	if res.Error != nil {
		return "", fmt.Errorf("failed to award badge %d to user %s: %w", badgeID, userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.GrantAlreadyHeld, nil
	}
	return models.GrantNewlyGranted, nil
}

// GetUserBadges retrieves all badges earned by a user with badge details preloaded.
func (r *BadgeRepository) GetUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error) {
	var userBadges []models.UserBadge
	err := r.db.Conn(ctx).
		Where("user_id = ?", userID).
		Preload("Badge").
		Order("earned_at DESC").
		Find(&userBadges).Error
	return userBadges, err
}

// HasUserEarnedBadge checks if a user has earned a specific badge.
func (r *BadgeRepository) HasUserEarnedBadge(ctx context.Context, userID string, badgeID uint) (bool, error) {
	var count int64
	err := r.db.Conn(ctx).Model(&models.UserBadge{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetBadgeHoldersCount returns the number of users who have earned a specific badge.
func (r *BadgeRepository) GetBadgeHoldersCount(ctx context.Context, badgeID uint) (int64, error) {
	var count int64
	err := r.db.Conn(ctx).Model(&models.UserBadge{}).
		Where("badge_id = ?", badgeID).
		Count(&count).Error
	return count, err
}

// GetUsersWithBadge retrieves the users holding a badge, earliest holder first.
func (r *BadgeRepository) GetUsersWithBadge(ctx context.Context, badgeID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.Conn(ctx).
		Joins("JOIN user_badges ON user_badges.user_id = users.id").
		Where("user_badges.badge_id = ?", badgeID).
		Order("user_badges.earned_at ASC").
		Find(&users).Error
	return users, err
}
