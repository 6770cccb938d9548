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

// MissionRepository handles mission definitions.
type MissionRepository struct {
	db *DB
}

// NewMissionRepository creates a new mission repository.
func NewMissionRepository(db *DB) *MissionRepository {
	return &MissionRepository{db: db}
}

// Upsert creates or replaces a mission definition.
func (r *MissionRepository) Upsert(ctx context.Context, mission *models.Mission) error {
	if mission.ExpiresAt != nil {
		t := mission.ExpiresAt.UTC()
		mission.ExpiresAt = &t
	}
	err := r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "action_type", "required_count", "reward_xp", "reward_currency",
			"reward_badge_id", "cadence", "min_level", "expires_at", "is_active", "updated_at",
		}),
	}).Create(mission).Error
	if err != nil {
		return fmt.Errorf("failed to upsert mission %s: %w", mission.ID, err)
	}
	return nil
}

// GetByID retrieves a mission.
func (r *MissionRepository) GetByID(ctx context.Context, id string) (*models.Mission, error) {
	var mission models.Mission
	if err := r.db.Conn(ctx).Where("id = ?", id).First(&mission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("mission", id)
		}
		return nil, fmt.Errorf("failed to get mission %s: %w", id, err)
	}
	return &mission, nil
}

// ListActive returns active missions that have not expired at now. An
// empty actionType matches every action.
func (r *MissionRepository) ListActive(ctx context.Context, actionType string, now time.Time) ([]models.Mission, error) {
	q := r.db.Conn(ctx).
		Where("is_active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", now.UTC())
	if actionType != "" {
		q = q.Where("action_type = ?", actionType)
	}

	var missions []models.Mission
	if err := q.Order("created_at ASC").Order("id ASC").Find(&missions).Error; err != nil {
		return nil, fmt.Errorf("failed to list active missions: %w", err)
	}
	return missions, nil
}

// ListDue returns missions of a cadence whose window closed at or before now.
// A window ending exactly at now is due, matching ListActive which already
// treats it as expired.
func (r *MissionRepository) ListDue(ctx context.Context, cadence models.Cadence, now time.Time) ([]models.Mission, error) {
	var missions []models.Mission
	err := r.db.Conn(ctx).
		Where("cadence = ? AND expires_at IS NOT NULL AND expires_at <= ?", cadence, now.UTC()).
		Order("id ASC").
		Find(&missions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due %s missions: %w", cadence, err)
	}
	return missions, nil
}

// AdvanceExpiry moves a mission's window to next, but only if it is still
// expired at now. It reports whether this call won the update.
func (r *MissionRepository) AdvanceExpiry(ctx context.Context, id string, now, next time.Time) (bool, error) {
	res := r.db.Conn(ctx).Model(&models.Mission{}).
		Where("id = ? AND expires_at IS NOT NULL AND expires_at <= ?", id, now.UTC()).
		Updates(map[string]interface{}{
			"expires_at": next.UTC(),
			"updated_at": utcNow(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to advance mission %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MissionProgressRepository handles per-user mission counters.
type MissionProgressRepository struct {
	db *DB
}

// NewMissionProgressRepository creates a new mission progress repository.
func NewMissionProgressRepository(db *DB) *MissionProgressRepository {
	return &MissionProgressRepository{db: db}
}

// GetOrCreateForUpdate returns the user's progress row for a mission,
// creating it at zero when missing, and locks it for the transaction.
func (r *MissionProgressRepository) GetOrCreateForUpdate(ctx context.Context, userID, missionID string) (*models.MissionProgress, error) {
	row := &models.MissionProgress{UserID: userID, MissionID: missionID}
	if err := r.db.Conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to init progress for mission %s: %w", missionID, err)
	}

	var p models.MissionProgress
	err := r.db.Conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND mission_id = ?", userID, missionID).
		First(&p).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get progress for mission %s: %w", missionID, err)
	}
	return &p, nil
}

// Get returns a progress row.
func (r *MissionProgressRepository) Get(ctx context.Context, userID, missionID string) (*models.MissionProgress, error) {
	var p models.MissionProgress
	err := r.db.Conn(ctx).Where("user_id = ? AND mission_id = ?", userID, missionID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("mission progress", missionID)
		}
		return nil, fmt.Errorf("failed to get progress for mission %s: %w", missionID, err)
	}
	return &p, nil
}

// SaveCount writes a new count and completion state. The write only lands
// if the row still holds expectedCount and is not yet completed.
func (r *MissionProgressRepository) SaveCount(ctx context.Context, p *models.MissionProgress, expectedCount int) error {
	res := r.db.Conn(ctx).Model(&models.MissionProgress{}).
		Where("id = ? AND current_count = ? AND is_completed = ?", p.ID, expectedCount, false).
		Updates(map[string]interface{}{
			"current_count": p.CurrentCount,
			"is_completed":  p.IsCompleted,
			"completed_at":  p.CompletedAt,
			"updated_at":    utcNow(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to save progress %d: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrConcurrentUpdate
	}
	return nil
}

// MarkClaimed flips a completed, unclaimed row to claimed. It reports
// whether this call performed the transition.
func (r *MissionProgressRepository) MarkClaimed(ctx context.Context, userID, missionID string, now time.Time) (bool, error) {
	res := r.db.Conn(ctx).Model(&models.MissionProgress{}).
		Where("user_id = ? AND mission_id = ? AND is_completed = ? AND is_reward_claimed = ?", userID, missionID, true, false).
		Updates(map[string]interface{}{
			"is_reward_claimed": true,
			"claimed_at":        now.UTC(),
			"updated_at":        utcNow(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim mission %s: %w", missionID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ResetForMission puts every progress row of a mission back to its initial
// state and returns how many rows changed.
func (r *MissionProgressRepository) ResetForMission(ctx context.Context, missionID string) (int64, error) {
	res := r.db.Conn(ctx).Model(&models.MissionProgress{}).
		Where("mission_id = ?", missionID).
		Updates(map[string]interface{}{
			"current_count":     0,
			"is_completed":      false,
			"is_reward_claimed": false,
			"completed_at":      nil,
			"claimed_at":        nil,
			"updated_at":        utcNow(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reset progress for mission %s: %w", missionID, res.Error)
	}
	return res.RowsAffected, nil
}

// ListForUser returns every progress row of a user.
func (r *MissionProgressRepository) ListForUser(ctx context.Context, userID string) ([]models.MissionProgress, error) {
	var rows []models.MissionProgress
	if err := r.db.Conn(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list progress for user %s: %w", userID, err)
	}
	return rows, nil
}
