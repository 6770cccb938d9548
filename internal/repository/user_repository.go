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

// UserRepository handles user and role database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a user together with its progression row at {xp:0, level:1}.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.Transaction(ctx, func(ctx context.Context) error {
		if err := r.db.Conn(ctx).Create(user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		progression := &models.UserProgression{UserID: user.ID, XP: 0, Level: 1}
		if err := r.db.Conn(ctx).Create(progression).Error; err != nil {
			return fmt.Errorf("failed to create progression for user %s: %w", user.ID, err)
		}
		return nil
	})
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.Conn(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, fmt.Errorf("failed to get user by id %s: %w", id, err)
	}
	return &user, nil
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.Conn(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user", username)
		}
		return nil, fmt.Errorf("failed to get user by username %s: %w", username, err)
	}
	return &user, nil
}

// GetRoles returns the roles assigned to a user.
func (r *UserRepository) GetRoles(ctx context.Context, userID string) ([]models.Role, error) {
	var roles []models.Role
	err := r.db.Conn(ctx).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get roles for user %s: %w", userID, err)
	}
	return roles, nil
}

// UpsertRole creates a role or updates its multiplier by name.
func (r *UserRepository) UpsertRole(ctx context.Context, role *models.Role) error {
	err := r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"xp_multiplier"}),
	}).Create(role).Error
	if err != nil {
		return fmt.Errorf("failed to upsert role %s: %w", role.Name, err)
	}
	if role.ID == 0 {
		return r.db.Conn(ctx).Where("name = ?", role.Name).First(role).Error
	}
	return nil
}

// AssignRole links a role to a user. Assigning twice is a no-op.
func (r *UserRepository) AssignRole(ctx context.Context, userID, roleName string) error {
	var role models.Role
	if err := r.db.Conn(ctx).Where("name = ?", roleName).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("role", roleName)
		}
		return fmt.Errorf("failed to get role %s: %w", roleName, err)
	}
	link := map[string]interface{}{"user_id": userID, "role_id": role.ID}
	err := r.db.Conn(ctx).Table("user_roles").Clauses(clause.OnConflict{DoNothing: true}).Create(link).Error
	if err != nil {
		return fmt.Errorf("failed to assign role %s to user %s: %w", roleName, userID, err)
	}
	return nil
}
