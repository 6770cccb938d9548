// Package badges serves the badge catalog and who holds which badge.
// Badges are granted by level rewards and mission claims.
package badges

import (
	"context"
	"fmt"

	prommetrics "github.com/degentalk/progression/internal/metrics"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/repository"
	"github.com/degentalk/progression/pkg/logger"
)

// BadgeRepository interface for badge operations.
type BadgeRepository interface {
	GetAll(ctx context.Context) ([]models.Badge, error)
	GetByID(ctx context.Context, id uint) (*models.Badge, error)
	GetUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error)
	GetUsersWithBadge(ctx context.Context, badgeID uint) ([]models.User, error)
	GetBadgeHoldersCount(ctx context.Context, badgeID uint) (int64, error)
}

// CatalogEntry is a badge with its current number of holders.
type CatalogEntry struct {
	models.Badge
	Holders int64 `json:"holders"`
}

// Service reads badges and their holders.
type Service struct {
	badgeRepo BadgeRepository
	log       *logger.Logger
}

// NewService creates a new badge service.
func NewService(badgeRepo *repository.BadgeRepository, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(badgeRepo, log)
}

// NewServiceWithInterfaces creates a new badge service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(badgeRepo BadgeRepository, log *logger.Logger) *Service {
	return &Service{
		badgeRepo: badgeRepo,
		log:       log.Component("badges"),
	}
}

// GetBadgeCatalog retrieves all badges with holder counts and refreshes the
// holder gauges.
func (s *Service) GetBadgeCatalog(ctx context.Context) ([]CatalogEntry, error) {
	all, err := s.badgeRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get badges: %w", err)
	}

	entries := make([]CatalogEntry, 0, len(all))
	for _, badge := range all {
		entry, err := s.withHolders(ctx, badge)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	s.log.Debug().Int("badge_count", len(entries)).Msg("Retrieved badge catalog")
	return entries, nil
}

// GetBadgeByID retrieves one badge with its holder count.
func (s *Service) GetBadgeByID(ctx context.Context, badgeID uint) (*CatalogEntry, error) {
	badge, err := s.badgeRepo.GetByID(ctx, badgeID)
	if err != nil {
		return nil, err
	}

	entry, err := s.withHolders(ctx, *badge)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetBadgeHolders retrieves the users holding a badge. Unknown badges are
// reported as not found rather than as an empty list.
func (s *Service) GetBadgeHolders(ctx context.Context, badgeID uint) ([]models.User, error) {
	if _, err := s.badgeRepo.GetByID(ctx, badgeID); err != nil {
		return nil, err
	}

	users, err := s.badgeRepo.GetUsersWithBadge(ctx, badgeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get holders of badge %d: %w", badgeID, err)
	}
	return users, nil
}

// GetUserBadges retrieves all badges earned by a user, newest first.
func (s *Service) GetUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error) {
	userBadges, err := s.badgeRepo.GetUserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get badges of user %s: %w", userID, err)
	}
	return userBadges, nil
}

func (s *Service) withHolders(ctx context.Context, badge models.Badge) (CatalogEntry, error) {
	count, err := s.badgeRepo.GetBadgeHoldersCount(ctx, badge.ID)
	if err != nil {
		return CatalogEntry{}, fmt.Errorf("failed to count holders of badge %s: %w", badge.Name, err)
	}
	prommetrics.SetActiveBadgeHolders(badge.Name, count)
	return CatalogEntry{Badge: badge, Holders: count}, nil
}
