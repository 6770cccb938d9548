package leaderboard

import (
	"context"
	"fmt"

	"github.com/degentalk/progression/internal/models"
)

// UserStats summarises a user's standing.
type UserStats struct {
	UserID    string         `json:"user_id"`
	Username  string         `json:"username"`
	XP        int64          `json:"xp"`
	Level     int            `json:"level"`
	LevelName string         `json:"level_name,omitempty"`
	Rank      int64          `json:"rank"`
	Badges    []models.Badge `json:"badges"`
}

// GetUserStats returns a user's balance, rank and badges.
func (s *Service) GetUserStats(ctx context.Context, userID string) (*UserStats, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, err := s.progressionRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	rank, err := s.progressionRepo.RankOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &UserStats{
		UserID:   userID,
		Username: user.Username,
		XP:       p.XP,
		Level:    p.Level,
		Rank:     rank,
		Badges:   []models.Badge{},
	}
	if table, err := s.levels.Table(ctx); err == nil {
		if l, ok := table.Get(p.Level); ok {
			stats.LevelName = l.Name
		}
	}

	userBadges, err := s.badgeRepo.GetUserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get badges: %w", err)
	}
	for _, ub := range userBadges {
		stats.Badges = append(stats.Badges, ub.Badge)
	}
	return stats, nil
}
