// Package leaderboard ranks users by XP.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/degentalk/progression/internal/events"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/repository"
	"github.com/degentalk/progression/internal/service/levels"
	"github.com/degentalk/progression/pkg/logger"
)

const (
	generationKey = "leaderboard:generation"
	defaultTTL    = 30 * time.Second
	maxLimit      = 100
)

// ProgressionRepository interface for ranking queries.
type ProgressionRepository interface {
	Get(ctx context.Context, userID string) (*models.UserProgression, error)
	TopByXP(ctx context.Context, limit int) ([]models.UserProgression, error)
	RankOf(ctx context.Context, userID string) (int64, error)
}

// UserRepository interface for user operations.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// BadgeRepository interface for badge operations.
type BadgeRepository interface {
	GetUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error)
}

// LevelSource serves the level table.
type LevelSource interface {
	Table(ctx context.Context) (levels.Table, error)
}

// Cache stores rendered leaderboards. A nil cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

// Entry represents a single entry in a leaderboard.
type Entry struct {
	Rank      int    `json:"rank"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	XP        int64  `json:"xp"`
	Level     int    `json:"level"`
	LevelName string `json:"level_name,omitempty"`
}

// Service handles leaderboard generation and user statistics.
type Service struct {
	progressionRepo ProgressionRepository
	userRepo        UserRepository
	badgeRepo       BadgeRepository
	levels          LevelSource
	cache           Cache
	ttl             time.Duration
	log             *logger.Logger
}

// NewService creates a new leaderboard service with concrete repository types.
// cache may be nil.
func NewService(
	progressionRepo *repository.ProgressionRepository,
	userRepo *repository.UserRepository,
	badgeRepo *repository.BadgeRepository,
	levelResolver *levels.Resolver,
	cache Cache,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(progressionRepo, userRepo, badgeRepo, levelResolver, cache, log)
}

// NewServiceWithInterfaces creates a new leaderboard service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	progressionRepo ProgressionRepository,
	userRepo UserRepository,
	badgeRepo BadgeRepository,
	levels LevelSource,
	cache Cache,
	log *logger.Logger,
) *Service {
	return &Service{
		progressionRepo: progressionRepo,
		userRepo:        userRepo,
		badgeRepo:       badgeRepo,
		levels:          levels,
		cache:           cache,
		ttl:             defaultTTL,
		log:             log.Component("leaderboard"),
	}
}

// Register invalidates the cached leaderboard whenever XP is awarded.
func (s *Service) Register(bus *events.Bus) {
	bus.Subscribe("leaderboard", func(ctx context.Context, e events.ActionOccurred) error {
		if !e.Awarded || e.XPAwarded == 0 {
			return nil
		}
		s.Invalidate(ctx)
		return nil
	})
}

// Invalidate drops every cached leaderboard.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, generationKey); err != nil {
		s.log.Warn().Err(err).Msg("Failed to invalidate leaderboard cache")
	}
}

// GetLeaderboard returns the top users by XP; ties go to whoever reached
// the balance first.
func (s *Service) GetLeaderboard(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	key := s.cacheKey(ctx, limit)
	if key != "" {
		if raw, err := s.cache.Get(ctx, key); err == nil && raw != "" {
			var entries []Entry
			if err := json.Unmarshal([]byte(raw), &entries); err == nil {
				return entries, nil
			}
		}
	}

	table, err := s.levels.Table(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.progressionRepo.TopByXP(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build leaderboard: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for i, p := range rows {
		entry := Entry{
			Rank:   i + 1,
			UserID: p.UserID,
			XP:     p.XP,
			Level:  p.Level,
		}
		if l, ok := table.Get(p.Level); ok {
			entry.LevelName = l.Name
		}
		user, err := s.userRepo.GetByID(ctx, p.UserID)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", p.UserID).Msg("Failed to get user")
		} else {
			entry.Username = user.Username
		}
		entries = append(entries, entry)
	}

	if key != "" {
		if raw, err := json.Marshal(entries); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				s.log.Debug().Err(err).Msg("Failed to cache leaderboard")
			}
		}
	}
	return entries, nil
}

// cacheKey returns the key for the current generation, or "" when caching
// is off or the generation cannot be read.
func (s *Service) cacheKey(ctx context.Context, limit int) string {
	if s.cache == nil {
		return ""
	}
	gen, err := s.cache.Get(ctx, generationKey)
	if err != nil {
		return ""
	}
	if gen == "" {
		gen = "0"
	}
	return fmt.Sprintf("leaderboard:%s:top:%d", gen, limit)
}

// GetUserRank returns the 1-based rank of a user.
func (s *Service) GetUserRank(ctx context.Context, userID string) (int64, error) {
	return s.progressionRepo.RankOf(ctx, userID)
}
