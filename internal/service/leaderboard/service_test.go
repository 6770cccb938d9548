package leaderboard

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/events"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/service/levels"
	"github.com/degentalk/progression/pkg/logger"
	"github.com/degentalk/progression/test/mocks"
)

// Mock repositories for testing
type mockProgressionRepository struct {
	rows  []models.UserProgression
	calls int
}

func (m *mockProgressionRepository) Get(_ context.Context, userID string) (*models.UserProgression, error) {
	for i := range m.rows {
		if m.rows[i].UserID == userID {
			return &m.rows[i], nil
		}
	}
	return nil, apperrors.NotFound("user", userID)
}

func (m *mockProgressionRepository) sorted() []models.UserProgression {
	out := append([]models.UserProgression(nil), m.rows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].XP > out[j].XP })
	return out
}

func (m *mockProgressionRepository) TopByXP(_ context.Context, limit int) ([]models.UserProgression, error) {
	m.calls++
	out := m.sorted()
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockProgressionRepository) RankOf(_ context.Context, userID string) (int64, error) {
	for i, p := range m.sorted() {
		if p.UserID == userID {
			return int64(i + 1), nil
		}
	}
	return 0, apperrors.NotFound("user", userID)
}

type mockUserRepository struct {
	users map[string]*models.User
}

func (m *mockUserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, apperrors.NotFound("user", id)
}

type mockBadgeRepository struct {
	badges map[string][]models.UserBadge
}

func (m *mockBadgeRepository) GetUserBadges(_ context.Context, userID string) ([]models.UserBadge, error) {
	return m.badges[userID], nil
}

type staticLevels struct{ table levels.Table }

func (s staticLevels) Table(context.Context) (levels.Table, error) { return s.table, nil }

func newTestService(cache Cache) (*Service, *mockProgressionRepository) {
	progressions := &mockProgressionRepository{rows: []models.UserProgression{
		{UserID: "alice", XP: 120, Level: 2},
		{UserID: "bob", XP: 400, Level: 3},
		{UserID: "carol", XP: 10, Level: 1},
	}}
	users := &mockUserRepository{users: map[string]*models.User{
		"alice": {ID: "alice", Username: "alice"},
		"bob":   {ID: "bob", Username: "bob"},
	}}
	badges := &mockBadgeRepository{badges: map[string][]models.UserBadge{
		"bob": {{UserID: "bob", BadgeID: 1, Badge: models.Badge{ID: 1, Name: "veteran"}}},
	}}
	table := staticLevels{levels.NewTable([]models.Level{
		{Level: 1, MinXP: 0, Name: "Newcomer"},
		{Level: 2, MinXP: 100, Name: "Novice"},
		{Level: 3, MinXP: 250, Name: "Regular"},
	})}
	return NewServiceWithInterfaces(progressions, users, badges, table, cache, logger.Nop()), progressions
}

func TestGetLeaderboard(t *testing.T) {
	svc, _ := newTestService(nil)

	entries, err := svc.GetLeaderboard(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "bob", entries[0].UserID)
	assert.Equal(t, "Regular", entries[0].LevelName)
	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, "alice", entries[1].Username)
}

func TestGetLeaderboard_MissingUserStillRanked(t *testing.T) {
	svc, _ := newTestService(nil)

	entries, err := svc.GetLeaderboard(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "carol", entries[2].UserID)
	assert.Empty(t, entries[2].Username)
}

func TestGetLeaderboard_CachedUntilXPAwarded(t *testing.T) {
	cache := mocks.NewMockCache()
	svc, progressions := newTestService(cache)
	ctx := context.Background()

	_, err := svc.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	_, err = svc.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, progressions.calls)

	bus := events.NewSyncBus(logger.Nop())
	svc.Register(bus)

	// A refused action does not change the ranking.
	bus.Publish(ctx, events.ActionOccurred{UserID: "carol", ActionKey: "post_created"})
	_, err = svc.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, progressions.calls)

	progressions.rows[2].XP = 1000
	bus.Publish(ctx, events.ActionOccurred{UserID: "carol", ActionKey: "post_created", Awarded: true, XPAwarded: 990})
	entries, err := svc.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, progressions.calls)
	assert.Equal(t, "carol", entries[0].UserID)
}

func TestGetUserStats(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	stats, err := svc.GetUserStats(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(400), stats.XP)
	assert.Equal(t, int64(1), stats.Rank)
	assert.Equal(t, "Regular", stats.LevelName)
	require.Len(t, stats.Badges, 1)
	assert.Equal(t, "veteran", stats.Badges[0].Name)

	rank, err := svc.GetUserRank(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(3), rank)

	_, err = svc.GetUserStats(ctx, "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
