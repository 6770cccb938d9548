package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/models"
)

func createTestMission(t *testing.T, db *DB, m *models.Mission) *models.Mission {
	t.Helper()
	if m.RequiredCount == 0 {
		m.RequiredCount = 3
	}
	if m.Cadence == "" {
		m.Cadence = models.CadenceNone
	}
	m.IsActive = true
	require.NoError(t, NewMissionRepository(db).Upsert(context.Background(), m))
	return m
}

func TestMissionRepository_ListActive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewMissionRepository(db)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	open := createTestMission(t, db, &models.Mission{Title: "open", ActionType: "post_created"})
	createTestMission(t, db, &models.Mission{Title: "expired", ActionType: "post_created", ExpiresAt: &past})
	windowed := createTestMission(t, db, &models.Mission{Title: "windowed", ActionType: "post_created", ExpiresAt: &future})
	createTestMission(t, db, &models.Mission{Title: "other", ActionType: "thread_created"})
	inactive := createTestMission(t, db, &models.Mission{Title: "inactive", ActionType: "post_created"})
	inactive.IsActive = false
	require.NoError(t, repo.Upsert(ctx, inactive))

	missions, err := repo.ListActive(ctx, "post_created", now)
	require.NoError(t, err)

	ids := make([]string, 0, len(missions))
	for _, m := range missions {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []string{open.ID, windowed.ID}, ids)

	all, err := repo.ListActive(ctx, "", now)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMissionRepository_AdvanceExpiryOnlyOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewMissionRepository(db)
	now := time.Date(2026, 5, 2, 0, 0, 30, 0, time.UTC)
	expired := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	next := expired.Add(24 * time.Hour)

	m := createTestMission(t, db, &models.Mission{Title: "daily", ActionType: "post_created", Cadence: models.CadenceDaily, ExpiresAt: &expired})

	due, err := repo.ListDue(ctx, models.CadenceDaily, now)
	require.NoError(t, err)
	require.Len(t, due, 1)

	won, err := repo.AdvanceExpiry(ctx, m.ID, now, next)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.AdvanceExpiry(ctx, m.ID, now, next)
	require.NoError(t, err)
	assert.False(t, won)

	due, err = repo.ListDue(ctx, models.CadenceDaily, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMissionRepository_WindowBoundaryIsDueNotActive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewMissionRepository(db)
	now := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	boundary := now

	m := createTestMission(t, db, &models.Mission{
		Title:      "daily",
		ActionType: "post_created",
		Cadence:    models.CadenceDaily,
		ExpiresAt:  &boundary,
	})

	active, err := repo.ListActive(ctx, "post_created", now)
	require.NoError(t, err)
	assert.Empty(t, active)

	due, err := repo.ListDue(ctx, models.CadenceDaily, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, m.ID, due[0].ID)

	due, err = repo.ListDue(ctx, models.CadenceDaily, now.Add(-time.Nanosecond))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMissionProgressRepository_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewMissionProgressRepository(db)
	m := createTestMission(t, db, &models.Mission{Title: "m", ActionType: "post_created", RequiredCount: 1})
	now := time.Now().UTC()

	p, err := repo.GetOrCreateForUpdate(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.CurrentCount)

	again, err := repo.GetOrCreateForUpdate(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)

	claimed, err := repo.MarkClaimed(ctx, "u1", m.ID, now)
	require.NoError(t, err)
	assert.False(t, claimed, "incomplete rows cannot be claimed")

	p.CurrentCount = 1
	p.IsCompleted = true
	p.CompletedAt = &now
	require.NoError(t, repo.SaveCount(ctx, p, 0))

	err = repo.SaveCount(ctx, p, 0)
	assert.True(t, errors.Is(err, apperrors.ErrConcurrentUpdate))

	claimed, err = repo.MarkClaimed(ctx, "u1", m.ID, now)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.MarkClaimed(ctx, "u1", m.ID, now)
	require.NoError(t, err)
	assert.False(t, claimed)

	n, err := repo.ResetForMission(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	reset, err := repo.Get(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reset.CurrentCount)
	assert.False(t, reset.IsCompleted)
	assert.False(t, reset.IsRewardClaimed)
	assert.Nil(t, reset.CompletedAt)
	assert.Nil(t, reset.ClaimedAt)

	rows, err := repo.ListForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = repo.Get(ctx, "u2", m.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLedgerRepositories(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	wallet := NewWalletRepository(db)
	outbox := NewNotificationRepository(db)

	balance, err := wallet.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	require.NoError(t, wallet.Create(ctx, &models.WalletTransaction{UserID: "u1", Amount: 50, Reason: "level_up"}))
	require.NoError(t, wallet.Create(ctx, &models.WalletTransaction{UserID: "u1", Amount: 25, Reason: "mission"}))

	balance, err = wallet.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(75), balance)

	require.NoError(t, outbox.Create(ctx, &models.Notification{UserID: "u1", Type: "level_up", Title: "Level 2"}))
	rows, err := outbox.ListForUser(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
