package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/models"
)

// createTestBadge creates a test badge in the database.
func createTestBadge(t *testing.T, repo *BadgeRepository, name string) *models.Badge {
	t.Helper()

	badge := &models.Badge{Name: name, Description: "test badge", Icon: "🎯", Rarity: "common"}
	require.NoError(t, repo.Create(context.Background(), badge))
	return badge
}

func TestBadgeRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBadgeRepository(db)

	badge := createTestBadge(t, repo, "first_post")

	if badge.ID == 0 {
		t.Error("Expected badge ID to be set after creation")
	}
	if badge.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
}

func TestBadgeRepository_GetByIDAndName(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewBadgeRepository(db)

	created := createTestBadge(t, repo, "veteran")

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "veteran", byID.Name)

	byName, err := repo.GetByName(ctx, "veteran")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	_, err = repo.GetByID(ctx, 999)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = repo.GetByName(ctx, "non_existent")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestBadgeRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewBadgeRepository(db)

	first := &models.Badge{Name: "helper", Description: "v1"}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &models.Badge{Name: "helper", Description: "v2"}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "v2", all[0].Description)
}

func TestBadgeRepository_GrantIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewBadgeRepository(db)

	badge := createTestBadge(t, repo, "level_5")

	status, err := repo.Grant(ctx, "u1", badge.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GrantNewlyGranted, status)

	status, err = repo.Grant(ctx, "u1", badge.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GrantAlreadyHeld, status)

	has, err := repo.HasUserEarnedBadge(ctx, "u1", badge.ID)
	require.NoError(t, err)
	assert.True(t, has)

	count, err := repo.GetBadgeHoldersCount(ctx, badge.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	owned, err := repo.GetUserBadges(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "level_5", owned[0].Badge.Name)
}

func TestBadgeRepository_GetUsersWithBadge(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewBadgeRepository(db)

	badge := createTestBadge(t, repo, "regular")
	other := createTestBadge(t, repo, "veteran")
	createTestUser(t, db, "u1")
	createTestUser(t, db, "u2")
	createTestUser(t, db, "u3")

	_, err := repo.Grant(ctx, "u2", badge.ID)
	require.NoError(t, err)
	_, err = repo.Grant(ctx, "u1", badge.ID)
	require.NoError(t, err)
	_, err = repo.Grant(ctx, "u3", other.ID)
	require.NoError(t, err)

	holders, err := repo.GetUsersWithBadge(ctx, badge.ID)
	require.NoError(t, err)
	require.Len(t, holders, 2)
	ids := []string{holders[0].ID, holders[1].ID}
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids)

	holders, err = repo.GetUsersWithBadge(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, holders)
}

func TestTitleRepository_GrantIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewTitleRepository(db)

	require.NoError(t, repo.Upsert(ctx, &models.Title{ID: "novice", Name: "Novice", Rarity: "common"}))

	status, err := repo.Grant(ctx, "u1", "novice")
	require.NoError(t, err)
	assert.Equal(t, models.GrantNewlyGranted, status)

	status, err = repo.Grant(ctx, "u1", "novice")
	require.NoError(t, err)
	assert.Equal(t, models.GrantAlreadyHeld, status)

	titles, err := repo.GetUserTitles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, titles, 1)
	assert.Equal(t, "Novice", titles[0].Title.Name)
}

func TestRewardGrantRepository_Record(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewRewardGrantRepository(db)

	exists, err := repo.Exists(ctx, "u1", 2, models.RewardCurrency)
	require.NoError(t, err)
	assert.False(t, exists)

	inserted, err := repo.Record(ctx, &models.LevelRewardGrant{UserID: "u1", Level: 2, Kind: models.RewardCurrency, Amount: 50})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Record(ctx, &models.LevelRewardGrant{UserID: "u1", Level: 2, Kind: models.RewardCurrency, Amount: 50})
	require.NoError(t, err)
	assert.False(t, inserted)

	grants, err := repo.ListForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestLevelRepository_UpsertAndList(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewLevelRepository(db)

	require.NoError(t, repo.Upsert(ctx, &models.Level{Level: 2, MinXP: 100, Name: "Regular"}))
	require.NoError(t, repo.Upsert(ctx, &models.Level{Level: 1, MinXP: 0, Name: "Newcomer"}))
	require.NoError(t, repo.Upsert(ctx, &models.Level{Level: 2, MinXP: 120, Name: "Regular"}))

	levels, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, 1, levels[0].Level)
	assert.Equal(t, int64(120), levels[1].MinXP)
}
