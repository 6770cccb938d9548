package rewards

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/repository"
	"github.com/degentalk/progression/internal/service/levels"
	"github.com/degentalk/progression/internal/wallet"
	"github.com/degentalk/progression/pkg/logger"
)

type fixture struct {
	db      *repository.DB
	grants  *repository.RewardGrantRepository
	titles  *repository.TitleRepository
	badges  *repository.BadgeRepository
	wallet  *wallet.Service
	table   levels.Table
	badgeID uint
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		db:     db,
		grants: repository.NewRewardGrantRepository(db),
		titles: repository.NewTitleRepository(db),
		badges: repository.NewBadgeRepository(db),
		wallet: wallet.NewService(repository.NewWalletRepository(db)),
	}
	require.NoError(t, repository.NewUserRepository(db).Create(ctx, &models.User{ID: "u1", Username: "alice"}))
	require.NoError(t, f.titles.Upsert(ctx, &models.Title{ID: "novice", Name: "Novice"}))
	badge := &models.Badge{Name: "regular", Description: "Reached level 3"}
	require.NoError(t, f.badges.Create(ctx, badge))
	f.badgeID = badge.ID

	title := "novice"
	f.table = levels.NewTable([]models.Level{
		{Level: 1, MinXP: 0, Name: "Newcomer"},
		{Level: 2, MinXP: 100, Name: "Novice", RewardCurrency: 50, RewardTitleID: &title},
		{Level: 3, MinXP: 250, Name: "Regular", RewardCurrency: 100, RewardBadgeID: &f.badgeID,
			Unlocks: datatypes.JSON(`["custom_avatar"]`)},
	})
	return f
}

func (f *fixture) distributor(extra ...Capability) *Distributor {
	caps := append([]Capability{
		NewCurrencyCapability(f.grants, f.wallet),
		NewTitleCapability(f.titles),
		NewBadgeCapability(f.badges),
		NewUnlocksCapability(f.grants),
	}, extra...)
	return NewDistributorWithCapabilities(f.db, logger.Nop(), caps...)
}

func TestDistribute_SingleLevelIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d := f.distributor()

	report := d.Distribute(ctx, "u1", f.table, 1, 2)
	assert.Zero(t, report.Failures)
	require.Len(t, report.Granted(), 2)
	assert.Equal(t, models.RewardCurrency, report.Granted()[0].Kind)
	assert.Equal(t, int64(50), report.Granted()[0].Amount)
	assert.Equal(t, models.RewardTitle, report.Granted()[1].Kind)

	// Replaying the same level-up must not double anything.
	replay := d.Distribute(ctx, "u1", f.table, 1, 2)
	assert.Zero(t, replay.Failures)
	assert.Empty(t, replay.Granted())
	for _, o := range replay.Outcomes {
		assert.Equal(t, models.GrantAlreadyHeld, o.Status)
	}

	balance, err := f.wallet.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	titles, err := f.titles.GetUserTitles(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, titles, 1)
}

func TestDistribute_JumpCoversEveryCrossedLevel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	report := f.distributor().Distribute(ctx, "u1", f.table, 1, 3)
	assert.Zero(t, report.Failures)
	assert.Len(t, report.Granted(), 5)

	balance, err := f.wallet.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), balance)

	held, err := f.badges.HasUserEarnedBadge(ctx, "u1", f.badgeID)
	require.NoError(t, err)
	assert.True(t, held)

	grants, err := f.grants.ListForUser(ctx, "u1")
	require.NoError(t, err)
	var kinds []models.RewardKind
	for _, g := range grants {
		kinds = append(kinds, g.Kind)
	}
	assert.ElementsMatch(t, []models.RewardKind{models.RewardCurrency, models.RewardCurrency, models.RewardUnlocks}, kinds)
}

func TestDistribute_NoChangeOrLevelDown(t *testing.T) {
	f := setup(t)
	d := f.distributor()

	assert.Empty(t, d.Distribute(context.Background(), "u1", f.table, 2, 2).Outcomes)
	assert.Empty(t, d.Distribute(context.Background(), "u1", f.table, 3, 1).Outcomes)
}

type failingCapability struct{}

func (failingCapability) Kind() models.RewardKind { return "broken" }

func (failingCapability) Grant(context.Context, string, models.Level) (models.GrantStatus, error) {
	return "", errors.New("downstream unavailable")
}

func TestDistribute_FailureDoesNotBlockOtherRewards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	report := f.distributor(failingCapability{}).Distribute(ctx, "u1", f.table, 1, 2)
	assert.Equal(t, 1, report.Failures)
	assert.Len(t, report.Granted(), 2)
	assert.ErrorIs(t, report.Err(), apperrors.ErrRewardGrantFailed)

	has, err := f.titles.HasTitle(ctx, "u1", "novice")
	require.NoError(t, err)
	assert.True(t, has)
}

type brokenWallet struct{}

func (brokenWallet) Credit(context.Context, string, int64, string, map[string]interface{}) error {
	return errors.New("ledger offline")
}

func TestDistribute_FailedGrantRollsBackOnlyItself(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d := NewDistributorWithCapabilities(f.db, logger.Nop(),
		NewCurrencyCapability(f.grants, brokenWallet{}),
		NewTitleCapability(f.titles),
	)

	// Run inside an outer transaction so each grant is a savepoint.
	var report Report
	require.NoError(t, f.db.Transaction(ctx, func(ctx context.Context) error {
		report = d.Distribute(ctx, "u1", f.table, 1, 2)
		return nil
	}))
	assert.Equal(t, 1, report.Failures)

	// The currency marker was written before the credit failed and must be gone.
	exists, err := f.grants.Exists(ctx, "u1", 2, models.RewardCurrency)
	require.NoError(t, err)
	assert.False(t, exists)

	has, err := f.titles.HasTitle(ctx, "u1", "novice")
	require.NoError(t, err)
	assert.True(t, has)

	// A retry with a working wallet grants the currency exactly once.
	retry := f.distributor().Distribute(ctx, "u1", f.table, 1, 2)
	require.Len(t, retry.Granted(), 1)
	assert.Equal(t, models.RewardCurrency, retry.Granted()[0].Kind)
}
