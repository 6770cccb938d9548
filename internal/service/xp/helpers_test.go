package xp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/degentalk/progression/internal/config"
	"github.com/degentalk/progression/internal/events"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/notify"
	"github.com/degentalk/progression/internal/repository"
	"github.com/degentalk/progression/internal/service/actions"
	"github.com/degentalk/progression/internal/service/audit"
	"github.com/degentalk/progression/internal/service/levels"
	"github.com/degentalk/progression/internal/service/multiplier"
	"github.com/degentalk/progression/internal/service/ratelimit"
	"github.com/degentalk/progression/internal/service/rewards"
	"github.com/degentalk/progression/internal/wallet"
	"github.com/degentalk/progression/pkg/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []events.ActionOccurred
}

func (r *recordingEvents) Publish(_ context.Context, e events.ActionOccurred) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEvents) all() []events.ActionOccurred {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.ActionOccurred, len(r.events))
	copy(out, r.events)
	return out
}

// harness wires the engine over an in-memory database.
type harness struct {
	engine        *Engine
	db            *repository.DB
	users         *repository.UserRepository
	progressions  *repository.ProgressionRepository
	actions       *actions.Registry
	levels        *repository.LevelRepository
	titles        *repository.TitleRepository
	contexts      *repository.ContextMultiplierRepository
	adjustments   *repository.AdjustmentLogRepository
	notifications *repository.NotificationRepository
	wallet        *wallet.Service
	clock         *fakeClock
	events        *recordingEvents
}

func newHarness(t *testing.T, cfg config.EngineConfig) *harness {
	t.Helper()

	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	log := logger.Nop()
	h := &harness{
		db:            db,
		users:         repository.NewUserRepository(db),
		progressions:  repository.NewProgressionRepository(db),
		levels:        repository.NewLevelRepository(db),
		titles:        repository.NewTitleRepository(db),
		contexts:      repository.NewContextMultiplierRepository(db),
		adjustments:   repository.NewAdjustmentLogRepository(db),
		notifications: repository.NewNotificationRepository(db),
		wallet:        wallet.NewService(repository.NewWalletRepository(db)),
		clock:         &fakeClock{t: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)},
		events:        &recordingEvents{},
	}
	h.actions = actions.NewRegistry(repository.NewActionRepository(db), nil, log)

	awardLogs := repository.NewAwardLogRepository(db)
	if cfg.MaxMultiplier == 0 {
		cfg.MaxMultiplier = 5
	}
	if cfg.MaxMutationRetries == 0 {
		cfg.MaxMutationRetries = 3
	}

	distributor := rewards.NewDistributor(db, repository.NewRewardGrantRepository(db), h.titles,
		repository.NewBadgeRepository(db), h.wallet, log)

	h.engine = NewEngine(Deps{
		DB:           db,
		Progressions: h.progressions,
		Users:        h.users,
		Actions:      h.actions,
		Limiter:      ratelimit.NewLimiterWithInterfaces(awardLogs, time.UTC, h.clock.Now),
		Multipliers:  multiplier.NewResolver(h.users, h.contexts, cfg.MaxMultiplier, log),
		Levels:       levels.NewResolver(h.levels, log),
		Rewards:      distributor,
		Audit:        audit.NewLogger(awardLogs, h.adjustments, log),
		Notifier:     notify.NewServiceWithInterfaces(h.notifications, nil, h.users, log),
		Events:       h.events,
	}, cfg, log)

	return h
}

// seedScenarioLevels installs levels 1..3 with rewards on level 2.
func (h *harness) seedScenarioLevels(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, h.titles.Upsert(ctx, &models.Title{ID: "novice", Name: "Novice"}))
	title := "novice"
	table := []models.Level{
		{Level: 1, MinXP: 0, Name: "Newcomer"},
		{Level: 2, MinXP: 100, Name: "Novice", RewardCurrency: 50, RewardTitleID: &title},
		{Level: 3, MinXP: 250, Name: "Regular"},
	}
	for i := range table {
		require.NoError(t, h.levels.Upsert(ctx, &table[i]))
	}
}

func (h *harness) addAction(t *testing.T, action models.ActionConfig) {
	t.Helper()
	require.NoError(t, h.actions.UpsertAction(context.Background(), &action))
}

func (h *harness) addUser(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.engine.RegisterUser(context.Background(), &models.User{ID: id, Username: "user-" + id}))
}

// setXP puts a user at xp without going through the engine.
func (h *harness) setXP(t *testing.T, id string, xp int64, level int) {
	t.Helper()
	p, err := h.progressions.Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, h.progressions.CompareAndSwap(context.Background(), id, p.Version, xp, level))
}

func intPtr(v int) *int { return &v }
