package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/repository"
	"github.com/degentalk/progression/pkg/logger"
)

// Transactor runs fn inside one storage transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ActionStore persists action definitions.
type ActionStore interface {
	Upsert(ctx context.Context, action *models.ActionConfig) error
}

// LevelStore persists level rows.
type LevelStore interface {
	Upsert(ctx context.Context, level *models.Level) error
}

// TitleStore persists titles.
type TitleStore interface {
	Upsert(ctx context.Context, title *models.Title) error
}

// BadgeStore persists badges by name and fills in their ID.
type BadgeStore interface {
	Upsert(ctx context.Context, badge *models.Badge) error
}

// RoleStore persists roles.
type RoleStore interface {
	UpsertRole(ctx context.Context, role *models.Role) error
}

// ContextStore persists context multipliers.
type ContextStore interface {
	Upsert(ctx context.Context, m *models.ContextMultiplier) error
}

// MissionStore persists mission definitions.
type MissionStore interface {
	Upsert(ctx context.Context, mission *models.Mission) error
}

// Stores groups the writers the applier needs.
type Stores struct {
	Actions  ActionStore
	Levels   LevelStore
	Titles   TitleStore
	Badges   BadgeStore
	Roles    RoleStore
	Contexts ContextStore
	Missions MissionStore
}

// RepositoryStores builds Stores from the database repositories.
func RepositoryStores(db *repository.DB) Stores {
	return Stores{
		Actions:  repository.NewActionRepository(db),
		Levels:   repository.NewLevelRepository(db),
		Titles:   repository.NewTitleRepository(db),
		Badges:   repository.NewBadgeRepository(db),
		Roles:    repository.NewUserRepository(db),
		Contexts: repository.NewContextMultiplierRepository(db),
		Missions: repository.NewMissionRepository(db),
	}
}

// missionNamespace derives stable IDs for missions declared without one.
var missionNamespace = uuid.MustParse("6f1c1d2e-59c4-4c84-9a51-6d0f7f3d8e21")

// Applier writes a catalog to the store.
type Applier struct {
	db         Transactor
	stores     Stores
	invalidate []func(ctx context.Context)
	now        func() time.Time
	log        *logger.Logger
}

// NewApplier creates an applier. The invalidate hooks run after a
// successful commit so cached registries pick up the new rows.
func NewApplier(db Transactor, stores Stores, log *logger.Logger, invalidate ...func(ctx context.Context)) *Applier {
	return &Applier{
		db:         db,
		stores:     stores,
		invalidate: invalidate,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log.Component("catalog"),
	}
}

// Apply upserts every entry of the catalog in one transaction.
func (a *Applier) Apply(ctx context.Context, c *Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}

	err := a.db.Transaction(ctx, func(ctx context.Context) error {
		for _, t := range c.Titles {
			title := &models.Title{ID: t.ID, Name: t.Name, Rarity: t.Rarity}
			if err := a.stores.Titles.Upsert(ctx, title); err != nil {
				return err
			}
		}

		badgeIDs := make(map[string]uint, len(c.Badges))
		for _, b := range c.Badges {
			badge := &models.Badge{Name: b.Name, Description: b.Description, Icon: b.Icon, Rarity: b.Rarity}
			if err := a.stores.Badges.Upsert(ctx, badge); err != nil {
				return err
			}
			badgeIDs[b.Name] = badge.ID
		}

		for _, r := range c.Roles {
			if err := a.stores.Roles.UpsertRole(ctx, &models.Role{Name: r.Name, XPMultiplier: r.XPMultiplier}); err != nil {
				return err
			}
		}

		for _, m := range c.ContextMultipliers {
			if err := a.stores.Contexts.Upsert(ctx, &models.ContextMultiplier{ContextID: m.ContextID, Multiplier: m.Multiplier}); err != nil {
				return err
			}
		}

		for _, act := range c.Actions {
			if err := a.stores.Actions.Upsert(ctx, toAction(act)); err != nil {
				return err
			}
		}

		for _, l := range c.Levels {
			level, err := toLevel(l, badgeIDs)
			if err != nil {
				return err
			}
			if err := a.stores.Levels.Upsert(ctx, level); err != nil {
				return err
			}
		}

		now := a.now()
		for _, m := range c.Missions {
			if err := a.stores.Missions.Upsert(ctx, toMission(m, badgeIDs, now)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply catalog: %w", err)
	}

	for _, fn := range a.invalidate {
		fn(ctx)
	}

	a.log.Info().
		Int("titles", len(c.Titles)).
		Int("badges", len(c.Badges)).
		Int("roles", len(c.Roles)).
		Int("context_multipliers", len(c.ContextMultipliers)).
		Int("actions", len(c.Actions)).
		Int("levels", len(c.Levels)).
		Int("missions", len(c.Missions)).
		Msg("Catalog applied")
	return nil
}

func toAction(a Action) *models.ActionConfig {
	enabled := true
	if a.Enabled != nil {
		enabled = *a.Enabled
	}
	return &models.ActionConfig{
		ActionKey:       a.Key,
		BaseValue:       a.BaseValue,
		DailyCap:        a.DailyCap,
		CooldownSeconds: a.CooldownSeconds,
		Enabled:         enabled,
		Description:     a.Description,
	}
}

func toLevel(l Level, badgeIDs map[string]uint) (*models.Level, error) {
	level := &models.Level{
		Level:          l.Level,
		MinXP:          l.MinXP,
		Name:           l.Name,
		Rarity:         l.Rarity,
		RewardCurrency: l.RewardCurrency,
	}
	if l.RewardTitle != "" {
		title := l.RewardTitle
		level.RewardTitleID = &title
	}
	if badgeID, ok := badgeIDs[l.RewardBadge]; ok && l.RewardBadge != "" {
		level.RewardBadgeID = &badgeID
	}
	if len(l.Unlocks) > 0 {
		raw, err := json.Marshal(l.Unlocks)
		if err != nil {
			return nil, fmt.Errorf("failed to encode unlocks of level %d: %w", l.Level, err)
		}
		level.Unlocks = datatypes.JSON(raw)
	}
	return level, nil
}

func toMission(m Mission, badgeIDs map[string]uint, now time.Time) *models.Mission {
	id := m.ID
	if id == "" {
		id = uuid.NewSHA1(missionNamespace, []byte(m.Title)).String()
	}
	cadence := m.Cadence
	if cadence == "" {
		cadence = models.CadenceNone
	}
	minLevel := m.MinLevel
	if minLevel < 1 {
		minLevel = 1
	}
	active := true
	if m.IsActive != nil {
		active = *m.IsActive
	}

	mission := &models.Mission{
		ID:            id,
		Title:         m.Title,
		Description:   m.Description,
		ActionType:    m.ActionType,
		RequiredCount: m.RequiredCount,
		Rewards: models.MissionRewards{
			XP:       m.Rewards.XP,
			Currency: m.Rewards.Currency,
		},
		Cadence:   cadence,
		MinLevel:  minLevel,
		ExpiresAt: m.ExpiresAt,
		IsActive:  active,
	}
	if badgeID, ok := badgeIDs[m.Rewards.Badge]; ok && m.Rewards.Badge != "" {
		mission.Rewards.BadgeID = &badgeID
	}
	if mission.ExpiresAt == nil && cadence != models.CadenceNone {
		end := FirstWindowEnd(cadence, now)
		mission.ExpiresAt = &end
	}
	return mission
}

// FirstWindowEnd returns the end of the window containing now: the next
// UTC midnight for daily missions and the next Monday 00:00 UTC for weekly
// ones.
func FirstWindowEnd(cadence models.Cadence, now time.Time) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch cadence {
	case models.CadenceDaily:
		return midnight.AddDate(0, 0, 1)
	case models.CadenceWeekly:
		days := (int(time.Monday) - int(now.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return midnight.AddDate(0, 0, days)
	default:
		return now
	}
}
