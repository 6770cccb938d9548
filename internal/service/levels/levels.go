// Package levels resolves XP totals to levels using the cached threshold table.
package levels

import (
	"context"
	"fmt"
	"sort"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/cache"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/repository"
	"github.com/degentalk/progression/pkg/logger"
)

// Store lists the persisted level table.
type Store interface {
	List(ctx context.Context) ([]models.Level, error)
}

// Table is an immutable, ascending copy of the level thresholds.
type Table struct {
	levels []models.Level
}

// NewTable sorts levels by threshold.
func NewTable(levels []models.Level) Table {
	sorted := make([]models.Level, len(levels))
	copy(sorted, levels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinXP < sorted[j].MinXP })
	return Table{levels: sorted}
}

// Resolve returns the highest level whose threshold is at most xp, or 1
// when the table is empty or nothing matches.
func (t Table) Resolve(xp int64) int {
	// first index whose threshold exceeds xp
	i := sort.Search(len(t.levels), func(i int) bool { return t.levels[i].MinXP > xp })
	if i == 0 {
		return 1
	}
	return t.levels[i-1].Level
}

// Get returns the definition of a level.
func (t Table) Get(level int) (*models.Level, bool) {
	for i := range t.levels {
		if t.levels[i].Level == level {
			l := t.levels[i]
			return &l, true
		}
	}
	return nil, false
}

// Next returns the first level above level, if any.
func (t Table) Next(level int) (*models.Level, bool) {
	for i := range t.levels {
		if t.levels[i].Level > level {
			l := t.levels[i]
			return &l, true
		}
	}
	return nil, false
}

// Range returns the defined levels in (from, to], ascending.
func (t Table) Range(from, to int) []models.Level {
	var out []models.Level
	for _, l := range t.levels {
		if l.Level > from && l.Level <= to {
			out = append(out, l)
		}
	}
	return out
}

// Levels returns a copy of the table.
func (t Table) Levels() []models.Level {
	out := make([]models.Level, len(t.levels))
	copy(out, t.levels)
	return out
}

// Progress describes where an XP total sits between its level and the next.
type Progress struct {
	Level              int     `json:"level"`
	LevelName          string  `json:"level_name,omitempty"`
	CurrentLevelXP     int64   `json:"current_level_xp"`
	NextLevel          *int    `json:"next_level,omitempty"`
	NextLevelXP        *int64  `json:"next_level_xp,omitempty"`
	XPToNextLevel      int64   `json:"xp_to_next_level"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

// Progress computes the progress of xp toward the next level. At the top of
// the table the percentage is 100.
func (t Table) Progress(xp int64) Progress {
	p := Progress{Level: t.Resolve(xp), ProgressPercentage: 100}
	if cur, ok := t.Get(p.Level); ok {
		p.LevelName = cur.Name
		p.CurrentLevelXP = cur.MinXP
	}
	next, ok := t.Next(p.Level)
	if !ok {
		return p
	}

	p.NextLevel = &next.Level
	p.NextLevelXP = &next.MinXP
	p.XPToNextLevel = next.MinXP - xp
	span := next.MinXP - p.CurrentLevelXP
	if span > 0 {
		p.ProgressPercentage = float64(xp-p.CurrentLevelXP) / float64(span) * 100
	} else {
		p.ProgressPercentage = 0
	}
	return p
}

// Resolver serves the level table from a generation-stamped snapshot.
type Resolver struct {
	store    Store
	snapshot *cache.Snapshot[Table]
	log      *logger.Logger
}

// NewResolver creates a resolver backed by the level repository.
func NewResolver(store *repository.LevelRepository, log *logger.Logger) *Resolver {
	return NewResolverWithInterfaces(store, log)
}

// NewResolverWithInterfaces creates a resolver with interface dependencies (useful for testing).
func NewResolverWithInterfaces(store Store, log *logger.Logger) *Resolver {
	r := &Resolver{store: store, log: log.Component("levels")}
	r.snapshot = cache.NewSnapshot("levels", r.load)
	return r
}

func (r *Resolver) load(ctx context.Context) (Table, error) {
	list, err := r.store.List(ctx)
	if err != nil {
		return Table{}, fmt.Errorf("failed to load levels: %w", err)
	}
	r.log.Debug().Int("count", len(list)).Msg("Loaded level table")
	return NewTable(list), nil
}

// Table returns the current level table. Take it before opening a
// transaction and pass it down.
func (r *Resolver) Table(ctx context.Context) (Table, error) {
	return r.snapshot.Get(ctx)
}

// Resolve maps xp to a level.
func (r *Resolver) Resolve(ctx context.Context, xp int64) (int, error) {
	t, err := r.Table(ctx)
	if err != nil {
		return 0, err
	}
	return t.Resolve(xp), nil
}

// Get returns one level definition, or ErrNotFound.
func (r *Resolver) Get(ctx context.Context, level int) (*models.Level, error) {
	t, err := r.Table(ctx)
	if err != nil {
		return nil, err
	}
	l, ok := t.Get(level)
	if !ok {
		return nil, apperrors.NotFound("level", fmt.Sprint(level))
	}
	return l, nil
}

// Invalidate drops the cached table.
func (r *Resolver) Invalidate() {
	gen := r.snapshot.Invalidate()
	r.log.Debug().Uint64("generation", gen).Msg("Level table invalidated")
}

// OnInvalidation handles invalidations received from other processes.
func (r *Resolver) OnInvalidation(topic string) {
	if topic == cache.TopicLevels {
		r.Invalidate()
	}
}
