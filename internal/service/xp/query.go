package xp

import (
	"context"

	"github.com/degentalk/progression/internal/service/levels"
	"github.com/degentalk/progression/internal/service/ratelimit"
)

// Progression is the read view of a user's balance and level.
type Progression struct {
	UserID string `json:"user_id"`
	XP     int64  `json:"xp"`
	levels.Progress
	Rank int64 `json:"rank"`
}

// GetUserProgression returns the user's balance, level and progress toward
// the next level.
func (e *Engine) GetUserProgression(ctx context.Context, userID string) (*Progression, error) {
	table, err := e.deps.Levels.Table(ctx)
	if err != nil {
		return nil, err
	}
	p, err := e.deps.Progressions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	rank, err := e.deps.Progressions.RankOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Progression{
		UserID:   p.UserID,
		XP:       p.XP,
		Progress: table.Progress(p.XP),
		Rank:     rank,
	}, nil
}

// GetActionLimits describes the daily cap and cooldown state of an action
// for a user.
func (e *Engine) GetActionLimits(ctx context.Context, userID, actionKey string) (*ratelimit.Limits, error) {
	action, err := e.deps.Actions.Get(ctx, actionKey)
	if err != nil {
		return nil, err
	}
	if _, err := e.deps.Progressions.Get(ctx, userID); err != nil {
		return nil, err
	}
	return e.deps.Limiter.Limits(ctx, userID, action)
}
