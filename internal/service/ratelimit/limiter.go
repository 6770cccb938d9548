// Package ratelimit decides whether a user may receive XP for an action now.
// All state is derived from award log rows.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/repository"
)

// Rejection reasons.
const (
	ReasonDailyCap = "daily_cap"
	ReasonCooldown = "cooldown"
)

// AwardLog is the subset of the award log the limiter reads.
type AwardLog interface {
	CountInWindow(ctx context.Context, userID, actionKey string, from, to time.Time) (int64, error)
	LatestAt(ctx context.Context, userID, actionKey string) (*time.Time, error)
}

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed           bool
	Reason            string
	DailyCount        int64
	CooldownRemaining time.Duration
}

// Limits is the user-facing view of an action's limits.
type Limits struct {
	ActionKey         string `json:"action_key"`
	DailyLimit        *int   `json:"daily_limit"`
	DailyCount        int64  `json:"daily_count"`
	OnCooldown        bool   `json:"on_cooldown"`
	CooldownRemaining int64  `json:"cooldown_remaining_seconds"`
	CanReceive        bool   `json:"can_receive"`
}

// Limiter applies daily caps and cooldowns.
type Limiter struct {
	logs AwardLog
	loc  *time.Location
	now  func() time.Time
}

// NewLimiter creates a limiter over the award log repository. Days start at
// midnight in loc.
func NewLimiter(logs *repository.AwardLogRepository, loc *time.Location) *Limiter {
	return NewLimiterWithInterfaces(logs, loc, time.Now)
}

// NewLimiterWithInterfaces creates a limiter with an injectable clock (useful for testing).
func NewLimiterWithInterfaces(logs AwardLog, loc *time.Location, now func() time.Time) *Limiter {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{logs: logs, loc: loc, now: now}
}

// Now returns the limiter's clock reading.
func (l *Limiter) Now() time.Time {
	return l.now()
}

// DayWindow returns the half-open day [start, end) containing t in loc.
func DayWindow(t time.Time, loc *time.Location) (start, end time.Time) {
	local := t.In(loc)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end = start.AddDate(0, 0, 1)
	return start, end
}

// Check evaluates both limits at the limiter's current time. Either one
// blocking is enough to reject. A nil or non-positive cap or cooldown
// means no limit.
func (l *Limiter) Check(ctx context.Context, userID string, action *models.ActionConfig) (Decision, error) {
	return l.CheckAt(ctx, userID, action, l.now())
}

// CheckAt evaluates both limits at now.
func (l *Limiter) CheckAt(ctx context.Context, userID string, action *models.ActionConfig, now time.Time) (Decision, error) {
	d := Decision{Allowed: true}

	start, end := DayWindow(now, l.loc)
	count, err := l.logs.CountInWindow(ctx, userID, action.ActionKey, start, end)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check daily cap: %w", err)
	}
	d.DailyCount = count
	if action.DailyCap != nil && *action.DailyCap > 0 && count >= int64(*action.DailyCap) {
		d.Allowed = false
		d.Reason = ReasonDailyCap
	}

	if action.CooldownSeconds != nil && *action.CooldownSeconds > 0 {
		last, err := l.logs.LatestAt(ctx, userID, action.ActionKey)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to check cooldown: %w", err)
		}
		if last != nil {
			cooldown := time.Duration(*action.CooldownSeconds) * time.Second
			if elapsed := now.Sub(*last); elapsed < cooldown {
				d.CooldownRemaining = cooldown - elapsed
				if d.Allowed {
					d.Allowed = false
					d.Reason = ReasonCooldown
				}
			}
		}
	}

	return d, nil
}

// CanAward reports whether the user may receive XP for the action now.
func (l *Limiter) CanAward(ctx context.Context, userID string, action *models.ActionConfig) (bool, error) {
	d, err := l.Check(ctx, userID, action)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// Limits describes the action's limits for a user.
func (l *Limiter) Limits(ctx context.Context, userID string, action *models.ActionConfig) (*Limits, error) {
	d, err := l.Check(ctx, userID, action)
	if err != nil {
		return nil, err
	}
	var limit *int
	if action.DailyCap != nil && *action.DailyCap > 0 {
		v := *action.DailyCap
		limit = &v
	}
	remaining := int64(d.CooldownRemaining / time.Second)
	if d.CooldownRemaining%time.Second != 0 {
		remaining++
	}
	return &Limits{
		ActionKey:         action.ActionKey,
		DailyLimit:        limit,
		DailyCount:        d.DailyCount,
		OnCooldown:        d.CooldownRemaining > 0,
		CooldownRemaining: remaining,
		CanReceive:        d.Allowed && action.Enabled,
	}, nil
}
