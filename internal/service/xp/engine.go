// Package xp is the XP award engine. Every balance change, whether an
// action award or an admin adjustment, goes through one mutation primitive
// that re-reads the locked progression row, writes the new balance with a
// compare-and-set and distributes level rewards in the same transaction.
package xp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/config"
	"github.com/degentalk/progression/internal/events"
	"github.com/degentalk/progression/internal/metrics"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/notify"
	"github.com/degentalk/progression/internal/service/levels"
	"github.com/degentalk/progression/internal/service/multiplier"
	"github.com/degentalk/progression/internal/service/ratelimit"
	"github.com/degentalk/progression/internal/service/rewards"
	"github.com/degentalk/progression/pkg/logger"
)

// Transactor runs fn in a transaction carried by ctx.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProgressionStore reads and writes progression rows.
type ProgressionStore interface {
	Get(ctx context.Context, userID string) (*models.UserProgression, error)
	GetForUpdate(ctx context.Context, userID string) (*models.UserProgression, error)
	CompareAndSwap(ctx context.Context, userID string, expectedVersion, xp int64, level int) error
	RankOf(ctx context.Context, userID string) (int64, error)
}

// UserStore creates users.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
}

// ActionSource serves action configuration.
type ActionSource interface {
	Get(ctx context.Context, key string) (*models.ActionConfig, error)
}

// RateLimiter checks daily caps and cooldowns.
type RateLimiter interface {
	Now() time.Time
	CheckAt(ctx context.Context, userID string, action *models.ActionConfig, now time.Time) (ratelimit.Decision, error)
	Limits(ctx context.Context, userID string, action *models.ActionConfig) (*ratelimit.Limits, error)
}

// MultiplierResolver resolves the multiplier for an award.
type MultiplierResolver interface {
	Resolve(ctx context.Context, userID string, contextID *string) (multiplier.Result, error)
}

// LevelSource serves the level table.
type LevelSource interface {
	Table(ctx context.Context) (levels.Table, error)
}

// RewardDistributor grants level-up rewards.
type RewardDistributor interface {
	Distribute(ctx context.Context, userID string, table levels.Table, oldLevel, newLevel int) rewards.Report
}

// AuditLog records awards and adjustments.
type AuditLog interface {
	LogAward(ctx context.Context, entry *models.ActionAwardLog) error
	LogAdjustment(ctx context.Context, entry *models.AdjustmentLog) error
}

// Notifier enqueues user notifications.
type Notifier interface {
	Enqueue(ctx context.Context, userID, kind, title, body string, data map[string]interface{}) error
}

// EventPublisher announces actions once their result is final.
type EventPublisher interface {
	Publish(ctx context.Context, event events.ActionOccurred)
}

// Deps are the collaborators of the engine. Notifier and Events may be nil.
type Deps struct {
	DB           Transactor
	Progressions ProgressionStore
	Users        UserStore
	Actions      ActionSource
	Limiter      RateLimiter
	Multipliers  MultiplierResolver
	Levels       LevelSource
	Rewards      RewardDistributor
	Audit        AuditLog
	Notifier     Notifier
	Events       EventPublisher
}

// AwardResult describes a committed balance change.
type AwardResult struct {
	UserID         string            `json:"user_id"`
	ActionKey      string            `json:"action_key,omitempty"`
	OldXP          int64             `json:"old_xp"`
	NewXP          int64             `json:"new_xp"`
	XPChange       int64             `json:"xp_change"`
	OldLevel       int               `json:"old_level"`
	NewLevel       int               `json:"new_level"`
	LevelChanged   bool              `json:"level_changed"`
	Multiplier     float64           `json:"multiplier,omitempty"`
	Rewards        []rewards.Outcome `json:"rewards,omitempty"`
	RewardFailures int               `json:"reward_failures,omitempty"`
}

// Engine awards and adjusts XP.
type Engine struct {
	deps Deps
	cfg  config.EngineConfig
	log  *logger.Logger
}

// NewEngine creates the engine.
func NewEngine(deps Deps, cfg config.EngineConfig, log *logger.Logger) *Engine {
	if cfg.MaxMutationRetries <= 0 {
		cfg.MaxMutationRetries = 1
	}
	return &Engine{deps: deps, cfg: cfg, log: log.Component("xp")}
}

// RegisterUser creates a user together with its {xp:0, level:1} progression.
func (e *Engine) RegisterUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return apperrors.Invalid("id", "required")
	}
	if user.Username == "" {
		return apperrors.Invalid("username", "required")
	}
	return e.deps.Users.Create(ctx, user)
}

// AwardXP awards the configured XP for an action. It returns (nil, nil)
// when the action is unknown, disabled or rate limited.
func (e *Engine) AwardXP(ctx context.Context, userID, actionKey string, metadata map[string]interface{}) (*AwardResult, error) {
	return e.AwardXPWithContext(ctx, userID, actionKey, metadata, nil)
}

// AwardXPWithContext is AwardXP with an optional context (such as a forum)
// whose multiplier applies.
func (e *Engine) AwardXPWithContext(
	ctx context.Context,
	userID, actionKey string,
	metadata map[string]interface{},
	contextID *string,
) (*AwardResult, error) {
	start := time.Now()
	defer func() { metrics.ObserveAwardDuration("award", time.Since(start).Seconds()) }()

	if userID == "" {
		return nil, apperrors.Invalid("user_id", "required")
	}

	// Caches are read before the transaction opens so a reload never waits
	// on the connection the transaction holds.
	action, err := e.deps.Actions.Get(ctx, actionKey)
	switch {
	case apperrors.IsNotFound(err):
		e.refuse(ctx, userID, actionKey, metadata, contextID, outcomeUnknown)
		return nil, nil
	case err != nil:
		return nil, err
	case !action.Enabled:
		e.refuse(ctx, userID, actionKey, metadata, contextID, "disabled")
		return nil, nil
	}

	table, err := e.deps.Levels.Table(ctx)
	if err != nil {
		return nil, err
	}
	mult, err := e.deps.Multipliers.Resolve(ctx, userID, contextID)
	if err != nil {
		return nil, err
	}
	amount := multiplier.Apply(action.BaseValue, mult.Value)
	now := e.deps.Limiter.Now()

	var (
		result  *AwardResult
		limited string
	)
	err = e.withRetry(ctx, func(ctx context.Context) error {
		result, limited = nil, ""

		p, err := e.deps.Progressions.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		// The limit is re-checked under the row lock, so concurrent awards
		// to one user cannot overshoot a cap.
		decision, err := e.deps.Limiter.CheckAt(ctx, userID, action, now)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			limited = decision.Reason
			return nil
		}

		entry := &models.ActionAwardLog{
			UserID:     userID,
			ActionKey:  action.ActionKey,
			Amount:     amount,
			Multiplier: mult.Value,
			ContextID:  contextID,
			Metadata:   metadata,
			CreatedAt:  now,
		}
		if err := e.deps.Audit.LogAward(ctx, entry); err != nil {
			return err
		}

		result, err = e.mutate(ctx, p, amount, table)
		return err
	})
	if err != nil {
		metrics.RecordAward(action.ActionKey, "failed")
		return nil, e.wrapFailure("award", err)
	}
	if limited != "" {
		e.refuse(ctx, userID, actionKey, metadata, contextID, limited)
		return nil, nil
	}

	result.ActionKey = action.ActionKey
	result.Multiplier = mult.Value

	metrics.RecordAward(action.ActionKey, "awarded")
	metrics.RecordPointsAwarded(action.ActionKey, result.XPChange)
	e.log.Debug().
		Str("user_id", userID).
		Str("action", action.ActionKey).
		Int64("xp", result.XPChange).
		Float64("multiplier", mult.Value).
		Int64("new_xp", result.NewXP).
		Msg("XP awarded")

	e.afterCommit(ctx, result)
	e.publish(ctx, events.ActionOccurred{
		UserID:     userID,
		ActionKey:  action.ActionKey,
		ContextID:  contextID,
		Metadata:   metadata,
		XPAwarded:  result.XPChange,
		Awarded:    true,
		OccurredAt: now,
	})
	return result, nil
}

// outcomeUnknown is the award outcome for keys the registry does not know.
const outcomeUnknown = "unknown"

// refuse records a soft no-op and, when configured, still announces the
// action so bookkeeping such as missions sees it.
func (e *Engine) refuse(ctx context.Context, userID, actionKey string, metadata map[string]interface{}, contextID *string, reason string) {
	label := actionKey
	if reason == outcomeUnknown {
		label = metrics.UnknownAction
	}
	metrics.RecordAward(label, reason)
	e.log.Debug().
		Str("user_id", userID).
		Str("action", actionKey).
		Str("reason", reason).
		Msg("XP not awarded")

	if !e.cfg.PublishRateLimited {
		return
	}
	e.publish(ctx, events.ActionOccurred{
		UserID:     userID,
		ActionKey:  actionKey,
		ContextID:  contextID,
		Metadata:   metadata,
		OccurredAt: e.deps.Limiter.Now(),
	})
}

// mutate is the only place a balance is written. delta may be negative; the
// balance never drops below zero and saturates at math.MaxInt64.
func (e *Engine) mutate(ctx context.Context, p *models.UserProgression, delta int64, table levels.Table) (*AwardResult, error) {
	newXP := p.XP + delta
	switch {
	case delta > 0 && p.XP > math.MaxInt64-delta:
		newXP = math.MaxInt64
	case newXP < 0:
		newXP = 0
	}
	newLevel := table.Resolve(newXP)

	if err := e.deps.Progressions.CompareAndSwap(ctx, p.UserID, p.Version, newXP, newLevel); err != nil {
		return nil, err
	}

	res := &AwardResult{
		UserID:       p.UserID,
		OldXP:        p.XP,
		NewXP:        newXP,
		XPChange:     newXP - p.XP,
		OldLevel:     p.Level,
		NewLevel:     newLevel,
		LevelChanged: newLevel != p.Level,
	}
	if newLevel > p.Level {
		report := e.deps.Rewards.Distribute(ctx, p.UserID, table, p.Level, newLevel)
		res.Rewards = report.Granted()
		res.RewardFailures = report.Failures
	}
	return res, nil
}

// withRetry runs fn in a fresh transaction, retrying when a compare-and-set
// lost a race.
func (e *Engine) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= e.cfg.MaxMutationRetries; attempt++ {
		err = e.deps.DB.Transaction(ctx, fn)
		if !errors.Is(err, apperrors.ErrConcurrentUpdate) {
			return err
		}
		metrics.RecordMutationConflict()
		e.log.Debug().Int("attempt", attempt).Msg("Progression changed concurrently, retrying")
	}
	return err
}

// wrapFailure tags storage errors as transaction failures. Validation and
// not-found errors pass through unchanged.
func (e *Engine) wrapFailure(op string, err error) error {
	if errors.Is(err, apperrors.ErrValidation) || errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	return fmt.Errorf("failed to %s xp: %w: %w", op, apperrors.ErrTransactionFailed, err)
}

// afterCommit runs the side effects that must not roll back with the
// transaction: level change metrics and the level-up notification.
func (e *Engine) afterCommit(ctx context.Context, res *AwardResult) {
	if !res.LevelChanged {
		return
	}
	metrics.RecordLevelChange(res.OldLevel, res.NewLevel)
	if res.NewLevel < res.OldLevel {
		return
	}

	e.log.Info().
		Str("user_id", res.UserID).
		Int("old_level", res.OldLevel).
		Int("new_level", res.NewLevel).
		Int("rewards", len(res.Rewards)).
		Int("reward_failures", res.RewardFailures).
		Msg("User leveled up")

	if e.deps.Notifier == nil {
		return
	}
	data := map[string]interface{}{
		"old_level": res.OldLevel,
		"new_level": res.NewLevel,
		"rewards":   rewardData(res.Rewards),
	}
	title := fmt.Sprintf("Level %d reached", res.NewLevel)
	body := fmt.Sprintf("You advanced from level %d to level %d.", res.OldLevel, res.NewLevel)
	if err := e.deps.Notifier.Enqueue(ctx, res.UserID, notify.TypeLevelUp, title, body, data); err != nil {
		e.log.Warn().Err(err).Str("user_id", res.UserID).Msg("Failed to enqueue level-up notification")
	}
}

func rewardData(outcomes []rewards.Outcome) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(outcomes))
	for _, o := range outcomes {
		m := map[string]interface{}{"level": o.Level, "kind": string(o.Kind)}
		if o.Amount != 0 {
			m["amount"] = o.Amount
		}
		if o.Ref != "" {
			m["ref"] = o.Ref
		}
		out = append(out, m)
	}
	return out
}

func (e *Engine) publish(ctx context.Context, event events.ActionOccurred) {
	if e.deps.Events != nil {
		e.deps.Events.Publish(ctx, event)
	}
}
