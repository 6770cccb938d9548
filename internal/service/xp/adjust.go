package xp

import (
	"context"
	"strings"
	"time"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/metrics"
	"github.com/degentalk/progression/internal/models"
)

// Adjustment is an admin or system balance change.
type Adjustment struct {
	UserID   string
	Amount   int64
	Mode     models.AdjustmentMode
	Reason   string
	AdminID  *string
	Metadata map[string]interface{}
}

func (a *Adjustment) validate() error {
	if a.UserID == "" {
		return apperrors.Invalid("user_id", "required")
	}
	if !a.Mode.Valid() {
		return apperrors.Invalid("mode", "must be one of add, subtract, set (got %q)", a.Mode)
	}
	if a.Amount < 0 {
		return apperrors.Invalid("amount", "must not be negative")
	}
	if a.Amount == 0 && a.Mode != models.AdjustSet {
		return apperrors.Invalid("amount", "must be positive for %s", a.Mode)
	}
	a.Reason = strings.TrimSpace(a.Reason)
	if a.Reason == "" {
		return apperrors.Invalid("reason", "required")
	}
	return nil
}

// Adjust changes a balance by the given mode. set is turned into the signed
// delta from the current balance and goes through the same primitive as add
// and subtract. Subtraction removes at most the current balance.
func (e *Engine) Adjust(ctx context.Context, userID string, amount int64, mode models.AdjustmentMode, reason string, adminID *string) (*AwardResult, error) {
	return e.ApplyAdjustment(ctx, Adjustment{
		UserID:  userID,
		Amount:  amount,
		Mode:    mode,
		Reason:  reason,
		AdminID: adminID,
	})
}

// ApplyAdjustment is Adjust with metadata recorded on the adjustment row.
func (e *Engine) ApplyAdjustment(ctx context.Context, adj Adjustment) (*AwardResult, error) {
	start := time.Now()
	defer func() { metrics.ObserveAwardDuration("adjust", time.Since(start).Seconds()) }()

	if err := adj.validate(); err != nil {
		return nil, err
	}

	table, err := e.deps.Levels.Table(ctx)
	if err != nil {
		return nil, err
	}

	var result *AwardResult
	err = e.withRetry(ctx, func(ctx context.Context) error {
		p, err := e.deps.Progressions.GetForUpdate(ctx, adj.UserID)
		if err != nil {
			return err
		}

		delta := deltaFor(adj.Mode, adj.Amount, p.XP)
		result, err = e.mutate(ctx, p, delta, table)
		if err != nil {
			return err
		}

		meta := map[string]interface{}{"delta": result.XPChange}
		for k, v := range adj.Metadata {
			meta[k] = v
		}
		return e.deps.Audit.LogAdjustment(ctx, &models.AdjustmentLog{
			UserID:    adj.UserID,
			AdminID:   adj.AdminID,
			Mode:      adj.Mode,
			Amount:    adj.Amount,
			Reason:    adj.Reason,
			OldXP:     result.OldXP,
			NewXP:     result.NewXP,
			Metadata:  meta,
			CreatedAt: e.deps.Limiter.Now(),
		})
	})
	if err != nil {
		return nil, e.wrapFailure("adjust", err)
	}

	metrics.RecordAdjustment(string(adj.Mode))
	e.afterCommit(ctx, result)
	return result, nil
}

// deltaFor turns a mode and amount into the signed change applied to current.
func deltaFor(mode models.AdjustmentMode, amount, current int64) int64 {
	switch mode {
	case models.AdjustAdd:
		return amount
	case models.AdjustSubtract:
		if amount > current {
			return -current
		}
		return -amount
	case models.AdjustSet:
		return amount - current
	default:
		return 0
	}
}
