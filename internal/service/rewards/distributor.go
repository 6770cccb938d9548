// Package rewards grants level-up rewards. Each reward kind is a small
// idempotent capability; a failure in one does not undo the others.
package rewards

import (
	"context"
	"fmt"
	"strings"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/metrics"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/repository"
	"github.com/degentalk/progression/internal/service/levels"
	"github.com/degentalk/progression/pkg/logger"
)

// Transactor runs fn in a transaction, or a savepoint when ctx already
// carries one.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Outcome is the result of one capability for one level.
type Outcome struct {
	Level  int                `json:"level"`
	Kind   models.RewardKind  `json:"kind"`
	Status models.GrantStatus `json:"status"`
	Amount int64              `json:"amount,omitempty"`
	Ref    string             `json:"ref,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Report collects the outcomes of a distribution.
type Report struct {
	Outcomes []Outcome `json:"outcomes"`
	Failures int       `json:"failures"`
}

// Granted returns only the newly granted rewards.
func (r Report) Granted() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == models.GrantNewlyGranted {
			out = append(out, o)
		}
	}
	return out
}

// Err returns a wrapped ErrRewardGrantFailed when any grant failed.
func (r Report) Err() error {
	if r.Failures == 0 {
		return nil
	}
	var kinds []string
	for _, o := range r.Outcomes {
		if o.Error != "" {
			kinds = append(kinds, fmt.Sprintf("%s@%d", o.Kind, o.Level))
		}
	}
	return fmt.Errorf("%s: %w", strings.Join(kinds, ","), apperrors.ErrRewardGrantFailed)
}

// Distributor walks every level crossed by a level-up and runs each
// capability against it.
type Distributor struct {
	tx           Transactor
	capabilities []Capability
	log          *logger.Logger
}

// NewDistributor wires the four standard capabilities over the repositories.
func NewDistributor(
	db *repository.DB,
	grants *repository.RewardGrantRepository,
	titles *repository.TitleRepository,
	badges *repository.BadgeRepository,
	wallet Wallet,
	log *logger.Logger,
) *Distributor {
	return NewDistributorWithCapabilities(db, log,
		NewCurrencyCapability(grants, wallet),
		NewTitleCapability(titles),
		NewBadgeCapability(badges),
		NewUnlocksCapability(grants),
	)
}

// NewDistributorWithCapabilities creates a distributor over any capabilities (useful for testing).
func NewDistributorWithCapabilities(tx Transactor, log *logger.Logger, capabilities ...Capability) *Distributor {
	return &Distributor{
		tx:           tx,
		capabilities: capabilities,
		log:          log.Component("rewards"),
	}
}

// Distribute grants the rewards of every level in (oldLevel, newLevel].
// Each grant runs in its own savepoint so a failure rolls back only that
// grant. Failures are logged and reported, never returned as an error.
func (d *Distributor) Distribute(ctx context.Context, userID string, table levels.Table, oldLevel, newLevel int) Report {
	var report Report
	if newLevel <= oldLevel {
		return report
	}

	for _, level := range table.Range(oldLevel, newLevel) {
		for _, capability := range d.capabilities {
			outcome := d.grant(ctx, capability, userID, level)
			if outcome.Error != "" {
				report.Failures++
			}
			if outcome.Status != models.GrantSkipped {
				report.Outcomes = append(report.Outcomes, outcome)
			}
		}
	}
	return report
}

func (d *Distributor) grant(ctx context.Context, capability Capability, userID string, level models.Level) Outcome {
	kind := capability.Kind()
	outcome := Outcome{Level: level.Level, Kind: kind}
	switch kind {
	case models.RewardCurrency:
		outcome.Amount = level.RewardCurrency
	case models.RewardTitle:
		if level.RewardTitleID != nil {
			outcome.Ref = *level.RewardTitleID
		}
	case models.RewardBadge:
		if level.RewardBadgeID != nil {
			outcome.Ref = fmt.Sprint(*level.RewardBadgeID)
		}
	}

	err := d.tx.Transaction(ctx, func(ctx context.Context) error {
		status, err := capability.Grant(ctx, userID, level)
		if err != nil {
			return err
		}
		outcome.Status = status
		return nil
	})
	if err != nil {
		outcome.Status = ""
		outcome.Error = err.Error()
		metrics.RecordRewardGrant(string(kind), "failed")
		d.log.Warn().
			Err(err).
			Str("user_id", userID).
			Int("level", level.Level).
			Str("kind", string(kind)).
			Msg("Reward grant failed")
		return outcome
	}

	metrics.RecordRewardGrant(string(kind), string(outcome.Status))
	if outcome.Status == models.GrantNewlyGranted {
		d.log.Info().
			Str("user_id", userID).
			Int("level", level.Level).
			Str("kind", string(kind)).
			Msg("Reward granted")
	}
	return outcome
}
