package missions

import (
	"context"

	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/service/xp"
	"github.com/degentalk/progression/pkg/logger"
)

// ReasonMissionReward is the wallet and adjustment reason for claimed missions.
const ReasonMissionReward = "mission_reward"

// XPGranter applies XP through the engine's mutation primitive.
type XPGranter interface {
	ApplyAdjustment(ctx context.Context, adj xp.Adjustment) (*xp.AwardResult, error)
}

// Wallet credits currency.
type Wallet interface {
	Credit(ctx context.Context, userID string, amount int64, reason string, metadata map[string]interface{}) error
}

// BadgeGranter gives badges to users.
type BadgeGranter interface {
	Grant(ctx context.Context, userID string, badgeID uint) (models.GrantStatus, error)
}

// Claimer claims a mission and applies its rewards through the XP engine
// and the wallet. The claim commits first; each reward is then applied on
// its own and a failure is reported without undoing the claim or the other
// rewards.
type Claimer struct {
	tracker *Tracker
	xp      XPGranter
	wallet  Wallet
	badges  BadgeGranter
	log     *logger.Logger
}

// ClaimOutcome is a claim plus what applying its rewards did.
type ClaimOutcome struct {
	*ClaimResult
	XP       *xp.AwardResult    `json:"xp,omitempty"`
	Currency int64              `json:"currency,omitempty"`
	Badge    models.GrantStatus `json:"badge,omitempty"`
	Failures []string           `json:"failures,omitempty"`
}

// NewClaimer creates a claimer.
func NewClaimer(tracker *Tracker, engine XPGranter, wallet Wallet, badges BadgeGranter, log *logger.Logger) *Claimer {
	return &Claimer{
		tracker: tracker,
		xp:      engine,
		wallet:  wallet,
		badges:  badges,
		log:     log.Component("missions"),
	}
}

// Claim claims a mission for a user and applies its rewards.
func (c *Claimer) Claim(ctx context.Context, userID, missionID string) (*ClaimOutcome, error) {
	res, err := c.tracker.ClaimReward(ctx, userID, missionID)
	if err != nil {
		return nil, err
	}
	out := &ClaimOutcome{ClaimResult: res}
	if !res.Success || res.Rewards == nil {
		return out, nil
	}

	rewards := res.Rewards
	meta := map[string]interface{}{"mission_id": missionID}

	if rewards.XP > 0 {
		award, err := c.xp.ApplyAdjustment(ctx, xp.Adjustment{
			UserID:   userID,
			Amount:   rewards.XP,
			Mode:     models.AdjustAdd,
			Reason:   ReasonMissionReward,
			Metadata: meta,
		})
		if err != nil {
			out.Failures = append(out.Failures, "xp")
			c.logFailure(err, userID, missionID, "xp")
		} else {
			out.XP = award
		}
	}

	if rewards.Currency > 0 {
		if err := c.wallet.Credit(ctx, userID, rewards.Currency, ReasonMissionReward, meta); err != nil {
			out.Failures = append(out.Failures, string(models.RewardCurrency))
			c.logFailure(err, userID, missionID, string(models.RewardCurrency))
		} else {
			out.Currency = rewards.Currency
		}
	}

	if rewards.BadgeID != nil {
		status, err := c.badges.Grant(ctx, userID, *rewards.BadgeID)
		if err != nil {
			out.Failures = append(out.Failures, string(models.RewardBadge))
			c.logFailure(err, userID, missionID, string(models.RewardBadge))
		} else {
			out.Badge = status
		}
	}
	return out, nil
}

func (c *Claimer) logFailure(err error, userID, missionID, kind string) {
	c.log.Error().
		Err(err).
		Str("user_id", userID).
		Str("mission_id", missionID).
		Str("kind", kind).
		Msg("Failed to apply mission reward")
}
