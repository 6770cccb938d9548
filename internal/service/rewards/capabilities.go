package rewards

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/degentalk/progression/internal/models"
)

// Capability grants one kind of level reward. Grants must be idempotent:
// calling Grant twice for the same user and level never duplicates effects.
type Capability interface {
	Kind() models.RewardKind
	Grant(ctx context.Context, userID string, level models.Level) (models.GrantStatus, error)
}

// GrantLedger records reward kinds that have no ownership row of their own.
type GrantLedger interface {
	Exists(ctx context.Context, userID string, level int, kind models.RewardKind) (bool, error)
	Record(ctx context.Context, grant *models.LevelRewardGrant) (bool, error)
}

// Wallet credits currency.
type Wallet interface {
	Credit(ctx context.Context, userID string, amount int64, reason string, metadata map[string]interface{}) error
}

// TitleGranter gives titles to users.
type TitleGranter interface {
	Grant(ctx context.Context, userID, titleID string) (models.GrantStatus, error)
}

// BadgeGranter gives badges to users.
type BadgeGranter interface {
	Grant(ctx context.Context, userID string, badgeID uint) (models.GrantStatus, error)
}

// ReasonLevelUp is the wallet reason used for level currency.
const ReasonLevelUp = "level_up"

type currencyCapability struct {
	ledger GrantLedger
	wallet Wallet
}

// NewCurrencyCapability credits a level's currency once per user and level.
func NewCurrencyCapability(ledger GrantLedger, wallet Wallet) Capability {
	return &currencyCapability{ledger: ledger, wallet: wallet}
}

func (c *currencyCapability) Kind() models.RewardKind { return models.RewardCurrency }

func (c *currencyCapability) Grant(ctx context.Context, userID string, level models.Level) (models.GrantStatus, error) {
	if level.RewardCurrency <= 0 {
		return models.GrantSkipped, nil
	}
	done, err := c.ledger.Exists(ctx, userID, level.Level, models.RewardCurrency)
	if err != nil {
		return "", err
	}
	if done {
		return models.GrantAlreadyHeld, nil
	}

	recorded, err := c.ledger.Record(ctx, &models.LevelRewardGrant{
		UserID: userID,
		Level:  level.Level,
		Kind:   models.RewardCurrency,
		Amount: level.RewardCurrency,
	})
	if err != nil {
		return "", err
	}
	if !recorded {
		return models.GrantAlreadyHeld, nil
	}

	meta := map[string]interface{}{"level": level.Level}
	if err := c.wallet.Credit(ctx, userID, level.RewardCurrency, ReasonLevelUp, meta); err != nil {
		return "", err
	}
	return models.GrantNewlyGranted, nil
}

type titleCapability struct {
	titles TitleGranter
}

// NewTitleCapability grants a level's title.
func NewTitleCapability(titles TitleGranter) Capability {
	return &titleCapability{titles: titles}
}

func (c *titleCapability) Kind() models.RewardKind { return models.RewardTitle }

func (c *titleCapability) Grant(ctx context.Context, userID string, level models.Level) (models.GrantStatus, error) {
	if level.RewardTitleID == nil || *level.RewardTitleID == "" {
		return models.GrantSkipped, nil
	}
	return c.titles.Grant(ctx, userID, *level.RewardTitleID)
}

type badgeCapability struct {
	badges BadgeGranter
}

// NewBadgeCapability grants a level's badge.
func NewBadgeCapability(badges BadgeGranter) Capability {
	return &badgeCapability{badges: badges}
}

func (c *badgeCapability) Kind() models.RewardKind { return models.RewardBadge }

func (c *badgeCapability) Grant(ctx context.Context, userID string, level models.Level) (models.GrantStatus, error) {
	if level.RewardBadgeID == nil {
		return models.GrantSkipped, nil
	}
	return c.badges.Grant(ctx, userID, *level.RewardBadgeID)
}

type unlocksCapability struct {
	ledger GrantLedger
}

// NewUnlocksCapability records a level's unlock metadata for the user.
func NewUnlocksCapability(ledger GrantLedger) Capability {
	return &unlocksCapability{ledger: ledger}
}

func (c *unlocksCapability) Kind() models.RewardKind { return models.RewardUnlocks }

func (c *unlocksCapability) Grant(ctx context.Context, userID string, level models.Level) (models.GrantStatus, error) {
	if len(level.Unlocks) == 0 || string(level.Unlocks) == "null" {
		return models.GrantSkipped, nil
	}
	var unlocks interface{}
	if err := json.Unmarshal(level.Unlocks, &unlocks); err != nil {
		return "", fmt.Errorf("failed to decode unlocks of level %d: %w", level.Level, err)
	}

	done, err := c.ledger.Exists(ctx, userID, level.Level, models.RewardUnlocks)
	if err != nil {
		return "", err
	}
	if done {
		return models.GrantAlreadyHeld, nil
	}
	recorded, err := c.ledger.Record(ctx, &models.LevelRewardGrant{
		UserID:   userID,
		Level:    level.Level,
		Kind:     models.RewardUnlocks,
		Metadata: map[string]interface{}{"unlocks": unlocks},
	})
	if err != nil {
		return "", err
	}
	if !recorded {
		return models.GrantAlreadyHeld, nil
	}
	return models.GrantNewlyGranted, nil
}
