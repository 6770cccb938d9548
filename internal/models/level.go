package models

import (
	"time"

	"gorm.io/datatypes"
)

// Level is one row of the ascending XP threshold table.
type Level struct {
	Level          int            `gorm:"primaryKey;autoIncrement:false" json:"level" yaml:"level"`
	MinXP          int64          `gorm:"column:min_xp;uniqueIndex;not null" json:"min_xp" yaml:"min_xp"`
	Name           string         `gorm:"size:100;not null" json:"name" yaml:"name"`
	Rarity         string         `gorm:"size:32" json:"rarity" yaml:"rarity"`
	RewardCurrency int64          `gorm:"default:0" json:"reward_currency" yaml:"reward_currency"`
	RewardTitleID  *string        `gorm:"size:64" json:"reward_title_id,omitempty" yaml:"reward_title_id"`
	RewardBadgeID  *uint          `json:"reward_badge_id,omitempty" yaml:"reward_badge_id"`
	Unlocks        datatypes.JSON `json:"unlocks,omitempty" yaml:"-"`
	UpdatedAt      time.Time      `json:"updated_at" yaml:"-"`
}

// TableName specifies the table name for Level model.
func (Level) TableName() string {
	return "levels"
}

// HasRewards reports whether reaching this level grants anything.
func (l *Level) HasRewards() bool {
	return l.RewardCurrency > 0 || l.RewardTitleID != nil || l.RewardBadgeID != nil || len(l.Unlocks) > 0
}

// Title is a cosmetic title a user can hold.
type Title struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id" yaml:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" yaml:"name"`
	Rarity    string    `gorm:"size:32" json:"rarity" yaml:"rarity"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// TableName specifies the table name for Title model.
func (Title) TableName() string {
	return "titles"
}

// UserTitle records that a user holds a title. One row per (user, title).
type UserTitle struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:ux_user_title,priority:1" json:"user_id"`
	TitleID   string    `gorm:"size:64;not null;uniqueIndex:ux_user_title,priority:2" json:"title_id"`
	Title     Title     `gorm:"foreignKey:TitleID" json:"title,omitempty"`
	GrantedAt time.Time `gorm:"not null" json:"granted_at"`
}

// TableName specifies the table name for UserTitle model.
func (UserTitle) TableName() string {
	return "user_titles"
}

// RewardKind names one idempotent level-up grant.
type RewardKind string

// RewardKind constants.
const (
	RewardCurrency RewardKind = "currency"
	RewardTitle    RewardKind = "title"
	RewardBadge    RewardKind = "badge"
	RewardUnlocks  RewardKind = "unlocks"
)

// LevelRewardGrant is the idempotency record for level rewards that have no
// natural ownership row (currency credits and unlock metadata).
type LevelRewardGrant struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    string            `gorm:"size:64;not null;uniqueIndex:ux_level_reward,priority:1" json:"user_id"`
	Level     int               `gorm:"not null;uniqueIndex:ux_level_reward,priority:2" json:"level"`
	Kind      RewardKind        `gorm:"size:16;not null;uniqueIndex:ux_level_reward,priority:3" json:"kind"`
	Amount    int64             `gorm:"default:0" json:"amount"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// TableName specifies the table name for LevelRewardGrant model.
func (LevelRewardGrant) TableName() string {
	return "level_reward_grants"
}

// GrantStatus is the outcome of an idempotent grant.
type GrantStatus string

// GrantStatus constants.
const (
	GrantNewlyGranted GrantStatus = "newly_granted"
	GrantAlreadyHeld  GrantStatus = "already_held"
	GrantSkipped      GrantStatus = "skipped"
)
