package models

import (
	"time"

	"gorm.io/datatypes"
)

// MaxBaseValue bounds an action's base XP so base times the multiplier
// ceiling stays far from int64 overflow.
const MaxBaseValue int64 = 1_000_000_000

// ActionConfig configures how much XP an action is worth and how often.
type ActionConfig struct {
	ActionKey       string    `gorm:"primaryKey;size:100" json:"action_key" yaml:"key"`
	BaseValue       int64     `gorm:"not null" json:"base_value" yaml:"base_value"`
	DailyCap        *int      `json:"daily_cap,omitempty" yaml:"daily_cap"`
	CooldownSeconds *int      `json:"cooldown_seconds,omitempty" yaml:"cooldown_seconds"`
	Enabled         bool      `gorm:"not null" json:"enabled" yaml:"enabled"`
	Description     string    `gorm:"type:text" json:"description" yaml:"description"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"-"`
}

// TableName specifies the table name for ActionConfig model.
func (ActionConfig) TableName() string {
	return "xp_action_settings"
}

// ActionAwardLog is an immutable record of XP granted for an action.
// It is the only source for daily cap and cooldown computation.
type ActionAwardLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	UserID     string            `gorm:"size:64;not null;index:idx_award_user_action_time,priority:1" json:"user_id"`
	ActionKey  string            `gorm:"size:100;not null;index:idx_award_user_action_time,priority:2" json:"action_key"`
	Amount     int64             `gorm:"not null" json:"amount"`
	Multiplier float64           `gorm:"not null;default:1" json:"multiplier"`
	ContextID  *string           `gorm:"size:64" json:"context_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index:idx_award_user_action_time,priority:3" json:"created_at"`
}

// TableName specifies the table name for ActionAwardLog model.
func (ActionAwardLog) TableName() string {
	return "xp_action_logs"
}

// AdjustmentMode is how an adjustment amount is applied.
type AdjustmentMode string

// AdjustmentMode constants.
const (
	AdjustAdd      AdjustmentMode = "add"
	AdjustSubtract AdjustmentMode = "subtract"
	AdjustSet      AdjustmentMode = "set"
)

// Valid reports whether m is a known mode.
func (m AdjustmentMode) Valid() bool {
	switch m {
	case AdjustAdd, AdjustSubtract, AdjustSet:
		return true
	default:
		return false
	}
}

// AdjustmentLog is an immutable record of an admin or system balance change.
type AdjustmentLog struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    string            `gorm:"size:64;not null;index" json:"user_id"`
	AdminID   *string           `gorm:"size:64" json:"admin_id,omitempty"`
	Mode      AdjustmentMode    `gorm:"size:16;not null" json:"mode"`
	Amount    int64             `gorm:"not null" json:"amount"`
	Reason    string            `gorm:"type:text;not null" json:"reason"`
	OldXP     int64             `gorm:"column:old_xp;not null" json:"old_xp"`
	NewXP     int64             `gorm:"column:new_xp;not null" json:"new_xp"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;index" json:"created_at"`
}

// TableName specifies the table name for AdjustmentLog model.
func (AdjustmentLog) TableName() string {
	return "xp_adjustment_logs"
}

// ContextMultiplier scales XP earned inside a context such as a forum.
type ContextMultiplier struct {
	ContextID  string    `gorm:"primaryKey;size:64" json:"context_id" yaml:"context_id"`
	Multiplier float64   `gorm:"not null;default:1" json:"multiplier" yaml:"multiplier"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-"`
}

// TableName specifies the table name for ContextMultiplier model.
func (ContextMultiplier) TableName() string {
	return "context_multipliers"
}
