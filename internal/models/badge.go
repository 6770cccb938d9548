package models

import (
	"time"
)

// Badge represents a badge that can be earned by users.
type Badge struct {
	ID          uint      `gorm:"primaryKey" json:"id" yaml:"id"`
	Name        string    `gorm:"uniqueIndex;not null;size:100" json:"name" yaml:"name"`
	Description string    `gorm:"type:text" json:"description" yaml:"description"`
	Icon        string    `gorm:"size:50" json:"icon" yaml:"icon"`
	Rarity      string    `gorm:"size:32" json:"rarity" yaml:"rarity"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// TableName specifies the table name for Badge model.
func (Badge) TableName() string {
	return "badges"
}

// UserBadge represents a badge earned by a user. One row per (user, badge).
type UserBadge struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	UserID   string    `gorm:"size:64;not null;uniqueIndex:ux_user_badge,priority:1" json:"user_id"`
	BadgeID  uint      `gorm:"not null;uniqueIndex:ux_user_badge,priority:2" json:"badge_id"`
	Badge    Badge     `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
	EarnedAt time.Time `gorm:"not null" json:"earned_at"`
}

// TableName specifies the table name for UserBadge model.
func (UserBadge) TableName() string {
	return "user_badges"
}
