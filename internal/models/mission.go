package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cadence controls how often a mission resets.
type Cadence string

// Cadence constants.
const (
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
	CadenceNone   Cadence = "none"
)

// Period returns the reset period of a cadence; zero for CadenceNone.
func (c Cadence) Period() time.Duration {
	switch c {
	case CadenceDaily:
		return 24 * time.Hour
	case CadenceWeekly:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// MissionRewards is what a completed mission pays out when claimed.
type MissionRewards struct {
	XP       int64 `gorm:"column:reward_xp;default:0" json:"xp,omitempty" yaml:"xp"`
	Currency int64 `gorm:"column:reward_currency;default:0" json:"currency,omitempty" yaml:"currency"`
	BadgeID  *uint `gorm:"column:reward_badge_id" json:"badge_id,omitempty" yaml:"badge_id"`
}

// Mission is a bounded objective counted from the action stream.
type Mission struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id" yaml:"id"`
	Title         string         `gorm:"size:200;not null" json:"title" yaml:"title"`
	Description   string         `gorm:"type:text" json:"description" yaml:"description"`
	ActionType    string         `gorm:"size:100;not null;index" json:"action_type" yaml:"action_type"`
	RequiredCount int            `gorm:"not null" json:"required_count" yaml:"required_count"`
	Rewards       MissionRewards `gorm:"embedded" json:"rewards" yaml:"rewards"`
	Cadence       Cadence        `gorm:"size:16;not null;default:'none';index:idx_mission_cadence_expiry,priority:1" json:"cadence" yaml:"cadence"`
	MinLevel      int            `gorm:"not null;default:1" json:"min_level" yaml:"min_level"`
	ExpiresAt     *time.Time     `gorm:"index:idx_mission_cadence_expiry,priority:2" json:"expires_at,omitempty" yaml:"expires_at"`
	IsActive      bool           `gorm:"not null" json:"is_active" yaml:"is_active"`
	CreatedAt     time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time      `json:"updated_at" yaml:"-"`
}

// TableName specifies the table name for Mission model.
func (Mission) TableName() string {
	return "missions"
}

// BeforeCreate assigns a UUID when none was provided.
func (m *Mission) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// IsExpired reports whether the mission window closed before now.
func (m *Mission) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// MissionProgress is a user's counter against one mission.
type MissionProgress struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          string     `gorm:"size:64;not null;uniqueIndex:ux_mission_progress,priority:1" json:"user_id"`
	MissionID       string     `gorm:"size:36;not null;uniqueIndex:ux_mission_progress,priority:2;index" json:"mission_id"`
	CurrentCount    int        `gorm:"not null;default:0" json:"current_count"`
	IsCompleted     bool       `gorm:"not null;default:false" json:"is_completed"`
	IsRewardClaimed bool       `gorm:"not null;default:false" json:"is_reward_claimed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName specifies the table name for MissionProgress model.
func (MissionProgress) TableName() string {
	return "mission_progress"
}
