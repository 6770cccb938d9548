// Package models defines the persistence models of the progression engine.
package models

import (
	"time"
)

// User is the minimal view of a community member the engine needs.
// IDs are opaque strings issued by the account service.
type User struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	Roles     []Role    `gorm:"many2many:user_roles;" json:"roles,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// Role carries an optional XP multiplier. Zero means "no opinion".
type Role struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"uniqueIndex;not null;size:100" json:"name"`
	XPMultiplier float64   `gorm:"column:xp_multiplier;default:0" json:"xp_multiplier"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for Role model.
func (Role) TableName() string {
	return "roles"
}

// UserProgression is the XP balance and derived level of a user.
// Version is bumped on every committed mutation and used for compare-and-set.
type UserProgression struct {
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	XP        int64     `gorm:"column:xp;not null;default:0" json:"xp"`
	Level     int       `gorm:"not null;default:1" json:"level"`
	Version   int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

// TableName specifies the table name for UserProgression model.
func (UserProgression) TableName() string {
	return "user_progressions"
}
