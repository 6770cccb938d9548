package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is a queued user notification.
type Notification struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    string            `gorm:"size:64;not null;index" json:"user_id"`
	Type      string            `gorm:"size:64;not null" json:"type"`
	Title     string            `gorm:"size:255;not null" json:"title"`
	Body      string            `gorm:"type:text" json:"body"`
	Data      datatypes.JSONMap `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// TableName specifies the table name for Notification model.
func (Notification) TableName() string {
	return "notifications"
}

// WalletTransaction is an append-only currency ledger row.
type WalletTransaction struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    string            `gorm:"size:64;not null;index" json:"user_id"`
	Amount    int64             `gorm:"not null" json:"amount"`
	Reason    string            `gorm:"size:255;not null" json:"reason"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// TableName specifies the table name for WalletTransaction model.
func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
