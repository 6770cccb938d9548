// Package wallet is the minimal currency ledger the engine credits rewards to.
package wallet

import (
	"context"
	"fmt"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/repository"
)

// Ledger stores wallet transactions.
type Ledger interface {
	Create(ctx context.Context, tx *models.WalletTransaction) error
	Balance(ctx context.Context, userID string) (int64, error)
}

// Service credits currency. Credits made with a transactional context join
// that transaction.
type Service struct {
	ledger Ledger
}

// NewService creates a wallet service backed by the repository.
func NewService(ledger *repository.WalletRepository) *Service {
	return &Service{ledger: ledger}
}

// NewServiceWithInterfaces creates a wallet service over any ledger.
func NewServiceWithInterfaces(ledger Ledger) *Service {
	return &Service{ledger: ledger}
}

// Credit adds amount to a user's wallet.
func (s *Service) Credit(ctx context.Context, userID string, amount int64, reason string, metadata map[string]interface{}) error {
	if amount <= 0 {
		return apperrors.Invalid("amount", "credit must be positive, got %d", amount)
	}
	if reason == "" {
		return apperrors.Invalid("reason", "required")
	}
	tx := &models.WalletTransaction{
		UserID:   userID,
		Amount:   amount,
		Reason:   reason,
		Metadata: metadata,
	}
	if err := s.ledger.Create(ctx, tx); err != nil {
		return fmt.Errorf("failed to credit %d to user %s: %w", amount, userID, err)
	}
	return nil
}

// Balance returns the current balance of a user.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}
