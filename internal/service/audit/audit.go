// Package audit writes the immutable records of every XP balance change.
package audit

import (
	"context"
	"sort"
	"time"

	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/repository"
	"github.com/degentalk/progression/pkg/logger"
)

// AwardStore appends action award rows.
type AwardStore interface {
	Create(ctx context.Context, entry *models.ActionAwardLog) error
	ListForUser(ctx context.Context, userID string, limit int) ([]models.ActionAwardLog, error)
}

// AdjustmentStore appends adjustment rows.
type AdjustmentStore interface {
	Create(ctx context.Context, entry *models.AdjustmentLog) error
	ListForUser(ctx context.Context, userID string) ([]models.AdjustmentLog, error)
}

// Entry is one line of a user's XP history.
type Entry struct {
	Kind      string                 `json:"kind"`
	Source    string                 `json:"source"`
	Amount    int64                  `json:"amount"`
	OldXP     *int64                 `json:"old_xp,omitempty"`
	NewXP     *int64                 `json:"new_xp,omitempty"`
	AdminID   *string                `json:"admin_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// History entry kinds.
const (
	KindAward      = "award"
	KindAdjustment = "adjustment"
)

// Logger records awards and adjustments. Rows are append-only; writes made
// with a transactional context join that transaction.
type Logger struct {
	awards      AwardStore
	adjustments AdjustmentStore
	log         *logger.Logger
}

// NewLogger creates an audit logger over the repositories.
func NewLogger(awards *repository.AwardLogRepository, adjustments *repository.AdjustmentLogRepository, log *logger.Logger) *Logger {
	return NewLoggerWithInterfaces(awards, adjustments, log)
}

// NewLoggerWithInterfaces creates an audit logger with interface dependencies (useful for testing).
func NewLoggerWithInterfaces(awards AwardStore, adjustments AdjustmentStore, log *logger.Logger) *Logger {
	return &Logger{awards: awards, adjustments: adjustments, log: log.Component("audit")}
}

// LogAward appends an action award row.
func (l *Logger) LogAward(ctx context.Context, entry *models.ActionAwardLog) error {
	return l.awards.Create(ctx, entry)
}

// LogAdjustment appends an adjustment row.
func (l *Logger) LogAdjustment(ctx context.Context, entry *models.AdjustmentLog) error {
	if err := l.adjustments.Create(ctx, entry); err != nil {
		return err
	}
	ev := l.log.Info().
		Str("user_id", entry.UserID).
		Str("mode", string(entry.Mode)).
		Int64("amount", entry.Amount).
		Int64("old_xp", entry.OldXP).
		Int64("new_xp", entry.NewXP).
		Str("reason", entry.Reason)
	if entry.AdminID != nil {
		ev = ev.Str("admin_id", *entry.AdminID)
	}
	ev.Msg("XP adjusted")
	return nil
}

// History merges a user's awards and adjustments, newest first.
func (l *Logger) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	awards, err := l.awards.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	adjustments, err := l.adjustments.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(awards)+len(adjustments))
	for _, a := range awards {
		out = append(out, Entry{
			Kind:      KindAward,
			Source:    a.ActionKey,
			Amount:    a.Amount,
			Metadata:  a.Metadata,
			CreatedAt: a.CreatedAt,
		})
	}
	for _, a := range adjustments {
		oldXP, newXP := a.OldXP, a.NewXP
		out = append(out, Entry{
			Kind:      KindAdjustment,
			Source:    string(a.Mode),
			Amount:    a.NewXP - a.OldXP,
			OldXP:     &oldXP,
			NewXP:     &newXP,
			AdminID:   a.AdminID,
			Metadata:  a.Metadata,
			CreatedAt: a.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
