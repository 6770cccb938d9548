// Package missions tracks per-user progress against bounded objectives fed
// by the action stream, gates reward claims and resets cadenced missions.
package missions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/events"
	"github.com/degentalk/progression/internal/metrics"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/notify"
	"github.com/degentalk/progression/internal/repository"
	"github.com/degentalk/progression/pkg/logger"
)

// Claim rejection reasons.
const (
	ReasonNotCompleted   = "not_completed"
	ReasonAlreadyClaimed = "already_claimed"
)

// Transactor runs fn in a transaction carried by ctx.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MissionStore reads and advances mission definitions.
type MissionStore interface {
	GetByID(ctx context.Context, id string) (*models.Mission, error)
	ListActive(ctx context.Context, actionType string, now time.Time) ([]models.Mission, error)
	ListDue(ctx context.Context, cadence models.Cadence, now time.Time) ([]models.Mission, error)
	AdvanceExpiry(ctx context.Context, id string, now, next time.Time) (bool, error)
}

// ProgressStore reads and writes progress rows.
type ProgressStore interface {
	GetOrCreateForUpdate(ctx context.Context, userID, missionID string) (*models.MissionProgress, error)
	Get(ctx context.Context, userID, missionID string) (*models.MissionProgress, error)
	SaveCount(ctx context.Context, p *models.MissionProgress, expectedCount int) error
	MarkClaimed(ctx context.Context, userID, missionID string, now time.Time) (bool, error)
	ResetForMission(ctx context.Context, missionID string) (int64, error)
	ListForUser(ctx context.Context, userID string) ([]models.MissionProgress, error)
}

// LevelReader returns a user's current level.
type LevelReader interface {
	Get(ctx context.Context, userID string) (*models.UserProgression, error)
}

// Notifier enqueues user notifications.
type Notifier interface {
	Enqueue(ctx context.Context, userID, kind, title, body string, data map[string]interface{}) error
}

// ProgressDelta reports how one mission moved for one action.
type ProgressDelta struct {
	MissionID string `json:"mission_id"`
	Title     string `json:"title"`
	Previous  int    `json:"previous"`
	Current   int    `json:"current"`
	Required  int    `json:"required"`
	// Completed is true only on the event that completed the mission.
	Completed bool `json:"completed"`
}

// ClaimResult is the outcome of a claim. Rewards describe what the caller
// should apply; the tracker applies nothing itself.
type ClaimResult struct {
	MissionID string                 `json:"mission_id"`
	Success   bool                   `json:"success"`
	Reason    string                 `json:"reason,omitempty"`
	Rewards   *models.MissionRewards `json:"rewards,omitempty"`
}

// UserMission is an active mission with the user's progress on it.
type UserMission struct {
	models.Mission
	Progress models.MissionProgress `json:"progress"`
	Eligible bool                   `json:"eligible"`
}

// Tracker counts mission progress.
type Tracker struct {
	db           Transactor
	missions     MissionStore
	progress     ProgressStore
	progressions LevelReader
	notifier     Notifier
	now          func() time.Time
	log          *logger.Logger
}

// NewTracker creates a tracker over the repositories.
func NewTracker(
	db *repository.DB,
	missions *repository.MissionRepository,
	progress *repository.MissionProgressRepository,
	progressions *repository.ProgressionRepository,
	notifier Notifier,
	log *logger.Logger,
) *Tracker {
	return NewTrackerWithInterfaces(db, missions, progress, progressions, notifier, time.Now, log)
}

// NewTrackerWithInterfaces creates a tracker with interface dependencies and
// an injectable clock (useful for testing). notifier may be nil.
func NewTrackerWithInterfaces(
	db Transactor,
	missions MissionStore,
	progress ProgressStore,
	progressions LevelReader,
	notifier Notifier,
	now func() time.Time,
	log *logger.Logger,
) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		db:           db,
		missions:     missions,
		progress:     progress,
		progressions: progressions,
		notifier:     notifier,
		now:          now,
		log:          log.Component("missions"),
	}
}

// Register subscribes the tracker to the action stream.
func (t *Tracker) Register(bus *events.Bus) {
	bus.Subscribe("missions", t.HandleAction)
}

// HandleAction counts one occurred action. Every action counts, whether
// or not it earned XP.
func (t *Tracker) HandleAction(ctx context.Context, event events.ActionOccurred) error {
	_, err := t.UpdateProgress(ctx, event.UserID, event.ActionKey, event.Metadata)
	return err
}

// UpdateProgress adds one to every active, unexpired mission for actionType
// the user is eligible for. Completed missions are left alone. Each mission
// is updated in its own transaction; a failure on one does not stop the
// others and is returned joined with the rest.
func (t *Tracker) UpdateProgress(ctx context.Context, userID, actionType string, metadata map[string]interface{}) ([]ProgressDelta, error) {
	now := t.now()

	p, err := t.progressions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	missions, err := t.missions.ListActive(ctx, actionType, now)
	if err != nil {
		return nil, err
	}

	var (
		deltas []ProgressDelta
		errs   []error
	)
	for i := range missions {
		m := &missions[i]
		if p.Level < m.MinLevel || m.RequiredCount <= 0 {
			metrics.RecordMissionProgress("ineligible")
			continue
		}

		delta, err := t.increment(ctx, userID, m, now)
		switch {
		case errors.Is(err, apperrors.ErrConcurrentUpdate):
			metrics.RecordMissionProgress("skipped")
			continue
		case err != nil:
			metrics.RecordMissionProgress("failed")
			errs = append(errs, fmt.Errorf("mission %s: %w", m.ID, err))
			continue
		case delta == nil:
			metrics.RecordMissionProgress("skipped")
			continue
		}

		deltas = append(deltas, *delta)
		if delta.Completed {
			metrics.RecordMissionProgress("completed")
			t.notifyCompleted(ctx, userID, m)
		} else {
			metrics.RecordMissionProgress("incremented")
		}
	}

	if len(deltas) > 0 {
		t.log.Debug().
			Str("user_id", userID).
			Str("action", actionType).
			Int("missions", len(deltas)).
			Interface("metadata", metadata).
			Msg("Mission progress updated")
	}
	return deltas, errors.Join(errs...)
}

func (t *Tracker) increment(ctx context.Context, userID string, m *models.Mission, now time.Time) (*ProgressDelta, error) {
	var delta *ProgressDelta
	err := t.db.Transaction(ctx, func(ctx context.Context) error {
		row, err := t.progress.GetOrCreateForUpdate(ctx, userID, m.ID)
		if err != nil {
			return err
		}
		if row.IsCompleted {
			return nil
		}

		prev := row.CurrentCount
		row.CurrentCount = prev + 1
		if row.CurrentCount > m.RequiredCount {
			row.CurrentCount = m.RequiredCount
		}
		if row.CurrentCount >= m.RequiredCount {
			row.IsCompleted = true
			at := now.UTC()
			row.CompletedAt = &at
		}
		if err := t.progress.SaveCount(ctx, row, prev); err != nil {
			return err
		}

		delta = &ProgressDelta{
			MissionID: m.ID,
			Title:     m.Title,
			Previous:  prev,
			Current:   row.CurrentCount,
			Required:  m.RequiredCount,
			Completed: row.IsCompleted,
		}
		return nil
	})
	return delta, err
}

func (t *Tracker) notifyCompleted(ctx context.Context, userID string, m *models.Mission) {
	t.log.Info().Str("user_id", userID).Str("mission_id", m.ID).Msg("Mission completed")
	if t.notifier == nil {
		return
	}
	data := map[string]interface{}{
		"mission_id":      m.ID,
		"reward_xp":       m.Rewards.XP,
		"reward_currency": m.Rewards.Currency,
	}
	body := fmt.Sprintf("Mission %q is complete. Claim your reward.", m.Title)
	if err := t.notifier.Enqueue(ctx, userID, notify.TypeMissionCompleted, "Mission completed", body, data); err != nil {
		t.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to enqueue mission notification")
	}
}

// ClaimReward marks a completed mission as claimed. It succeeds exactly
// once per completion; other attempts report why they were refused.
func (t *Tracker) ClaimReward(ctx context.Context, userID, missionID string) (*ClaimResult, error) {
	mission, err := t.missions.GetByID(ctx, missionID)
	if err != nil {
		return nil, err
	}
	result := &ClaimResult{MissionID: missionID}

	err = t.db.Transaction(ctx, func(ctx context.Context) error {
		claimed, err := t.progress.MarkClaimed(ctx, userID, missionID, t.now())
		if err != nil {
			return err
		}
		if claimed {
			result.Success = true
			rewards := mission.Rewards
			result.Rewards = &rewards
			return nil
		}

		row, err := t.progress.Get(ctx, userID, missionID)
		switch {
		case apperrors.IsNotFound(err):
			result.Reason = ReasonNotCompleted
		case err != nil:
			return err
		case row.IsRewardClaimed:
			result.Reason = ReasonAlreadyClaimed
		default:
			result.Reason = ReasonNotCompleted
		}
		return nil
	})
	if err != nil {
		metrics.RecordMissionClaim("failed")
		return nil, fmt.Errorf("failed to claim mission %s: %w", missionID, err)
	}

	if result.Success {
		metrics.RecordMissionClaim("claimed")
		t.log.Info().Str("user_id", userID).Str("mission_id", missionID).Msg("Mission reward claimed")
	} else {
		metrics.RecordMissionClaim(result.Reason)
	}
	return result, nil
}

// ListForUser returns the active missions with the user's progress.
func (t *Tracker) ListForUser(ctx context.Context, userID string) ([]UserMission, error) {
	p, err := t.progressions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	missions, err := t.missions.ListActive(ctx, "", t.now())
	if err != nil {
		return nil, err
	}
	rows, err := t.progress.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	byMission := make(map[string]models.MissionProgress, len(rows))
	for _, r := range rows {
		byMission[r.MissionID] = r
	}

	out := make([]UserMission, 0, len(missions))
	for _, m := range missions {
		progress, ok := byMission[m.ID]
		if !ok {
			progress = models.MissionProgress{UserID: userID, MissionID: m.ID}
		}
		out = append(out, UserMission{Mission: m, Progress: progress, Eligible: p.Level >= m.MinLevel})
	}
	return out, nil
}
