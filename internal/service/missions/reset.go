package missions

import (
	"context"
	"fmt"
	"time"

	"github.com/degentalk/progression/internal/metrics"
	"github.com/degentalk/progression/internal/models"
)

// ResetDaily resets daily missions whose window has closed.
func (t *Tracker) ResetDaily(ctx context.Context) (int, error) {
	return t.reset(ctx, models.CadenceDaily)
}

// ResetWeekly resets weekly missions whose window has closed.
func (t *Tracker) ResetWeekly(ctx context.Context) (int, error) {
	return t.reset(ctx, models.CadenceWeekly)
}

// reset advances every due mission of a cadence to its next window and
// clears its progress rows. Only the sweep that wins the expiry update
// touches the rows, so overlapping sweeps reset each mission once. It
// returns the number of missions reset.
func (t *Tracker) reset(ctx context.Context, cadence models.Cadence) (int, error) {
	now := t.now()
	due, err := t.missions.ListDue(ctx, cadence, now)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, m := range due {
		next := NextWindow(*m.ExpiresAt, cadence.Period(), now)
		var rows int64
		var won bool
		err := t.db.Transaction(ctx, func(ctx context.Context) error {
			var err error
			won, err = t.missions.AdvanceExpiry(ctx, m.ID, now, next)
			if err != nil || !won {
				return err
			}
			rows, err = t.progress.ResetForMission(ctx, m.ID)
			return err
		})
		if err != nil {
			metrics.RecordMissionReset(string(cadence), reset)
			return reset, fmt.Errorf("failed to reset mission %s: %w", m.ID, err)
		}
		if !won {
			continue
		}
		reset++
		t.log.Info().
			Str("mission_id", m.ID).
			Str("cadence", string(cadence)).
			Time("expires_at", next).
			Int64("rows", rows).
			Msg("Mission reset")
	}

	metrics.RecordMissionReset(string(cadence), reset)
	return reset, nil
}

// NextWindow moves expiry forward by whole periods until it lies after now.
func NextWindow(expiry time.Time, period time.Duration, now time.Time) time.Time {
	if period <= 0 {
		return expiry
	}
	next := expiry.Add(period)
	if !next.After(now) {
		missed := now.Sub(next)/period + 1
		next = next.Add(missed * period)
	}
	return next
}
