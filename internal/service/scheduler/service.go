// Package scheduler runs the periodic mission window resets.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/degentalk/progression/internal/config"
	prommetrics "github.com/degentalk/progression/internal/metrics"
	"github.com/degentalk/progression/pkg/logger"
)

// Job names used in logs and metrics.
const (
	JobDailyReset  = "mission_daily_reset"
	JobWeeklyReset = "mission_weekly_reset"
)

// Resetter rolls over expired mission windows.
type Resetter interface {
	ResetDaily(ctx context.Context) (int, error)
	ResetWeekly(ctx context.Context) (int, error)
}

// Service schedules mission resets.
type Service struct {
	config  *config.SchedulerConfig
	resets  Resetter
	log     *logger.Logger
	cron    *cron.Cron
	timeout time.Duration
}

// NewService creates a new scheduler service.
func NewService(cfg *config.SchedulerConfig, resets Resetter, log *logger.Logger) *Service {
	return &Service{
		config:  cfg,
		resets:  resets,
		log:     log,
		timeout: 5 * time.Minute,
	}
}

// Start registers the reset jobs and starts the cron scheduler. Windows
// that closed while the process was down are swept once before the first
// scheduled run.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	jobs := []struct {
		name string
		spec string
		fn   func(ctx context.Context) (int, error)
	}{
		{JobDailyReset, s.config.DailyResetCron, s.resets.ResetDaily},
		{JobWeeklyReset, s.config.WeeklyResetCron, s.resets.ResetWeekly},
	}

	for _, job := range jobs {
		name, fn := job.name, job.fn
		if _, err := s.cron.AddFunc(job.spec, func() {
			s.runJob(context.Background(), name, fn)
		}); err != nil {
			return fmt.Errorf("failed to register %s job %q: %w", name, job.spec, err)
		}
		s.log.Info().
			Str("job", name).
			Str("schedule", job.spec).
			Msg("Scheduler job registered")
	}

	s.RunAll(context.Background())
	s.cron.Start()

	nextRun := ""
	if entries := s.cron.Entries(); len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("timezone", s.config.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// RunAll runs both resets immediately.
func (s *Service) RunAll(ctx context.Context) {
	s.runJob(ctx, JobDailyReset, s.resets.ResetDaily)
	s.runJob(ctx, JobWeeklyReset, s.resets.ResetWeekly)
}

// runJob executes one reset and records its outcome.
func (s *Service) runJob(ctx context.Context, name string, fn func(ctx context.Context) (int, error)) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		prommetrics.ObserveSchedulerJobDuration(name, time.Since(start).Seconds())
		prommetrics.SetSchedulerLastRun(name)
	}()

	count, err := fn(ctx)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", name).
			Int("reset", count).
			Dur("duration", time.Since(start)).
			Msg("Scheduler job failed")
		prommetrics.RecordSchedulerJobRun(name, "error")
		return
	}

	prommetrics.RecordSchedulerJobRun(name, "success")
	s.log.Info().
		Str("job", name).
		Int("reset", count).
		Dur("duration", time.Since(start)).
		Msg("Scheduler job completed")
}
