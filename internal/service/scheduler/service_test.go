package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/degentalk/progression/internal/config"
	prommetrics "github.com/degentalk/progression/internal/metrics"
	"github.com/degentalk/progression/pkg/logger"
)

type fakeResetter struct {
	mu        sync.Mutex
	daily     int
	weekly    int
	weeklyErr error
}

func (f *fakeResetter) ResetDaily(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.daily++
	return 2, nil
}

func (f *fakeResetter) ResetWeekly(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weekly++
	return 0, f.weeklyErr
}

func (f *fakeResetter) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.daily, f.weekly
}

func testConfig() *config.SchedulerConfig {
	return &config.SchedulerConfig{
		Enabled:         true,
		Timezone:        "UTC",
		DailyResetCron:  "0 0 * * *",
		WeeklyResetCron: "0 0 * * 1",
	}
}

func TestStart_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	resets := &fakeResetter{}
	s := NewService(cfg, resets, logger.Nop())

	require.NoError(t, s.Start())
	assert.Nil(t, s.cron)

	daily, weekly := resets.calls()
	assert.Zero(t, daily)
	assert.Zero(t, weekly)

	s.Stop()
}

func TestStart_SweepsOnBoot(t *testing.T) {
	resets := &fakeResetter{}
	s := NewService(testConfig(), resets, logger.Nop())

	require.NoError(t, s.Start())
	defer s.Stop()

	daily, weekly := resets.calls()
	assert.Equal(t, 1, daily)
	assert.Equal(t, 1, weekly)
	assert.Len(t, s.cron.Entries(), 2)
}

func TestStart_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.SchedulerConfig)
	}{
		{
			name:   "bad daily spec",
			mutate: func(cfg *config.SchedulerConfig) { cfg.DailyResetCron = "every day" },
		},
		{
			name:   "bad weekly spec",
			mutate: func(cfg *config.SchedulerConfig) { cfg.WeeklyResetCron = "61 * * * *" },
		},
		{
			name:   "bad timezone",
			mutate: func(cfg *config.SchedulerConfig) { cfg.Timezone = "Mars/Olympus" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			resets := &fakeResetter{}
			s := NewService(cfg, resets, logger.Nop())

			assert.Error(t, s.Start())

			daily, _ := resets.calls()
			assert.Zero(t, daily, "no job should run when registration fails")
		})
	}
}

func TestRunJob_RecordsOutcome(t *testing.T) {
	prommetrics.SchedulerJobsRunTotal.Reset()

	resets := &fakeResetter{weeklyErr: errors.New("db down")}
	s := NewService(testConfig(), resets, logger.Nop())

	s.RunAll(context.Background())

	assert.Equal(t, float64(1), testutil.ToFloat64(prommetrics.SchedulerJobsRunTotal.WithLabelValues(JobDailyReset, "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(prommetrics.SchedulerJobsRunTotal.WithLabelValues(JobWeeklyReset, "error")))
	assert.Greater(t, testutil.ToFloat64(prommetrics.SchedulerLastRunTimestamp.WithLabelValues(JobWeeklyReset)), float64(0))
}
