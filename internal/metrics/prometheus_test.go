package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAward(t *testing.T) {
	// Reset the counter before test
	XPAwardsTotal.Reset()

	RecordAward("thread_created", "awarded")
	RecordAward("thread_created", "awarded")
	RecordAward("thread_created", "rate_limited")

	count := testutil.ToFloat64(XPAwardsTotal.WithLabelValues("thread_created", "awarded"))
	if count != 2 {
		t.Errorf("Expected awarded count = 2, got %f", count)
	}

	count = testutil.ToFloat64(XPAwardsTotal.WithLabelValues("thread_created", "rate_limited"))
	if count != 1 {
		t.Errorf("Expected rate_limited count = 1, got %f", count)
	}
}

func TestRecordPointsAwarded(t *testing.T) {
	XPPointsAwardedTotal.Reset()

	RecordPointsAwarded("post_created", 15)
	RecordPointsAwarded("post_created", 5)

	points := testutil.ToFloat64(XPPointsAwardedTotal.WithLabelValues("post_created"))
	if points != 20 {
		t.Errorf("Expected 20 points, got %f", points)
	}
}

func TestRecordLevelChange(t *testing.T) {
	LevelUpsTotal.Reset()

	RecordLevelChange(1, 3)
	RecordLevelChange(3, 2)
	RecordLevelChange(2, 2)

	if up := testutil.ToFloat64(LevelUpsTotal.WithLabelValues("up")); up != 1 {
		t.Errorf("Expected 1 level up, got %f", up)
	}
	if down := testutil.ToFloat64(LevelUpsTotal.WithLabelValues("down")); down != 1 {
		t.Errorf("Expected 1 level down, got %f", down)
	}
}

func TestRecordRewardGrant(t *testing.T) {
	RewardGrantsTotal.Reset()

	RecordRewardGrant("badge", "newly_granted")
	RecordRewardGrant("badge", "already_held")

	if n := testutil.ToFloat64(RewardGrantsTotal.WithLabelValues("badge", "newly_granted")); n != 1 {
		t.Errorf("Expected 1 newly granted badge, got %f", n)
	}
}

func TestRecordMissionReset(t *testing.T) {
	MissionResetsTotal.Reset()

	RecordMissionReset("daily", 3)
	RecordMissionReset("daily", 0)

	if n := testutil.ToFloat64(MissionResetsTotal.WithLabelValues("daily")); n != 3 {
		t.Errorf("Expected 3 daily resets, got %f", n)
	}
}

func TestRegistryMetrics(t *testing.T) {
	RegistryRefreshesTotal.Reset()
	RegistryGeneration.Reset()

	RecordRegistryRefresh("actions", "success")
	SetRegistryGeneration("actions", 7)

	if n := testutil.ToFloat64(RegistryRefreshesTotal.WithLabelValues("actions", "success")); n != 1 {
		t.Errorf("Expected 1 refresh, got %f", n)
	}
	if g := testutil.ToFloat64(RegistryGeneration.WithLabelValues("actions")); g != 7 {
		t.Errorf("Expected generation 7, got %f", g)
	}
}

func TestSetActiveBadgeHolders(t *testing.T) {
	ActiveBadgeHolders.Reset()

	SetActiveBadgeHolders("Regular", 3)
	SetActiveBadgeHolders("Regular", 4)

	holders := testutil.ToFloat64(ActiveBadgeHolders.WithLabelValues("Regular"))
	if holders != 4 {
		t.Errorf("Expected 4 holders, got %f", holders)
	}
}

func TestSchedulerMetrics(t *testing.T) {
	SchedulerJobsRunTotal.Reset()

	RecordSchedulerJobRun("daily_reset", "success")
	SetSchedulerLastRun("daily_reset")
	ObserveSchedulerJobDuration("daily_reset", 0.5)

	if n := testutil.ToFloat64(SchedulerJobsRunTotal.WithLabelValues("daily_reset", "success")); n != 1 {
		t.Errorf("Expected 1 job run, got %f", n)
	}
	if ts := testutil.ToFloat64(SchedulerLastRunTimestamp.WithLabelValues("daily_reset")); ts <= 0 {
		t.Errorf("Expected last run timestamp to be set, got %f", ts)
	}
}
