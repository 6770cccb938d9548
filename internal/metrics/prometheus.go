// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the progression engine.
var (
	// Counters.
	XPAwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_awards_total",
			Help: "Total award attempts by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	XPPointsAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_points_awarded_total",
			Help: "Total XP points granted by action",
		},
		[]string{"action"},
	)

	XPAdjustmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_adjustments_total",
			Help: "Total balance adjustments by mode",
		},
		[]string{"mode"},
	)

	XPMutationConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xp_mutation_conflicts_total",
			Help: "Compare-and-set misses retried by the award engine",
		},
	)

	LevelUpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "level_ups_total",
			Help: "Total level transitions by direction",
		},
		[]string{"direction"},
	)

	RewardGrantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_grants_total",
			Help: "Level reward grants by kind and status",
		},
		[]string{"kind", "status"},
	)

	MultiplierCapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multiplier_caps_total",
			Help: "Multiplier values sanitized or clamped by reason",
		},
		[]string{"reason"},
	)

	MissionProgressTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_progress_total",
			Help: "Mission progress events by outcome",
		},
		[]string{"outcome"},
	)

	MissionClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_claims_total",
			Help: "Mission reward claims by result",
		},
		[]string{"result"},
	)

	MissionResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_resets_total",
			Help: "Missions advanced by reset sweeps, by cadence",
		},
		[]string{"cadence"},
	)

	RegistryRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_refreshes_total",
			Help: "Snapshot reloads by registry and status",
		},
		[]string{"registry", "status"},
	)

	EventHandlerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_handler_failures_total",
			Help: "Event handler errors and panics by handler",
		},
		[]string{"handler"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications by type and delivery status",
		},
		[]string{"type", "status"},
	)

	// Gauges.
	RegistryGeneration = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "registry_generation",
			Help: "Generation number of the installed snapshot",
		},
		[]string{"registry"},
	)

	ActiveBadgeHolders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_badge_holders",
			Help: "Current number of users holding each badge",
		},
		[]string{"badge_name"},
	)

	// Histograms.
	XPAwardDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xp_award_duration_seconds",
			Help:    "Time taken to process an award or adjustment",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	// Scheduler metrics.
	SchedulerJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_jobs_run_total",
			Help: "Total scheduler job executions",
		},
		[]string{"job", "status"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp",
			Help: "Unix timestamp of last scheduler run",
		},
		[]string{"job"},
	)

	SchedulerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Time taken to execute a scheduler job",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"job"},
	)
)

// UnknownAction is the action label for keys the registry does not know,
// so request input cannot create new series.
const UnknownAction = "_unknown"

// RecordAward records the outcome of an award attempt.
func RecordAward(action, outcome string) {
	XPAwardsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordPointsAwarded records XP granted for an action.
func RecordPointsAwarded(action string, points int64) {
	XPPointsAwardedTotal.WithLabelValues(action).Add(float64(points))
}

// RecordAdjustment records an admin or system adjustment.
func RecordAdjustment(mode string) {
	XPAdjustmentsTotal.WithLabelValues(mode).Inc()
}

// RecordMutationConflict records a compare-and-set retry.
func RecordMutationConflict() {
	XPMutationConflictsTotal.Inc()
}

// RecordLevelChange records a level transition.
func RecordLevelChange(oldLevel, newLevel int) {
	switch {
	case newLevel > oldLevel:
		LevelUpsTotal.WithLabelValues("up").Inc()
	case newLevel < oldLevel:
		LevelUpsTotal.WithLabelValues("down").Inc()
	}
}

// RecordRewardGrant records a reward grant outcome.
func RecordRewardGrant(kind, status string) {
	RewardGrantsTotal.WithLabelValues(kind, status).Inc()
}

// RecordMultiplierCap records why a multiplier was adjusted.
func RecordMultiplierCap(reason string) {
	MultiplierCapsTotal.WithLabelValues(reason).Inc()
}

// RecordMissionProgress records a mission progress outcome.
func RecordMissionProgress(outcome string) {
	MissionProgressTotal.WithLabelValues(outcome).Inc()
}

// RecordMissionClaim records a claim attempt.
func RecordMissionClaim(result string) {
	MissionClaimsTotal.WithLabelValues(result).Inc()
}

// RecordMissionReset records missions advanced by a sweep.
func RecordMissionReset(cadence string, count int) {
	MissionResetsTotal.WithLabelValues(cadence).Add(float64(count))
}

// RecordRegistryRefresh records a snapshot reload.
func RecordRegistryRefresh(registry, status string) {
	RegistryRefreshesTotal.WithLabelValues(registry, status).Inc()
}

// SetRegistryGeneration sets the installed snapshot generation.
func SetRegistryGeneration(registry string, generation uint64) {
	RegistryGeneration.WithLabelValues(registry).Set(float64(generation))
}

// SetActiveBadgeHolders sets the number of holders for a badge.
func SetActiveBadgeHolders(badgeName string, count int64) {
	ActiveBadgeHolders.WithLabelValues(badgeName).Set(float64(count))
}

// RecordEventHandlerFailure records a failed event handler.
func RecordEventHandlerFailure(handler string) {
	EventHandlerFailuresTotal.WithLabelValues(handler).Inc()
}

// RecordNotification records a notification delivery attempt.
func RecordNotification(kind, status string) {
	NotificationsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveAwardDuration observes how long an award operation took.
func ObserveAwardDuration(operation string, seconds float64) {
	XPAwardDurationSeconds.WithLabelValues(operation).Observe(seconds)
}

// RecordSchedulerJobRun records a scheduler job execution.
func RecordSchedulerJobRun(job, status string) {
	SchedulerJobsRunTotal.WithLabelValues(job, status).Inc()
}

// SetSchedulerLastRun sets the timestamp of the last scheduler run.
func SetSchedulerLastRun(job string) {
	SchedulerLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// ObserveSchedulerJobDuration observes the duration of a scheduler job.
func ObserveSchedulerJobDuration(job string, seconds float64) {
	SchedulerJobDurationSeconds.WithLabelValues(job).Observe(seconds)
}
