package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	JobLowAttendanceSweep    = "low-attendance-sweep"
	JobAtRiskSweep           = "at-risk-sweep"
	JobRetentionCleanup      = "retention-cleanup"
	JobDeliveryStatsSnapshot = "delivery-stats-snapshot"
)

// JobSpecs holds the standard five-field cron expression of each job.
type JobSpecs struct {
	LowAttendance string
	AtRisk        string
	Retention     string
	DeliveryStats string
}

// DefaultJobs wires the engine, sweeper and lifecycle service into the four
// standard jobs.
func DefaultJobs(
	engine *AlertEngine,
	sweeper *RetentionSweeper,
	lifecycle *LifecycleService,
	specs JobSpecs,
	logger *zap.Logger,
) []Job {
	if logger == nil {
		logger = zap.NewNop()
	}

	return []Job{
		{
			Name: JobLowAttendanceSweep,
			Spec: specs.LowAttendance,
			Run: func(ctx context.Context) (RunSummary, error) {
				return engine.TriggerLowAttendanceAlerts(ctx, nil)
			},
		},
		{
			Name: JobAtRiskSweep,
			Spec: specs.AtRisk,
			Run: func(ctx context.Context) (RunSummary, error) {
				return engine.TriggerAtRiskAlerts(ctx, nil)
			},
		},
		{
			Name: JobRetentionCleanup,
			Spec: specs.Retention,
			Run: func(ctx context.Context) (RunSummary, error) {
				deleted, err := sweeper.Cleanup(ctx, 0)
				return RunSummary{Deleted: deleted}, err
			},
		},
		{
			Name: JobDeliveryStatsSnapshot,
			Spec: specs.DeliveryStats,
			Run: func(ctx context.Context) (RunSummary, error) {
				stats, err := lifecycle.DeliveryStats(ctx, 0)
				if err != nil {
					return RunSummary{}, fmt.Errorf("failed to compute delivery stats: %w", err)
				}

				fields := []zap.Field{
					zap.Int("windowDays", stats.WindowDays),
					zap.Int64("total", stats.Total),
					zap.Int64("read", stats.Read),
					zap.Int64("unread", stats.Unread),
				}
				for category, counts := range stats.ByCategory {
					fields = append(fields, zap.Any(category.String(), counts))
				}
				logger.Info("delivery stats snapshot", fields...)
				return RunSummary{}, nil
			},
		},
	}
}
