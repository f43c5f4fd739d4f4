package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"github.com/kursadbilgin/risk-alert-engine/internal/observability"
	"github.com/kursadbilgin/risk-alert-engine/internal/repository"
	"go.uber.org/zap"
)

// RetentionSweeper removes read notifications past their retention age.
// Unread notifications are kept forever.
type RetentionSweeper struct {
	notifications repository.NotificationRepository
	policy        domain.RetentionPolicy
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

func NewRetentionSweeper(
	notifications repository.NotificationRepository,
	policy domain.RetentionPolicy,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*RetentionSweeper, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if policy.MaxAgeDays == 0 {
		policy.MaxAgeDays = domain.DefaultRetentionDays
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetentionSweeper{
		notifications: notifications,
		policy:        policy,
		metrics:       metrics,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Cleanup deletes read notifications created more than maxAgeDays ago and
// returns how many were removed. Zero selects the configured policy.
func (s *RetentionSweeper) Cleanup(ctx context.Context, maxAgeDays int) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	policy := s.policy
	if maxAgeDays != 0 {
		policy = domain.RetentionPolicy{MaxAgeDays: maxAgeDays}
		if err := policy.Validate(); err != nil {
			return 0, err
		}
	}

	cutoff := s.now().AddDate(0, 0, -policy.MaxAgeDays)
	deleted, err := s.notifications.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete read notifications: %w", err)
	}
	s.metrics.AddNotificationsSwept(deleted)

	observability.WithContextLogger(s.logger, ctx).Info("retention cleanup finished",
		zap.Int("maxAgeDays", policy.MaxAgeDays),
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}
