package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"github.com/kursadbilgin/risk-alert-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultPageLimit       = 20
	maxPageLimit           = 100
	maxMarkManyIDs         = 100
	defaultStatsWindowDays = 7
	maxStatsWindowDays     = 365
)

type LifecycleService struct {
	notifications   repository.NotificationRepository
	statsWindowDays int
	logger          *zap.Logger
	now             func() time.Time
	newID           func() string
}

type NotificationPage struct {
	Items []domain.Notification
	Total int64
	Page  int
	Limit int
}

type CategoryCounts struct {
	Read   int64 `json:"read"`
	Unread int64 `json:"unread"`
	Total  int64 `json:"total"`
}

type DeliveryStats struct {
	WindowDays int                                `json:"windowDays"`
	Since      time.Time                          `json:"since"`
	Total      int64                              `json:"total"`
	Read       int64                              `json:"read"`
	Unread     int64                              `json:"unread"`
	ByCategory map[domain.Category]CategoryCounts `json:"byCategory"`
}

func NewLifecycleService(
	notifications repository.NotificationRepository,
	statsWindowDays int,
	logger *zap.Logger,
) (*LifecycleService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if statsWindowDays <= 0 {
		statsWindowDays = defaultStatsWindowDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LifecycleService{
		notifications:   notifications,
		statsWindowDays: statsWindowDays,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
		newID:           uuid.NewString,
	}, nil
}

// ListForRecipient returns the caller's notifications, newest first.
func (s *LifecycleService) ListForRecipient(
	ctx context.Context,
	recipientID string,
	params repository.ListParams,
) (*NotificationPage, error) {
	if err := requireRecipient(recipientID); err != nil {
		return nil, err
	}
	if params.Page < 0 {
		return nil, fmt.Errorf("%w: page must not be negative", domain.ErrValidation)
	}
	if params.Limit < 0 || params.Limit > maxPageLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxPageLimit)
	}
	if params.Category != nil && !params.Category.IsValid() {
		return nil, fmt.Errorf("%w: invalid category %q", domain.ErrValidation, *params.Category)
	}
	if params.Page == 0 {
		params.Page = 1
	}
	if params.Limit == 0 {
		params.Limit = defaultPageLimit
	}

	items, total, err := s.notifications.ListForRecipient(ctx, recipientID, params)
	if err != nil {
		return nil, err
	}

	return &NotificationPage{
		Items: items,
		Total: total,
		Page:  params.Page,
		Limit: params.Limit,
	}, nil
}

// MarkRead marks one notification as read. Marking an already read
// notification succeeds without changing it.
func (s *LifecycleService) MarkRead(ctx context.Context, id string, recipientID string) (*domain.Notification, error) {
	if err := requireRecipient(recipientID); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	notification, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !notification.BelongsTo(recipientID) {
		return nil, fmt.Errorf("%w: notification %s is addressed to another user", domain.ErrNotAuthorized, id)
	}
	if notification.IsRead {
		return notification, nil
	}

	readAt := s.now()
	updated, err := s.notifications.MarkRead(ctx, id, recipientID, readAt)
	if err != nil {
		return nil, err
	}
	notification.IsRead = true
	if updated {
		notification.ReadAt = &readAt
	}

	return notification, nil
}

// MarkManyRead marks the caller's notifications among ids as read and
// returns how many changed. Ids of other recipients are ignored.
func (s *LifecycleService) MarkManyRead(ctx context.Context, ids []string, recipientID string) (int64, error) {
	if err := requireRecipient(recipientID); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: ids must not be empty", domain.ErrValidation)
	}
	if len(ids) > maxMarkManyIDs {
		return 0, fmt.Errorf("%w: at most %d ids per request", domain.ErrValidation, maxMarkManyIDs)
	}

	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := validateID(id); err != nil {
			return 0, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	return s.notifications.MarkManyRead(ctx, unique, recipientID, s.now())
}

func (s *LifecycleService) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	if err := requireRecipient(recipientID); err != nil {
		return 0, err
	}
	return s.notifications.CountUnread(ctx, recipientID)
}

// DeliveryStats aggregates notifications created in the last windowDays by
// category and read state. Zero selects the configured window.
func (s *LifecycleService) DeliveryStats(ctx context.Context, windowDays int) (*DeliveryStats, error) {
	if windowDays == 0 {
		windowDays = s.statsWindowDays
	}
	if windowDays < 1 || windowDays > maxStatsWindowDays {
		return nil, fmt.Errorf("%w: windowDays must be between 1 and %d", domain.ErrValidation, maxStatsWindowDays)
	}

	since := s.now().AddDate(0, 0, -windowDays)
	rows, err := s.notifications.CategoryStats(ctx, since)
	if err != nil {
		return nil, err
	}

	stats := &DeliveryStats{
		WindowDays: windowDays,
		Since:      since,
		ByCategory: make(map[domain.Category]CategoryCounts),
	}
	for _, row := range rows {
		counts := stats.ByCategory[row.Category]
		if row.IsRead {
			counts.Read += row.Count
			stats.Read += row.Count
		} else {
			counts.Unread += row.Count
			stats.Unread += row.Count
		}
		counts.Total += row.Count
		stats.Total += row.Count
		stats.ByCategory[row.Category] = counts
	}

	return stats, nil
}

// Announce stores an administrator or faculty authored notification. The
// auto category is reserved for the alert engine.
func (s *LifecycleService) Announce(ctx context.Context, notification domain.Notification) (*domain.Notification, error) {
	if notification.Category == domain.CategoryAuto {
		return nil, fmt.Errorf("%w: category %q is reserved for automated alerts", domain.ErrValidation, domain.CategoryAuto)
	}

	notification.ID = s.newID()
	notification.RecipientID = strings.TrimSpace(notification.RecipientID)
	notification.ContextKey = nil
	notification.RuleKind = nil
	notification.IsRead = false
	notification.ReadAt = nil
	notification.CreatedAt = s.now()
	if err := notification.Validate(); err != nil {
		return nil, err
	}

	if err := s.notifications.Create(ctx, &notification); err != nil {
		return nil, err
	}

	s.logger.Info("notification announced",
		zap.String("notificationId", notification.ID),
		zap.String("recipientId", notification.RecipientID),
		zap.String("category", notification.Category.String()),
	)
	return &notification, nil
}

// Purge deletes a notification regardless of its read state.
func (s *LifecycleService) Purge(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := s.notifications.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("notification purged", zap.String("notificationId", id))
	return nil
}

func requireRecipient(recipientID string) error {
	if strings.TrimSpace(recipientID) == "" {
		return fmt.Errorf("%w: caller identity is required", domain.ErrValidation)
	}
	return nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: invalid notification id %q", domain.ErrValidation, id)
	}
	return nil
}
