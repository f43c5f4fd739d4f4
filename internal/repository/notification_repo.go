package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/risk-alert-engine/internal/domain"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type ListParams struct {
	Page       int
	Limit      int
	UnreadOnly bool
	Category   *domain.Category
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	ExistsUnreadByContext(ctx context.Context, recipientID string, contextKey string) (bool, error)
	ListForRecipient(ctx context.Context, recipientID string, params ListParams) ([]domain.Notification, int64, error)
	MarkRead(ctx context.Context, id string, recipientID string, readAt time.Time) (bool, error)
	MarkManyRead(ctx context.Context, ids []string, recipientID string, readAt time.Time) (int64, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	CategoryStats(ctx context.Context, since time.Time) ([]CategoryStat, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return storeError(err)
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeError(err)
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) ExistsUnreadByContext(ctx context.Context, recipientID string, contextKey string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("recipient_id = ? AND context_key = ? AND is_read = ?", recipientID, contextKey, false).
		Count(&count).Error
	if err != nil {
		return false, storeError(err)
	}
	return count > 0, nil
}

func (r *GormNotificationRepo) ListForRecipient(
	ctx context.Context,
	recipientID string,
	params ListParams,
) ([]domain.Notification, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("recipient_id = ?", recipientID)

	if params.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if params.Category != nil {
		query = query.Where("category = ?", *params.Category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storeError(err)
	}

	page := max(params.Page, 1)
	limit := params.Limit
	if limit < 1 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	var models []NotificationModel
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, storeError(err)
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, total, nil
}

// MarkRead flips an unread notification owned by recipientID. It reports
// false when nothing changed.
func (r *GormNotificationRepo) MarkRead(ctx context.Context, id string, recipientID string, readAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND recipient_id = ? AND is_read = ?", id, recipientID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": readAt,
		})
	if result.Error != nil {
		return false, storeError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormNotificationRepo) MarkManyRead(ctx context.Context, ids []string, recipientID string, readAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id IN ? AND recipient_id = ? AND is_read = ?", ids, recipientID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": readAt,
		})
	if result.Error != nil {
		return 0, storeError(result.Error)
	}
	return result.RowsAffected, nil
}

func (r *GormNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	if err != nil {
		return 0, storeError(err)
	}
	return count, nil
}

func (r *GormNotificationRepo) CategoryStats(ctx context.Context, since time.Time) ([]CategoryStat, error) {
	var stats []CategoryStat
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Select("category, is_read, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("category, is_read").
		Scan(&stats).Error
	if err != nil {
		return nil, storeError(err)
	}
	return stats, nil
}

// DeleteReadBefore removes read notifications created before cutoff. Unread
// rows are never touched.
func (r *GormNotificationRepo) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, cutoff).
		Delete(&NotificationModel{})
	if result.Error != nil {
		return 0, storeError(result.Error)
	}
	return result.RowsAffected, nil
}

func (r *GormNotificationRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&NotificationModel{})
	if result.Error != nil {
		return storeError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
