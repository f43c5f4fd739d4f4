package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/risk-alert-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_notifications",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.NotificationModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_notifications_recipient_read_created ON notifications (recipient_id, is_read, created_at DESC)`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_unread_context ON notifications (recipient_id, context_key) WHERE is_read = false AND context_key IS NOT NULL`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_category_created ON notifications (category, created_at)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.NotificationModel{})
			},
		},
		addNotificationsRetentionIndex(),
	})

	return m.Migrate()
}
