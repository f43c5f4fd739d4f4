package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addNotificationsRetentionIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_add_notifications_retention_index",
		Migrate: func(tx *gorm.DB) error {
			statements := []string{
				`ALTER TABLE notifications ADD COLUMN IF NOT EXISTS read_at TIMESTAMPTZ`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_read_created ON notifications (created_at) WHERE is_read = true`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_notifications_read_created`).Error
		},
	}
}
