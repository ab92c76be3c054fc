package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/semo-membership/internal/domain/model"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	err := db.AutoMigrate(
		&model.LifecycleEvent{},
		&model.MemberSnapshot{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}
	logger.Info("GORM auto-migrations completed successfully")

	if db.Dialector.Name() == "postgres" {
		logger.Info("Creating custom indexes...")
		if err := createCustomIndexes(db); err != nil {
			logger.Error("Failed to create custom indexes", zap.Error(err))
			return err
		}
		logger.Info("Custom indexes created successfully")
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomIndexes creates partial indexes that GORM doesn't handle automatically
func createCustomIndexes(db *gorm.DB) error {
	// Member lookup by customer only reads attributed events.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_lifecycle_events_customer_attributed ON lifecycle_events (customer_id, created_at DESC) WHERE member_id IS NOT NULL`).Error; err != nil {
		return err
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_member_snapshots_email_lower ON member_snapshots (LOWER(email))`).Error; err != nil {
		return err
	}

	return nil
}
