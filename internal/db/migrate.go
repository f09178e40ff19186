package db

import (
	"fmt"

	"github.com/zulandar/shopfloor/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model owned by Shopfloor, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&models.Tenant{},
		&models.Stage{},
		&models.Operator{},
		&models.Job{},
		&models.Part{},
		&models.Task{},
		&models.TimeEntry{},
		&models.Webhook{},
		&models.WebhookLog{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
