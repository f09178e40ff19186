package notify

import (
	"context"
	"fmt"

	"github.com/zulandar/shopfloor/internal/models"
	"gorm.io/gorm"
)

// DeliveryLog persists delivery outcomes.
type DeliveryLog interface {
	Record(ctx context.Context, entry models.WebhookLog) error
}

// GormDeliveryLog writes webhook_logs rows.
type GormDeliveryLog struct {
	db *gorm.DB
}

// NewGormDeliveryLog wraps db.
func NewGormDeliveryLog(db *gorm.DB) *GormDeliveryLog {
	return &GormDeliveryLog{db: db}
}

// Record inserts entry.
func (l *GormDeliveryLog) Record(ctx context.Context, entry models.WebhookLog) error {
	if err := l.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("notify: record delivery %s: %w", entry.EventID, err)
	}
	return nil
}
