package models

import "time"

// Webhook is a tenant's HTTP subscription to cascade events.
type Webhook struct {
	ID        string `gorm:"primaryKey;size:36"`
	TenantID  string `gorm:"size:36;not null;index"`
	URL       string `gorm:"size:512;not null"`
	Secret    string `gorm:"size:128"`
	Events    string `gorm:"size:256"` // comma-separated event kinds, empty = all
	Active    bool   `gorm:"default:true"`
	CreatedAt time.Time
}

// WebhookLog records the outcome of one notification delivery.
type WebhookLog struct {
	ID         string  `gorm:"primaryKey;size:36"`
	TenantID   string  `gorm:"size:36;index"`
	WebhookID  *string `gorm:"size:36"`
	EventID    string  `gorm:"size:36;index"`
	EventKind  string  `gorm:"size:32"`
	Sink       string  `gorm:"size:16"`
	StatusCode int
	Attempts   int
	Error      string `gorm:"type:text"`
	CreatedAt  time.Time
}
