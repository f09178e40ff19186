package models

import "time"

// Job is a customer order: the root of the Job → Part → Task hierarchy.
type Job struct {
	ID             string  `gorm:"primaryKey;size:36"`
	TenantID       string  `gorm:"size:36;not null;index:idx_jobs_tenant_status"`
	JobNumber      string  `gorm:"size:64;not null"`
	Customer       string  `gorm:"size:128"`
	Status         string  `gorm:"size:16;default:not_started;index:idx_jobs_tenant_status"`
	CurrentStageID *string `gorm:"size:36"`
	Version        int     `gorm:"not null;default:1"`
	DueDate        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time

	Parts []Part `gorm:"foreignKey:JobID"`
}

// Part is a manufactured item within a Job.
type Part struct {
	ID             string  `gorm:"primaryKey;size:36"`
	TenantID       string  `gorm:"size:36;not null;index"`
	JobID          string  `gorm:"size:36;not null;index"`
	PartNumber     string  `gorm:"size:64;not null"`
	Material       string  `gorm:"size:64"`
	Quantity       int     `gorm:"default:1"`
	Status         string  `gorm:"size:16;default:not_started;index"`
	CurrentStageID *string `gorm:"size:36"`
	Version        int     `gorm:"not null;default:1"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time

	Tasks []Task `gorm:"foreignKey:PartID"`
}
