package models

import "time"

// Stage is a step of the shop-floor workflow. Sequence orders stages; lower runs earlier.
type Stage struct {
	ID        string `gorm:"primaryKey;size:36"`
	TenantID  string `gorm:"size:36;not null;index"`
	Name      string `gorm:"size:64;not null"`
	Sequence  int    `gorm:"not null"`
	Color     string `gorm:"size:16"`
	Active    bool   `gorm:"default:true"`
	CreatedAt time.Time
}

// Operator is a shop-floor worker who clocks time on tasks.
type Operator struct {
	ID         string `gorm:"primaryKey;size:36"`
	TenantID   string `gorm:"size:36;not null;index"`
	Name       string `gorm:"size:128;not null"`
	EmployeeID string `gorm:"size:32"`
	Active     bool   `gorm:"default:true"`
	CreatedAt  time.Time
}

// Tenant owns every other row.
type Tenant struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"size:128;not null"`
	CreatedAt time.Time
}
