package models

import "time"

// Task is one operation on a Part, executed at a Stage.
type Task struct {
	ID                   string  `gorm:"primaryKey;size:36"`
	TenantID             string  `gorm:"size:36;not null;index"`
	PartID               string  `gorm:"size:36;not null;index:idx_tasks_part_status"`
	StageID              string  `gorm:"size:36;not null"`
	Name                 string  `gorm:"size:128;not null"`
	Status               string  `gorm:"size:16;default:not_started;index:idx_tasks_part_status"`
	AssignedOperatorID   *string `gorm:"size:36"`
	EstimatedTime        int     // minutes
	ActualTime           int     // minutes, only ever incremented
	CompletionPercentage int     `gorm:"default:0"`
	Version              int     `gorm:"not null;default:1"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
	StartedAt            *time.Time
	CompletedAt          *time.Time

	Stage Stage `gorm:"foreignKey:StageID"`
}

// TimeEntry records one operator clocking on a Task. EndTime is nil while open.
type TimeEntry struct {
	ID         string    `gorm:"primaryKey;size:36"`
	TenantID   string    `gorm:"size:36;not null;index"`
	TaskID     string    `gorm:"size:36;not null;index:idx_time_entries_open"`
	OperatorID string    `gorm:"size:36;not null;index:idx_time_entries_open"`
	StartTime  time.Time `gorm:"not null"`
	EndTime    *time.Time
	Duration   *int   // minutes, set on stop
	Notes      string `gorm:"type:text"`
	CreatedAt  time.Time
}

// Open reports whether the entry is still running.
func (e *TimeEntry) Open() bool {
	return e.EndTime == nil
}
