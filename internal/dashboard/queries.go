package dashboard

import (
	"time"

	"github.com/zulandar/shopfloor/internal/models"
	"gorm.io/gorm"
)

// StatusCounts holds task counts by status.
type StatusCounts struct {
	NotStarted int `json:"not_started"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	OnHold     int `json:"on_hold"`
	Total      int `json:"total"`
}

// TaskView is one task in a job's progress view.
type TaskView struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Status               string     `json:"status"`
	Stage                string     `json:"stage"`
	StageSequence        int        `json:"stage_sequence"`
	EstimatedTime        int        `json:"estimated_time"`
	ActualTime           int        `json:"actual_time"`
	CompletionPercentage int        `json:"completion_percentage"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

// PartView is one part in a job's progress view.
type PartView struct {
	ID           string     `json:"id"`
	PartNumber   string     `json:"part_number"`
	Status       string     `json:"status"`
	CurrentStage string     `json:"current_stage,omitempty"`
	Tasks        []TaskView `json:"tasks"`
}

// JobView is the progress of one job.
type JobView struct {
	ID           string       `json:"id"`
	JobNumber    string       `json:"job_number"`
	Customer     string       `json:"customer,omitempty"`
	Status       string       `json:"status"`
	CurrentStage string       `json:"current_stage,omitempty"`
	Progress     int          `json:"progress"` // percent of tasks completed
	Tasks        StatusCounts `json:"tasks"`
	Parts        []PartView   `json:"parts"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// TimeEntryView is a closed time entry returned by stop.
type TimeEntryView struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"task_id"`
	OperatorID string     `json:"operator_id"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Duration   *int       `json:"duration,omitempty"` // minutes
}

func newTimeEntryView(e *models.TimeEntry) TimeEntryView {
	return TimeEntryView{
		ID:         e.ID,
		TaskID:     e.TaskID,
		OperatorID: e.OperatorID,
		StartTime:  e.StartTime,
		EndTime:    e.EndTime,
		Duration:   e.Duration,
	}
}

// JobProgress loads a job with its parts, tasks and stage names. It returns
// gorm.ErrRecordNotFound when the job does not exist for the tenant.
func JobProgress(db *gorm.DB, tenantID, jobID string) (*JobView, error) {
	var job models.Job
	if err := db.Where("id = ? AND tenant_id = ?", jobID, tenantID).
		Preload("Parts", func(db *gorm.DB) *gorm.DB { return db.Order("part_number ASC, id ASC") }).
		Preload("Parts.Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Parts.Tasks.Stage").
		First(&job).Error; err != nil {
		return nil, err
	}

	names, err := stageNames(db, tenantID)
	if err != nil {
		return nil, err
	}
	counts, err := TaskStatusCounts(db, tenantID, jobID)
	if err != nil {
		return nil, err
	}

	view := &JobView{
		ID:           job.ID,
		JobNumber:    job.JobNumber,
		Customer:     job.Customer,
		Status:       job.Status,
		CurrentStage: nameOf(names, job.CurrentStageID),
		Tasks:        counts,
		Parts:        make([]PartView, 0, len(job.Parts)),
		CompletedAt:  job.CompletedAt,
	}
	if counts.Total > 0 {
		view.Progress = counts.Completed * 100 / counts.Total
	}
	for _, p := range job.Parts {
		pv := PartView{
			ID:           p.ID,
			PartNumber:   p.PartNumber,
			Status:       p.Status,
			CurrentStage: nameOf(names, p.CurrentStageID),
			Tasks:        make([]TaskView, 0, len(p.Tasks)),
		}
		for _, t := range p.Tasks {
			pv.Tasks = append(pv.Tasks, TaskView{
				ID:                   t.ID,
				Name:                 t.Name,
				Status:               t.Status,
				Stage:                t.Stage.Name,
				StageSequence:        t.Stage.Sequence,
				EstimatedTime:        t.EstimatedTime,
				ActualTime:           t.ActualTime,
				CompletionPercentage: t.CompletionPercentage,
				StartedAt:            t.StartedAt,
				CompletedAt:          t.CompletedAt,
			})
		}
		view.Parts = append(view.Parts, pv)
	}
	return view, nil
}

// TaskStatusCounts returns the job's task counts grouped by status.
func TaskStatusCounts(db *gorm.DB, tenantID, jobID string) (StatusCounts, error) {
	type row struct {
		Status string
		Count  int
	}
	var rows []row
	if err := db.Model(&models.Task{}).
		Select("tasks.status, count(*) as count").
		Joins("JOIN parts ON parts.id = tasks.part_id").
		Where("tasks.tenant_id = ? AND parts.job_id = ?", tenantID, jobID).
		Group("tasks.status").
		Find(&rows).Error; err != nil {
		return StatusCounts{}, err
	}

	var sc StatusCounts
	for _, r := range rows {
		sc.Total += r.Count
		switch r.Status {
		case models.StatusNotStarted:
			sc.NotStarted += r.Count
		case models.StatusInProgress:
			sc.InProgress += r.Count
		case models.StatusCompleted:
			sc.Completed += r.Count
		case models.StatusOnHold:
			sc.OnHold += r.Count
		}
	}
	return sc, nil
}

func stageNames(db *gorm.DB, tenantID string) (map[string]string, error) {
	var stages []models.Stage
	if err := db.Where("tenant_id = ?", tenantID).Find(&stages).Error; err != nil {
		return nil, err
	}
	names := make(map[string]string, len(stages))
	for _, s := range stages {
		names[s.ID] = s.Name
	}
	return names, nil
}

func nameOf(names map[string]string, id *string) string {
	if id == nil {
		return ""
	}
	if n, ok := names[*id]; ok {
		return n
	}
	return *id
}
