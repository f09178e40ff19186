package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/shopfloor/internal/models"
	"gorm.io/gorm"
)

// GormStore implements Store on top of a gorm connection.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB returns the underlying connection.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

var _ Store = (*GormStore)(nil)

func (s *GormStore) first(ctx context.Context, dst interface{}, kind, tenantID, id string, preload ...string) error {
	q := s.db.WithContext(ctx)
	for _, p := range preload {
		q = q.Preload(p)
	}
	if err := q.Where("id = ? AND tenant_id = ?", id, tenantID).First(dst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("store: %s %s: %w", kind, id, ErrNotFound)
		}
		return fmt.Errorf("store: get %s %s: %w", kind, id, err)
	}
	return nil
}

// GetJob loads a job.
func (s *GormStore) GetJob(ctx context.Context, tenantID, id string) (*models.Job, error) {
	var job models.Job
	if err := s.first(ctx, &job, "job", tenantID, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetPart loads a part.
func (s *GormStore) GetPart(ctx context.Context, tenantID, id string) (*models.Part, error) {
	var part models.Part
	if err := s.first(ctx, &part, "part", tenantID, id); err != nil {
		return nil, err
	}
	return &part, nil
}

// GetTask loads a task with its stage.
func (s *GormStore) GetTask(ctx context.Context, tenantID, id string) (*models.Task, error) {
	var task models.Task
	if err := s.first(ctx, &task, "task", tenantID, id, "Stage"); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetOperator loads an operator.
func (s *GormStore) GetOperator(ctx context.Context, tenantID, id string) (*models.Operator, error) {
	var op models.Operator
	if err := s.first(ctx, &op, "operator", tenantID, id); err != nil {
		return nil, err
	}
	return &op, nil
}

// ListParts returns the parts of a job ordered by part number.
func (s *GormStore) ListParts(ctx context.Context, tenantID, jobID string) ([]models.Part, error) {
	var parts []models.Part
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND job_id = ?", tenantID, jobID).
		Order("part_number ASC, id ASC").
		Find(&parts).Error; err != nil {
		return nil, fmt.Errorf("store: list parts of job %s: %w", jobID, err)
	}
	return parts, nil
}

// ListTasks returns tasks under a part or job, with stages preloaded.
func (s *GormStore) ListTasks(ctx context.Context, tenantID string, f TaskFilter) ([]models.Task, error) {
	if f.PartID == "" && f.JobID == "" {
		return nil, fmt.Errorf("store: list tasks: part or job is required")
	}
	if f.Status != "" && !models.ValidStatus(f.Status) {
		return nil, fmt.Errorf("store: list tasks: unknown status %q", f.Status)
	}
	q := s.db.WithContext(ctx).Model(&models.Task{}).Preload("Stage").
		Where("tasks.tenant_id = ?", tenantID)
	if f.PartID != "" {
		q = q.Where("tasks.part_id = ?", f.PartID)
	}
	if f.JobID != "" {
		q = q.Joins("JOIN parts ON parts.id = tasks.part_id").Where("parts.job_id = ?", f.JobID)
	}
	if f.Status != "" {
		q = q.Where("tasks.status = ?", f.Status)
	}

	var tasks []models.Task
	if err := q.Order("tasks.id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	return tasks, nil
}

// ListOpenJobIDs returns ids of the tenant's jobs that are not completed.
func (s *GormStore) ListOpenJobIDs(ctx context.Context, tenantID string) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("tenant_id = ? AND status <> ?", tenantID, models.StatusCompleted).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("store: list open jobs: %w", err)
	}
	return ids, nil
}

// ListCompletedJobIDs returns ids of the tenant's completed jobs last
// updated at or after since.
func (s *GormStore) ListCompletedJobIDs(ctx context.Context, tenantID string, since time.Time) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("tenant_id = ? AND status = ? AND updated_at >= ?", tenantID, models.StatusCompleted, since).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("store: list completed jobs: %w", err)
	}
	return ids, nil
}

// ListTenantIDs returns every tenant that owns at least one job.
func (s *GormStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.Job{}).
		Distinct("tenant_id").
		Order("tenant_id ASC").
		Pluck("tenant_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("store: list tenants: %w", err)
	}
	return ids, nil
}

// OpenTimeEntries returns running entries for a task, optionally for one operator.
func (s *GormStore) OpenTimeEntries(ctx context.Context, tenantID string, f TimeEntryFilter) ([]models.TimeEntry, error) {
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND task_id = ? AND end_time IS NULL", tenantID, f.TaskID)
	if f.OperatorID != "" {
		q = q.Where("operator_id = ?", f.OperatorID)
	}
	var entries []models.TimeEntry
	if err := q.Order("start_time ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("store: open time entries for task %s: %w", f.TaskID, err)
	}
	return entries, nil
}

// InsertTimeEntry creates a time entry.
func (s *GormStore) InsertTimeEntry(ctx context.Context, entry *models.TimeEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("store: insert time entry for task %s: %w", entry.TaskID, err)
	}
	return nil
}

// CloseTimeEntry sets end time and duration on an open entry. An entry that
// is already closed is reported as ErrNotFound.
func (s *GormStore) CloseTimeEntry(ctx context.Context, tenantID, id string, end time.Time, minutes int) error {
	result := s.db.WithContext(ctx).Model(&models.TimeEntry{}).
		Where("id = ? AND tenant_id = ? AND end_time IS NULL", id, tenantID).
		Updates(map[string]interface{}{
			"end_time": end,
			"duration": minutes,
		})
	if result.Error != nil {
		return fmt.Errorf("store: close time entry %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: open time entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateJob applies patch if the job is still at version.
func (s *GormStore) UpdateJob(ctx context.Context, tenantID, id string, version int, patch Patch) error {
	return s.compareAndSet(ctx, &models.Job{}, "job", tenantID, id, version, patch)
}

// UpdatePart applies patch if the part is still at version.
func (s *GormStore) UpdatePart(ctx context.Context, tenantID, id string, version int, patch Patch) error {
	return s.compareAndSet(ctx, &models.Part{}, "part", tenantID, id, version, patch)
}

// UpdateTask applies patch if the task is still at version.
func (s *GormStore) UpdateTask(ctx context.Context, tenantID, id string, version int, patch Patch) error {
	return s.compareAndSet(ctx, &models.Task{}, "task", tenantID, id, version, patch)
}

// AddTaskActualTime atomically adds minutes to a task's actual time.
func (s *GormStore) AddTaskActualTime(ctx context.Context, tenantID, id string, minutes int) error {
	result := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Updates(map[string]interface{}{
			"actual_time": gorm.Expr("COALESCE(actual_time, 0) + ?", minutes),
			"version":     gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("store: add actual time to task %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: task %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *GormStore) compareAndSet(ctx context.Context, model interface{}, kind, tenantID, id string, version int, patch Patch) error {
	updates := make(map[string]interface{}, len(patch)+1)
	for k, v := range patch {
		updates[k] = v
	}
	updates["version"] = gorm.Expr("version + 1")

	result := s.db.WithContext(ctx).Model(model).
		Where("id = ? AND tenant_id = ? AND version = ?", id, tenantID, version).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("store: update %s %s: %w", kind, id, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(model).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("store: check %s %s: %w", kind, id, err)
	}
	if count == 0 {
		return fmt.Errorf("store: %s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("store: %s %s at version %d: %w", kind, id, version, ErrConflict)
}
