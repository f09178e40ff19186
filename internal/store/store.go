// Package store is the tenant-scoped entity store the cascade reads and writes.
//
// Every update of a Job, Part or Task is a compare-and-set on the row's
// version: the caller passes the version it read and the write only lands if
// nobody else wrote in between. A lost race surfaces as ErrConflict and the
// caller re-reads.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/zulandar/shopfloor/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist for the tenant.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a compare-and-set update lost to a concurrent write.
	ErrConflict = errors.New("store: version conflict")
)

// TaskFilter narrows ListTasks. Empty fields are ignored; PartID or JobID is required.
type TaskFilter struct {
	PartID string
	JobID  string
	Status string
}

// TimeEntryFilter narrows OpenTimeEntries. Empty OperatorID matches every operator.
type TimeEntryFilter struct {
	TaskID     string
	OperatorID string
}

// Patch is a column → value map applied by an update.
type Patch map[string]interface{}

// Store is the entity store contract consumed by the cascade.
type Store interface {
	GetJob(ctx context.Context, tenantID, id string) (*models.Job, error)
	GetPart(ctx context.Context, tenantID, id string) (*models.Part, error)
	GetTask(ctx context.Context, tenantID, id string) (*models.Task, error)
	GetOperator(ctx context.Context, tenantID, id string) (*models.Operator, error)

	ListParts(ctx context.Context, tenantID, jobID string) ([]models.Part, error)
	ListTasks(ctx context.Context, tenantID string, f TaskFilter) ([]models.Task, error)
	ListOpenJobIDs(ctx context.Context, tenantID string) ([]string, error)
	ListCompletedJobIDs(ctx context.Context, tenantID string, since time.Time) ([]string, error)
	ListTenantIDs(ctx context.Context) ([]string, error)

	OpenTimeEntries(ctx context.Context, tenantID string, f TimeEntryFilter) ([]models.TimeEntry, error)
	InsertTimeEntry(ctx context.Context, entry *models.TimeEntry) error
	CloseTimeEntry(ctx context.Context, tenantID, id string, end time.Time, minutes int) error

	UpdateJob(ctx context.Context, tenantID, id string, version int, patch Patch) error
	UpdatePart(ctx context.Context, tenantID, id string, version int, patch Patch) error
	UpdateTask(ctx context.Context, tenantID, id string, version int, patch Patch) error
	AddTaskActualTime(ctx context.Context, tenantID, id string, minutes int) error
}
