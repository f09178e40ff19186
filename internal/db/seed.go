package db

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/zulandar/shopfloor/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultStages is the workflow seeded for new tenants, in sequence order.
var DefaultStages = []string{"Cutting", "Bending", "Welding", "Assembly", "Finishing"}

// JobSpec describes a job to create together with its parts and tasks.
type JobSpec struct {
	TenantID  string
	JobNumber string
	Customer  string
	Parts     []PartSpec
}

// PartSpec describes one part of a JobSpec.
type PartSpec struct {
	PartNumber string
	Material   string
	Tasks      []TaskSpec
}

// TaskSpec describes one task of a PartSpec.
type TaskSpec struct {
	Name               string
	StageID            string
	AssignedOperatorID string
	EstimatedTime      int
}

// SeedTenant upserts the tenant row.
func SeedTenant(db *gorm.DB, id, name string) error {
	t := models.Tenant{ID: id, Name: name}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&t)
	if result.Error != nil {
		return fmt.Errorf("db: seed tenant %q: %w", id, result.Error)
	}
	return nil
}

// SeedStages creates one stage per name with sequence 1..n.
func SeedStages(db *gorm.DB, tenantID string, names []string) ([]models.Stage, error) {
	stages := make([]models.Stage, len(names))
	for i, name := range names {
		stages[i] = models.Stage{
			ID:       uuid.NewString(),
			TenantID: tenantID,
			Name:     name,
			Sequence: i + 1,
			Active:   true,
		}
	}
	if len(stages) == 0 {
		return stages, nil
	}
	if err := db.Create(&stages).Error; err != nil {
		return nil, fmt.Errorf("db: seed stages for %q: %w", tenantID, err)
	}
	return stages, nil
}

// SeedOperator creates an operator.
func SeedOperator(db *gorm.DB, tenantID, name, employeeID string) (*models.Operator, error) {
	op := models.Operator{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Name:       name,
		EmployeeID: employeeID,
		Active:     true,
	}
	if err := db.Create(&op).Error; err != nil {
		return nil, fmt.Errorf("db: seed operator %q: %w", name, err)
	}
	return &op, nil
}

// CreateJob inserts a job with its parts and tasks, all in not_started state.
// The returned job has Parts and their Tasks populated.
func CreateJob(db *gorm.DB, spec JobSpec) (*models.Job, error) {
	job := models.Job{
		ID:        uuid.NewString(),
		TenantID:  spec.TenantID,
		JobNumber: spec.JobNumber,
		Customer:  spec.Customer,
		Status:    models.StatusNotStarted,
		Version:   1,
	}
	for _, ps := range spec.Parts {
		part := models.Part{
			ID:         uuid.NewString(),
			TenantID:   spec.TenantID,
			JobID:      job.ID,
			PartNumber: ps.PartNumber,
			Material:   ps.Material,
			Quantity:   1,
			Status:     models.StatusNotStarted,
			Version:    1,
		}
		for _, ts := range ps.Tasks {
			task := models.Task{
				ID:            uuid.NewString(),
				TenantID:      spec.TenantID,
				PartID:        part.ID,
				StageID:       ts.StageID,
				Name:          ts.Name,
				Status:        models.StatusNotStarted,
				EstimatedTime: ts.EstimatedTime,
				Version:       1,
			}
			if ts.AssignedOperatorID != "" {
				op := ts.AssignedOperatorID
				task.AssignedOperatorID = &op
			}
			part.Tasks = append(part.Tasks, task)
		}
		job.Parts = append(job.Parts, part)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&job).Error
	}); err != nil {
		return nil, fmt.Errorf("db: create job %s: %w", spec.JobNumber, err)
	}
	return &job, nil
}

// SeedDemo creates a tenant with the default workflow, two operators and one
// two-part job. Used by `sf db seed` for local trials.
func SeedDemo(db *gorm.DB, tenantID string) (*models.Job, error) {
	if err := SeedTenant(db, tenantID, "Demo Fabrication"); err != nil {
		return nil, err
	}
	stages, err := SeedStages(db, tenantID, DefaultStages)
	if err != nil {
		return nil, err
	}
	alice, err := SeedOperator(db, tenantID, "Alice Janssen", "E-1001")
	if err != nil {
		return nil, err
	}
	if _, err := SeedOperator(db, tenantID, "Bram de Vries", "E-1002"); err != nil {
		return nil, err
	}

	return CreateJob(db, JobSpec{
		TenantID:  tenantID,
		JobNumber: "JOB-0001",
		Customer:  "Demo Customer",
		Parts: []PartSpec{
			{
				PartNumber: "BRK-100",
				Material:   "S235",
				Tasks: []TaskSpec{
					{Name: "Laser cut", StageID: stages[0].ID, AssignedOperatorID: alice.ID, EstimatedTime: 30},
					{Name: "Press brake", StageID: stages[1].ID, EstimatedTime: 20},
				},
			},
			{
				PartNumber: "FRM-200",
				Material:   "AlMg3",
				Tasks: []TaskSpec{
					{Name: "Saw", StageID: stages[0].ID, EstimatedTime: 15},
					{Name: "TIG weld", StageID: stages[2].ID, EstimatedTime: 60},
					{Name: "Assemble", StageID: stages[3].ID, EstimatedTime: 45},
				},
			},
		},
	})
}
