package cascade

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/shopfloor/internal/config"
	"github.com/zulandar/shopfloor/internal/models"
	"github.com/zulandar/shopfloor/internal/notify"
	"github.com/zulandar/shopfloor/internal/stage"
	"github.com/zulandar/shopfloor/internal/store"
)

// Start opens a time entry for operatorID on the task and moves the task,
// its part and its job into progress.
//
// The task is promoted from not_started only; on_hold and in_progress tasks
// keep their status. The part's stage pointer follows the configured
// PartStagePolicy: "latest" points it at the task just started, "earliest"
// resolves it over the part's in-progress tasks. The job's pointer always
// resolves to the earliest in-progress stage across the whole job.
//
// Once invoked, Start runs to the end even if ctx is cancelled.
func (e *Engine) Start(ctx context.Context, tenantID, taskID, operatorID string) (err error) {
	defer e.observe("start", time.Now(), &err)
	ctx = context.WithoutCancel(ctx)

	if operatorID == "" {
		return &PreconditionError{Reason: ReasonOperatorRequired}
	}
	task, err := e.getTask(ctx, tenantID, taskID)
	if err != nil {
		return err
	}
	if task.Status == models.StatusCompleted {
		return &PreconditionError{Reason: ReasonTaskCompleted}
	}
	open, err := e.store.OpenTimeEntries(ctx, tenantID, store.TimeEntryFilter{TaskID: taskID, OperatorID: operatorID})
	if err != nil {
		return err
	}
	if len(open) > 0 {
		return &PreconditionError{Reason: ReasonAlreadyTracking}
	}

	now := e.now()
	entry := &models.TimeEntry{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		TaskID:     taskID,
		OperatorID: operatorID,
		StartTime:  now,
	}
	if err := e.store.InsertTimeEntry(ctx, entry); err != nil {
		return err
	}
	if err := e.ensureSoleEntry(ctx, tenantID, entry); err != nil {
		return err
	}

	task, started, err := e.startTask(ctx, tenantID, taskID, now)
	if err != nil {
		var pe *PreconditionError
		if errors.As(err, &pe) {
			// Completed concurrently: retire the entry we just opened.
			if cerr := e.store.CloseTimeEntry(ctx, tenantID, entry.ID, now, 0); cerr != nil {
				e.log.Warn("close orphaned time entry", "entry", entry.ID, "error", cerr)
			}
		}
		return err
	}
	e.log.Info("work started", "tenant", tenantID, "task", taskID, "operator", operatorID, "promoted", started)
	if started {
		e.emit(ctx, notify.KindWorkStarted, tenantID, now, task, operatorID)
	}

	part, err := e.startPart(ctx, tenantID, task)
	if err != nil {
		return err
	}
	return e.startJob(ctx, tenantID, part)
}

// ensureSoleEntry re-reads the operator's open entries after entry was
// inserted. Two Starts that both passed the pre-check each see the other's
// entry here, or the later one does; any Start that sees a second entry
// retires its own, so at most one stays open.
func (e *Engine) ensureSoleEntry(ctx context.Context, tenantID string, entry *models.TimeEntry) error {
	open, err := e.store.OpenTimeEntries(ctx, tenantID, store.TimeEntryFilter{TaskID: entry.TaskID, OperatorID: entry.OperatorID})
	if err != nil {
		return err
	}
	for _, other := range open {
		if other.ID == entry.ID {
			continue
		}
		if cerr := e.store.CloseTimeEntry(ctx, tenantID, entry.ID, entry.StartTime, 0); cerr != nil {
			e.log.Warn("close duplicate time entry", "entry", entry.ID, "error", cerr)
		}
		return &PreconditionError{Reason: ReasonAlreadyTracking}
	}
	return nil
}

// startTask promotes a not_started task. The task row is written even when
// its status is unchanged so that a concurrent Complete, which checks for
// open entries at the version it read, loses the compare-and-set.
func (e *Engine) startTask(ctx context.Context, tenantID, taskID string, now time.Time) (*models.Task, bool, error) {
	var task *models.Task
	var started bool
	err := e.retryConflicts(ctx, EntityTask, func() error {
		t, err := e.getTask(ctx, tenantID, taskID)
		if err != nil {
			return err
		}
		if t.Status == models.StatusCompleted {
			return &PreconditionError{Reason: ReasonTaskCompleted}
		}
		patch := store.Patch{}
		promote := t.Status == models.StatusNotStarted
		if promote {
			patch["status"] = models.StatusInProgress
			patch["started_at"] = now
		}
		if err := e.store.UpdateTask(ctx, tenantID, t.ID, t.Version, patch); err != nil {
			return err
		}
		if promote {
			t.Status = models.StatusInProgress
			t.StartedAt = &now
		}
		task, started = t, promote
		return nil
	})
	return task, started, err
}

func (e *Engine) startPart(ctx context.Context, tenantID string, task *models.Task) (*models.Part, error) {
	var part *models.Part
	err := e.retryConflicts(ctx, EntityPart, func() error {
		p, err := e.getPart(ctx, tenantID, task.PartID)
		if err != nil {
			return err
		}
		want := &task.StageID
		if e.cfg.PartStagePolicy == config.PartStageEarliest {
			active, err := e.store.ListTasks(ctx, tenantID, store.TaskFilter{PartID: p.ID, Status: models.StatusInProgress})
			if err != nil {
				return err
			}
			if earliest := stage.ResolveEarliest(candidates(active)); earliest != nil {
				want = earliest
			}
		}

		patch := store.Patch{}
		if p.Status == models.StatusNotStarted || p.Status == models.StatusCompleted {
			patch["status"] = models.StatusInProgress
			patch["completed_at"] = nil
		}
		stagePatch(patch, p.CurrentStageID, want)
		if err := e.store.UpdatePart(ctx, tenantID, p.ID, p.Version, patch); err != nil {
			return err
		}
		part = p
		return nil
	})
	return part, err
}

func (e *Engine) startJob(ctx context.Context, tenantID string, part *models.Part) error {
	return e.retryConflicts(ctx, EntityJob, func() error {
		j, err := e.getJob(ctx, tenantID, part.JobID)
		if err != nil {
			return err
		}
		active, err := e.store.ListTasks(ctx, tenantID, store.TaskFilter{PartID: part.ID, Status: models.StatusInProgress})
		if err != nil {
			return err
		}
		if len(active) == 0 {
			// Started an on_hold task: nothing under this part is running.
			return nil
		}
		jobActive, err := e.store.ListTasks(ctx, tenantID, store.TaskFilter{JobID: j.ID, Status: models.StatusInProgress})
		if err != nil {
			return err
		}

		patch := store.Patch{}
		if j.Status == models.StatusNotStarted || j.Status == models.StatusCompleted {
			patch["status"] = models.StatusInProgress
			patch["completed_at"] = nil
		}
		stagePatch(patch, j.CurrentStageID, stage.ResolveEarliest(candidates(jobActive)))
		return e.store.UpdateJob(ctx, tenantID, j.ID, j.Version, patch)
	})
}
