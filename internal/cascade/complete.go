package cascade

import (
	"context"
	"time"

	"github.com/zulandar/shopfloor/internal/models"
	"github.com/zulandar/shopfloor/internal/notify"
	"github.com/zulandar/shopfloor/internal/stage"
	"github.com/zulandar/shopfloor/internal/store"
)

// Complete marks the task completed and rolls the result up to its part and
// job. It fails with a PreconditionError, mutating nothing, while any
// operator still has a timer open on the task.
//
// operatorID names who completed the work for the notification; when empty
// the task's assigned operator is reported. Completing a task that is
// already completed re-runs the part and job roll-up without notifying.
// Cancelling ctx does not interrupt it.
func (e *Engine) Complete(ctx context.Context, tenantID, taskID, operatorID string) (err error) {
	defer e.observe("complete", time.Now(), &err)
	ctx = context.WithoutCancel(ctx)

	now := e.now()
	var task *models.Task
	var completed bool
	err = e.retryConflicts(ctx, EntityTask, func() error {
		t, err := e.getTask(ctx, tenantID, taskID)
		if err != nil {
			return err
		}
		// Checked at the version read so a concurrent Start, which always
		// bumps the task, forces a re-check.
		open, err := e.store.OpenTimeEntries(ctx, tenantID, store.TimeEntryFilter{TaskID: taskID})
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return &PreconditionError{Reason: ReasonTimerRunning}
		}
		if t.Status == models.StatusCompleted {
			task, completed = t, false
			return nil
		}
		if err := e.store.UpdateTask(ctx, tenantID, t.ID, t.Version, store.Patch{
			"status":                models.StatusCompleted,
			"completed_at":          now,
			"completion_percentage": 100,
		}); err != nil {
			return err
		}
		t.Status = models.StatusCompleted
		t.CompletedAt = &now
		t.CompletionPercentage = 100
		task, completed = t, true
		return nil
	})
	if err != nil {
		return err
	}

	if completed {
		e.log.Info("work completed", "tenant", tenantID, "task", taskID, "operator", operatorID)
		who := operatorID
		if who == "" && task.AssignedOperatorID != nil {
			who = *task.AssignedOperatorID
		}
		e.emit(ctx, notify.KindWorkCompleted, tenantID, now, task, who)
	}

	return e.completePart(ctx, tenantID, task.PartID, now)
}

// completePart recomputes the part after one of its tasks completed:
// all tasks completed closes the part (and possibly the job); otherwise the
// part's pointer resolves over its in-progress tasks, or clears when none
// are running. The job pointer is recalculated whenever the job stays open.
func (e *Engine) completePart(ctx context.Context, tenantID, partID string, now time.Time) error {
	var part *models.Part
	var partDone bool
	err := e.retryConflicts(ctx, EntityPart, func() error {
		p, err := e.getPart(ctx, tenantID, partID)
		if err != nil {
			return err
		}
		siblings, err := e.store.ListTasks(ctx, tenantID, store.TaskFilter{PartID: partID})
		if err != nil {
			return err
		}

		patch := store.Patch{}
		var active []models.Task
		done := true
		for _, t := range siblings {
			if t.Status != models.StatusCompleted {
				done = false
			}
			if t.Status == models.StatusInProgress {
				active = append(active, t)
			}
		}
		if done {
			if p.Status != models.StatusCompleted {
				patch["status"] = models.StatusCompleted
				patch["completed_at"] = now
			}
			stagePatch(patch, p.CurrentStageID, nil)
		} else {
			stagePatch(patch, p.CurrentStageID, stage.ResolveEarliest(candidates(active)))
		}
		if err := e.store.UpdatePart(ctx, tenantID, p.ID, p.Version, patch); err != nil {
			return err
		}
		part, partDone = p, done
		return nil
	})
	if err != nil {
		return err
	}

	if partDone {
		return e.completeJob(ctx, tenantID, part.JobID, now)
	}
	return e.recalculateJobStage(ctx, tenantID, part.JobID, true)
}

// completeJob closes the job when every part is completed, else recalculates
// its stage pointer.
func (e *Engine) completeJob(ctx context.Context, tenantID, jobID string, now time.Time) error {
	var open bool
	err := e.retryConflicts(ctx, EntityJob, func() error {
		j, err := e.getJob(ctx, tenantID, jobID)
		if err != nil {
			return err
		}
		parts, err := e.store.ListParts(ctx, tenantID, jobID)
		if err != nil {
			return err
		}
		for _, p := range parts {
			if p.Status != models.StatusCompleted {
				open = true
				return nil
			}
		}
		open = false

		patch := store.Patch{}
		closing := j.Status != models.StatusCompleted
		if closing {
			patch["status"] = models.StatusCompleted
			patch["completed_at"] = now
		}
		stagePatch(patch, j.CurrentStageID, nil)
		if err := e.store.UpdateJob(ctx, tenantID, j.ID, j.Version, patch); err != nil {
			return err
		}
		if closing {
			e.log.Info("job completed", "tenant", tenantID, "job", jobID)
		}
		return nil
	})
	if err != nil || !open {
		return err
	}
	return e.recalculateJobStage(ctx, tenantID, jobID, true)
}
