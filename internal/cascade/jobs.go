package cascade

import (
	"context"
	"time"

	"github.com/zulandar/shopfloor/internal/models"
	"github.com/zulandar/shopfloor/internal/stage"
	"github.com/zulandar/shopfloor/internal/store"
)

// RecalculateJobStage points the job at the earliest stage among all of its
// in-progress tasks, or clears the pointer when none are running. The job's
// status is left alone, and nothing is written when the pointer is already
// right.
func (e *Engine) RecalculateJobStage(ctx context.Context, tenantID, jobID string) (err error) {
	defer e.observe("recalculate", time.Now(), &err)
	return e.recalculateJobStage(ctx, tenantID, jobID, false)
}

// recalculateJobStage with touch set writes the job row even when the
// pointer is unchanged, serializing against concurrent cascades that read
// the job before this one's task writes landed.
func (e *Engine) recalculateJobStage(ctx context.Context, tenantID, jobID string, touch bool) error {
	return e.retryConflicts(ctx, EntityJob, func() error {
		j, err := e.getJob(ctx, tenantID, jobID)
		if err != nil {
			return err
		}
		active, err := e.store.ListTasks(ctx, tenantID, store.TaskFilter{JobID: jobID, Status: models.StatusInProgress})
		if err != nil {
			return err
		}
		patch := store.Patch{}
		stagePatch(patch, j.CurrentStageID, stage.ResolveEarliest(candidates(active)))
		if len(patch) == 0 && !touch {
			return nil
		}
		return e.store.UpdateJob(ctx, tenantID, j.ID, j.Version, patch)
	})
}

// ReconcileJob rebuilds the status and stage pointer of every part of the job
// and of the job itself from its tasks. It heals hierarchies left
// half-updated by a crash between cascade writes and returns how many rows
// it rewrote.
//
// A part is completed when all of its tasks are, in progress when any task
// has left not_started, and not started otherwise. Parts and jobs that are
// on hold keep that status unless they are now complete. Parts without tasks
// are left as they are.
func (e *Engine) ReconcileJob(ctx context.Context, tenantID, jobID string) (changed int, err error) {
	defer e.observe("reconcile", time.Now(), &err)

	if _, err := e.getJob(ctx, tenantID, jobID); err != nil {
		return 0, err
	}
	parts, err := e.store.ListParts(ctx, tenantID, jobID)
	if err != nil {
		return 0, err
	}
	now := e.now()
	for _, part := range parts {
		wrote, err := e.reconcilePart(ctx, tenantID, part.ID, now)
		if err != nil {
			return changed, err
		}
		if wrote {
			changed++
		}
	}

	wrote, err := e.reconcileJobRow(ctx, tenantID, jobID, now)
	if err != nil {
		return changed, err
	}
	if wrote {
		changed++
	}
	if changed > 0 {
		e.log.Info("job reconciled", "tenant", tenantID, "job", jobID, "rows", changed)
	}
	return changed, nil
}

func (e *Engine) reconcilePart(ctx context.Context, tenantID, partID string, now time.Time) (bool, error) {
	var wrote bool
	err := e.retryConflicts(ctx, EntityPart, func() error {
		wrote = false
		p, err := e.getPart(ctx, tenantID, partID)
		if err != nil {
			return err
		}
		tasks, err := e.store.ListTasks(ctx, tenantID, store.TaskFilter{PartID: partID})
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}

		statuses := make([]string, len(tasks))
		var active []models.Task
		for i, t := range tasks {
			statuses[i] = t.Status
			if t.Status == models.StatusInProgress {
				active = append(active, t)
			}
		}
		target := rollup(statuses)
		patch := statusPatch(p.Status, target, now)
		want := stage.ResolveEarliest(candidates(active))
		if target == models.StatusCompleted {
			want = nil
		}
		stagePatch(patch, p.CurrentStageID, want)
		if len(patch) == 0 {
			return nil
		}
		if err := e.store.UpdatePart(ctx, tenantID, p.ID, p.Version, patch); err != nil {
			return err
		}
		wrote = true
		return nil
	})
	return wrote, err
}

func (e *Engine) reconcileJobRow(ctx context.Context, tenantID, jobID string, now time.Time) (bool, error) {
	var wrote bool
	err := e.retryConflicts(ctx, EntityJob, func() error {
		wrote = false
		j, err := e.getJob(ctx, tenantID, jobID)
		if err != nil {
			return err
		}
		parts, err := e.store.ListParts(ctx, tenantID, jobID)
		if err != nil {
			return err
		}
		active, err := e.store.ListTasks(ctx, tenantID, store.TaskFilter{JobID: jobID, Status: models.StatusInProgress})
		if err != nil {
			return err
		}

		patch := store.Patch{}
		want := stage.ResolveEarliest(candidates(active))
		if len(parts) > 0 {
			statuses := make([]string, len(parts))
			for i, p := range parts {
				statuses[i] = p.Status
			}
			target := rollup(statuses)
			patch = statusPatch(j.Status, target, now)
			if target == models.StatusCompleted {
				want = nil
			}
		}
		stagePatch(patch, j.CurrentStageID, want)
		if len(patch) == 0 {
			return nil
		}
		if err := e.store.UpdateJob(ctx, tenantID, j.ID, j.Version, patch); err != nil {
			return err
		}
		wrote = true
		return nil
	})
	return wrote, err
}

// rollup derives a parent status from its children's statuses.
func rollup(children []string) string {
	done, started := true, false
	for _, s := range children {
		if s != models.StatusCompleted {
			done = false
		}
		if s != models.StatusNotStarted {
			started = true
		}
	}
	switch {
	case done:
		return models.StatusCompleted
	case started:
		return models.StatusInProgress
	default:
		return models.StatusNotStarted
	}
}

// statusPatch moves current to target, keeping on_hold unless the target is
// completed.
func statusPatch(current, target string, now time.Time) store.Patch {
	patch := store.Patch{}
	if current == target {
		return patch
	}
	if current == models.StatusOnHold && target != models.StatusCompleted {
		return patch
	}
	patch["status"] = target
	if target == models.StatusCompleted {
		patch["completed_at"] = now
	} else if current == models.StatusCompleted {
		patch["completed_at"] = nil
	}
	return patch
}
