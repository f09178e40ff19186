package cascade

import (
	"context"
	"math"
	"time"

	"github.com/zulandar/shopfloor/internal/models"
	"github.com/zulandar/shopfloor/internal/store"
)

// Stop closes the operator's open time entry on the task and adds the
// elapsed whole minutes to the task's actual time. It does not touch the
// part or job. The closed entry is returned. Cancelling ctx does not
// interrupt it.
func (e *Engine) Stop(ctx context.Context, tenantID, taskID, operatorID string) (entry *models.TimeEntry, err error) {
	defer e.observe("stop", time.Now(), &err)
	ctx = context.WithoutCancel(ctx)

	open, err := e.store.OpenTimeEntries(ctx, tenantID, store.TimeEntryFilter{TaskID: taskID, OperatorID: operatorID})
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, &NotFoundError{Entity: EntityTimeEntry, ID: "task " + taskID + " operator " + operatorID}
	}
	entry = &open[0]

	now := e.now()
	minutes := ElapsedMinutes(entry.StartTime, now)
	if err := e.store.CloseTimeEntry(ctx, tenantID, entry.ID, now, minutes); err != nil {
		// Stopped concurrently.
		return nil, notFound(err, EntityTimeEntry, "task "+taskID+" operator "+operatorID)
	}
	if err := e.store.AddTaskActualTime(ctx, tenantID, taskID, minutes); err != nil {
		return nil, notFound(err, EntityTask, taskID)
	}

	entry.EndTime = &now
	entry.Duration = &minutes
	e.log.Info("work stopped", "tenant", tenantID, "task", taskID, "operator", operatorID, "minutes", minutes)
	return entry, nil
}

// ElapsedMinutes rounds end-start to the nearest whole minute. A negative
// span counts as zero so actual time never decreases.
func ElapsedMinutes(start, end time.Time) int {
	ms := end.Sub(start).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int(math.Round(float64(ms) / 60000))
}
