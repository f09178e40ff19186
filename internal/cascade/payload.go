package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/shopfloor/internal/models"
	"github.com/zulandar/shopfloor/internal/notify"
)

// emit assembles and submits a notification. Failures are logged and never
// reach the caller; the submission context is detached so delivery outlives
// the request.
func (e *Engine) emit(ctx context.Context, kind, tenantID string, at time.Time, task *models.Task, operatorID string) {
	if e.notifier == nil {
		return
	}
	payload, err := e.payload(ctx, tenantID, task, operatorID)
	if err != nil {
		e.log.Warn("build notification payload", "kind", kind, "task", task.ID, "error", err)
		return
	}
	switch kind {
	case notify.KindWorkStarted:
		payload.StartedAt = notify.Timestamp(at)
	case notify.KindWorkCompleted:
		if task.StartedAt != nil {
			payload.StartedAt = notify.Timestamp(*task.StartedAt)
		}
		payload.CompletedAt = notify.Timestamp(at)
		actual, estimated := task.ActualTime, task.EstimatedTime
		payload.ActualTime = &actual
		payload.EstimatedTime = &estimated
	}

	evt := notify.NewEvent(kind, tenantID, at, payload)
	if err := e.notifier.Notify(context.WithoutCancel(ctx), evt); err != nil {
		e.log.Warn("notification not submitted", "kind", kind, "event_id", evt.ID, "task", task.ID, "error", err)
	}
}

// payload joins the task with its part, job and operator into the flat
// record carried by events. A missing operator leaves only its id.
func (e *Engine) payload(ctx context.Context, tenantID string, task *models.Task, operatorID string) (notify.Payload, error) {
	part, err := e.store.GetPart(ctx, tenantID, task.PartID)
	if err != nil {
		return notify.Payload{}, fmt.Errorf("part %s: %w", task.PartID, err)
	}
	job, err := e.store.GetJob(ctx, tenantID, part.JobID)
	if err != nil {
		return notify.Payload{}, fmt.Errorf("job %s: %w", part.JobID, err)
	}

	p := notify.Payload{
		TaskID:     task.ID,
		TaskName:   task.Name,
		StageID:    task.StageID,
		StageName:  task.Stage.Name,
		PartID:     part.ID,
		PartNumber: part.PartNumber,
		JobID:      job.ID,
		JobNumber:  job.JobNumber,
		OperatorID: operatorID,
	}
	if operatorID != "" {
		op, err := e.store.GetOperator(ctx, tenantID, operatorID)
		if err != nil {
			e.log.Debug("operator lookup for notification", "operator", operatorID, "error", err)
		} else {
			p.OperatorName = op.Name
			p.EmployeeID = op.EmployeeID
		}
	}
	return p, nil
}
