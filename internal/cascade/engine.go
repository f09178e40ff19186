// Package cascade propagates task status changes up the Job → Part → Task
// hierarchy.
//
// Every operation is a short sequence of point writes against a store.Store.
// Part and Job rows are updated with compare-and-set on their version: a
// step reads the parent, reads the children it derives from, and writes the
// parent back at the version it read. A lost race re-runs the step from the
// read, so concurrent operations on sibling tasks never overwrite each
// other's result with a stale one.
package cascade

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/zulandar/shopfloor/internal/config"
	"github.com/zulandar/shopfloor/internal/models"
	"github.com/zulandar/shopfloor/internal/notify"
	"github.com/zulandar/shopfloor/internal/stage"
	"github.com/zulandar/shopfloor/internal/store"
)

// Notifier accepts side-effect events. Notify must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, evt notify.Event) error
}

// Recorder observes engine activity. internal/metrics implements it.
type Recorder interface {
	CascadeOperation(op, result string, d time.Duration)
	CascadeConflict(entity string)
}

// Options configures an Engine. Store is required.
type Options struct {
	Store    store.Store
	Notifier Notifier
	Recorder Recorder
	Logger   *slog.Logger
	Now      func() time.Time
	Config   config.CascadeConfig
}

// Engine runs the Start, Stop and Complete cascades.
type Engine struct {
	store    store.Store
	notifier Notifier
	recorder Recorder
	log      *slog.Logger
	now      func() time.Time
	cfg      config.CascadeConfig
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Config.PartStagePolicy == "" {
		opts.Config.PartStagePolicy = config.PartStageLatest
	}
	if opts.Config.MaxConflictRetries <= 0 {
		opts.Config.MaxConflictRetries = 5
	}
	if opts.Config.ConflictBackoff <= 0 {
		opts.Config.ConflictBackoff = 10 * time.Millisecond
	}
	return &Engine{
		store:    opts.Store,
		notifier: opts.Notifier,
		recorder: opts.Recorder,
		log:      opts.Logger,
		now:      opts.Now,
		cfg:      opts.Config,
	}
}

// observe is deferred by every public operation.
func (e *Engine) observe(op string, began time.Time, err *error) {
	result := Result(*err)
	if e.recorder != nil {
		e.recorder.CascadeOperation(op, result, time.Since(began))
	}
	switch result {
	case "ok":
	case "not_found", "precondition":
		e.log.Debug("cascade refused", "op", op, "reason", *err)
	default:
		e.log.Error("cascade failed", "op", op, "error", *err)
	}
}

// retryConflicts runs step until it succeeds, fails with something other
// than store.ErrConflict, or the retry budget is spent.
func (e *Engine) retryConflicts(ctx context.Context, entity string, step func() error) error {
	backoff := e.cfg.ConflictBackoff
	for attempt := 0; ; attempt++ {
		err := step()
		if !errors.Is(err, store.ErrConflict) || attempt >= e.cfg.MaxConflictRetries {
			return err
		}
		if e.recorder != nil {
			e.recorder.CascadeConflict(entity)
		}
		e.log.Debug("version conflict, retrying", "entity", entity, "attempt", attempt+1)

		jitter := time.Duration(float64(backoff) * 0.5 * (rand.Float64()*2 - 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + jitter):
		}
		backoff *= 2
	}
}

func (e *Engine) getTask(ctx context.Context, tenantID, id string) (*models.Task, error) {
	t, err := e.store.GetTask(ctx, tenantID, id)
	if err != nil {
		return nil, notFound(err, EntityTask, id)
	}
	return t, nil
}

func (e *Engine) getPart(ctx context.Context, tenantID, id string) (*models.Part, error) {
	p, err := e.store.GetPart(ctx, tenantID, id)
	if err != nil {
		return nil, notFound(err, EntityPart, id)
	}
	return p, nil
}

func (e *Engine) getJob(ctx context.Context, tenantID, id string) (*models.Job, error) {
	j, err := e.store.GetJob(ctx, tenantID, id)
	if err != nil {
		return nil, notFound(err, EntityJob, id)
	}
	return j, nil
}

// candidates maps tasks onto resolver input.
func candidates(tasks []models.Task) []stage.Candidate {
	out := make([]stage.Candidate, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, stage.Candidate{TaskID: t.ID, StageID: t.StageID, Sequence: t.Stage.Sequence})
	}
	return out
}

// stagePatch sets current_stage_id on patch when it differs from cur.
func stagePatch(patch store.Patch, cur, want *string) {
	if stage.Equal(cur, want) {
		return
	}
	if want == nil {
		patch["current_stage_id"] = nil
		return
	}
	patch["current_stage_id"] = *want
}
