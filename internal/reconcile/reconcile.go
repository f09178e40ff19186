// Package reconcile periodically rebuilds the status of every open job, and
// of jobs completed recently, so that cascades interrupted between writes
// heal without waiting for the next operator action.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions and descriptors like @hourly.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// JobReconciler rebuilds one job. *cascade.Engine implements it.
type JobReconciler interface {
	ReconcileJob(ctx context.Context, tenantID, jobID string) (int, error)
}

// JobLister enumerates what a sweep visits. store.Store implements it.
type JobLister interface {
	ListTenantIDs(ctx context.Context) ([]string, error)
	ListOpenJobIDs(ctx context.Context, tenantID string) ([]string, error)
	ListCompletedJobIDs(ctx context.Context, tenantID string, since time.Time) ([]string, error)
}

// DefaultCompletedWindow is how far back a sweep looks for completed jobs.
const DefaultCompletedWindow = 24 * time.Hour

// Report summarizes one sweep.
type Report struct {
	Tenants int
	Jobs    int
	Rows    int
	Failed  int
}

// Scheduler runs sweeps on a cron schedule.
type Scheduler struct {
	// CompletedWindow bounds which completed jobs a sweep revisits, by
	// updated_at. Zero skips completed jobs.
	CompletedWindow time.Duration

	engine   JobReconciler
	jobs     JobLister
	schedule cron.Schedule
	log      *slog.Logger
	now      func() time.Time
}

// New parses expr and builds a scheduler.
func New(engine JobReconciler, jobs JobLister, expr string, logger *slog.Logger) (*Scheduler, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("reconcile: parse schedule %q: %w", expr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		CompletedWindow: DefaultCompletedWindow,
		engine:          engine,
		jobs:            jobs,
		schedule:        sched,
		log:             logger,
		now:             time.Now,
	}, nil
}

// Next returns the first run time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Sweep reconciles every open job of every tenant. A failing job does not
// stop the sweep; all failures are returned together.
func (s *Scheduler) Sweep(ctx context.Context) (Report, error) {
	var rep Report
	tenants, err := s.jobs.ListTenantIDs(ctx)
	if err != nil {
		return rep, fmt.Errorf("reconcile: list tenants: %w", err)
	}

	var errs *multierror.Error
	for _, tenantID := range tenants {
		rep.Tenants++
		jobIDs, err := s.jobIDs(ctx, tenantID)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
			continue
		}
		for _, jobID := range jobIDs {
			if err := ctx.Err(); err != nil {
				return rep, multierror.Append(errs, err).ErrorOrNil()
			}
			rep.Jobs++
			n, err := s.engine.ReconcileJob(ctx, tenantID, jobID)
			rep.Rows += n
			if err != nil {
				rep.Failed++
				errs = multierror.Append(errs, fmt.Errorf("tenant %s job %s: %w", tenantID, jobID, err))
			}
		}
	}
	return rep, errs.ErrorOrNil()
}

// jobIDs lists the open jobs of a tenant followed by those completed within
// the window. A job that completes between the two queries may appear twice.
func (s *Scheduler) jobIDs(ctx context.Context, tenantID string) ([]string, error) {
	ids, err := s.jobs.ListOpenJobIDs(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if s.CompletedWindow <= 0 {
		return ids, nil
	}
	done, err := s.jobs.ListCompletedJobIDs(ctx, tenantID, s.now().Add(-s.CompletedWindow))
	if err != nil {
		return nil, err
	}
	return append(ids, done...), nil
}

// Run sweeps on schedule until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(s.until(s.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			began := s.now()
			rep, err := s.Sweep(ctx)
			attrs := []any{"tenants", rep.Tenants, "jobs", rep.Jobs, "rows", rep.Rows, "took", time.Since(began)}
			if err != nil {
				s.log.Warn("reconcile sweep finished with errors", append(attrs, "failed", rep.Failed, "error", err)...)
			} else {
				s.log.Info("reconcile sweep finished", attrs...)
			}
			timer.Reset(s.until(s.now()))
		}
	}
}

func (s *Scheduler) until(now time.Time) time.Duration {
	d := s.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
