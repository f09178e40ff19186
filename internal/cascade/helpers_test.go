package cascade

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/shopfloor/internal/config"
	"github.com/zulandar/shopfloor/internal/db"
	"github.com/zulandar/shopfloor/internal/models"
	"github.com/zulandar/shopfloor/internal/notify"
	"github.com/zulandar/shopfloor/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const tenant = "t1"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, evt notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return n.err
}

func (n *recordingNotifier) all() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}

type countingRecorder struct {
	mu        sync.Mutex
	ops       map[string]int
	conflicts map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ops: map[string]int{}, conflicts: map[string]int{}}
}

func (r *countingRecorder) CascadeOperation(op, result string, _ time.Duration) {
	r.mu.Lock()
	r.ops[op+"/"+result]++
	r.mu.Unlock()
}

func (r *countingRecorder) CascadeConflict(entity string) {
	r.mu.Lock()
	r.conflicts[entity]++
	r.mu.Unlock()
}

type fixture struct {
	t      *testing.T
	gdb    *gorm.DB
	store  *store.GormStore
	engine *Engine
	clock  *fakeClock
	notes  *recordingNotifier
	rec    *countingRecorder
	stages []models.Stage
	alice  *models.Operator
	bram   *models.Operator
}

// newFixture seeds stages Cut(1), Bend(2), Weld(3) and two operators.
// mutate adjusts engine options before the engine is built.
func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	f := &fixture{
		t:     t,
		gdb:   gdb,
		store: store.NewGormStore(gdb),
		clock: &fakeClock{now: time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)},
		notes: &recordingNotifier{},
		rec:   newCountingRecorder(),
	}
	if f.stages, err = db.SeedStages(gdb, tenant, []string{"Cut", "Bend", "Weld"}); err != nil {
		t.Fatalf("SeedStages: %v", err)
	}
	if f.alice, err = db.SeedOperator(gdb, tenant, "Alice Janssen", "E-1001"); err != nil {
		t.Fatalf("SeedOperator: %v", err)
	}
	if f.bram, err = db.SeedOperator(gdb, tenant, "Bram de Vries", "E-1002"); err != nil {
		t.Fatalf("SeedOperator: %v", err)
	}

	opts := Options{
		Store:    f.store,
		Notifier: f.notes,
		Recorder: f.rec,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      f.clock.Now,
		Config: config.CascadeConfig{
			PartStagePolicy:    config.PartStageLatest,
			MaxConflictRetries: 100,
			ConflictBackoff:    time.Millisecond,
		},
	}
	for _, m := range mutate {
		m(&opts)
	}
	f.engine = New(opts)
	return f
}

// newJob creates a job with one part per argument; each part lists the
// stage index (0=Cut, 1=Bend, 2=Weld) of its tasks in order.
func (f *fixture) newJob(parts ...[]int) *models.Job {
	f.t.Helper()
	spec := db.JobSpec{TenantID: tenant, JobNumber: "JOB-1"}
	for pi, stageIdx := range parts {
		ps := db.PartSpec{PartNumber: fmt.Sprintf("P-%d", pi+1)}
		for ti, si := range stageIdx {
			ps.Tasks = append(ps.Tasks, db.TaskSpec{
				Name:          fmt.Sprintf("p%dt%d", pi+1, ti+1),
				StageID:       f.stages[si].ID,
				EstimatedTime: 30,
			})
		}
		spec.Parts = append(spec.Parts, ps)
	}
	job, err := db.CreateJob(f.gdb, spec)
	if err != nil {
		f.t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func (f *fixture) task(id string) *models.Task {
	f.t.Helper()
	t, err := f.store.GetTask(context.Background(), tenant, id)
	if err != nil {
		f.t.Fatalf("GetTask(%s): %v", id, err)
	}
	return t
}

func (f *fixture) part(id string) *models.Part {
	f.t.Helper()
	p, err := f.store.GetPart(context.Background(), tenant, id)
	if err != nil {
		f.t.Fatalf("GetPart(%s): %v", id, err)
	}
	return p
}

func (f *fixture) job(id string) *models.Job {
	f.t.Helper()
	j, err := f.store.GetJob(context.Background(), tenant, id)
	if err != nil {
		f.t.Fatalf("GetJob(%s): %v", id, err)
	}
	return j
}

func (f *fixture) mustStart(taskID, operatorID string) {
	f.t.Helper()
	if err := f.engine.Start(context.Background(), tenant, taskID, operatorID); err != nil {
		f.t.Fatalf("Start(%s, %s): %v", taskID, operatorID, err)
	}
}

func (f *fixture) mustStop(taskID, operatorID string) *models.TimeEntry {
	f.t.Helper()
	entry, err := f.engine.Stop(context.Background(), tenant, taskID, operatorID)
	if err != nil {
		f.t.Fatalf("Stop(%s, %s): %v", taskID, operatorID, err)
	}
	return entry
}

func (f *fixture) mustComplete(taskID, operatorID string) {
	f.t.Helper()
	if err := f.engine.Complete(context.Background(), tenant, taskID, operatorID); err != nil {
		f.t.Fatalf("Complete(%s): %v", taskID, err)
	}
}

func stageOf(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

type snapshot struct {
	Jobs    []models.Job
	Parts   []models.Part
	Tasks   []models.Task
	Entries []models.TimeEntry
}

func (f *fixture) snapshot() snapshot {
	f.t.Helper()
	var s snapshot
	for _, q := range []interface{}{&s.Jobs, &s.Parts, &s.Tasks, &s.Entries} {
		if err := f.gdb.Order("id ASC").Find(q).Error; err != nil {
			f.t.Fatalf("snapshot: %v", err)
		}
	}
	return s
}

func (f *fixture) assertUnchanged(before snapshot) {
	f.t.Helper()
	after := f.snapshot()
	if !reflect.DeepEqual(before, after) {
		f.t.Errorf("state changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

// checkInvariants verifies the hierarchy of job: completion closure at part
// and job level, the job stage pointer, and no open timers on completed tasks.
func (f *fixture) checkInvariants(jobID string) {
	f.t.Helper()
	job := f.job(jobID)

	var parts []models.Part
	f.gdb.Where("job_id = ?", jobID).Find(&parts)
	allParts := true
	bestSeq := -1
	var best string
	for _, p := range parts {
		var tasks []models.Task
		f.gdb.Preload("Stage").Where("part_id = ?", p.ID).Find(&tasks)
		allTasks := true
		for _, t := range tasks {
			if t.Status != models.StatusCompleted {
				allTasks = false
			} else {
				var open int64
				f.gdb.Model(&models.TimeEntry{}).Where("task_id = ? AND end_time IS NULL", t.ID).Count(&open)
				if open > 0 {
					f.t.Errorf("completed task %s has %d open time entries", t.Name, open)
				}
			}
			if t.Status == models.StatusInProgress && (bestSeq < 0 || t.Stage.Sequence < bestSeq) {
				bestSeq, best = t.Stage.Sequence, t.StageID
			}
		}
		if (p.Status == models.StatusCompleted) != allTasks {
			f.t.Errorf("part %s status %q but all tasks completed = %v", p.PartNumber, p.Status, allTasks)
		}
		if p.Status != models.StatusCompleted {
			allParts = false
		}
	}
	if (job.Status == models.StatusCompleted) != allParts {
		f.t.Errorf("job status %q but all parts completed = %v", job.Status, allParts)
	}
	if bestSeq < 0 {
		if job.CurrentStageID != nil {
			f.t.Errorf("job stage = %s, want nil with nothing in progress", *job.CurrentStageID)
		}
	} else if stageOf(job.CurrentStageID) != best {
		f.t.Errorf("job stage = %s, want earliest in-progress %s", stageOf(job.CurrentStageID), best)
	}
}

// permutations returns every ordering of 0..n-1.
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			q := make([]int, 0, n)
			q = append(q, p[:i]...)
			q = append(q, n-1)
			q = append(q, p[i:]...)
			out = append(out, q)
		}
	}
	return out
}
