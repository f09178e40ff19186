package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/shopfloor/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// writeConfig writes a sqlite config into a temp dir and returns its path.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "floor.db")
	cfg := fmt.Sprintf("tenant: demo\ndatabase:\n  driver: sqlite\n  path: %s\nnotify:\n  workers: 1\n", dbPath)
	path := filepath.Join(dir, "shopfloor.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, dbPath
}

func openDB(t *testing.T, path string) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	t.Cleanup(func() { closeDB(gdb) })
	return gdb
}

func TestDBMigrateAndSeed(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, _, err := run(t, "db", "migrate", "-c", cfgPath)
	if err != nil {
		t.Fatalf("db migrate: %v", err)
	}
	if !strings.Contains(out, "Migrated 9 tables on sqlite") {
		t.Errorf("migrate output = %q", out)
	}

	out, _, err = run(t, "db", "seed", "-c", cfgPath)
	if err != nil {
		t.Fatalf("db seed: %v", err)
	}
	for _, want := range []string{"Seeded tenant demo with job JOB-0001", "part BRK-100", "Laser cut", "TIG weld"} {
		if !strings.Contains(out, want) {
			t.Errorf("seed output missing %q:\n%s", want, out)
		}
	}
}

func TestTaskLifecycle(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)
	if _, _, err := run(t, "db", "seed", "-c", cfgPath); err != nil {
		t.Fatalf("db seed: %v", err)
	}

	gdb := openDB(t, dbPath)
	var job models.Job
	if err := gdb.Where("tenant_id = ?", "demo").First(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	var task models.Task
	if err := gdb.Where("name = ?", "Laser cut").First(&task).Error; err != nil {
		t.Fatalf("load task: %v", err)
	}
	var op models.Operator
	if err := gdb.Where("employee_id = ?", "E-1001").First(&op).Error; err != nil {
		t.Fatalf("load operator: %v", err)
	}

	out, _, err := run(t, "task", "start", task.ID, "-c", cfgPath, "-o", op.ID)
	if err != nil {
		t.Fatalf("task start: %v", err)
	}
	if !strings.Contains(out, "Started task "+task.ID) {
		t.Errorf("start output = %q", out)
	}

	out, _, err = run(t, "job", "show", job.ID, "-c", cfgPath)
	if err != nil {
		t.Fatalf("job show: %v", err)
	}
	for _, want := range []string{"Job JOB-0001", "Status:   in_progress", "Stage:    Cutting", "Progress: 0% (0/5 tasks completed)"} {
		if !strings.Contains(out, want) {
			t.Errorf("job show missing %q:\n%s", want, out)
		}
	}

	_, _, err = run(t, "task", "complete", task.ID, "-c", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "stop time tracking before completing") {
		t.Fatalf("complete with running timer error = %v", err)
	}

	out, _, err = run(t, "task", "stop", task.ID, "-c", cfgPath, "-o", op.ID)
	if err != nil {
		t.Fatalf("task stop: %v", err)
	}
	if !strings.Contains(out, "min logged") {
		t.Errorf("stop output = %q", out)
	}

	if _, _, err := run(t, "task", "complete", task.ID, "-c", cfgPath); err != nil {
		t.Fatalf("task complete: %v", err)
	}
	var got models.Task
	gdb.First(&got, "id = ?", task.ID)
	if got.Status != models.StatusCompleted || got.CompletionPercentage != 100 {
		t.Errorf("task after complete = %s %d%%", got.Status, got.CompletionPercentage)
	}

	out, _, err = run(t, "job", "recalc", job.ID, "-c", cfgPath)
	if err != nil {
		t.Fatalf("job recalc: %v", err)
	}
	if !strings.Contains(out, "Job JOB-0001 stage: -") {
		t.Errorf("recalc output = %q", out)
	}
}

func TestTaskStart_UnknownTask(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	if _, _, err := run(t, "db", "migrate", "-c", cfgPath); err != nil {
		t.Fatalf("db migrate: %v", err)
	}
	_, _, err := run(t, "task", "start", "missing", "-c", cfgPath, "-o", "op-1")
	if err == nil || !strings.Contains(err.Error(), "task missing not found") {
		t.Errorf("error = %v, want task not found", err)
	}
}

func TestReconcile(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)
	if _, _, err := run(t, "db", "seed", "-c", cfgPath); err != nil {
		t.Fatalf("db seed: %v", err)
	}

	gdb := openDB(t, dbPath)
	var job models.Job
	gdb.Where("tenant_id = ?", "demo").First(&job)
	// Simulate a cascade that stopped after the task write.
	gdb.Model(&models.Task{}).Where("name = ?", "Saw").Update("status", models.StatusInProgress)

	out, _, err := run(t, "reconcile", job.ID, "-c", cfgPath)
	if err != nil {
		t.Fatalf("reconcile job: %v", err)
	}
	if !strings.Contains(out, "Reconciled job "+job.ID+": 2 rows changed") {
		t.Errorf("reconcile output = %q", out)
	}

	out, _, err = run(t, "reconcile", "-c", cfgPath)
	if err != nil {
		t.Fatalf("reconcile sweep: %v", err)
	}
	if !strings.Contains(out, "Reconciled 1 jobs across 1 tenants: 0 rows changed") {
		t.Errorf("sweep output = %q", out)
	}
}

func TestReconcileSweep_ReopensRecentlyCompletedJob(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)
	if _, _, err := run(t, "db", "seed", "-c", cfgPath); err != nil {
		t.Fatalf("db seed: %v", err)
	}

	gdb := openDB(t, dbPath)
	var job models.Job
	gdb.Where("tenant_id = ?", "demo").First(&job)
	// The job was marked completed although one of its tasks is still running.
	gdb.Model(&models.Job{}).Where("id = ?", job.ID).Update("status", models.StatusCompleted)
	gdb.Model(&models.Task{}).Where("name = ?", "Saw").Update("status", models.StatusInProgress)

	out, _, err := run(t, "reconcile", "-c", cfgPath)
	if err != nil {
		t.Fatalf("reconcile sweep: %v", err)
	}
	if !strings.Contains(out, "Reconciled 1 jobs across 1 tenants") {
		t.Errorf("sweep output = %q", out)
	}

	var got models.Job
	gdb.First(&got, "id = ?", job.ID)
	if got.Status != models.StatusInProgress {
		t.Errorf("job status = %s, want in_progress", got.Status)
	}
	if got.CurrentStageID == nil {
		t.Error("job stage pointer should be set")
	}
}
