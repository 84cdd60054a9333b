package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/skein-dev/skein/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	started := time.Now().Truncate(time.Second)

	if err := db.CreateRun("run1", "build", 3, started); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	run, err := db.GetRun("run1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run == nil {
		t.Fatal("GetRun returned nil for existing run")
	}
	if run.Outcome != "running" || run.TotalTasks != 3 {
		t.Errorf("fresh run = %+v, want outcome running, total 3", run)
	}
	if run.FinishedAt != nil {
		t.Errorf("fresh run has finished_at = %v", run.FinishedAt)
	}

	res := &models.JobResult{
		TaskID:     "a",
		WorkerID:   "w1",
		Success:    true,
		Duration:   42 * time.Millisecond,
		FinishedAt: time.Now(),
	}
	if err := db.RecordResult("run1", res); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}

	summary := &models.RunSummary{
		RunID:     "run1",
		Outcome:   models.RunOutcomePartial,
		Total:     3,
		Completed: 1,
		Failed:    1,
		Stuck: []models.StuckTask{
			{TaskID: "c", Reason: models.StuckDependencyFailed, Detail: "b"},
		},
		Duration:  time.Second,
		StartedAt: started,
	}
	if err := db.FinishRun("run1", summary); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err = db.GetRun("run1")
	if err != nil {
		t.Fatalf("GetRun after finish: %v", err)
	}
	if run.Outcome != "partial" || run.Completed != 1 || run.Failed != 1 {
		t.Errorf("finished run = %+v, want partial 1/1", run)
	}
	if run.FinishedAt == nil {
		t.Error("finished run has no finished_at")
	}
	if run.Duration != time.Second {
		t.Errorf("duration = %v, want 1s", run.Duration)
	}

	records, err := db.ListResults("run1")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(records) != 1 || records[0].TaskID != "a" || !records[0].Success {
		t.Errorf("results = %+v, want one successful record for task a", records)
	}
	if records[0].Duration != 42*time.Millisecond {
		t.Errorf("result duration = %v, want 42ms", records[0].Duration)
	}

	stuck, err := db.ListStuck("run1")
	if err != nil {
		t.Fatalf("ListStuck: %v", err)
	}
	if len(stuck) != 1 || stuck[0].TaskID != "c" || stuck[0].Reason != models.StuckDependencyFailed {
		t.Errorf("stuck = %+v, want task c dependency_failed", stuck)
	}
}

func TestLatestRunAndList(t *testing.T) {
	db := openTestDB(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		if err := db.CreateRun(id, "plan", 1, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("CreateRun(%s): %v", id, err)
		}
	}

	latest, err := db.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest == nil || latest.ID != "new" {
		t.Errorf("LatestRun = %+v, want run new", latest)
	}

	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Errorf("ListRuns(2) = %+v, want [new mid]", runs)
	}
}

func TestGetRunMissing(t *testing.T) {
	db := openTestDB(t)
	run, err := db.GetRun("nope")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run != nil {
		t.Errorf("GetRun for missing run = %+v, want nil", run)
	}
}
