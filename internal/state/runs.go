package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/skein-dev/skein/pkg/models"
)

// Run is a persisted run record.
type Run struct {
	ID         string
	PlanName   string
	TotalTasks int
	Outcome    string
	Completed  int
	Failed     int
	StartedAt  time.Time
	FinishedAt *time.Time
	Duration   time.Duration
}

// TaskRecord is a persisted per-task result.
type TaskRecord struct {
	TaskID     string
	WorkerID   string
	Success    bool
	Error      string
	Duration   time.Duration
	FinishedAt time.Time
}

// CreateRun inserts a new run in the "running" state.
func (db *DB) CreateRun(runID, planName string, totalTasks int, startedAt time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT INTO runs (id, plan_name, total_tasks, started_at)
		VALUES (?, ?, ?, ?)
	`, runID, planName, totalTasks, startedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// RecordResult stores one worker result for a run.
func (db *DB) RecordResult(runID string, res *models.JobResult) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	success := 0
	if res.Success {
		success = 1
	}
	_, err := db.conn.Exec(`
		INSERT INTO results (run_id, task_id, worker_id, success, error, duration_ms, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, res.TaskID, res.WorkerID, success, res.Error, res.Duration.Milliseconds(), res.FinishedAt)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

// FinishRun records the run's terminal summary, including its stuck
// task classification.
func (db *DB) FinishRun(runID string, summary *models.RunSummary) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE runs
		SET outcome = ?, completed = ?, failed = ?, finished_at = ?, duration_ms = ?
		WHERE id = ?
	`, string(summary.Outcome), summary.Completed, summary.Failed,
		summary.StartedAt.Add(summary.Duration), summary.Duration.Milliseconds(), runID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("finish run: %w", err)
	}

	for _, st := range summary.Stuck {
		_, err := tx.Exec(`
			INSERT INTO stuck_tasks (run_id, task_id, reason, detail)
			VALUES (?, ?, ?, ?)
		`, runID, st.TaskID, string(st.Reason), st.Detail)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record stuck task %s: %w", st.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish: %w", err)
	}
	return nil
}

// GetRun returns a run by ID, or nil if no such run exists.
func (db *DB) GetRun(runID string) (*Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, plan_name, total_tasks, outcome, completed, failed,
		       started_at, finished_at, COALESCE(duration_ms, 0)
		FROM runs WHERE id = ?
	`, runID)
	return scanRun(row)
}

// LatestRun returns the most recently started run, or nil if the
// database has none.
func (db *DB) LatestRun() (*Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, plan_name, total_tasks, outcome, completed, failed,
		       started_at, finished_at, COALESCE(duration_ms, 0)
		FROM runs ORDER BY started_at DESC LIMIT 1
	`)
	return scanRun(row)
}

// ListRuns returns up to limit runs, most recent first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, plan_name, total_tasks, outcome, completed, failed,
		       started_at, finished_at, COALESCE(duration_ms, 0)
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRunRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// ListResults returns the recorded task results for a run, in the
// order they finished.
func (db *DB) ListResults(runID string) ([]TaskRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT task_id, worker_id, success, error, duration_ms, finished_at
		FROM results WHERE run_id = ? ORDER BY finished_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var records []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var success int
		var durationMS int64
		if err := rows.Scan(&rec.TaskID, &rec.WorkerID, &success, &rec.Error, &durationMS, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		rec.Success = success == 1
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListStuck returns the stuck task classification recorded for a run.
func (db *DB) ListStuck(runID string) ([]models.StuckTask, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT task_id, reason, detail FROM stuck_tasks WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stuck tasks: %w", err)
	}
	defer rows.Close()

	var stuck []models.StuckTask
	for rows.Next() {
		var st models.StuckTask
		var reason string
		if err := rows.Scan(&st.TaskID, &reason, &st.Detail); err != nil {
			return nil, fmt.Errorf("scan stuck task: %w", err)
		}
		st.Reason = models.StuckReason(reason)
		stuck = append(stuck, st)
	}
	return stuck, rows.Err()
}

func scanRun(row *sql.Row) (*Run, error) {
	r, err := scanRunRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func scanRunRow(scan func(...any) error) (*Run, error) {
	var r Run
	var finishedAt sql.NullTime
	var durationMS int64
	err := scan(&r.ID, &r.PlanName, &r.TotalTasks, &r.Outcome, &r.Completed, &r.Failed,
		&r.StartedAt, &finishedAt, &durationMS)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond
	return &r, nil
}
