package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/bambubridge/internal/model"

	_ "modernc.org/sqlite"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
    id             TEXT PRIMARY KEY,
    file_name      TEXT NOT NULL,
    file_path      TEXT NOT NULL,
    status         TEXT NOT NULL,
    progress       INTEGER NOT NULL DEFAULT 0,
    remaining_time INTEGER NOT NULL DEFAULT 0,
    current_layer  INTEGER NOT NULL DEFAULT 0,
    total_layers   INTEGER NOT NULL DEFAULT 0,
    created_at     DATETIME NOT NULL,
    updated_at     DATETIME NOT NULL,
    finished_at    DATETIME
)`

const createJobEventsTable = `
CREATE TABLE IF NOT EXISTS job_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id     TEXT NOT NULL REFERENCES jobs(id),
    seq        INTEGER NOT NULL,
    line       TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`

const createJobEventsIndex = `
CREATE INDEX IF NOT EXISTS idx_job_events_job_seq ON job_events (job_id, seq)`

const jobColumns = `id, file_name, file_path, status, progress, remaining_time,
	current_layer, total_layers, created_at, updated_at, finished_at`

// ErrNotFound is returned when a job is not found.
var ErrNotFound = errors.New("job not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serialises writers and keeps :memory: databases
	// visible to every caller.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []struct {
		name string
		sql  string
	}{
		{"jobs table", createJobsTable},
		{"job_events table", createJobEventsTable},
		{"job_events index", createJobEventsIndex},
	} {
		if _, err := db.Exec(stmt.sql); err != nil {
			db.Close()
			return nil, fmt.Errorf("create %s: %w", stmt.name, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.JobRecord, error) {
	j := &model.JobRecord{}
	err := row.Scan(
		&j.ID, &j.FileName, &j.FilePath, &j.Status, &j.Progress, &j.RemainingTime,
		&j.CurrentLayer, &j.TotalLayers, &j.CreatedAt, &j.UpdatedAt, &j.FinishedAt,
	)
	return j, err
}

// CreateJob inserts a new job record. UpdatedAt defaults to CreatedAt.
func (s *SQLiteStore) CreateJob(ctx context.Context, j *model.JobRecord) error {
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = j.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.FileName, j.FilePath, j.Status, j.Progress, j.RemainingTime,
		j.CurrentLayer, j.TotalLayers, j.CreatedAt, j.UpdatedAt, j.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.JobRecord, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// GetActiveJob returns the most recently created job that has not finished.
func (s *SQLiteStore) GetActiveJob(ctx context.Context) (*model.JobRecord, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		WHERE status IN (?, ?) ORDER BY created_at DESC LIMIT 1`,
		model.StatusPrinting, model.StatusPaused,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active job: %w", err)
	}
	return j, nil
}

// ListJobs returns a paginated list of jobs ordered by created_at DESC,
// along with the total count of all jobs.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit, offset int) ([]*model.JobRecord, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, total, nil
}

// UpdateJobProgress writes the progress, remaining time and layer counters of
// j and bumps updated_at. Finished jobs are left untouched.
func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, j *model.JobRecord) error {
	j.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET progress = ?, remaining_time = ?, current_layer = ?,
			total_layers = ?, updated_at = ?
		WHERE id = ? AND finished_at IS NULL`,
		j.Progress, j.RemainingTime, j.CurrentLayer, j.TotalLayers, j.UpdatedAt, j.ID,
	)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobStatus moves a job to status after validating the transition.
// Terminal statuses (completed, cancelled, failed) also set finished_at.
func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read job status: %w", err)
	}

	if !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	now := time.Now().UTC()
	if model.IsTerminal(status) {
		_, err = tx.ExecContext(ctx,
			"UPDATE jobs SET status = ?, updated_at = ?, finished_at = ? WHERE id = ?",
			status, now, now, id,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?",
			status, now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit job status: %w", err)
	}
	return nil
}

// GetJobStats returns job counts by status and the average wall-clock
// duration of completed jobs.
func (s *SQLiteStore) GetJobStats(ctx context.Context) (*JobStats, error) {
	stats := &JobStats{CountByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	rows.Close()

	// Timestamps are stored in the driver's text format, so durations are
	// computed here rather than in SQL.
	rows, err = s.db.QueryContext(ctx,
		"SELECT created_at, finished_at FROM jobs WHERE status = ? AND finished_at IS NOT NULL",
		model.StatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("query completed jobs: %w", err)
	}
	defer rows.Close()

	var sum time.Duration
	var n int
	for rows.Next() {
		var created, finished time.Time
		if err := rows.Scan(&created, &finished); err != nil {
			return nil, fmt.Errorf("scan job duration: %w", err)
		}
		sum += finished.Sub(created)
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job durations: %w", err)
	}
	if n > 0 {
		stats.AvgDurationS = sum.Seconds() / float64(n)
	}

	return stats, nil
}

// InsertEvent appends a line to a job's event history.
func (s *SQLiteStore) InsertEvent(ctx context.Context, jobID string, seq int, line string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO job_events (job_id, seq, line, created_at) VALUES (?, ?, ?, ?)",
		jobID, seq, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert job event: %w", err)
	}
	return nil
}

// GetEvents returns a job's event history ordered by seq. It returns an
// empty slice, not nil, when the job has no events.
func (s *SQLiteStore) GetEvents(ctx context.Context, jobID string) ([]model.JobEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, job_id, seq, line, created_at FROM job_events WHERE job_id = ? ORDER BY seq ASC",
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query job events: %w", err)
	}
	defer rows.Close()

	events := []model.JobEvent{}
	for rows.Next() {
		var e model.JobEvent
		if err := rows.Scan(&e.ID, &e.JobID, &e.Seq, &e.Line, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job events: %w", err)
	}
	return events, nil
}

// NextEventSeq returns the sequence number the next event for jobID should use.
func (s *SQLiteStore) NextEventSeq(ctx context.Context, jobID string) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq) + 1, 0) FROM job_events WHERE job_id = ?", jobID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next event seq: %w", err)
	}
	return next, nil
}
