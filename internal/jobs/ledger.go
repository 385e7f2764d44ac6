package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"hls-ingest/internal/logging"
	"hls-ingest/internal/metrics"
	"hls-ingest/internal/pipeline"
)

const (
	// Default timeout for ledger operations
	defaultTimeout = 5 * time.Second

	// DefaultListLimit is used when a list request does not specify a limit.
	DefaultListLimit = 50
	// MaxListLimit caps the number of jobs returned by List.
	MaxListLimit = 500

	// FileName is the ledger database file inside the database directory.
	FileName = "jobs.db"

	interruptedMessage = "interrupted by server restart"
)

// ErrNotFound is returned when a job id is not in the ledger.
var ErrNotFound = errors.New("job not found")

// Ledger records the status history of upload jobs in SQLite. It is an
// observability record only; nothing is resumed from it.
type Ledger struct {
	db     *sql.DB
	dbPath string
}

// New opens (creating if needed) the ledger at dbPath. The parent directory
// must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Ledger, error) {
	logging.Info("Job ledger path: %s", dbPath)

	if err := checkWritable(filepath.Dir(dbPath)); err != nil {
		logging.Warn("Job ledger permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open job ledger: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close job ledger after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to job ledger: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	l := &Ledger{db: db, dbPath: dbPath}

	if err := l.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close job ledger after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize job ledger schema: %w", err)
	}

	logging.Info("Job ledger initialized at %s", dbPath)
	return l, nil
}

func (l *Ledger) initialize(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		original_filename TEXT NOT NULL,
		base_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		failed_stage TEXT NOT NULL DEFAULT '',
		failure_kind TEXT NOT NULL DEFAULT '',
		failure_message TEXT NOT NULL DEFAULT '',
		stream_url TEXT NOT NULL DEFAULT '',
		thumbnail_url TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_base_name ON jobs(base_name);
	`

	_, err = l.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// CreateJob inserts a new job. It implements pipeline.JobStore.
func (l *Ledger) CreateJob(ctx context.Context, job *pipeline.UploadJob) (err error) {
	start := time.Now()
	defer func() { recordQuery("create_job", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rec := recordFromJob(job)
	_, err = l.db.ExecContext(ctx, `
	INSERT INTO jobs (id, original_filename, base_name, status, failed_stage, failure_kind,
		failure_message, stream_url, thumbnail_url, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.OriginalFilename, rec.BaseName, rec.Status,
		rec.FailedStage, rec.FailureKind, rec.FailureMessage,
		rec.StreamURL, rec.ThumbnailURL,
		rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateJob stores the job's current state. It implements pipeline.JobStore.
func (l *Ledger) UpdateJob(ctx context.Context, job *pipeline.UploadJob) (err error) {
	start := time.Now()
	defer func() { recordQuery("update_job", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rec := recordFromJob(job)
	result, err := l.db.ExecContext(ctx, `
	UPDATE jobs SET
		base_name = ?,
		status = ?,
		failed_stage = ?,
		failure_kind = ?,
		failure_message = ?,
		stream_url = ?,
		thumbnail_url = ?,
		updated_at = ?
	WHERE id = ?
	`,
		rec.BaseName, rec.Status,
		rec.FailedStage, rec.FailureKind, rec.FailureMessage,
		rec.StreamURL, rec.ThumbnailURL,
		rec.UpdatedAt.UnixMilli(), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", rec.ID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		err = fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
		return err
	}
	return nil
}

const selectColumns = `id, original_filename, base_name, status, failed_stage, failure_kind,
	failure_message, stream_url, thumbnail_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var created, updated int64
	err := row.Scan(
		&j.ID, &j.OriginalFilename, &j.BaseName, &j.Status,
		&j.FailedStage, &j.FailureKind, &j.FailureMessage,
		&j.StreamURL, &j.ThumbnailURL, &created, &updated,
	)
	if err != nil {
		return Job{}, err
	}
	j.CreatedAt = time.UnixMilli(created).UTC()
	j.UpdatedAt = time.UnixMilli(updated).UTC()
	return j, nil
}

// Get returns the job with the given id.
func (l *Ledger) Get(ctx context.Context, id string) (job *Job, err error) {
	start := time.Now()
	defer func() {
		// A missing job is a normal answer, not a query failure.
		if errors.Is(err, ErrNotFound) {
			recordQuery("get_job", start, nil)
			return
		}
		recordQuery("get_job", start, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	j, err := scanJob(l.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM jobs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ClampLimit applies the default and maximum list sizes.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// List returns the most recent jobs first.
func (l *Ledger) List(ctx context.Context, limit int) (page *Page, err error) {
	start := time.Now()
	defer func() { recordQuery("list_jobs", start, err) }()

	limit = ClampLimit(limit)

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var total int
	if err = l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&total); err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page = &Page{Jobs: make([]Job, 0, limit), Total: total, Limit: limit}
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		page.Jobs = append(page.Jobs, j)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return page, nil
}

// GetStats returns job counts by status. It implements metrics.StatsProvider.
func (l *Ledger) GetStats(ctx context.Context) (stats metrics.Stats, err error) {
	start := time.Now()
	defer func() { recordQuery("count_jobs", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := l.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return metrics.Stats{}, err
	}
	defer rows.Close()

	stats.JobsByStatus = make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err = rows.Scan(&status, &n); err != nil {
			return metrics.Stats{}, err
		}
		stats.JobsByStatus[status] = n
	}
	err = rows.Err()
	return stats, err
}

// MarkInterrupted fails every job left in a non-terminal state by a previous
// process. It returns the number of jobs changed.
func (l *Ledger) MarkInterrupted(ctx context.Context) (n int64, err error) {
	start := time.Now()
	defer func() { recordQuery("update_job", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := l.db.ExecContext(ctx, `
	UPDATE jobs SET
		failed_stage = status,
		failure_kind = 'interrupted',
		failure_message = ?,
		status = ?,
		updated_at = ?
	WHERE status NOT IN (?, ?)
	`,
		interruptedMessage, string(pipeline.StatusFailed), time.Now().UTC().UnixMilli(),
		string(pipeline.StatusCompleted), string(pipeline.StatusFailed),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// recordQuery records ledger query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LedgerQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.LedgerQueryDuration.WithLabelValues(operation).Observe(duration)
}

// checkWritable verifies that dir accepts new files.
func checkWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat ledger directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("ledger directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}
