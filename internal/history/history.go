// Package history keeps a small sqlite log of past runs: one row per run and
// one per site within it.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sznuper/sitediff/internal/result"
)

// DefaultRetention is how many runs are kept when none is configured.
const DefaultRetention = 50

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps read/write access to the history database.
type Store struct {
	db        *sql.DB
	retention int
	now       func() time.Time
}

// Run is one recorded invocation.
type Run struct {
	ID         string
	Started    time.Time
	Finished   time.Time // zero while running or if the process died
	Sites      int
	Incomplete int
	Failed     bool
}

// SiteRun is one site's line in a run.
type SiteRun struct {
	RunID    string
	Site     string
	Complete bool
	Counts   map[result.Status]int
	RunDir   string
	Missing  []string
	Err      string
}

// Open opens (creating if needed) the database at path and migrates it.
// retention < 1 means DefaultRetention.
func Open(ctx context.Context, path string, retention int) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := configure(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if retention < 1 {
		retention = DefaultRetention
	}
	s := &Store{db: db, retention: retention, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return s, nil
}

// Close terminates the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func configure(db *sql.DB) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA foreign_keys = ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	sites       INTEGER NOT NULL,
	incomplete  INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at DESC);

CREATE TABLE IF NOT EXISTS site_runs (
	run_id    TEXT NOT NULL,
	site      TEXT NOT NULL,
	complete  INTEGER NOT NULL DEFAULT 0,
	passed    INTEGER NOT NULL DEFAULT 0,
	failed    INTEGER NOT NULL DEFAULT 0,
	existing  INTEGER NOT NULL DEFAULT 0,
	errors    INTEGER NOT NULL DEFAULT 0,
	run_dir   TEXT NOT NULL DEFAULT '',
	missing   TEXT NOT NULL DEFAULT '',
	error     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, site),
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// StartRun records a new run and returns its id.
func (s *Store) StartRun(ctx context.Context, sites int) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, sites) VALUES (?, ?, ?)
	`, id, formatTime(s.now()), sites)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// RecordSite stores a completed site's comparison tallies.
func (s *Store) RecordSite(ctx context.Context, runID, site string, comparisons []result.ComparisonResult, runDir string) error {
	counts := result.Counts(comparisons)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_runs (run_id, site, complete, passed, failed, existing, errors, run_dir)
		VALUES (?, ?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, site) DO UPDATE SET
			complete = 1,
			passed = excluded.passed,
			failed = excluded.failed,
			existing = excluded.existing,
			errors = excluded.errors,
			run_dir = excluded.run_dir
	`, runID, site, counts[result.Passed], counts[result.Failed], counts[result.ExistingIssue], counts[result.Error], runDir)
	if err != nil {
		return fmt.Errorf("record site %s: %w", site, err)
	}
	return nil
}

// RecordProblem stores why a site did not complete. Tallies already recorded
// for the site are left alone.
func (s *Store) RecordProblem(ctx context.Context, runID, site string, missing []string, siteErr string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_runs (run_id, site, missing, error)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, site) DO UPDATE SET
			missing = excluded.missing,
			error = excluded.error
	`, runID, site, strings.Join(missing, ","), siteErr)
	if err != nil {
		return fmt.Errorf("record problem for %s: %w", site, err)
	}
	return nil
}

// FinishRun closes a run and prunes runs beyond the retention limit.
func (s *Store) FinishRun(ctx context.Context, runID string, incomplete int, failed bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, incomplete = ?, failed = ? WHERE id = ?
	`, formatTime(s.now()), incomplete, boolInt(failed), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %s", runID)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM site_runs WHERE run_id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		)
	`, s.retention); err != nil {
		return fmt.Errorf("prune site runs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		)
	`, s.retention); err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		limit = s.retention
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, COALESCE(finished_at, ''), sites, incomplete, failed
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
			failed            int
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Sites, &r.Incomplete, &failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.Started, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished != "" {
			if r.Finished, err = parseTime(finished); err != nil {
				return nil, err
			}
		}
		r.Failed = failed == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

// SiteRuns returns every site recorded for a run, by name.
func (s *Store) SiteRuns(ctx context.Context, runID string) ([]SiteRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT site, complete, passed, failed, existing, errors, run_dir, missing, error
		FROM site_runs
		WHERE run_id = ?
		ORDER BY site
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list site runs: %w", err)
	}
	defer rows.Close()

	var out []SiteRun
	for rows.Next() {
		var (
			sr                                 SiteRun
			complete, passed, failed, existing int
			errs                               int
			missing                            string
		)
		if err := rows.Scan(&sr.Site, &complete, &passed, &failed, &existing, &errs, &sr.RunDir, &missing, &sr.Err); err != nil {
			return nil, fmt.Errorf("scan site run: %w", err)
		}
		sr.RunID = runID
		sr.Complete = complete == 1
		sr.Counts = map[result.Status]int{
			result.Passed:        passed,
			result.Failed:        failed,
			result.ExistingIssue: existing,
			result.Error:         errs,
		}
		if missing != "" {
			sr.Missing = strings.Split(missing, ",")
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
