// Package store persists analysis runs and their regression results in
// SQLite so repeated runs can be compared later.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite results database.
type Store struct {
	db *sql.DB
}

// Open opens the database at the given path and configures WAL mode.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	id         TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	data_path  TEXT NOT NULL,
	rows       INTEGER NOT NULL,
	cities     INTEGER NOT NULL,
	years      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS regression_results (
	run_id    TEXT NOT NULL REFERENCES analysis_runs(id),
	spec      TEXT NOT NULL,
	status    TEXT NOT NULL,
	coef      REAL,
	se        REAL,
	p         REAL,
	ci_low    REAL,
	ci_high   REAL,
	r2_within REAL,
	nobs      INTEGER,
	n_city    INTEGER,
	n_year    INTEGER,
	error     TEXT,
	PRIMARY KEY (run_id, spec)
);

CREATE INDEX IF NOT EXISTS idx_regression_results_spec ON regression_results(spec);
`

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "store: migrate")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Run describes one recorded analysis run.
type Run struct {
	ID        string
	CreatedAt time.Time
	DataPath  string
	Rows      int
	Cities    int
	Years     int
}

// SpecRecord is one persisted regression outcome.
type SpecRecord struct {
	Spec     string
	Status   string // "ok" or "failed"
	Coef     sql.NullFloat64
	StdErr   sql.NullFloat64
	PValue   sql.NullFloat64
	CILow    sql.NullFloat64
	CIHigh   sql.NullFloat64
	R2Within sql.NullFloat64
	NObs     sql.NullInt64
	NCities  sql.NullInt64
	NYears   sql.NullInt64
	Error    string
}

// SaveRun inserts a run and its spec records in one transaction and returns
// the generated run id.
func (s *Store) SaveRun(ctx context.Context, run Run, records []SpecRecord) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "store: begin tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO analysis_runs (id, created_at, data_path, rows, cities, years) VALUES (?, ?, ?, ?, ?, ?)`,
		id, now, run.DataPath, run.Rows, run.Cities, run.Years,
	)
	if err != nil {
		return "", eris.Wrap(err, "store: insert run")
	}

	for _, rec := range records {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO regression_results
			 (run_id, spec, status, coef, se, p, ci_low, ci_high, r2_within, nobs, n_city, n_year, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, rec.Spec, rec.Status, rec.Coef, rec.StdErr, rec.PValue,
			rec.CILow, rec.CIHigh, rec.R2Within, rec.NObs, rec.NCities, rec.NYears, rec.Error,
		)
		if err != nil {
			return "", eris.Wrapf(err, "store: insert result %s", rec.Spec)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "store: commit")
	}
	return id, nil
}

// Runs lists recorded runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, data_path, rows, cities, years
		 FROM analysis_runs ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.DataPath, &r.Rows, &r.Cities, &r.Years); err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunResults returns the persisted spec records for a run, ordered by spec
// name.
func (s *Store) RunResults(ctx context.Context, runID string) ([]SpecRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT spec, status, coef, se, p, ci_low, ci_high, r2_within, nobs, n_city, n_year, error
		 FROM regression_results WHERE run_id = ? ORDER BY spec`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "store: query results for run %s", runID)
	}
	defer rows.Close()

	var records []SpecRecord
	for rows.Next() {
		var rec SpecRecord
		if err := rows.Scan(&rec.Spec, &rec.Status, &rec.Coef, &rec.StdErr, &rec.PValue,
			&rec.CILow, &rec.CIHigh, &rec.R2Within, &rec.NObs, &rec.NCities, &rec.NYears, &rec.Error); err != nil {
			return nil, eris.Wrap(err, "store: scan result")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
