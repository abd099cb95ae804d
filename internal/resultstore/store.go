// Package resultstore persists the outcome of every task of a session into
// a SQLite database, so that past sessions can be queried.
package resultstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vk/checkgrid/internal/executor"
)

// Session summarizes one RunAll call.
type Session struct {
	ID        string
	CreatedAt time.Time
	Runs      int
	Cases     int
	Failures  int
}

// Result is the outcome of one task.
type Result struct {
	Run         int
	Check       string
	Partition   string
	Environ     string
	Passed      bool
	FailedStage string
	Error       string
	Duration    time.Duration
}

// Store is a SQLite-backed result store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and makes sure its schema
// exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			runs INTEGER NOT NULL,
			cases INTEGER NOT NULL,
			failures INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS results (
			session_id TEXT NOT NULL,
			run INTEGER NOT NULL,
			check_name TEXT NOT NULL,
			partition TEXT NOT NULL,
			environ TEXT NOT NULL,
			passed INTEGER NOT NULL,
			failed_stage TEXT NOT NULL,
			error TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			PRIMARY KEY (session_id, run, check_name, partition, environ),
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession stores every task recorded in stats under sessionID. Saving
// the same session twice replaces the first copy.
func (s *Store) SaveSession(ctx context.Context, sessionID string, stats *executor.Stats) (err error) {
	if sessionID == "" {
		return errors.New("empty session id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM results WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at, runs, cases, failures)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			runs = excluded.runs,
			cases = excluded.cases,
			failures = excluded.failures`,
		sessionID,
		s.now().UTC().Format(time.RFC3339Nano),
		stats.NumRuns(),
		stats.NumCases(executor.AllRuns),
		len(stats.Failures(executor.AllRuns)),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (session_id, run, check_name, partition, environ, passed, failed_stage, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for run := 0; run < stats.NumRuns(); run++ {
		for _, t := range stats.Tasks(run) {
			k := t.TestCase().Key()
			errText := ""
			if t.Err() != nil {
				errText = t.Err().Error()
			}
			_, err = stmt.ExecContext(ctx,
				sessionID, run, k.Check, k.Partition, k.Environ,
				t.Succeeded(), t.FailedStage(), errText, t.Duration().Milliseconds(),
			)
			if err != nil {
				return fmt.Errorf("insert result %s: %w", k, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Sessions lists the stored sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, created_at, runs, cases, failures FROM sessions ORDER BY created_at DESC, session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess    Session
			created string
		)
		if err := rows.Scan(&sess.ID, &created, &sess.Runs, &sess.Cases, &sess.Failures); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse session time: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// SessionResults returns the results of a session ordered by run, then in
// insertion order.
func (s *Store) SessionResults(ctx context.Context, sessionID string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run, check_name, partition, environ, passed, failed_stage, error, duration_ms
		 FROM results WHERE session_id = ? ORDER BY run, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var (
			r  Result
			ms int64
		)
		if err := rows.Scan(&r.Run, &r.Check, &r.Partition, &r.Environ, &r.Passed, &r.FailedStage, &r.Error, &ms); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
