// Package audit persists a per-session log of tool invocations and their
// results in SQLite. The store is an optional sink for the pipeline; it is
// never the system of record and a missing or failing store must not block
// a turn.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed invocation log. Safe for use from a single
// session goroutine; the pipeline is synchronous by design.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the audit database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	ddl := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			policy TEXT NOT NULL,
			roots TEXT NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS invocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			origin TEXT NOT NULL,
			target TEXT NOT NULL,
			ok INTEGER NOT NULL,
			exit_code INTEGER NOT NULL,
			error_kind TEXT NOT NULL,
			detail TEXT,
			duration_ms INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_session ON invocations(session_id, seq);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("audit: init schema: %w", err)
		}
	}
	return nil
}

// Session describes one pipeline session.
type Session struct {
	ID     string
	Policy string
	Roots  []string
}

// BeginSession registers a session. Re-registering an existing ID is an
// error.
func (s *Store) BeginSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, policy, roots, started_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Policy, strings.Join(sess.Roots, ":"), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("audit: begin session: %w", err)
	}
	return nil
}

// Record is one invocation outcome.
type Record struct {
	SessionID string
	Seq       int
	Kind      string
	Origin    string
	Target    string
	OK        bool
	ExitCode  int
	ErrorKind string
	Detail    string
	Duration  time.Duration
}

// Record appends one invocation outcome to the log.
func (s *Store) Record(ctx context.Context, r Record) error {
	ok := 0
	if r.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invocations
			(session_id, seq, kind, origin, target, ok, exit_code, error_kind, detail, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Seq, r.Kind, r.Origin, r.Target, ok, r.ExitCode,
		r.ErrorKind, r.Detail, r.Duration.Milliseconds(),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("audit: record invocation: %w", err)
	}
	return nil
}

// SessionRecords returns the recorded invocations for a session in
// sequence order.
func (s *Store) SessionRecords(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, origin, target, ok, exit_code, error_kind, detail, duration_ms
		 FROM invocations WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("audit: query invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		r := Record{SessionID: sessionID}
		var ok int
		var durationMs int64
		if err := rows.Scan(&r.Seq, &r.Kind, &r.Origin, &r.Target, &ok,
			&r.ExitCode, &r.ErrorKind, &r.Detail, &durationMs); err != nil {
			return nil, fmt.Errorf("audit: scan invocation: %w", err)
		}
		r.OK = ok != 0
		r.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
