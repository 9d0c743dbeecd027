// Package history keeps a sqlite record of every review session and the
// transitions it went through.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sprite-ai/agstage/internal/logging"
	"github.com/sprite-ai/agstage/internal/review"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// ErrSessionNotFound is returned when a lookup names an unknown session.
var ErrSessionNotFound = errors.New("session not found")

// Record is one stored session.
type Record struct {
	ID          string
	TargetPath  string
	StagingPath string
	State       string
	Reason      string
	ErrorCode   string
	Error       string
	StartedAt   time.Time
	UpdatedAt   time.Time
}

// Transition is one stored state change.
type Transition struct {
	SessionID string
	From      string
	To        string
	At        time.Time
}

// Store persists sessions in sqlite. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log *logging.Logger
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string, log *logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.NopLogger()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, log: log.WithComponent("history")}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const versionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(versionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const v1 = `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			target_path TEXT NOT NULL,
			staging_path TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			error_code TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
		CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session_id);
	`
	if _, err := tx.Exec(v1); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		schemaVersion, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Observe records a controller transition. Failures are logged, never
// surfaced, so history can never block a review.
func (s *Store) Observe(ev review.Event) {
	if err := s.Record(ev); err != nil {
		s.log.WithSession(ev.Session.ID).Warn("failed to record transition", "error", err.Error())
	}
}

// Record upserts the session row and appends the transition.
func (s *Store) Record(ev review.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := ev.Session
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO sessions (id, target_path, staging_path, state, reason, error_code, error, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			staging_path = excluded.staging_path,
			state = excluded.state,
			reason = excluded.reason,
			error_code = excluded.error_code,
			error = excluded.error,
			updated_at = excluded.updated_at
	`
	if _, err := tx.Exec(upsert,
		snap.ID, snap.TargetPath, snap.StagingPath, snap.StateName, snap.Reason,
		snap.ErrorCode, snap.Error, formatTime(snap.StartedAt), formatTime(snap.UpdatedAt),
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO transitions (session_id, from_state, to_state, at) VALUES (?, ?, ?, ?)",
		snap.ID, ev.From.String(), snap.StateName, formatTime(snap.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return tx.Commit()
}

// Sessions returns the most recently updated sessions, newest first.
func (s *Store) Sessions(limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, target_path, staging_path, state, reason, error_code, error, started_at, updated_at
		FROM sessions ORDER BY updated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Session returns one session by id.
func (s *Store) Session(id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT id, target_path, staging_path, state, reason, error_code, error, started_at, updated_at
		FROM sessions WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrSessionNotFound
	}
	return r, err
}

// Transitions returns a session's transitions in order.
func (s *Store) Transitions(sessionID string) ([]Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		"SELECT session_id, from_state, to_state, at FROM transitions WHERE session_id = ? ORDER BY id", sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var at string
		if err := rows.Scan(&t.SessionID, &t.From, &t.To, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.At = parseTime(at)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Prune deletes sessions last updated before cutoff and returns how many
// were removed.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	ts := formatTime(cutoff)
	if _, err := tx.Exec(
		"DELETE FROM transitions WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)", ts); err != nil {
		return 0, fmt.Errorf("prune transitions: %w", err)
	}
	res, err := tx.Exec("DELETE FROM sessions WHERE updated_at < ?", ts)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var r Record
	var started, updated string
	if err := sc.Scan(&r.ID, &r.TargetPath, &r.StagingPath, &r.State, &r.Reason,
		&r.ErrorCode, &r.Error, &started, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan session: %w", err)
	}
	r.StartedAt = parseTime(started)
	r.UpdatedAt = parseTime(updated)
	return r, nil
}

// Times are stored as fixed-width UTC strings so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
