// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger keeps a SQLite record of generation runs outside the
// session directories, so history survives session cleanup.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/docweaver/internal/workflow"
	"github.com/pdiddy/docweaver/pkg/types"
)

// DefaultFile is the database name used when no path is configured.
const DefaultFile = "docweaver.db"

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrSessionNotFound is returned when a session has no ledger row.
var ErrSessionNotFound = errors.New("session not found in ledger")

// Session is one recorded run.
type Session struct {
	ID         string       `json:"id" yaml:"id"`
	Inputs     []string     `json:"inputs" yaml:"inputs"`
	Status     types.Status `json:"status" yaml:"status"`
	OutputPath string       `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	CreatedAt  time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at" yaml:"updated_at"`
}

// Store manages the ledger database.
type Store struct {
	db *sql.DB
}

// Path resolves the database location from cfg.
func Path(cfg types.Config) string {
	if cfg.Ledger.Path != "" {
		return cfg.Ledger.Path
	}
	return filepath.Join(cfg.Session.DocsBasePath, DefaultFile)
}

// NewStore opens or creates the ledger database at path and ensures the
// schema exists.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			inputs TEXT NOT NULL,
			status TEXT NOT NULL,
			output_path TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			step TEXT NOT NULL,
			status TEXT NOT NULL,
			checkpoint_id TEXT,
			message TEXT,
			error TEXT,
			at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session_id ON events(session_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// RecordSession inserts a session row, or refreshes its inputs when the
// session is run again.
func (s *Store) RecordSession(ctx context.Context, id string, inputs []string, at time.Time) error {
	if inputs == nil {
		inputs = []string{}
	}
	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("encoding inputs: %w", err)
	}
	ts := at.UTC().Format(timeLayout)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, inputs, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET inputs=excluded.inputs, updated_at=excluded.updated_at`,
		id, string(inputsJSON), string(types.StatusInitializing), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("recording session %s: %w", id, err)
	}
	return nil
}

// MarkSession stores the final status and output path of a run.
func (s *Store) MarkSession(ctx context.Context, id string, status types.Status, outputPath string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, output_path = ?, updated_at = ? WHERE id = ?`,
		string(status), outputPath, at.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("marking session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("marking session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// RecordEvent appends one step event. Events for a session the ledger has
// not seen create a stub session row first.
func (s *Store) RecordEvent(ctx context.Context, e workflow.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ts := e.At.UTC().Format(timeLayout)
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, inputs, status, created_at, updated_at) VALUES (?, '[]', ?, ?, ?)`,
		e.SessionID, string(e.Status), ts, ts,
	); err != nil {
		return fmt.Errorf("inserting session stub: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (session_id, step, status, checkpoint_id, message, error, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, string(e.Step), string(e.Status), e.CheckpointID, e.Message, e.Err, ts,
	); err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(e.Status), ts, e.SessionID,
	); err != nil {
		return fmt.Errorf("updating session status: %w", err)
	}
	return tx.Commit()
}

// Record implements workflow.Journal.
func (s *Store) Record(ctx context.Context, e workflow.Event) error {
	return s.RecordEvent(ctx, e)
}

// Session returns the ledger row for id.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, inputs, status, COALESCE(output_path, ''), created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return sess, err
}

// Sessions lists recorded runs, most recently updated first. A limit of
// zero or less returns every row.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	query := `SELECT id, inputs, status, COALESCE(output_path, ''), created_at, updated_at
		FROM sessions ORDER BY updated_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Events returns the events of one session in the order they were recorded.
func (s *Store) Events(ctx context.Context, sessionID string) ([]workflow.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, step, status, COALESCE(checkpoint_id, ''), COALESCE(message, ''), COALESCE(error, ''), at
		 FROM events WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	out := []workflow.Event{}
	for rows.Next() {
		var e workflow.Event
		var step, status, at string
		if err := rows.Scan(&e.SessionID, &step, &status, &e.CheckpointID, &e.Message, &e.Err, &at); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Step = types.Step(step)
		e.Status = types.Status(status)
		if e.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parsing event time %q: %w", at, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its events.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var inputs, status, created, updated string
	if err := row.Scan(&sess.ID, &inputs, &status, &sess.OutputPath, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scanning session: %w", err)
	}
	if err := json.Unmarshal([]byte(inputs), &sess.Inputs); err != nil {
		return Session{}, fmt.Errorf("decoding inputs of %s: %w", sess.ID, err)
	}
	sess.Status = types.Status(status)
	var err error
	if sess.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return Session{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return Session{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return sess, nil
}
