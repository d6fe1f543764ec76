// Package store keeps a durable history of orchestrator sessions and their
// task outcomes in sqlite. The live state contract is the JSON snapshot;
// history is for `covalent history` and post-hoc inspection.
package store

import (
	"database/sql"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/throw-if-null/covalent/internal/api"
)

type Store struct {
	db *sql.DB
}

var ErrNotFound = errors.New("not found")

// result previews stored per task run are bounded like snapshot snippets
const resultPreviewLen = 200

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init runs migrations using PRAGMA user_version.
func (s *Store) Init() error {
	var ver int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&ver); err != nil {
		return err
	}
	if ver >= 1 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// v1 schema
	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
  session_id TEXT PRIMARY KEY,
  objective TEXT NOT NULL,
  agent_count INTEGER NOT NULL,
  mock INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  finished_at TEXT,
  report_path TEXT
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS task_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
  task_id TEXT NOT NULL,
  name TEXT NOT NULL,
  perspective TEXT NOT NULL,
  status TEXT NOT NULL,
  started_at TEXT,
  ended_at TEXT,
  error_summary TEXT,
  result_preview TEXT
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`PRAGMA user_version = 1`); err != nil {
		return err
	}

	return tx.Commit()
}

// SessionRow is one history entry for a past orchestrator run.
type SessionRow struct {
	SessionID  string
	Objective  string
	AgentCount int
	Mock       bool
	CreatedAt  string
	FinishedAt string
	ReportPath string
}

// TaskRunRow is the terminal record of one task within a session.
type TaskRunRow struct {
	ID            int64
	SessionID     string
	TaskID        string
	Name          string
	Perspective   string
	Status        api.TaskStatus
	StartedAt     string
	EndedAt       string
	ErrorSummary  string
	ResultPreview string
}

// CreateSession inserts the session header row at run start.
func (s *Store) CreateSession(sessionID, objective string, agentCount int, mock bool) error {
	createdAt := time.Now().UTC().Format(time.RFC3339Nano)
	mockVal := 0
	if mock {
		mockVal = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, objective, agent_count, mock, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, objective, agentCount, mockVal, createdAt,
	)
	return err
}

// RecordTaskRun appends the terminal record for one task. Called once per
// task from the orchestrator's drain loop.
func (s *Store) RecordTaskRun(sessionID string, t *api.Task) error {
	_, err := s.db.Exec(
		`INSERT INTO task_runs (session_id, task_id, name, perspective, status, started_at, ended_at, error_summary, result_preview) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, t.ID, t.Name, t.Role.Perspective, string(t.Status), t.StartedAt, t.EndedAt, t.Error, preview(t.Result),
	)
	return err
}

// FinishSession stamps finished_at and the report path once synthesis is
// written.
func (s *Store) FinishSession(sessionID, reportPath string) error {
	finishedAt := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.Exec(`UPDATE sessions SET finished_at = ?, report_path = ? WHERE session_id = ?`, finishedAt, reportPath, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession returns one session header row.
func (s *Store) GetSession(sessionID string) (*SessionRow, error) {
	row := s.db.QueryRow(`SELECT session_id, objective, agent_count, mock, created_at, COALESCE(finished_at, ''), COALESCE(report_path, '') FROM sessions WHERE session_id = ?`, sessionID)
	var out SessionRow
	var mock int
	if err := row.Scan(&out.SessionID, &out.Objective, &out.AgentCount, &mock, &out.CreatedAt, &out.FinishedAt, &out.ReportPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out.Mock = mock != 0
	return &out, nil
}

// ListSessions returns sessions ordered newest first. If limit <= 0, return all.
func (s *Store) ListSessions(limit int) ([]*SessionRow, error) {
	q := `SELECT session_id, objective, agent_count, mock, created_at, COALESCE(finished_at, ''), COALESCE(report_path, '') FROM sessions ORDER BY created_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		q = q + ` LIMIT ?`
		rows, err = s.db.Query(q, limit)
	} else {
		rows, err = s.db.Query(q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SessionRow
	for rows.Next() {
		var r SessionRow
		var mock int
		if err := rows.Scan(&r.SessionID, &r.Objective, &r.AgentCount, &mock, &r.CreatedAt, &r.FinishedAt, &r.ReportPath); err != nil {
			return nil, err
		}
		r.Mock = mock != 0
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ListTaskRuns returns the task records of one session in insertion order,
// i.e. the order tasks completed in.
func (s *Store) ListTaskRuns(sessionID string) ([]*TaskRunRow, error) {
	rows, err := s.db.Query(`
	SELECT id, session_id, task_id, name, perspective, status, COALESCE(started_at, ''), COALESCE(ended_at, ''), COALESCE(error_summary, ''), COALESCE(result_preview, '')
	FROM task_runs
	WHERE session_id = ?
	ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TaskRunRow
	for rows.Next() {
		var r TaskRunRow
		var status string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.TaskID, &r.Name, &r.Perspective, &status, &r.StartedAt, &r.EndedAt, &r.ErrorSummary, &r.ResultPreview); err != nil {
			return nil, err
		}
		r.Status = api.TaskStatus(status)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func preview(s string) string {
	if len(s) <= resultPreviewLen {
		return s
	}
	n := resultPreviewLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
