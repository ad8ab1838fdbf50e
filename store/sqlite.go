// Package store persists sessions, page tasks, and overlay events in
// sqlite, and writes evidence artifacts to the filesystem.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/storelens/storelens/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	url            TEXT NOT NULL,
	domain         TEXT NOT NULL,
	status         TEXT NOT NULL,
	config         TEXT NOT NULL,
	low_confidence INTEGER NOT NULL DEFAULT 0,
	pdp_url        TEXT NOT NULL DEFAULT '',
	attempts       INTEGER NOT NULL DEFAULT 0,
	error_summary  TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_domain ON sessions(domain);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

CREATE TABLE IF NOT EXISTS page_tasks (
	session_id             TEXT NOT NULL,
	page_type              TEXT NOT NULL,
	viewport               TEXT NOT NULL,
	status                 TEXT NOT NULL,
	timings                TEXT NOT NULL DEFAULT '{}',
	low_confidence_reasons TEXT NOT NULL DEFAULT '[]',
	error_summary          TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (session_id, page_type, viewport)
);

CREATE TABLE IF NOT EXISTS overlay_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	event      TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_overlay_events_session ON overlay_events(session_id);
`

// Store is the sqlite-backed session store. Safe for concurrent use;
// sqlite serializes writers internally.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the sqlite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session record.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	cfg, err := json.Marshal(sess.Config)
	if err != nil {
		return fmt.Errorf("store: marshal config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, url, domain, status, config, low_confidence, pdp_url, attempts, error_summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID.String(), sess.URL, sess.Domain, string(sess.Status), string(cfg),
		boolInt(sess.LowConfidence), sess.PDPURL, sess.Attempts, sess.ErrorSummary,
		sess.CreatedAt.UTC().Format(time.RFC3339Nano), sess.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

// UpdateSession persists mutable session fields.
func (s *Store) UpdateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, low_confidence = ?, pdp_url = ?, attempts = ?, error_summary = ?, updated_at = ?
		WHERE id = ?`,
		string(sess.Status), boolInt(sess.LowConfidence), sess.PDPURL, sess.Attempts,
		sess.ErrorSummary, sess.UpdatedAt.UTC().Format(time.RFC3339Nano), sess.ID.String())
	if err != nil {
		return fmt.Errorf("store: update session %s: %w", sess.ID, err)
	}
	return nil
}

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = sql.ErrNoRows

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, domain, status, config, low_confidence, pdp_url, attempts, error_summary, created_at, updated_at
		FROM sessions WHERE id = ?`, id.String())

	var sess models.Session
	var idStr, status, cfg, createdAt, updatedAt string
	var lowConfidence int
	if err := row.Scan(&idStr, &sess.URL, &sess.Domain, &status, &cfg,
		&lowConfidence, &sess.PDPURL, &sess.Attempts, &sess.ErrorSummary,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sess.ID, _ = uuid.Parse(idStr)
	sess.Status = models.SessionStatus(status)
	sess.LowConfidence = lowConfidence != 0
	if err := json.Unmarshal([]byte(cfg), &sess.Config); err != nil {
		return nil, fmt.Errorf("store: unmarshal config: %w", err)
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &sess, nil
}

// SavePageTask upserts a page task record for a session.
func (s *Store) SavePageTask(ctx context.Context, sessionID uuid.UUID, task models.PageTask) error {
	timings, err := json.Marshal(task.Timings)
	if err != nil {
		return fmt.Errorf("store: marshal timings: %w", err)
	}
	reasons, err := json.Marshal(task.LowConfidenceReasons)
	if err != nil {
		return fmt.Errorf("store: marshal reasons: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO page_tasks (session_id, page_type, viewport, status, timings, low_confidence_reasons, error_summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, page_type, viewport)
		DO UPDATE SET status = excluded.status, timings = excluded.timings,
		              low_confidence_reasons = excluded.low_confidence_reasons,
		              error_summary = excluded.error_summary`,
		sessionID.String(), string(task.PageType), string(task.Viewport), string(task.Status),
		string(timings), string(reasons), task.ErrorSummary)
	if err != nil {
		return fmt.Errorf("store: save page task: %w", err)
	}
	return nil
}

// ListPageTasks returns a session's page tasks in the fixed page order.
func (s *Store) ListPageTasks(ctx context.Context, sessionID uuid.UUID) ([]models.PageTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page_type, viewport, status, timings, low_confidence_reasons, error_summary
		FROM page_tasks WHERE session_id = ?
		ORDER BY page_type DESC, viewport ASC`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("store: list page tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.PageTask
	for rows.Next() {
		var task models.PageTask
		var pageType, viewport, status, timings, reasons string
		if err := rows.Scan(&pageType, &viewport, &status, &timings, &reasons, &task.ErrorSummary); err != nil {
			return nil, err
		}
		task.PageType = models.PageType(pageType)
		task.Viewport = models.Viewport(viewport)
		task.Status = models.PageTaskStatus(status)
		_ = json.Unmarshal([]byte(timings), &task.Timings)
		_ = json.Unmarshal([]byte(reasons), &task.LowConfidenceReasons)
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// SaveOverlayEvents appends overlay events for a session.
func (s *Store) SaveOverlayEvents(ctx context.Context, sessionID uuid.UUID, events []models.OverlayEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, ev := range events {
		payload, merr := json.Marshal(ev)
		if merr != nil {
			tx.Rollback()
			return fmt.Errorf("store: marshal event: %w", merr)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO overlay_events (session_id, event, created_at) VALUES (?, ?, ?)`,
			sessionID.String(), string(payload), now); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: save event: %w", err)
		}
	}
	return tx.Commit()
}

// ListOverlayEvents returns a session's overlay events in insertion order.
func (s *Store) ListOverlayEvents(ctx context.Context, sessionID uuid.UUID) ([]models.OverlayEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event FROM overlay_events WHERE session_id = ? ORDER BY id ASC`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var events []models.OverlayEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev models.OverlayEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
