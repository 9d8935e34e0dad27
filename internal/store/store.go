// Package store persists sessions, messages, document metadata, and
// chunk records (text plus embedding) in SQLite. The chunk rows are the
// source of truth that lets a volatile vector index be rebuilt after a
// restart.
//
// All mutations touching a session run inside a transaction, so a
// concurrent rename and append cannot corrupt either.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/docuchat/docuchat/internal/domain"
)

var (
	// ErrSessionNotFound is returned for operations on an absent session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDocumentNotFound is returned for operations on an absent document.
	ErrDocumentNotFound = errors.New("document not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	citations  TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	filename    TEXT NOT NULL,
	size_bytes  INTEGER NOT NULL,
	pages       INTEGER NOT NULL,
	chunk_count INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_session ON documents(session_id, created_at);

CREATE TABLE IF NOT EXISTS chunks (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	ordinal      INTEGER NOT NULL,
	page         INTEGER NOT NULL,
	text         TEXT NOT NULL,
	start_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL,
	embedding    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session_id, document_id, ordinal);
`

// Store is the SQLite-backed session and document metadata store.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates (if needed) and opens the database at dataDir/docuchat.db.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "docuchat.db")

	// WAL keeps readers running while a writer commits.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// CreateSession creates a session with an empty document list and empty
// history.
func (s *Store) CreateSession(ctx context.Context, name string) (domain.Session, error) {
	now := time.Now().UTC()
	session := domain.Session{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.Name, encodeTime(now), encodeTime(now))
	if err != nil {
		return domain.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// EnsureSession inserts the session if it does not exist. Used for the
// named default scope when callers do not manage sessions themselves.
func (s *Store) EnsureSession(ctx context.Context, id, name string) error {
	now := encodeTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, name, now, now)
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}

// GetSession returns the session or ErrSessionNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// SessionSummary is the sidebar view of a session.
type SessionSummary struct {
	domain.Session
	MessageCount int `json:"message_count"`
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.created_at, s.updated_at, COUNT(m.id)
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var summary SessionSummary
		var created, updated string
		if err := rows.Scan(&summary.ID, &summary.Name, &created, &updated, &summary.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		summary.CreatedAt = decodeTime(created)
		summary.UpdatedAt = decodeTime(updated)
		sessions = append(sessions, summary)
	}
	return sessions, rows.Err()
}

// RenameSession updates the display name.
func (s *Store) RenameSession(ctx context.Context, id, name string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET name = ?, updated_at = ? WHERE id = ?`,
		name, encodeTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes the session and cascades its messages. The
// caller is responsible for clearing the session's documents and chunks.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AppendMessage appends a message to the session's history and bumps the
// session's updated_at, atomically.
func (s *Store) AppendMessage(ctx context.Context, msg domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, msg.SessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}

	citations, err := encodeCitations(msg.Citations)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, citations, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, citations, encodeTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		encodeTime(time.Now().UTC()), msg.SessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return tx.Commit()
}

// ListMessages returns the session's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, citations, created_at
		 FROM messages WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role, created string
		var citations sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &citations, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = decodeTime(created)
		if citations.Valid && citations.String != "" {
			if err := json.Unmarshal([]byte(citations.String), &msg.Citations); err != nil {
				return nil, fmt.Errorf("decode citations: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MessageCount returns how many messages the session holds.
func (s *Store) MessageCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// DeleteMessages removes the session's chat history.
func (s *Store) DeleteMessages(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

func scanSession(row *sql.Row) (domain.Session, error) {
	var session domain.Session
	var created, updated string
	err := row.Scan(&session.ID, &session.Name, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	session.CreatedAt = decodeTime(created)
	session.UpdatedAt = decodeTime(updated)
	return session, nil
}

func encodeCitations(citations []domain.Citation) (sql.NullString, error) {
	if len(citations) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(citations)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode citations: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
