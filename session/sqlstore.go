package session

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/agentloop/memoryplugin"
)

// SQLStore persists session documents as a single JSON blob per row,
// across sqlite/postgres/mysql behind one driver-name switch. Grounded on
// the teacher's pkg/agent/task_service_sql.go dialect-selection pattern
// (Driver "sqlite" maps to the registered driver name "sqlite3"; the same
// schema and queries, modulo placeholder syntax, serve all three dialects).
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// Config selects and connects to a SQL backend.
type Config struct {
	Driver           string // "sqlite", "postgres", or "mysql"
	ConnectionString string
}

func driverName(driver string) string {
	if driver == "sqlite" {
		return "sqlite3"
	}
	return driver
}

func Open(cfg Config) (*SQLStore, error) {
	switch cfg.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("session: unsupported driver %q (supported: sqlite, postgres, mysql)", cfg.Driver)
	}
	db, err := sql.Open(driverName(cfg.Driver), cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("session: opening %s: %w", cfg.Driver, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("session: connecting to %s: %w", cfg.Driver, err)
	}
	s := &SQLStore{db: db, dialect: cfg.Driver}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	switch dialect {
	case "sqlite", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("session: unsupported dialect %q", dialect)
	}
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS agentloop_sessions (
	session_id TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

func (s *SQLStore) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("session: migrating schema: %w", err)
	}
	return s.migrateMemory()
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) Load(sessionID string) (Document, error) {
	query := fmt.Sprintf("SELECT document FROM agentloop_sessions WHERE session_id = %s", s.placeholder(1))
	row := s.db.QueryRow(query, sessionID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("session: loading %s: %w", sessionID, err)
	}
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Document{}, fmt.Errorf("session: decoding %s: %w", sessionID, err)
	}
	return doc, nil
}

func (s *SQLStore) Save(doc Document) error {
	if doc.Version == 0 {
		doc.Version = CurrentVersion
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("session: encoding %s: %w", doc.SessionID, err)
	}
	var query string
	switch s.dialect {
	case "postgres":
		query = `INSERT INTO agentloop_sessions (session_id, document, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (session_id) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`
		_, err = s.db.Exec(query, doc.SessionID, string(raw))
	case "mysql":
		query = `INSERT INTO agentloop_sessions (session_id, document, updated_at) VALUES (?, ?, NOW())
			ON DUPLICATE KEY UPDATE document = VALUES(document), updated_at = NOW()`
		_, err = s.db.Exec(query, doc.SessionID, string(raw))
	default: // sqlite
		query = `INSERT INTO agentloop_sessions (session_id, document, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(session_id) DO UPDATE SET document = excluded.document, updated_at = CURRENT_TIMESTAMP`
		_, err = s.db.Exec(query, doc.SessionID, string(raw))
	}
	if err != nil {
		return fmt.Errorf("session: saving %s: %w", doc.SessionID, err)
	}
	return nil
}

func (s *SQLStore) Delete(sessionID string) error {
	query := fmt.Sprintf("DELETE FROM agentloop_sessions WHERE session_id = %s", s.placeholder(1))
	_, err := s.db.Exec(query, sessionID)
	if err != nil {
		return fmt.Errorf("session: deleting %s: %w", sessionID, err)
	}
	return nil
}

// SaveMemoryEntry/LoadMemoryEntries/DeleteMemoryEntry implement
// memoryplugin.PersistentBackend, backing scope=persistent memory entries
// with the same table family rather than a separate vector store (see
// DESIGN.md: this module performs no embedding-similarity search).
const memorySchema = `
CREATE TABLE IF NOT EXISTS agentloop_memory (
	namespace TEXT NOT NULL,
	entry_key TEXT NOT NULL,
	entry     TEXT NOT NULL,
	PRIMARY KEY (namespace, entry_key)
)`

func (s *SQLStore) migrateMemory() error {
	_, err := s.db.Exec(memorySchema)
	if err != nil {
		return fmt.Errorf("session: migrating memory schema: %w", err)
	}
	return nil
}

func (s *SQLStore) SaveMemoryEntry(namespace string, e memoryplugin.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("session: encoding memory entry %s/%s: %w", namespace, e.Key, err)
	}
	var query string
	switch s.dialect {
	case "postgres":
		query = `INSERT INTO agentloop_memory (namespace, entry_key, entry) VALUES ($1, $2, $3)
			ON CONFLICT (namespace, entry_key) DO UPDATE SET entry = EXCLUDED.entry`
	case "mysql":
		query = `INSERT INTO agentloop_memory (namespace, entry_key, entry) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE entry = VALUES(entry)`
	default:
		query = `INSERT INTO agentloop_memory (namespace, entry_key, entry) VALUES (?, ?, ?)
			ON CONFLICT(namespace, entry_key) DO UPDATE SET entry = excluded.entry`
	}
	if _, err := s.db.Exec(query, namespace, e.Key, string(raw)); err != nil {
		return fmt.Errorf("session: saving memory entry %s/%s: %w", namespace, e.Key, err)
	}
	return nil
}

func (s *SQLStore) LoadMemoryEntries(namespace string) ([]memoryplugin.Entry, error) {
	query := fmt.Sprintf("SELECT entry FROM agentloop_memory WHERE namespace = %s", s.placeholder(1))
	rows, err := s.db.Query(query, namespace)
	if err != nil {
		return nil, fmt.Errorf("session: loading memory entries for %s: %w", namespace, err)
	}
	defer rows.Close()
	var out []memoryplugin.Entry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("session: scanning memory entry for %s: %w", namespace, err)
		}
		var e memoryplugin.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("session: decoding memory entry for %s: %w", namespace, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteMemoryEntry(namespace, key string) error {
	query := fmt.Sprintf("DELETE FROM agentloop_memory WHERE namespace = %s AND entry_key = %s", s.placeholder(1), s.placeholder(2))
	if _, err := s.db.Exec(query, namespace, key); err != nil {
		return fmt.Errorf("session: deleting memory entry %s/%s: %w", namespace, key, err)
	}
	return nil
}
