// Package sqlite provides a SQLite-backed persistence collaborator for the
// conversation log. It implements the store load/save callbacks: Load returns
// every record of one coordination session in log order, Save upserts exactly
// the batch just merged, keyed by the same effective key the in-memory store
// merges by.
//
// The collaborator is deliberately best-effort from the store's point of view:
// a failed Save surfaces on the store's observability channel while in-memory
// state stays authoritative for the running process.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	merge_key  TEXT,
	payload    TEXT NOT NULL,
	UNIQUE(session_id, merge_key)
);
CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id);
`

// Store persists one coordination session's records in a SQLite database.
type Store struct {
	db        *sql.DB
	sessionID string
	ownsDB    bool
}

// Open creates (or opens) the database at path and prepares the schema.
func Open(path, sessionID string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s, err := NewFromDB(db, sessionID)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewFromDB wraps an existing connection, preparing the schema. The caller
// keeps ownership of db.
func NewFromDB(db *sql.DB, sessionID string) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, sessionID: sessionID}, nil
}

// Load returns every persisted record of the session in log order.
func (s *Store) Load() ([]core.Record, error) {
	rows, err := s.db.Query(`SELECT payload FROM records WHERE session_id = ? ORDER BY seq`, s.sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []core.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var r core.Record
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Save upserts a merged batch. Records with an effective key replace any
// previously saved row carrying the same key; sentinel-identity records are
// always inserted as fresh rows, mirroring the in-memory merge rule.
func (s *Store) Save(batch []core.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range batch {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}

		var mergeKey sql.NullString
		if key, ok := r.EffectiveKey(); ok {
			mergeKey = sql.NullString{String: key, Valid: true}
		}

		_, err = tx.Exec(
			`INSERT INTO records (session_id, merge_key, payload) VALUES (?, ?, ?)
			 ON CONFLICT(session_id, merge_key) DO UPDATE SET payload = excluded.payload`,
			s.sessionID, mergeKey, string(payload),
		)
		if err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}
	}

	return tx.Commit()
}

// Hooks returns the load/save callback pair in the shape the store expects.
func (s *Store) Hooks() (store.LoadFunc, store.SaveFunc) {
	return s.Load, s.Save
}

// Close closes the underlying connection when this store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
