// Package sqlstore is the single-file-deployment store.Store backend,
// backed by modernc.org/sqlite (pure Go, no cgo). It maps the
// filesystem-shaped history/<hash>/, tmp/<hash>/logs.json,
// tmp/<hash>/checkpoint[-<tag>].json layout onto three tables:
// session_logs, checkpoints, shadow_blobs, all keyed by project_hash.
//
// Grounded on the teacher's internal/sessions locker/expiry packages'
// use of database/sql against a SQLite-family driver, re-targeted at
// store.Store's schema rather than the teacher's session-lock tables.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/nexuscore/agentcore/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_logs (
	project_hash TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	message_id   TEXT NOT NULL,
	timestamp    INTEGER NOT NULL,
	type         TEXT NOT NULL,
	message      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_logs_lookup ON session_logs(project_hash, session_id);

CREATE TABLE IF NOT EXISTS checkpoints (
	project_hash TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	tag          TEXT NOT NULL DEFAULT '',
	history_json TEXT NOT NULL,
	PRIMARY KEY (project_hash, session_id, tag)
);

CREATE TABLE IF NOT EXISTS shadow_blobs (
	project_hash TEXT NOT NULL,
	digest       TEXT NOT NULL,
	data         BLOB NOT NULL,
	PRIMARY KEY (project_hash, digest)
);
`

// Store is a modernc.org/sqlite-backed store.Store implementation.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) AppendLog(ctx context.Context, projectHash string, rec store.LogRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_logs (project_hash, session_id, message_id, timestamp, type, message) VALUES (?, ?, ?, ?, ?, ?)`,
		projectHash, rec.SessionID, rec.MessageID, rec.Timestamp, rec.Type, rec.Message)
	if err != nil {
		return fmt.Errorf("sqlstore: append log: %w", err)
	}
	return nil
}

func (s *Store) ReadLogs(ctx context.Context, projectHash string, sessionID string) ([]store.LogRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, message_id, timestamp, type, message FROM session_logs WHERE project_hash = ? AND session_id = ? ORDER BY timestamp`,
		projectHash, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: read logs: %w", err)
	}
	defer rows.Close()

	var out []store.LogRecord
	for rows.Next() {
		var rec store.LogRecord
		if err := rows.Scan(&rec.SessionID, &rec.MessageID, &rec.Timestamp, &rec.Type, &rec.Message); err != nil {
			return nil, fmt.Errorf("sqlstore: scan log: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) WriteCheckpoint(ctx context.Context, projectHash string, cp store.Checkpoint) error {
	historyJSON, err := store.MarshalHistory(cp)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (project_hash, session_id, tag, history_json) VALUES (?, ?, ?, ?)
		 ON CONFLICT(project_hash, session_id, tag) DO UPDATE SET history_json = excluded.history_json`,
		projectHash, cp.SessionID, cp.Tag, historyJSON)
	if err != nil {
		return fmt.Errorf("sqlstore: write checkpoint: %w", err)
	}
	return nil
}

func (s *Store) ReadCheckpoint(ctx context.Context, projectHash string, sessionID string, tag string) (*store.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT history_json FROM checkpoints WHERE project_hash = ? AND session_id = ? AND tag = ?`,
		projectHash, sessionID, tag)
	var historyJSON string
	if err := row.Scan(&historyJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlstore: no checkpoint for session %q tag %q", sessionID, tag)
		}
		return nil, fmt.Errorf("sqlstore: read checkpoint: %w", err)
	}
	return store.UnmarshalHistory(sessionID, tag, historyJSON)
}

func (s *Store) WriteShadowBlob(ctx context.Context, projectHash string, blob []byte) (string, error) {
	digest := store.BlobDigest(blob)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shadow_blobs (project_hash, digest, data) VALUES (?, ?, ?)
		 ON CONFLICT(project_hash, digest) DO NOTHING`,
		projectHash, digest, blob)
	if err != nil {
		return "", fmt.Errorf("sqlstore: write shadow blob: %w", err)
	}
	return digest, nil
}

func (s *Store) ReadShadowBlob(ctx context.Context, projectHash string, digest string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM shadow_blobs WHERE project_hash = ? AND digest = ?`, projectHash, digest)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlstore: no blob %q", digest)
		}
		return nil, fmt.Errorf("sqlstore: read shadow blob: %w", err)
	}
	return data, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
