package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a local file-backed Store.
// WAL is enabled so history reads do not block a turn being saved.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("missing sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, threadKey string) (*ConversationThread, error) {
	key, err := validateKey(threadKey)
	if err != nil {
		return nil, err
	}

	var (
		version int64
		doc     string
	)
	err = s.db.QueryRowContext(ctx, `
SELECT version, doc
FROM conversation_threads
WHERE thread_key = ?
`, key).Scan(&version, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	return decodeThread([]byte(doc), version)
}

func (s *SQLiteStore) CompareAndSave(ctx context.Context, th *ConversationThread, expectedVersion int64) (int64, error) {
	key, payload, next, err := prepareForSave(th, expectedVersion)
	if err != nil {
		return 0, err
	}
	updatedAt := time.Now().UnixMilli()

	var res sql.Result
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx, `
INSERT INTO conversation_threads(thread_key, version, doc, updated_at_unix_ms)
VALUES(?, ?, ?, ?)
ON CONFLICT(thread_key) DO NOTHING
`, key, next, string(payload), updatedAt)
	} else {
		res, err = s.db.ExecContext(ctx, `
UPDATE conversation_threads
SET version = ?, doc = ?, updated_at_unix_ms = ?
WHERE thread_key = ? AND version = ?
`, next, string(payload), updatedAt, key, expectedVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("save thread: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("save thread: %w", err)
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}
	return next, nil
}

func (s *SQLiteStore) AppendCheckpoints(ctx context.Context, threadKey string, cps []Checkpoint) error {
	key, err := validateKey(threadKey)
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, cp := range cps {
		raw, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("marshal checkpoint: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO thread_checkpoints(checkpoint_id, thread_key, version, iteration, kind, checkpoint_json, created_at_unix_ms)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(checkpoint_id) DO NOTHING
`, cp.ID, key, cp.Version, cp.Iteration, string(cp.Kind), string(raw), cp.At.UnixMilli()); err != nil {
			return fmt.Errorf("insert checkpoint: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
DELETE FROM thread_checkpoints
WHERE thread_key = ? AND id NOT IN (
  SELECT id FROM thread_checkpoints WHERE thread_key = ? ORDER BY id DESC LIMIT ?
)
`, key, key, defaultCheckpointRetention); err != nil {
		return fmt.Errorf("prune checkpoints: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListCheckpoints(ctx context.Context, threadKey string, limit int) ([]Checkpoint, error) {
	key, err := validateKey(threadKey)
	if err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)

	rows, err := s.db.QueryContext(ctx, `
SELECT checkpoint_json FROM (
  SELECT id, checkpoint_json FROM thread_checkpoints
  WHERE thread_key = ?
  ORDER BY id DESC
  LIMIT ?
) ORDER BY id ASC
`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var cp Checkpoint
		if err := json.Unmarshal([]byte(raw), &cp); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func initSQLiteSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return migrateSQLiteSchema(db)
}

func migrateSQLiteSchema(db *sql.DB) error {
	const targetVersion = 1

	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS conversation_threads (
  thread_key TEXT PRIMARY KEY,
  version INTEGER NOT NULL,
  doc TEXT NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS thread_checkpoints (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  checkpoint_id TEXT NOT NULL UNIQUE,
  thread_key TEXT NOT NULL,
  version INTEGER NOT NULL,
  iteration INTEGER NOT NULL,
  kind TEXT NOT NULL,
  checkpoint_json TEXT NOT NULL,
  created_at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_thread_checkpoints_thread ON thread_checkpoints(thread_key, id DESC);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, targetVersion)); err != nil {
		return err
	}
	return tx.Commit()
}
