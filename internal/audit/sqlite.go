package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filesafe/internal/atomic"
	"filesafe/shared/types"

	_ "github.com/mattn/go-sqlite3"
)

// Schema version tracking:
// 1 - events table with path and timestamp indexes
const currentSchemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS events (
	id             TEXT PRIMARY KEY,
	ts             INTEGER NOT NULL,
	kind           TEXT NOT NULL,
	path           TEXT NOT NULL,
	digest         TEXT NOT NULL DEFAULT '',
	backup_id      TEXT NOT NULL DEFAULT '',
	transaction_id TEXT NOT NULL DEFAULT '',
	size           INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_events_path ON events(path);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
`

// SQLiteLog stores events in a SQLite database in WAL mode.
type SQLiteLog struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteLog, error) {
	if path == "" {
		return nil, fmt.Errorf("audit database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), atomic.DirPerm); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteLog{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Store inserts event. Storing the same ID twice is a no-op.
func (l *SQLiteLog) Store(ctx context.Context, event Event) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO events
		(id, ts, kind, path, digest, backup_id, transaction_id, size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		event.ID,
		event.Timestamp.UnixNano(),
		string(event.Kind),
		event.Path,
		event.Digest,
		event.BackupID,
		event.TransactionID,
		event.Size,
	)
	if err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	return nil
}

func (l *SQLiteLog) Retrieve(ctx context.Context, filter Filter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if filter.Path != "" {
		where = append(where, "path = ?")
		args = append(args, absPath(filter.Path))
	}
	if !filter.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, filter.Since.UnixNano())
	}

	query := "SELECT id, ts, kind, path, digest, backup_id, transaction_id, size FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("retrieve events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e    Event
			ts   int64
			kind string
		)
		if err := rows.Scan(&e.ID, &ts, &kind, &e.Path, &e.Digest, &e.BackupID, &e.TransactionID, &e.Size); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.Kind = shared.OperationKind(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retrieve events: %w", err)
	}
	return events, nil
}

func (l *SQLiteLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func (l *SQLiteLog) Delete(ctx context.Context, id string) error {
	res, err := l.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return nil
}

func (l *SQLiteLog) Maintenance(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	res, err := l.db.ExecContext(ctx, "DELETE FROM events WHERE ts < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire events: %w", err)
	}
	return int(n), nil
}

func (l *SQLiteLog) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}
