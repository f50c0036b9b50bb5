package partition

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteBackend is a durable Backend backed by a local SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the database at path and prepares the
// schema. The returned backend must be closed when no longer needed.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS partitions (
			name TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			partition TEXT NOT NULL,
			key TEXT NOT NULL,
			body BLOB NOT NULL,
			status INTEGER NOT NULL,
			header TEXT NOT NULL,
			stored_at INTEGER NOT NULL,
			PRIMARY KEY (partition, key)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare schema: %w", err)
		}
	}

	return &SQLiteBackend{db: db}, nil
}

// Close closes the underlying database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Open creates the named partition row if absent.
func (b *SQLiteBackend) Open(ctx context.Context, name string) error {
	_, err := b.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO partitions (name) VALUES (?)", name)
	if err != nil {
		return fmt.Errorf("insert partition: %w", err)
	}
	return nil
}

// Get returns the entry stored under key, or ErrMiss.
func (b *SQLiteBackend) Get(ctx context.Context, name, key string) (*Entry, error) {
	var (
		body     []byte
		status   int
		header   string
		storedAt int64
	)
	err := b.db.QueryRowContext(ctx,
		"SELECT body, status, header, stored_at FROM entries WHERE partition = ? AND key = ?",
		name, key).Scan(&body, &status, &header, &storedAt)
	if err == sql.ErrNoRows {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("select entry: %w", err)
	}

	var hdr http.Header
	if err := json.Unmarshal([]byte(header), &hdr); err != nil {
		return nil, fmt.Errorf("unmarshal entry header: %w", err)
	}

	return &Entry{
		Body:       body,
		StatusCode: status,
		Header:     hdr,
		StoredAt:   time.Unix(storedAt, 0),
	}, nil
}

// Put stores the entry under key, registering the partition name as well.
func (b *SQLiteBackend) Put(ctx context.Context, name, key string, entry *Entry) error {
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("marshal entry header: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO partitions (name) VALUES (?)", name); err != nil {
		return fmt.Errorf("insert partition: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO entries (partition, key, body, status, header, stored_at) VALUES (?, ?, ?, ?, ?, ?)",
		name, key, entry.Body, entry.StatusCode, string(header), entry.StoredAt.Unix()); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Names lists all partition names in sorted order.
func (b *SQLiteBackend) Names(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT name FROM partitions ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("select partitions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan partition name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partitions: %w", err)
	}
	return names, nil
}

// Drop deletes the named partition and all its entries.
func (b *SQLiteBackend) Drop(ctx context.Context, name string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM entries WHERE partition = ?", name); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM partitions WHERE name = ?", name); err != nil {
		return fmt.Errorf("delete partition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
