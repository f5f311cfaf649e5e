// Package sqlite implements the durable job and session state store on an
// embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/core"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store implements core.StateStore. All access goes through a single
// connection, so Update's read-modify-write is serialized.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the state database at path and migrates it.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	return get(ctx, s.db, bucket, key)
}

func (s *Store) Put(ctx context.Context, bucket, key string, value []byte) error {
	return put(ctx, s.db, bucket, key, value)
}

func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE bucket = ? AND key = ?`, bucket, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Scan visits keys in sorted order. Rows are read fully before fn is called,
// so fn may write to the store.
func (s *Store) Scan(ctx context.Context, bucket string, fn func(key string, value []byte) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE bucket = ? ORDER BY key`, bucket)
	if err != nil {
		return fmt.Errorf("scan %s: %w", bucket, err)
	}

	type entry struct {
		key   string
		value []byte
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.key, &e.value); err != nil {
			rows.Close()
			return fmt.Errorf("scan %s: %w", bucket, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("scan %s: %w", bucket, err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", bucket, err)
	}

	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

// Update runs the read-modify-write inside one transaction.
func (s *Store) Update(ctx context.Context, bucket, key string, fn func(current []byte) ([]byte, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := get(ctx, tx, bucket, key)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if err := put(ctx, tx, bucket, key, next); err != nil {
		return err
	}
	return tx.Commit()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q querier, bucket, key string) ([]byte, error) {
	var value []byte
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE bucket = ? AND key = ?`, bucket, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return value, nil
}

func put(ctx context.Context, q querier, bucket, key string, value []byte) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO kv (bucket, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (bucket, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		bucket, key, value)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}
