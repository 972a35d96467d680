// Package sqlite provides a SQLite-backed storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Sternrassler/offline-cache/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS stores (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	store      TEXT NOT NULL REFERENCES stores(name) ON DELETE CASCADE,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (store, key)
);
`

// Storage persists named stores in a single SQLite database.
type Storage struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens (or creates) the database file and applies the schema.
func Open(path string) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Storage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database handle.
func (s *Storage) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Open registers the store and returns a handle to it.
func (s *Storage) Open(ctx context.Context, name string) (storage.Store, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO stores (name, created_at) VALUES (?, ?)`,
		name, toMillis(time.Now()))
	if err != nil {
		return nil, &storage.Error{Op: "open", Store: name, Err: err}
	}
	return &store{parent: s, name: name}, nil
}

// Names lists stores ordered by name.
func (s *Storage) Names(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM stores ORDER BY name`)
	if err != nil {
		return nil, &storage.Error{Op: "names", Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &storage.Error{Op: "names", Err: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.Error{Op: "names", Err: err}
	}
	return names, nil
}

// Delete removes the store; its entries go with it.
func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, &storage.Error{Op: "delete", Store: name, Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE store = ?`, name); err != nil {
		return false, &storage.Error{Op: "delete", Store: name, Err: err}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE name = ?`, name)
	if err != nil {
		return false, &storage.Error{Op: "delete", Store: name, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return false, &storage.Error{Op: "delete", Store: name, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &storage.Error{Op: "delete", Store: name, Err: err}
	}
	return n > 0, nil
}

type store struct {
	parent *Storage
	name   string
}

func (st *store) Name() string {
	return st.name
}

func (st *store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := st.parent.sqlDB.QueryRowContext(ctx,
		`SELECT value FROM entries WHERE store = ? AND key = ?`, st.name, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, &storage.Error{Op: "get", Store: st.name, Err: err}
	}
	return value, nil
}

func (st *store) Put(ctx context.Context, key string, value []byte) error {
	res, err := st.parent.sqlDB.ExecContext(ctx, `
		INSERT INTO entries (store, key, value, updated_at)
		SELECT ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM stores WHERE name = ?)
		ON CONFLICT (store, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		st.name, key, value, toMillis(time.Now()), st.name)
	if err != nil {
		return &storage.Error{Op: "put", Store: st.name, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &storage.Error{Op: "put", Store: st.name, Err: err}
	}
	if n == 0 {
		return &storage.Error{Op: "put", Store: st.name, Err: storage.ErrStoreDeleted}
	}
	return nil
}
