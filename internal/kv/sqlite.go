package kv

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLite is a Store backed by a single-table SQLite database.
type SQLite struct {
	DB  *sqlx.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	// One writer keeps SQLITE_BUSY out of concurrent saves.
	db.SetMaxOpenConns(1)

	s := NewSQLite(db)
	if err := s.ApplyMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite wraps an existing connection without migrating it.
func NewSQLite(db *sqlx.DB) *SQLite {
	return &SQLite{DB: db, now: time.Now}
}

// ApplyMigrations brings the schema up to date.
func (s *SQLite) ApplyMigrations() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		return err
	}
	if err := goose.Up(s.DB.DB, "migrations"); err != nil {
		return fmt.Errorf("migrate storage: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.DB.GetContext(ctx, &value, "SELECT value FROM kv WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

const upsertQuery = `
	INSERT INTO kv (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT (key) DO UPDATE SET
	value = excluded.value,
	updated_at = excluded.updated_at
	`

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	if _, err := s.DB.ExecContext(ctx, upsertQuery, key, value, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) SetAll(ctx context.Context, entries map[string]string) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	now := s.now().UnixMilli()
	for k, v := range entries {
		if _, err := tx.ExecContext(ctx, upsertQuery, k, v, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	query, args, err := sqlx.In("DELETE FROM kv WHERE key IN (?)", keys)
	if err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, s.DB.Rebind(query), args...); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.DB.Close()
}
