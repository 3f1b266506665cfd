package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id               TEXT PRIMARY KEY,
		title            TEXT,
		author           TEXT,
		shelf_location   TEXT NOT NULL DEFAULT 'Unknown',
		layer_number     INTEGER NOT NULL DEFAULT 0,
		total_copies     INTEGER NOT NULL DEFAULT 0,
		copies_available INTEGER NOT NULL DEFAULT 0,
		category         TEXT NOT NULL DEFAULT '[]',
		department       TEXT NOT NULL DEFAULT '[]',
		publisher        TEXT,
		year             TEXT,
		isbn             TEXT,
		description      TEXT,
		version          INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_books_shelf ON books(shelf_location, layer_number);`,
	`CREATE TABLE IF NOT EXISTS reading_sessions (
		id                 TEXT PRIMARY KEY,
		student_number     TEXT NOT NULL,
		full_name          TEXT NOT NULL,
		section            TEXT NOT NULL,
		year_level         TEXT NOT NULL,
		department         TEXT NOT NULL,
		book_id            TEXT REFERENCES books(id),
		book_title         TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL,
		timestamp          TEXT NOT NULL,
		finished_timestamp TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_student ON reading_sessions(UPPER(TRIM(student_number)));`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_timestamp ON reading_sessions(timestamp);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id               TEXT PRIMARY KEY,
		seq              BIGSERIAL,
		title            TEXT,
		author           TEXT,
		shelf_location   TEXT NOT NULL DEFAULT 'Unknown',
		layer_number     INTEGER NOT NULL DEFAULT 0,
		total_copies     INTEGER NOT NULL DEFAULT 0 CHECK (total_copies >= 0),
		copies_available INTEGER NOT NULL DEFAULT 0
		                 CHECK (copies_available >= 0 AND copies_available <= total_copies),
		category         TEXT[] NOT NULL DEFAULT '{}',
		department       TEXT[] NOT NULL DEFAULT '{}',
		publisher        TEXT,
		year             TEXT,
		isbn             TEXT,
		description      TEXT,
		version          BIGINT NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_books_shelf ON books(shelf_location, layer_number);`,
	`CREATE TABLE IF NOT EXISTS reading_sessions (
		id                 TEXT PRIMARY KEY,
		student_number     TEXT NOT NULL,
		full_name          TEXT NOT NULL,
		section            TEXT NOT NULL,
		year_level         TEXT NOT NULL,
		department         TEXT NOT NULL,
		book_id            TEXT REFERENCES books(id),
		book_title         TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL,
		"timestamp"        TIMESTAMPTZ NOT NULL,
		finished_timestamp TIMESTAMPTZ
	);`,
	`ALTER TABLE reading_sessions ADD COLUMN IF NOT EXISTS seq BIGSERIAL;`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_student ON reading_sessions(UPPER(TRIM(student_number)));`,
}

// MigrateSQLite creates the SQLite tables if they do not exist.
func MigrateSQLite(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range sqliteSchema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return tx.Commit()
}

// MigratePostgres creates the PostgreSQL tables if they do not exist.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range postgresSchema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return tx.Commit(ctx)
}
