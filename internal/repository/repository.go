// Package repository implements the catalog and session stores the tracker
// reads from and writes to. PostgreSQL goes through pgx directly, SQLite
// through sqlx with goqu-built queries, and an in-memory store backs tests
// and the stateless mode.
package repository

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/library-availability/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConcurrencyConflict is returned when a conditional write found the
// record changed since it was read.
var ErrConcurrencyConflict = errors.New("concurrency conflict, record changed since read")

// ErrStore marks failures of the underlying storage (I/O, driver, decoding).
var ErrStore = errors.New("store error")

// CatalogStore is the system of record for books and their copy counts.
type CatalogStore interface {
	GetAll(ctx context.Context) ([]model.Book, error)
	GetByID(ctx context.Context, id string) (*model.Book, error)
	// WriteCopiesAvailable stores newValue only if the book's version still
	// equals expectedVersion, and bumps the version.
	WriteCopiesAvailable(ctx context.Context, id string, expectedVersion int64, newValue int) (*model.Book, error)
	// Subscribe delivers a snapshot after every change, in sequence order.
	Subscribe(fn func(Snapshot)) (unsubscribe func())
	// Refresh publishes the current catalog to every subscriber.
	Refresh(ctx context.Context) error
}

// SessionStore persists reading sessions.
type SessionStore interface {
	Create(ctx context.Context, s *model.ReadingSession) error
	GetByID(ctx context.Context, id string) (*model.ReadingSession, error)
	GetAll(ctx context.Context) ([]model.ReadingSession, error)
	// Query returns the sessions of one student, newest first.
	Query(ctx context.Context, studentNumber string) ([]model.ReadingSession, error)
	Update(ctx context.Context, id string, patch model.SessionPatch) error
}

// BookImporter loads catalog records. Only admin tooling uses it.
//
// A new book takes its copy counts from the record. An existing book keeps
// its available count (clamped to the new total) and its version unless the
// clamp or a changed total alters what the ledger would decide; then the
// version is bumped. Import never moves copies on or off the shelf.
type BookImporter interface {
	Upsert(ctx context.Context, books []model.Book) error
}
