// Package ledger is the single write path for a book's available-copy count.
//
// Every change is a read-decide-write cycle against the catalog store:
// the ledger reads the book and its version, computes the next count, and
// writes it back only if the version is unchanged. A conflicting write
// from another client makes the cycle start over with fresh data, so
// concurrent readers can never push the count below zero or above the
// number of copies owned.
//
//	l, _ := ledger.New(catalog, ledger.WithLogger(logger))
//	book, err := l.ReserveCopy(ctx, bookID)
//	if errors.Is(err, ledger.ErrNoCopiesAvailable) {
//		// all copies are being read
//	}
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/library-availability/internal/model"
	"github.com/Shivanand-hulikatti/library-availability/internal/repository"
)

// ErrNoCopiesAvailable is returned when every copy of a book is out.
var ErrNoCopiesAvailable = errors.New("no copies available")

// ErrNilCatalog is returned when New is called without a store.
var ErrNilCatalog = errors.New("catalog store must not be nil")

// Logger is the logging surface the ledger needs; *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Store is the part of the catalog store the ledger reads and writes.
type Store interface {
	GetByID(ctx context.Context, id string) (*model.Book, error)
	WriteCopiesAvailable(ctx context.Context, id string, expectedVersion int64, newValue int) (*model.Book, error)
}

// Ledger applies reserve/release transitions to copy counts.
type Ledger struct {
	store  Store
	logger Logger
	retry  retryConfig
}

// New constructs a Ledger over store.
func New(store Store, options ...Option) (*Ledger, error) {
	if store == nil {
		return nil, ErrNilCatalog
	}
	l := &Ledger{store: store, logger: nopLogger{}, retry: defaultRetryConfig()}
	for _, option := range options {
		if err := option(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Normalize clamps a book's counts into 0 <= available <= total.
func Normalize(b model.Book) (available, total int) {
	total = max(b.TotalCopies, 0)
	available = min(max(b.CopiesAvailable, 0), total)
	return available, total
}

// ReserveCopy takes one copy of the book off the shelf.
func (l *Ledger) ReserveCopy(ctx context.Context, bookID string) (*model.Book, error) {
	return l.apply(ctx, "reserve", bookID, func(available, _ int) (int, error) {
		if available < 1 {
			return 0, ErrNoCopiesAvailable
		}
		return available - 1, nil
	})
}

// ReleaseCopy puts one copy back. The count saturates at the total, so a
// duplicate release leaves the book unchanged instead of failing.
func (l *Ledger) ReleaseCopy(ctx context.Context, bookID string) (*model.Book, error) {
	return l.apply(ctx, "release", bookID, func(available, total int) (int, error) {
		return min(available+1, total), nil
	})
}

func (l *Ledger) apply(
	ctx context.Context,
	op string,
	bookID string,
	decide func(available, total int) (int, error),
) (*model.Book, error) {
	var result *model.Book

	attempts, err := retry(ctx, l.retry, func(ctx context.Context) error {
		book, err := l.store.GetByID(ctx, bookID)
		if err != nil {
			return err
		}

		available, total := Normalize(*book)
		next, err := decide(available, total)
		if err != nil {
			return err
		}
		if next == book.CopiesAvailable {
			result = book
			return nil
		}

		updated, err := l.store.WriteCopiesAvailable(ctx, bookID, book.Version, next)
		if err != nil {
			if errors.Is(err, repository.ErrConcurrencyConflict) {
				l.logger.Debug("copy count changed concurrently, retrying",
					"op", op, "book_id", bookID, "version", book.Version)
			}
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrConcurrencyConflict) {
			l.logger.Warn("giving up on contended copy count",
				"op", op, "book_id", bookID, "attempts", attempts)
		}
		if errors.Is(err, ErrNoCopiesAvailable) || errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s copy of %s: %w", op, bookID, err)
	}

	l.logger.Info("copy count updated",
		"op", op, "book_id", bookID,
		"copies_available", result.CopiesAvailable, "total_copies", result.TotalCopies,
		"attempts", attempts)
	return result, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
