package repository

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/library-availability/internal/model"
)

// BooksChangedChannel is the NOTIFY channel raised on every copy-count write.
const BooksChangedChannel = "books_changed"

const selectBooks = `
	SELECT id, title, author, shelf_location, layer_number, total_copies,
	       copies_available, category, department, publisher, year, isbn,
	       description, version
	FROM books`

const selectSessions = `
	SELECT id, student_number, full_name, section, year_level, department,
	       book_id, book_title, status, "timestamp", finished_timestamp
	FROM reading_sessions`

// PostgresCatalog is a CatalogStore backed by PostgreSQL.
type PostgresCatalog struct {
	*Feed
	db *pgxpool.Pool

	// listening is set while Listen runs; writes then leave publishing to
	// the notification so each change is delivered once.
	listening atomic.Bool
}

// NewPostgresCatalog constructs a PostgresCatalog.
func NewPostgresCatalog(db *pgxpool.Pool, opts ...FeedOption) *PostgresCatalog {
	return &PostgresCatalog{Feed: NewFeed(opts...), db: db}
}

func scanBook(row pgx.Row) (model.Book, error) {
	var (
		b                            model.Book
		title, author, shelf         pgtype.Text
		publisher, year, isbn, descr pgtype.Text
		layer, total, available      pgtype.Int4
	)
	err := row.Scan(&b.ID, &title, &author, &shelf, &layer, &total, &available,
		&b.Category, &b.Department, &publisher, &year, &isbn, &descr, &b.Version)
	if err != nil {
		return b, err
	}
	b.Title = title.String
	b.Author = author.String
	b.ShelfLocation = shelf.String
	b.LayerNumber = model.ParseLayer(int(layer.Int32))
	b.TotalCopies = model.Count(int(total.Int32))
	b.CopiesAvailable = model.Count(int(available.Int32))
	b.Publisher = publisher.String
	b.Year = year.String
	b.ISBN = isbn.String
	b.Description = descr.String
	return b, nil
}

// GetAll returns every book in insertion order.
func (c *PostgresCatalog) GetAll(ctx context.Context) ([]model.Book, error) {
	rows, err := c.db.Query(ctx, selectBooks+` ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list books: %w", ErrStore, err)
	}
	defer rows.Close()

	var books []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan book: %w", ErrStore, err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list books: %w", ErrStore, err)
	}
	return books, nil
}

// GetByID returns a single book or ErrNotFound.
func (c *PostgresCatalog) GetByID(ctx context.Context, id string) (*model.Book, error) {
	b, err := scanBook(c.db.QueryRow(ctx, selectBooks+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get book: %w", ErrStore, err)
	}
	return &b, nil
}

// WriteCopiesAvailable stores the new count only if no other writer bumped
// the version since the caller read the book, and notifies listeners in the
// same transaction.
//
// Two clients reading version 7 both try:
//
//	UPDATE books SET copies_available = 2, version = 8 WHERE id = X AND version = 7
//
// The first commits and affects one row. The second affects zero rows and
// gets ErrConcurrencyConflict, so it re-reads and decides again instead of
// overwriting the first client's count.
func (c *PostgresCatalog) WriteCopiesAvailable(ctx context.Context, id string, expectedVersion int64, newValue int) (*model.Book, error) {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %w", ErrStore, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE books
		 SET copies_available = $1, version = version + 1
		 WHERE id = $2 AND version = $3`,
		newValue, id, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: write copies: %w", ErrStore, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM books WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("%w: check book: %w", ErrStore, err)
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrConcurrencyConflict
	}

	b, err := scanBook(tx.QueryRow(ctx, selectBooks+` WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%w: reload book: %w", ErrStore, err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, BooksChangedChannel, id); err != nil {
		return nil, fmt.Errorf("%w: notify: %w", ErrStore, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit transaction: %w", ErrStore, err)
	}

	c.afterWrite(ctx)
	return &b, nil
}

// Upsert inserts new books and updates the catalog fields of known ones in
// one batch. Existing rows keep their available count, clamped to the new
// total.
func (c *PostgresCatalog) Upsert(ctx context.Context, books []model.Book) error {
	batch := &pgx.Batch{}
	for _, b := range books {
		if b.ID == "" {
			b.ID = uuid.New().String()
		}
		batch.Queue(
			`INSERT INTO books (id, title, author, shelf_location, layer_number, total_copies,
			                    copies_available, category, department, publisher, year, isbn, description)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 ON CONFLICT (id) DO UPDATE SET
			   title = EXCLUDED.title, author = EXCLUDED.author,
			   shelf_location = EXCLUDED.shelf_location, layer_number = EXCLUDED.layer_number,
			   total_copies = EXCLUDED.total_copies,
			   copies_available = LEAST(books.copies_available, EXCLUDED.total_copies),
			   category = EXCLUDED.category, department = EXCLUDED.department,
			   publisher = EXCLUDED.publisher, year = EXCLUDED.year, isbn = EXCLUDED.isbn,
			   description = EXCLUDED.description,
			   version = CASE
			     WHEN books.total_copies <> EXCLUDED.total_copies
			       OR books.copies_available > EXCLUDED.total_copies
			     THEN books.version + 1 ELSE books.version END`,
			b.ID, b.Title, b.Author, b.Shelf(), int(b.LayerNumber), b.TotalCopies,
			b.CopiesAvailable, nonNil(b.Category), nonNil(b.Department),
			b.Publisher, b.Year, b.ISBN, b.Description,
		)
	}
	batch.Queue(`SELECT pg_notify($1, '')`, BooksChangedChannel)

	if err := c.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: import books: %w", ErrStore, err)
	}
	c.afterWrite(ctx)
	return nil
}

// Listen republishes the catalog whenever any client writes to it. It
// blocks until ctx is cancelled or the connection fails.
func (c *PostgresCatalog) Listen(ctx context.Context) error {
	conn, err := c.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire listener connection: %w", ErrStore, err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+BooksChangedChannel); err != nil {
		return fmt.Errorf("%w: listen: %w", ErrStore, err)
	}
	c.listening.Store(true)
	defer c.listening.Store(false)

	// Writes made before LISTEN took effect sent no notification here.
	_ = c.Refresh(ctx)

	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: wait for notification: %w", ErrStore, err)
		}
		_ = c.Refresh(ctx)
	}
}

// Refresh publishes the current catalog to every subscriber.
func (c *PostgresCatalog) Refresh(ctx context.Context) error {
	return c.Broadcast(ctx, c.GetAll)
}

// afterWrite publishes a committed write unless the listener will. Load
// failures are logged by the feed; the write itself already succeeded.
func (c *PostgresCatalog) afterWrite(ctx context.Context) {
	if c.listening.Load() {
		return
	}
	_ = c.Refresh(ctx)
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// PostgresSessions is a SessionStore backed by PostgreSQL.
type PostgresSessions struct {
	db *pgxpool.Pool
}

// NewPostgresSessions constructs a PostgresSessions.
func NewPostgresSessions(db *pgxpool.Pool) *PostgresSessions {
	return &PostgresSessions{db: db}
}

func scanSession(row pgx.Row) (model.ReadingSession, error) {
	var (
		rs       model.ReadingSession
		bookID   pgtype.Text
		status   string
		finished pgtype.Timestamptz
	)
	err := row.Scan(&rs.ID, &rs.StudentNumber, &rs.FullName, &rs.Section, &rs.YearLevel,
		&rs.Department, &bookID, &rs.BookTitle, &status, &rs.Timestamp, &finished)
	if err != nil {
		return rs, err
	}
	rs.BookID = bookID.String
	rs.Status = model.SessionStatus(status)
	if finished.Valid {
		t := finished.Time
		rs.FinishedTimestamp = &t
	}
	return rs, nil
}

// Create inserts a session, assigning an id when missing.
func (s *PostgresSessions) Create(ctx context.Context, rs *model.ReadingSession) error {
	if rs.ID == "" {
		rs.ID = uuid.New().String()
	}
	var bookID *string
	if rs.BookID != "" {
		bookID = &rs.BookID
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO reading_sessions (id, student_number, full_name, section, year_level,
		                               department, book_id, book_title, status, "timestamp", finished_timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rs.ID, rs.StudentNumber, rs.FullName, rs.Section, rs.YearLevel, rs.Department,
		bookID, rs.BookTitle, string(rs.Status), rs.Timestamp, rs.FinishedTimestamp,
	)
	if err != nil {
		return fmt.Errorf("%w: insert session: %w", ErrStore, err)
	}
	return nil
}

// GetByID returns one session or ErrNotFound.
func (s *PostgresSessions) GetByID(ctx context.Context, id string) (*model.ReadingSession, error) {
	rs, err := scanSession(s.db.QueryRow(ctx, selectSessions+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get session: %w", ErrStore, err)
	}
	return &rs, nil
}

// GetAll returns all sessions, newest first.
func (s *PostgresSessions) GetAll(ctx context.Context) ([]model.ReadingSession, error) {
	return s.list(ctx, selectSessions+` ORDER BY "timestamp" DESC, seq DESC`)
}

// Query matches student numbers case- and whitespace-insensitively.
func (s *PostgresSessions) Query(ctx context.Context, studentNumber string) ([]model.ReadingSession, error) {
	return s.list(ctx,
		selectSessions+` WHERE UPPER(TRIM(student_number)) = $1 ORDER BY "timestamp" DESC, seq DESC`,
		model.NormalizeStudentNumber(studentNumber),
	)
}

func (s *PostgresSessions) list(ctx context.Context, query string, args ...any) ([]model.ReadingSession, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", ErrStore, err)
	}
	defer rows.Close()

	var out []model.ReadingSession
	for rows.Next() {
		rs, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan session: %w", ErrStore, err)
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", ErrStore, err)
	}
	return out, nil
}

// Update applies patch only while the stored status equals patch.From.
func (s *PostgresSessions) Update(ctx context.Context, id string, patch model.SessionPatch) error {
	var finished *time.Time
	if patch.FinishedAt != nil {
		t := patch.FinishedAt.UTC()
		finished = &t
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE reading_sessions
		 SET status = $1, finished_timestamp = $2
		 WHERE id = $3 AND status = $4`,
		string(patch.Status), finished, id, string(patch.From),
	)
	if err != nil {
		return fmt.Errorf("%w: update session: %w", ErrStore, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrConcurrencyConflict
	}
	return nil
}
