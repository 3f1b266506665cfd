package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect registration
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"github.com/Shivanand-hulikatti/library-availability/internal/model"
)

const (
	dialectSQLite = "sqlite3"
	tableBooks    = "books"
	tableSessions = "reading_sessions"

	// Fixed width so that lexical order equals chronological order.
	sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

var (
	bookColumns = []any{
		"id", "title", "author", "shelf_location", "layer_number",
		"total_copies", "copies_available", "category", "department",
		"publisher", "year", "isbn", "description", "version",
	}
	sessionColumns = []any{
		"id", "student_number", "full_name", "section", "year_level", "department",
		"book_id", "book_title", "status", "timestamp", "finished_timestamp",
	}
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// bookRow mirrors the books table. Counts and layers are scanned loosely
// because SQLite does not enforce column types.
type bookRow struct {
	ID              string         `db:"id"`
	Title           sql.NullString `db:"title"`
	Author          sql.NullString `db:"author"`
	ShelfLocation   sql.NullString `db:"shelf_location"`
	LayerNumber     any            `db:"layer_number"`
	TotalCopies     any            `db:"total_copies"`
	CopiesAvailable any            `db:"copies_available"`
	Category        sql.NullString `db:"category"`
	Department      sql.NullString `db:"department"`
	Publisher       sql.NullString `db:"publisher"`
	Year            sql.NullString `db:"year"`
	ISBN            sql.NullString `db:"isbn"`
	Description     sql.NullString `db:"description"`
	Version         int64          `db:"version"`
}

func (r bookRow) toModel() model.Book {
	return model.Book{
		ID:              r.ID,
		Title:           r.Title.String,
		Author:          r.Author.String,
		ShelfLocation:   r.ShelfLocation.String,
		LayerNumber:     model.ParseLayer(r.LayerNumber),
		TotalCopies:     model.Count(r.TotalCopies),
		CopiesAvailable: model.Count(r.CopiesAvailable),
		Category:        decodeTags(r.Category),
		Department:      decodeTags(r.Department),
		Publisher:       r.Publisher.String,
		Year:            r.Year.String,
		ISBN:            r.ISBN.String,
		Description:     r.Description.String,
		Version:         r.Version,
	}
}

// decodeTags accepts a JSON array or a bare string.
func decodeTags(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var tags []string
	if err := json.UnmarshalFromString(s.String, &tags); err != nil {
		return []string{s.String}
	}
	return tags
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	s, err := json.MarshalToString(tags)
	if err != nil {
		return "[]"
	}
	return s
}

type sessionRow struct {
	ID                string         `db:"id"`
	StudentNumber     string         `db:"student_number"`
	FullName          string         `db:"full_name"`
	Section           string         `db:"section"`
	YearLevel         string         `db:"year_level"`
	Department        string         `db:"department"`
	BookID            sql.NullString `db:"book_id"`
	BookTitle         string         `db:"book_title"`
	Status            string         `db:"status"`
	Timestamp         string         `db:"timestamp"`
	FinishedTimestamp sql.NullString `db:"finished_timestamp"`
}

func (r sessionRow) toModel() (model.ReadingSession, error) {
	rs := model.ReadingSession{
		ID: r.ID,
		Profile: model.Profile{
			FullName:      r.FullName,
			Section:       r.Section,
			YearLevel:     r.YearLevel,
			Department:    r.Department,
			StudentNumber: r.StudentNumber,
		},
		BookID:    r.BookID.String,
		BookTitle: r.BookTitle,
		Status:    model.SessionStatus(r.Status),
	}
	ts, err := time.Parse(sqliteTimeLayout, r.Timestamp)
	if err != nil {
		return rs, fmt.Errorf("%w: parse timestamp of session %s: %w", ErrStore, r.ID, err)
	}
	rs.Timestamp = ts
	if r.FinishedTimestamp.Valid && r.FinishedTimestamp.String != "" {
		fin, err := time.Parse(sqliteTimeLayout, r.FinishedTimestamp.String)
		if err != nil {
			return rs, fmt.Errorf("%w: parse finished timestamp of session %s: %w", ErrStore, r.ID, err)
		}
		rs.FinishedTimestamp = &fin
	}
	return rs, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

// SQLiteCatalog is a CatalogStore backed by SQLite through sqlx.
type SQLiteCatalog struct {
	*Feed
	db *sqlx.DB
	qb goqu.DialectWrapper
}

// NewSQLiteCatalog constructs a SQLiteCatalog.
func NewSQLiteCatalog(db *sqlx.DB, opts ...FeedOption) *SQLiteCatalog {
	return &SQLiteCatalog{Feed: NewFeed(opts...), db: db, qb: goqu.Dialect(dialectSQLite)}
}

// GetAll returns every book in insertion order.
func (c *SQLiteCatalog) GetAll(ctx context.Context) ([]model.Book, error) {
	query, args, err := c.qb.From(tableBooks).
		Select(bookColumns...).
		Order(goqu.I("rowid").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("%w: build list books: %w", ErrStore, err)
	}

	var rows []bookRow
	if err := c.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%w: list books: %w", ErrStore, err)
	}
	books := make([]model.Book, 0, len(rows))
	for _, r := range rows {
		books = append(books, r.toModel())
	}
	return books, nil
}

// GetByID returns a single book or ErrNotFound.
func (c *SQLiteCatalog) GetByID(ctx context.Context, id string) (*model.Book, error) {
	query, args, err := c.qb.From(tableBooks).
		Select(bookColumns...).
		Where(goqu.Ex{"id": id}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("%w: build get book: %w", ErrStore, err)
	}

	var r bookRow
	if err := c.db.GetContext(ctx, &r, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get book: %w", ErrStore, err)
	}
	b := r.toModel()
	return &b, nil
}

// WriteCopiesAvailable performs a version-checked update of copies_available.
func (c *SQLiteCatalog) WriteCopiesAvailable(ctx context.Context, id string, expectedVersion int64, newValue int) (*model.Book, error) {
	query, args, err := c.qb.Update(tableBooks).
		Set(goqu.Record{
			"copies_available": newValue,
			"version":          goqu.L("version + 1"),
		}).
		Where(goqu.Ex{"id": id, "version": expectedVersion}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("%w: build write copies: %w", ErrStore, err)
	}

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: write copies: %w", ErrStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: rows affected: %w", ErrStore, err)
	}
	if n == 0 {
		if _, getErr := c.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrConcurrencyConflict
	}

	book, err := c.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// The write is committed; a failed snapshot is logged by the feed.
	_ = c.Refresh(ctx)
	return book, nil
}

// Upsert inserts new books and updates the catalog fields of known ones.
// Existing rows keep their available count, clamped to the new total.
func (c *SQLiteCatalog) Upsert(ctx context.Context, books []model.Book) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin import: %w", ErrStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO books (id, title, author, shelf_location, layer_number, total_copies,
		                   copies_available, category, department, publisher, year, isbn, description)
		VALUES (:id, :title, :author, :shelf_location, :layer_number, :total_copies,
		        :copies_available, :category, :department, :publisher, :year, :isbn, :description)
		ON CONFLICT(id) DO UPDATE SET
		  title = excluded.title, author = excluded.author,
		  shelf_location = excluded.shelf_location, layer_number = excluded.layer_number,
		  total_copies = excluded.total_copies,
		  copies_available = MIN(books.copies_available, excluded.total_copies),
		  category = excluded.category, department = excluded.department,
		  publisher = excluded.publisher, year = excluded.year, isbn = excluded.isbn,
		  description = excluded.description,
		  version = CASE
		    WHEN books.total_copies IS NOT excluded.total_copies
		      OR books.copies_available > excluded.total_copies
		    THEN books.version + 1 ELSE books.version END`)
	if err != nil {
		return fmt.Errorf("%w: prepare import: %w", ErrStore, err)
	}
	defer stmt.Close()

	for _, b := range books {
		if b.ID == "" {
			b.ID = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, map[string]any{
			"id":               b.ID,
			"title":            b.Title,
			"author":           b.Author,
			"shelf_location":   b.Shelf(),
			"layer_number":     int(b.LayerNumber),
			"total_copies":     b.TotalCopies,
			"copies_available": b.CopiesAvailable,
			"category":         encodeTags(b.Category),
			"department":       encodeTags(b.Department),
			"publisher":        b.Publisher,
			"year":             b.Year,
			"isbn":             b.ISBN,
			"description":      b.Description,
		}); err != nil {
			return fmt.Errorf("%w: import book %q: %w", ErrStore, b.Title, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit import: %w", ErrStore, err)
	}
	_ = c.Refresh(ctx)
	return nil
}

// Refresh publishes the current catalog to every subscriber.
func (c *SQLiteCatalog) Refresh(ctx context.Context) error {
	return c.Broadcast(ctx, c.GetAll)
}

// SQLiteSessions is a SessionStore backed by SQLite through sqlx.
type SQLiteSessions struct {
	db *sqlx.DB
	qb goqu.DialectWrapper
}

// NewSQLiteSessions constructs a SQLiteSessions.
func NewSQLiteSessions(db *sqlx.DB) *SQLiteSessions {
	return &SQLiteSessions{db: db, qb: goqu.Dialect(dialectSQLite)}
}

// Create inserts a session, assigning an id when missing.
func (s *SQLiteSessions) Create(ctx context.Context, rs *model.ReadingSession) error {
	if rs.ID == "" {
		rs.ID = uuid.New().String()
	}
	rec := goqu.Record{
		"id":                 rs.ID,
		"student_number":     rs.StudentNumber,
		"full_name":          rs.FullName,
		"section":            rs.Section,
		"year_level":         rs.YearLevel,
		"department":         rs.Department,
		"book_id":            nullable(rs.BookID),
		"book_title":         rs.BookTitle,
		"status":             string(rs.Status),
		"timestamp":          formatTime(rs.Timestamp),
		"finished_timestamp": nil,
	}
	if rs.FinishedTimestamp != nil {
		rec["finished_timestamp"] = formatTime(*rs.FinishedTimestamp)
	}

	query, args, err := s.qb.Insert(tableSessions).Rows(rec).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("%w: build insert session: %w", ErrStore, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: insert session: %w", ErrStore, err)
	}
	return nil
}

// GetByID returns one session or ErrNotFound.
func (s *SQLiteSessions) GetByID(ctx context.Context, id string) (*model.ReadingSession, error) {
	rows, err := s.list(ctx, s.qb.From(tableSessions).Where(goqu.Ex{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// GetAll returns all sessions, newest first.
func (s *SQLiteSessions) GetAll(ctx context.Context) ([]model.ReadingSession, error) {
	return s.list(ctx, s.qb.From(tableSessions))
}

// Query matches student numbers case- and whitespace-insensitively.
func (s *SQLiteSessions) Query(ctx context.Context, studentNumber string) ([]model.ReadingSession, error) {
	key := model.NormalizeStudentNumber(studentNumber)
	return s.list(ctx, s.qb.From(tableSessions).
		Where(goqu.L("UPPER(TRIM(student_number))").Eq(key)))
}

func (s *SQLiteSessions) list(ctx context.Context, ds *goqu.SelectDataset) ([]model.ReadingSession, error) {
	query, args, err := ds.Select(sessionColumns...).
		Order(goqu.I("timestamp").Desc(), goqu.I("rowid").Desc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("%w: build list sessions: %w", ErrStore, err)
	}

	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", ErrStore, err)
	}
	out := make([]model.ReadingSession, 0, len(rows))
	for _, r := range rows {
		rs, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, nil
}

// Update applies patch only while the stored status equals patch.From.
func (s *SQLiteSessions) Update(ctx context.Context, id string, patch model.SessionPatch) error {
	rec := goqu.Record{"status": string(patch.Status), "finished_timestamp": nil}
	if patch.FinishedAt != nil {
		rec["finished_timestamp"] = formatTime(*patch.FinishedAt)
	}
	query, args, err := s.qb.Update(tableSessions).
		Set(rec).
		Where(goqu.Ex{"id": id, "status": string(patch.From)}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("%w: build update session: %w", ErrStore, err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: update session: %w", ErrStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", ErrStore, err)
	}
	if n == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrConcurrencyConflict
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
