// Package service implements the reading-session lifecycle and keeps it
// consistent with the availability ledger.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/library-availability/internal/ledger"
	"github.com/Shivanand-hulikatti/library-availability/internal/model"
	"github.com/Shivanand-hulikatti/library-availability/internal/repository"
)

var (
	// ErrIncompleteProfile is returned when a required profile field is empty.
	ErrIncompleteProfile = errors.New("incomplete profile")

	// ErrEmptyQuery is returned when a student number lookup is blank.
	ErrEmptyQuery = errors.New("student number is required")

	// ErrAlreadyFinished is returned when finishing a session that is not open.
	ErrAlreadyFinished = errors.New("session already finished")

	// ErrBookNotFound is returned when a session's book cannot be resolved.
	ErrBookNotFound = errors.New("book not found")
)

// Ledger is the availability ledger as seen by the session manager.
type Ledger interface {
	ReserveCopy(ctx context.Context, bookID string) (*model.Book, error)
	ReleaseCopy(ctx context.Context, bookID string) (*model.Book, error)
}

// Catalog resolves books by id or title.
type Catalog interface {
	GetAll(ctx context.Context) ([]model.Book, error)
	GetByID(ctx context.Context, id string) (*model.Book, error)
}

// SessionService orchestrates start/finish reading transitions.
type SessionService struct {
	ledger   Ledger
	catalog  Catalog
	sessions repository.SessionStore
	logger   ledger.Logger
	now      func() time.Time
}

// NewSessionService constructs a SessionService with its dependencies.
func NewSessionService(
	l Ledger,
	catalog Catalog,
	sessions repository.SessionStore,
	logger ledger.Logger,
) *SessionService {
	return &SessionService{
		ledger:   l,
		catalog:  catalog,
		sessions: sessions,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartReading validates the profile, reserves a copy of the book and opens
// a session for it.
func (s *SessionService) StartReading(ctx context.Context, bookID string, profile model.Profile) (*model.ReadingSession, error) {
	if missing := profile.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrIncompleteProfile, strings.Join(missing, ", "))
	}
	profile = normalizeProfile(profile)

	book, err := s.ledger.ReserveCopy(ctx, bookID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}

	session := &model.ReadingSession{
		Profile:   profile,
		BookID:    book.ID,
		BookTitle: book.Title,
		Status:    model.StatusReading,
		Timestamp: s.now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		// Put the copy back so the failed start leaves no trace.
		if _, relErr := s.ledger.ReleaseCopy(ctx, book.ID); relErr != nil {
			s.logger.Error("could not return copy after failed session write",
				"book_id", book.ID, "error", relErr)
			return nil, errors.Join(fmt.Errorf("create session: %w", err), relErr)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("reading session started",
		"session_id", session.ID, "book_id", book.ID, "student_number", profile.StudentNumber)
	return session, nil
}

// FindOpenSessions returns the student's sessions that are still Reading.
func (s *SessionService) FindOpenSessions(ctx context.Context, studentNumber string) ([]model.ReadingSession, error) {
	key := model.NormalizeStudentNumber(studentNumber)
	if key == "" {
		return nil, ErrEmptyQuery
	}
	all, err := s.sessions.Query(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	open := make([]model.ReadingSession, 0, len(all))
	for _, rs := range all {
		if rs.Open() {
			open = append(open, rs)
		}
	}
	return open, nil
}

// FinishReading closes an open session and returns its copy to the shelf.
func (s *SessionService) FinishReading(ctx context.Context, sessionID string) (*model.ReadingSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Open() {
		return nil, ErrAlreadyFinished
	}

	book, err := s.resolveBook(ctx, session)
	if err != nil {
		return nil, err
	}

	finishedAt := s.now()
	err = s.sessions.Update(ctx, session.ID, model.SessionPatch{
		From:       model.StatusReading,
		Status:     model.StatusDoneReading,
		FinishedAt: &finishedAt,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConcurrencyConflict) {
			return nil, ErrAlreadyFinished
		}
		return nil, fmt.Errorf("close session: %w", err)
	}

	if _, err := s.ledger.ReleaseCopy(ctx, book.ID); err != nil {
		rollbackErr := s.sessions.Update(ctx, session.ID, model.SessionPatch{
			From:   model.StatusDoneReading,
			Status: model.StatusReading,
		})
		if rollbackErr != nil {
			s.logger.Error("could not reopen session after failed release",
				"session_id", session.ID, "book_id", book.ID, "error", rollbackErr)
			return nil, errors.Join(err, rollbackErr)
		}
		return nil, err
	}

	session.Status = model.StatusDoneReading
	session.FinishedTimestamp = &finishedAt
	s.logger.Info("reading session finished",
		"session_id", session.ID, "book_id", book.ID, "student_number", session.StudentNumber)
	return session, nil
}

// resolveBook finds the session's book by id, falling back to an exact
// title match for records written before book ids were stored.
func (s *SessionService) resolveBook(ctx context.Context, session *model.ReadingSession) (*model.Book, error) {
	if session.BookID != "" {
		book, err := s.catalog.GetByID(ctx, session.BookID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrBookNotFound
			}
			return nil, fmt.Errorf("resolve book: %w", err)
		}
		return book, nil
	}

	books, err := s.catalog.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve book: %w", err)
	}
	for i := range books {
		if books[i].Title == session.BookTitle {
			if i+1 < len(books) && hasTitle(books[i+1:], session.BookTitle) {
				s.logger.Warn("session title matches several books, using the first",
					"session_id", session.ID, "book_title", session.BookTitle)
			}
			return &books[i], nil
		}
	}
	return nil, ErrBookNotFound
}

func hasTitle(books []model.Book, title string) bool {
	for i := range books {
		if books[i].Title == title {
			return true
		}
	}
	return false
}

// AutofillProfile returns the profile cached on the student's most recent
// session, if any.
func (s *SessionService) AutofillProfile(ctx context.Context, studentNumber string) (*model.Profile, error) {
	key := model.NormalizeStudentNumber(studentNumber)
	if key == "" {
		return nil, nil
	}
	sessions, err := s.sessions.Query(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	p := sessions[0].Profile
	p.StudentNumber = key
	return &p, nil
}

// StudentExists reports whether the student has any session on record.
func (s *SessionService) StudentExists(ctx context.Context, studentNumber string) (bool, error) {
	key := model.NormalizeStudentNumber(studentNumber)
	if key == "" {
		return false, nil
	}
	sessions, err := s.sessions.Query(ctx, key)
	if err != nil {
		return false, fmt.Errorf("query sessions: %w", err)
	}
	return len(sessions) > 0, nil
}

func normalizeProfile(p model.Profile) model.Profile {
	return model.Profile{
		FullName:      strings.TrimSpace(p.FullName),
		Section:       strings.TrimSpace(p.Section),
		YearLevel:     strings.TrimSpace(p.YearLevel),
		Department:    strings.TrimSpace(p.Department),
		StudentNumber: model.NormalizeStudentNumber(p.StudentNumber),
	}
}
