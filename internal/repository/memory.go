package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/library-availability/internal/model"
)

// MemoryCatalog is an in-process CatalogStore. Books keep insertion order.
type MemoryCatalog struct {
	*Feed

	mu    sync.RWMutex
	order []string
	books map[string]model.Book
}

// NewMemoryCatalog creates a catalog preloaded with books.
func NewMemoryCatalog(books ...model.Book) *MemoryCatalog {
	c := &MemoryCatalog{Feed: NewFeed(), books: make(map[string]model.Book)}
	c.put(books)
	return c
}

func (c *MemoryCatalog) put(books []model.Book) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range books {
		if b.ID == "" {
			b.ID = uuid.New().String()
		}
		b.ShelfLocation = b.Shelf()
		prev, ok := c.books[b.ID]
		if !ok {
			c.order = append(c.order, b.ID)
			c.books[b.ID] = b
			continue
		}
		b.CopiesAvailable = min(prev.CopiesAvailable, b.TotalCopies)
		b.Version = prev.Version
		if b.TotalCopies != prev.TotalCopies || b.CopiesAvailable != prev.CopiesAvailable {
			b.Version++
		}
		c.books[b.ID] = b
	}
}

// Upsert inserts new books and updates the catalog fields of known ones
// without touching the copies they have on loan.
func (c *MemoryCatalog) Upsert(ctx context.Context, books []model.Book) error {
	c.put(books)
	return c.Refresh(ctx)
}

func (c *MemoryCatalog) GetAll(_ context.Context) ([]model.Book, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Book, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.books[id])
	}
	return cloneBooks(out), nil
}

func (c *MemoryCatalog) GetByID(_ context.Context, id string) (*model.Book, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.books[id]
	if !ok {
		return nil, ErrNotFound
	}
	b = cloneBooks([]model.Book{b})[0]
	return &b, nil
}

func (c *MemoryCatalog) WriteCopiesAvailable(ctx context.Context, id string, expectedVersion int64, newValue int) (*model.Book, error) {
	c.mu.Lock()
	b, ok := c.books[id]
	if !ok {
		c.mu.Unlock()
		return nil, ErrNotFound
	}
	if b.Version != expectedVersion {
		c.mu.Unlock()
		return nil, ErrConcurrencyConflict
	}
	b.CopiesAvailable = newValue
	b.Version++
	c.books[id] = b
	c.mu.Unlock()

	_ = c.Refresh(ctx)
	return &b, nil
}

// Refresh publishes the current catalog to every subscriber.
func (c *MemoryCatalog) Refresh(ctx context.Context) error {
	return c.Broadcast(ctx, c.GetAll)
}

// MemorySessions is an in-process SessionStore.
type MemorySessions struct {
	mu       sync.RWMutex
	order    []string
	sessions map[string]model.ReadingSession
}

// NewMemorySessions creates an empty session store.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]model.ReadingSession)}
}

func (s *MemorySessions) Create(_ context.Context, rs *model.ReadingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rs.ID == "" {
		rs.ID = uuid.New().String()
	}
	if _, exists := s.sessions[rs.ID]; exists {
		return fmt.Errorf("%w: session %s already exists", ErrStore, rs.ID)
	}
	s.sessions[rs.ID] = *rs
	s.order = append(s.order, rs.ID)
	return nil
}

func (s *MemorySessions) GetByID(_ context.Context, id string) (*model.ReadingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rs, nil
}

func (s *MemorySessions) GetAll(_ context.Context) ([]model.ReadingSession, error) {
	s.mu.RLock()
	out := make([]model.ReadingSession, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.sessions[s.order[i]])
	}
	s.mu.RUnlock()
	// Latest insert first, so equal timestamps stay newest first.
	sortNewestFirst(out)
	return out, nil
}

func (s *MemorySessions) Query(ctx context.Context, studentNumber string) ([]model.ReadingSession, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	key := model.NormalizeStudentNumber(studentNumber)
	var out []model.ReadingSession
	for _, rs := range all {
		if model.NormalizeStudentNumber(rs.StudentNumber) == key {
			out = append(out, rs)
		}
	}
	return out, nil
}

func (s *MemorySessions) Update(_ context.Context, id string, patch model.SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if rs.Status != patch.From {
		return ErrConcurrencyConflict
	}
	rs.Status = patch.Status
	rs.FinishedTimestamp = patch.FinishedAt
	s.sessions[id] = rs
	return nil
}

func sortNewestFirst(sessions []model.ReadingSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Timestamp.After(sessions[j].Timestamp)
	})
}
