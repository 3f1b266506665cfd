package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/Shivanand-hulikatti/library-availability/internal/model"
	"github.com/Shivanand-hulikatti/library-availability/internal/repository"
)

// Source is where the index gets its snapshots from.
type Source interface {
	Subscribe(fn func(repository.Snapshot)) (unsubscribe func())
	Refresh(ctx context.Context) error
}

// Index holds the latest catalog snapshot and its grouped view.
type Index struct {
	mu    sync.RWMutex
	seq   uint64
	books []model.Book
	view  GroupedView
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{view: GroupedView{Shelves: []ShelfGroup{}}}
}

// Apply replaces the snapshot unless it is older than the one held. It is
// the subscription callback.
func (ix *Index) Apply(snap repository.Snapshot) {
	view := Ingest(snap.Books)
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if snap.Seq <= ix.seq {
		return
	}
	ix.seq = snap.Seq
	ix.books = snap.Books
	ix.view = view
}

// Attach follows src until the returned function is called. The initial
// catalog arrives through the feed like every later change, so it is
// ordered against concurrent writes.
func (ix *Index) Attach(ctx context.Context, src Source) (func(), error) {
	unsubscribe := src.Subscribe(ix.Apply)
	if err := src.Refresh(ctx); err != nil {
		unsubscribe()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return unsubscribe, nil
}

// Books returns the latest snapshot in store order.
func (ix *Index) Books() []model.Book {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]model.Book, len(ix.books))
	copy(out, ix.books)
	return out
}

// View returns the grouped view of the whole catalog.
func (ix *Index) View() GroupedView {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.view
}

// Search returns the grouped view restricted to books matching query.
func (ix *Index) Search(query string) GroupedView {
	return Filter(ix.Books(), MatchQuery(query))
}

// Book finds a book by id in the latest snapshot.
func (ix *Index) Book(id string) (model.Book, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, b := range ix.books {
		if b.ID == id {
			return b, true
		}
	}
	return model.Book{}, false
}

// ShelfNumbers lists the shelves holding books in the latest snapshot.
func (ix *Index) ShelfNumbers() []string {
	return ShelfNumbers(ix.Books())
}

// BooksOnShelf returns one shelf's layers.
func (ix *Index) BooksOnShelf(shelfID string) (ShelfGroup, bool) {
	return ix.View().Shelf(shelfID)
}
