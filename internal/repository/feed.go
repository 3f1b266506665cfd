package repository

import (
	"context"
	"sync"

	"github.com/Shivanand-hulikatti/library-availability/internal/model"
)

// Snapshot is one published view of the catalog. Seq grows with every
// broadcast of a feed, so a receiver can drop a snapshot older than the one
// it holds.
type Snapshot struct {
	Seq   uint64
	Books []model.Book
}

// Logger is the logging surface the stores need; *slog.Logger satisfies it.
type Logger interface {
	Warn(msg string, args ...any)
}

// FeedOption configures the snapshot feed of a catalog store.
type FeedOption func(*Feed)

// WithLogger reports snapshots that could not be loaded after a write.
func WithLogger(logger Logger) FeedOption {
	return func(f *Feed) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Feed fans catalog snapshots out to subscribers.
type Feed struct {
	// pubMu serializes load, numbering and delivery so subscribers see
	// snapshots in the order they were read.
	pubMu sync.Mutex
	seq   uint64

	mu     sync.Mutex
	nextID int
	subs   map[int]func(Snapshot)

	logger Logger
}

// NewFeed creates an empty feed.
func NewFeed(opts ...FeedOption) *Feed {
	f := &Feed{subs: make(map[int]func(Snapshot)), logger: nopLogger{}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is harmless. fn runs while
// the feed is broadcasting and must not write to the store.
func (f *Feed) Subscribe(fn func(Snapshot)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Broadcast loads the current catalog and hands each subscriber its own
// copy under the next sequence number.
func (f *Feed) Broadcast(ctx context.Context, load func(ctx context.Context) ([]model.Book, error)) error {
	f.pubMu.Lock()
	defer f.pubMu.Unlock()

	books, err := load(ctx)
	if err != nil {
		f.logger.Warn("catalog snapshot not published", "error", err)
		return err
	}
	f.seq++
	seq := f.seq

	f.mu.Lock()
	fns := make([]func(Snapshot), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(Snapshot{Seq: seq, Books: cloneBooks(books)})
	}
	return nil
}

func cloneBooks(books []model.Book) []model.Book {
	out := make([]model.Book, len(books))
	for i, b := range books {
		b.Category = append([]string(nil), b.Category...)
		b.Department = append([]string(nil), b.Department...)
		out[i] = b
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}
