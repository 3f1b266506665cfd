package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/library-availability/internal/ledger"
	"github.com/Shivanand-hulikatti/library-availability/internal/model"
	"github.com/Shivanand-hulikatti/library-availability/internal/repository"
)

// contendedStore fails the first n writes as if another client got there first.
type contendedStore struct {
	*repository.MemoryCatalog
	conflicts atomic.Int32
	writes    atomic.Int32
}

func (s *contendedStore) WriteCopiesAvailable(ctx context.Context, id string, expectedVersion int64, newValue int) (*model.Book, error) {
	s.writes.Add(1)
	if s.conflicts.Add(-1) >= 0 {
		return nil, repository.ErrConcurrencyConflict
	}
	return s.MemoryCatalog.WriteCopiesAvailable(ctx, id, expectedVersion, newValue)
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func newLedger(t *testing.T, store ledger.Store, opts ...ledger.Option) *ledger.Ledger {
	t.Helper()
	opts = append([]ledger.Option{ledger.WithBaseDelay(0)}, opts...)
	l, err := ledger.New(store, opts...)
	require.NoError(t, err)
	return l
}

func book(id string, available, total int) model.Book {
	return model.Book{ID: id, Title: id, TotalCopies: total, CopiesAvailable: available}
}

func Test_ReserveRelease_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryCatalog(book("b1", 3, 3))
	l := newLedger(t, store)

	b, err := l.ReserveCopy(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.CopiesAvailable)
	assert.Equal(t, int64(1), b.Version)

	b, err = l.ReleaseCopy(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 3, b.CopiesAvailable)
	assert.Equal(t, int64(2), b.Version)
}

func Test_ReserveCopy_NoneLeft(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryCatalog(book("b1", 0, 2))
	l := newLedger(t, store)

	_, err := l.ReserveCopy(ctx, "b1")
	require.ErrorIs(t, err, ledger.ErrNoCopiesAvailable)

	b, err := store.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 0, b.CopiesAvailable)
	assert.Equal(t, int64(0), b.Version, "a refused reserve must not write")
}

func Test_ReleaseCopy_SaturatesAtTotal(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryCatalog(book("b1", 2, 2))
	l := newLedger(t, store)

	b, err := l.ReleaseCopy(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.CopiesAvailable)
	assert.Equal(t, int64(0), b.Version, "a saturated release must not write")
}

func Test_DirtyCountsAreClamped(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryCatalog(
		book("over", 9, 2),
		book("under", -4, 2),
		book("nototal", 3, -1),
	)
	l := newLedger(t, store)

	b, err := l.ReserveCopy(ctx, "over")
	require.NoError(t, err)
	assert.Equal(t, 1, b.CopiesAvailable)

	b, err = l.ReleaseCopy(ctx, "under")
	require.NoError(t, err)
	assert.Equal(t, 1, b.CopiesAvailable)

	_, err = l.ReserveCopy(ctx, "nototal")
	require.ErrorIs(t, err, ledger.ErrNoCopiesAvailable)
}

func Test_Normalize(t *testing.T) {
	tests := []struct {
		name                   string
		in                     model.Book
		wantAvailable, wantTot int
	}{
		{name: "clean", in: book("x", 1, 3), wantAvailable: 1, wantTot: 3},
		{name: "above_total", in: book("x", 5, 3), wantAvailable: 3, wantTot: 3},
		{name: "negative_available", in: book("x", -1, 3), wantAvailable: 0, wantTot: 3},
		{name: "negative_total", in: book("x", 2, -3), wantAvailable: 0, wantTot: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			available, total := ledger.Normalize(tt.in)
			assert.Equal(t, tt.wantAvailable, available)
			assert.Equal(t, tt.wantTot, total)
		})
	}
}

func Test_UnknownBook(t *testing.T) {
	l := newLedger(t, repository.NewMemoryCatalog())
	_, err := l.ReserveCopy(context.Background(), "ghost")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func Test_ConflictIsRetried(t *testing.T) {
	ctx := context.Background()
	store := &contendedStore{MemoryCatalog: repository.NewMemoryCatalog(book("b1", 3, 3))}
	store.conflicts.Store(2)
	l := newLedger(t, store)

	b, err := l.ReserveCopy(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.CopiesAvailable)
	assert.Equal(t, int32(3), store.writes.Load())
}

func Test_ConflictRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	store := &contendedStore{MemoryCatalog: repository.NewMemoryCatalog(book("b1", 3, 3))}
	store.conflicts.Store(100)
	logger := &recordingLogger{}
	l := newLedger(t, store, ledger.WithMaxAttempts(4), ledger.WithLogger(logger))

	_, err := l.ReserveCopy(ctx, "b1")
	require.ErrorIs(t, err, repository.ErrConcurrencyConflict)
	assert.Equal(t, int32(4), store.writes.Load())
	assert.Len(t, logger.warns, 1)

	b, err := store.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 3, b.CopiesAvailable)
}

func Test_RetryStopsOnCancelledContext(t *testing.T) {
	store := &contendedStore{MemoryCatalog: repository.NewMemoryCatalog(book("b1", 3, 3))}
	store.conflicts.Store(100)
	l := newLedger(t, store, ledger.WithBaseDelay(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := l.ReserveCopy(ctx, "b1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), store.writes.Load())
}

func Test_ConcurrentReservesNeverOversell(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryCatalog(book("b1", 3, 3))
	l := newLedger(t, store, ledger.WithMaxAttempts(50), ledger.WithBaseDelay(time.Millisecond))

	var granted, refused atomic.Int32
	var g errgroup.Group
	for range 10 {
		g.Go(func() error {
			_, err := l.ReserveCopy(ctx, "b1")
			switch {
			case err == nil:
				granted.Add(1)
			case errors.Is(err, ledger.ErrNoCopiesAvailable):
				refused.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(3), granted.Load())
	assert.Equal(t, int32(7), refused.Load())

	b, err := store.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 0, b.CopiesAvailable)
}

func Test_New_RejectsInvalidOptions(t *testing.T) {
	store := repository.NewMemoryCatalog()

	_, err := ledger.New(nil)
	require.ErrorIs(t, err, ledger.ErrNilCatalog)

	_, err = ledger.New(store, ledger.WithMaxAttempts(0))
	require.ErrorIs(t, err, ledger.ErrInvalidMaxAttempts)

	_, err = ledger.New(store, ledger.WithBaseDelay(-time.Millisecond))
	require.ErrorIs(t, err, ledger.ErrNegativeBaseDelay)

	_, err = ledger.New(store, ledger.WithJitterFactor(1.5))
	require.ErrorIs(t, err, ledger.ErrInvalidJitterFactor)

	_, err = ledger.New(store, ledger.WithLogger(nil))
	require.NoError(t, err)
}
