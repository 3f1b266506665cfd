package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/library-availability/internal/model"
)

func staticLoad(books ...model.Book) func(context.Context) ([]model.Book, error) {
	return func(context.Context) ([]model.Book, error) { return books, nil }
}

type warnRecorder struct {
	mu    sync.Mutex
	warns []string
}

func (w *warnRecorder) Warn(msg string, _ ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.warns = append(w.warns, msg)
}

func Test_Feed_SubscribersGetPrivateCopies(t *testing.T) {
	ctx := context.Background()
	f := NewFeed()

	var a, b Snapshot
	unsubA := f.Subscribe(func(s Snapshot) { a = s })
	f.Subscribe(func(s Snapshot) { b = s })

	src := model.Book{ID: "b1", Category: []string{"Fiction"}}
	require.NoError(t, f.Broadcast(ctx, staticLoad(src)))

	require.Len(t, a.Books, 1)
	require.Len(t, b.Books, 1)
	a.Books[0].Category[0] = "changed"
	assert.Equal(t, "Fiction", b.Books[0].Category[0])
	assert.Equal(t, "Fiction", src.Category[0])

	unsubA()
	unsubA()
	require.NoError(t, f.Broadcast(ctx, staticLoad(model.Book{ID: "b2"})))
	assert.Equal(t, "b1", a.Books[0].ID)
	assert.Equal(t, "b2", b.Books[0].ID)
}

func Test_Feed_SequenceGrowsInDeliveryOrder(t *testing.T) {
	ctx := context.Background()
	f := NewFeed()

	var mu sync.Mutex
	var seqs []uint64
	f.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		seqs = append(seqs, s.Seq)
	})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.Broadcast(ctx, staticLoad(model.Book{ID: "b1"}))
		}()
	}
	wg.Wait()

	require.Len(t, seqs, 50)
	for i := range seqs {
		assert.Equal(t, uint64(i+1), seqs[i])
	}
}

func Test_Feed_LoadFailureIsLoggedAndNotDelivered(t *testing.T) {
	logger := &warnRecorder{}
	f := NewFeed(WithLogger(logger))

	delivered := 0
	f.Subscribe(func(Snapshot) { delivered++ })

	boom := errors.New("disk gone")
	err := f.Broadcast(context.Background(), func(context.Context) ([]model.Book, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.Zero(t, delivered)
	assert.Len(t, logger.warns, 1)

	require.NoError(t, f.Broadcast(context.Background(), staticLoad()))
	assert.Equal(t, 1, delivered)
}
