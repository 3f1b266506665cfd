package database_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/library-availability/internal/database"
	"github.com/Shivanand-hulikatti/library-availability/internal/model"
	"github.com/Shivanand-hulikatti/library-availability/internal/repository"
)

const sampleCatalog = `
books:
  - id: b1
    title: Dune
    author: Frank Herbert
    shelf: "3"
    layer: 2
    total_copies: 3
    category: [Science Fiction]
  - id: b2
    title: Emma
    layer: Unknown
    total_copies: "2"
    copies_available: 5
  - id: b3
    title: Broken Counts
    shelf: Outdated
    layer: "1"
    total_copies: many
    copies_available: -1
`

func Test_ParseCatalog_CoercesLooseValues(t *testing.T) {
	books, err := database.ParseCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, books, 3)

	dune := books[0]
	assert.Equal(t, "3", dune.ShelfLocation)
	assert.Equal(t, model.Layer(2), dune.LayerNumber)
	assert.Equal(t, 3, dune.TotalCopies)
	assert.Equal(t, 3, dune.CopiesAvailable, "missing copies_available means all on the shelf")
	assert.Equal(t, []string{"Science Fiction"}, dune.Category)

	emma := books[1]
	assert.Equal(t, model.UnknownShelf, emma.ShelfLocation)
	assert.Equal(t, model.LayerUnknown, emma.LayerNumber)
	assert.Equal(t, 2, emma.TotalCopies)
	assert.Equal(t, 2, emma.CopiesAvailable, "clamped to total")

	broken := books[2]
	assert.Equal(t, model.Layer(1), broken.LayerNumber)
	assert.Equal(t, 0, broken.TotalCopies)
	assert.Equal(t, 0, broken.CopiesAvailable)
}

func Test_ParseCatalog_EmptyAndInvalid(t *testing.T) {
	books, err := database.ParseCatalog(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, books)

	_, err = database.ParseCatalog(strings.NewReader("books: [unterminated"))
	require.Error(t, err)
}

func Test_ImportFile_IntoSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))

	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "data", "library.db"))
	require.NoError(t, err)
	defer db.Close()

	store := repository.NewSQLiteCatalog(db)
	n, err := database.ImportFile(ctx, path, store)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Importing again updates in place.
	n, err = database.ImportFile(ctx, path, store)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Dune", all[0].Title)
	assert.Equal(t, model.Layer(2), all[0].LayerNumber)

	_, err = database.ImportFile(ctx, filepath.Join(t.TempDir(), "missing.yaml"), store)
	require.Error(t, err)
}

func Test_MigrateSQLite_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, database.MigrateSQLite(ctx, db))
}

func Test_Config_DSN(t *testing.T) {
	cfg := database.Config{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "library", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=library sslmode=disable", cfg.DSN())
}
