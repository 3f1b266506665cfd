package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/library-availability/internal/catalog"
	"github.com/Shivanand-hulikatti/library-availability/internal/handler"
	"github.com/Shivanand-hulikatti/library-availability/internal/ledger"
	"github.com/Shivanand-hulikatti/library-availability/internal/model"
	"github.com/Shivanand-hulikatti/library-availability/internal/repository"
	"github.com/Shivanand-hulikatti/library-availability/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const profileBody = `{"full_name":"Ada Cruz","section":"B","year_level":"2","department":"CS","student_number":"ay2021-00212"}`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	store := repository.NewMemoryCatalog(
		model.Book{ID: "b1", Title: "Dune", Author: "Frank Herbert", ShelfLocation: "3", LayerNumber: 2, TotalCopies: 1, CopiesAvailable: 1},
		model.Book{ID: "b2", Title: "Emma", Author: "Jane Austen", ShelfLocation: "10", LayerNumber: 1, TotalCopies: 2, CopiesAvailable: 2},
	)
	l, err := ledger.New(store, ledger.WithLogger(logger))
	require.NoError(t, err)
	svc := service.NewSessionService(l, store, repository.NewMemorySessions(), logger)

	index := catalog.NewIndex()
	unsubscribe, err := index.Attach(ctx, store)
	require.NoError(t, err)
	t.Cleanup(unsubscribe)

	r := chi.NewRouter()
	r.Use(handler.Logger(logger))
	r.Use(handler.CORS)
	handler.NewLibraryHandler(index, svc).Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func Test_ReadingLifecycle_OverHTTP(t *testing.T) {
	srv := newServer(t)

	status, raw := do(t, http.MethodPost, srv.URL+"/books/b1/sessions", profileBody)
	require.Equal(t, http.StatusCreated, status, string(raw))
	var started model.ReadingSession
	require.NoError(t, json.Unmarshal(raw, &started))
	assert.Equal(t, "AY2021-00212", started.StudentNumber)
	assert.Equal(t, model.StatusReading, started.Status)

	status, raw = do(t, http.MethodGet, srv.URL+"/books/b1", "")
	require.Equal(t, http.StatusOK, status)
	var book model.Book
	require.NoError(t, json.Unmarshal(raw, &book))
	assert.Equal(t, 0, book.CopiesAvailable)

	status, raw = do(t, http.MethodPost, srv.URL+"/books/b1/sessions", profileBody)
	assert.Equal(t, http.StatusConflict, status, string(raw))

	status, raw = do(t, http.MethodGet, srv.URL+"/sessions?student=AY2021-00212", "")
	require.Equal(t, http.StatusOK, status)
	var open []model.ReadingSession
	require.NoError(t, json.Unmarshal(raw, &open))
	require.Len(t, open, 1)
	assert.Equal(t, started.ID, open[0].ID)

	status, _ = do(t, http.MethodPost, srv.URL+"/sessions/"+started.ID+"/finish", "")
	require.Equal(t, http.StatusOK, status)

	status, _ = do(t, http.MethodPost, srv.URL+"/sessions/"+started.ID+"/finish", "")
	assert.Equal(t, http.StatusConflict, status)

	status, raw = do(t, http.MethodGet, srv.URL+"/books/b1", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(raw, &book))
	assert.Equal(t, 1, book.CopiesAvailable)

	status, raw = do(t, http.MethodGet, srv.URL+"/students/ay2021-00212/profile", "")
	require.Equal(t, http.StatusOK, status)
	var p model.Profile
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, "Ada Cruz", p.FullName)
}

func Test_ErrorStatuses(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "incomplete_profile", method: http.MethodPost, path: "/books/b1/sessions", body: `{"full_name":"Ada"}`, want: http.StatusBadRequest},
		{name: "malformed_body", method: http.MethodPost, path: "/books/b1/sessions", body: `{`, want: http.StatusBadRequest},
		{name: "unknown_field", method: http.MethodPost, path: "/books/b1/sessions", body: `{"nickname":"x"}`, want: http.StatusBadRequest},
		{name: "unknown_book_session", method: http.MethodPost, path: "/books/nope/sessions", body: profileBody, want: http.StatusNotFound},
		{name: "unknown_book", method: http.MethodGet, path: "/books/nope", want: http.StatusNotFound},
		{name: "blank_student_query", method: http.MethodGet, path: "/sessions?student=", want: http.StatusBadRequest},
		{name: "unknown_session", method: http.MethodPost, path: "/sessions/nope/finish", want: http.StatusNotFound},
		{name: "no_profile", method: http.MethodGet, path: "/students/NOBODY/profile", want: http.StatusNotFound},
		{name: "preflight", method: http.MethodOptions, path: "/books", want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, raw := do(t, tt.method, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.want, status, string(raw))
		})
	}
}

func Test_CatalogEndpoints(t *testing.T) {
	srv := newServer(t)

	status, raw := do(t, http.MethodGet, srv.URL+"/books", "")
	require.Equal(t, http.StatusOK, status)
	var view catalog.GroupedView
	require.NoError(t, json.Unmarshal(raw, &view))
	require.Len(t, view.Shelves, 2)
	assert.Equal(t, "3", view.Shelves[0].ShelfID)
	assert.Equal(t, "10", view.Shelves[1].ShelfID)

	status, raw = do(t, http.MethodGet, srv.URL+"/books?shelf=10", "")
	require.Equal(t, http.StatusOK, status)
	var shelf catalog.ShelfGroup
	require.NoError(t, json.Unmarshal(raw, &shelf))
	assert.Equal(t, "b2", shelf.Layers[0].Books[0].ID)

	status, raw = do(t, http.MethodGet, srv.URL+"/books/search?q=austen", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(raw, &view))
	require.Len(t, view.Shelves, 1)
	assert.Equal(t, "10", view.Shelves[0].ShelfID)

	status, raw = do(t, http.MethodGet, srv.URL+"/locate?q=dune", "")
	require.Equal(t, http.StatusOK, status)
	var hl model.Highlight
	require.NoError(t, json.Unmarshal(raw, &hl))
	assert.Equal(t, model.Highlight{ShelfID: "3", Layer: 2, BookID: "b1"}, hl)

	status, raw = do(t, http.MethodGet, srv.URL+"/locate?q=", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "null", strings.TrimSpace(string(raw)))

	status, raw = do(t, http.MethodGet, srv.URL+"/shelves", "")
	require.Equal(t, http.StatusOK, status)
	var shelves struct {
		Shelves  []model.Shelf `json:"shelves"`
		Occupied []string      `json:"occupied"`
	}
	require.NoError(t, json.Unmarshal(raw, &shelves))
	assert.Len(t, shelves.Shelves, 14)
	assert.Equal(t, []string{"3", "10"}, shelves.Occupied)

	status, raw = do(t, http.MethodGet, srv.URL+"/health", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))
}
