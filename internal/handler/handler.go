// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the catalog index, locator and session
// service.
package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/Shivanand-hulikatti/library-availability/internal/catalog"
	"github.com/Shivanand-hulikatti/library-availability/internal/ledger"
	"github.com/Shivanand-hulikatti/library-availability/internal/locator"
	"github.com/Shivanand-hulikatti/library-availability/internal/model"
	"github.com/Shivanand-hulikatti/library-availability/internal/repository"
	"github.com/Shivanand-hulikatti/library-availability/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LibraryHandler holds all HTTP handlers for the library API.
type LibraryHandler struct {
	index    *catalog.Index
	sessions *service.SessionService
}

// NewLibraryHandler constructs a LibraryHandler.
func NewLibraryHandler(index *catalog.Index, sessions *service.SessionService) *LibraryHandler {
	return &LibraryHandler{index: index, sessions: sessions}
}

// Routes mounts the API on r.
func (h *LibraryHandler) Routes(r chi.Router) {
	r.Get("/health", HealthCheck)
	r.Get("/shelves", h.ListShelves)
	r.Get("/locate", h.Locate)

	r.Route("/books", func(r chi.Router) {
		r.Get("/", h.ListBooks)
		r.Get("/search", h.SearchBooks)
		r.Get("/{id}", h.GetBook)
		r.Post("/{id}/sessions", h.StartReading)
	})
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.OpenSessions)
		r.Post("/{id}/finish", h.FinishReading)
	})
	r.Route("/students/{number}", func(r chi.Router) {
		r.Get("/", h.StudentExists)
		r.Get("/profile", h.Autofill)
	})
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps domain errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrIncompleteProfile),
		errors.Is(err, service.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "book not found")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ledger.ErrNoCopiesAvailable):
		writeError(w, http.StatusConflict, "no copies available")
	case errors.Is(err, service.ErrAlreadyFinished):
		writeError(w, http.StatusConflict, "session already finished")
	case errors.Is(err, repository.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, "book is busy, please try again")
	default:
		writeError(w, http.StatusInternalServerError, "storage unavailable")
	}
}

// ─── Catalog ──────────────────────────────────────────────────────────────────

// ListShelves handles GET /shelves
// Returns the static shelf map and the shelves that currently hold books.
func (h *LibraryHandler) ListShelves(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"shelves":  model.Shelves(),
		"occupied": h.index.ShelfNumbers(),
	})
}

// ListBooks handles GET /books
// Returns the catalog grouped by shelf and layer, or a single shelf when
// ?shelf= is given.
func (h *LibraryHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	if shelf := r.URL.Query().Get("shelf"); shelf != "" {
		group, ok := h.index.BooksOnShelf(shelf)
		if !ok {
			group = catalog.ShelfGroup{ShelfID: shelf, Layers: []catalog.LayerGroup{}}
		}
		writeJSON(w, http.StatusOK, group)
		return
	}
	writeJSON(w, http.StatusOK, h.index.View())
}

// SearchBooks handles GET /books/search?q=
func (h *LibraryHandler) SearchBooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.index.Search(r.URL.Query().Get("q")))
}

// GetBook handles GET /books/{id}
func (h *LibraryHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, ok := h.index.Book(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// Locate handles GET /locate?q=
// Returns the highlight for the first matching book, or null.
func (h *LibraryHandler) Locate(w http.ResponseWriter, r *http.Request) {
	hl, ok := locator.Locate(r.URL.Query().Get("q"), h.index.Books())
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, hl)
}

// ─── Sessions ─────────────────────────────────────────────────────────────────

// StartReading handles POST /books/{id}/sessions
func (h *LibraryHandler) StartReading(w http.ResponseWriter, r *http.Request) {
	var req model.StartReadingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	session, err := h.sessions.StartReading(r.Context(), chi.URLParam(r, "id"), req.Profile)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// OpenSessions handles GET /sessions?student=
func (h *LibraryHandler) OpenSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.FindOpenSessions(r.Context(), r.URL.Query().Get("student"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// FinishReading handles POST /sessions/{id}/finish
func (h *LibraryHandler) FinishReading(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.FinishReading(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ─── Students ─────────────────────────────────────────────────────────────────

// StudentExists handles GET /students/{number}
func (h *LibraryHandler) StudentExists(w http.ResponseWriter, r *http.Request) {
	exists, err := h.sessions.StudentExists(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// Autofill handles GET /students/{number}/profile
func (h *LibraryHandler) Autofill(w http.ResponseWriter, r *http.Request) {
	profile, err := h.sessions.AutofillProfile(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "no previous sessions for this student")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
