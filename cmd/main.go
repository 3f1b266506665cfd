// cmd/main.go is the application entry point.
// It wires together all layers and exposes them as CLI subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/library-availability/internal/catalog"
	"github.com/Shivanand-hulikatti/library-availability/internal/config"
	"github.com/Shivanand-hulikatti/library-availability/internal/database"
	"github.com/Shivanand-hulikatti/library-availability/internal/handler"
	"github.com/Shivanand-hulikatti/library-availability/internal/ledger"
	"github.com/Shivanand-hulikatti/library-availability/internal/locator"
	"github.com/Shivanand-hulikatti/library-availability/internal/model"
	"github.com/Shivanand-hulikatti/library-availability/internal/repository"
	"github.com/Shivanand-hulikatti/library-availability/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app is every wired layer for one storage backend.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	catalog  repository.CatalogStore
	importer repository.BookImporter
	sessions repository.SessionStore
	ledger   *ledger.Ledger
	service  *service.SessionService
	listen   func(ctx context.Context) error // nil unless the store pushes cross-client changes
	close    func()
}

func newRootCmd() *cobra.Command {
	cfg, cfgErr := config.Load()

	root := &cobra.Command{
		Use:   "library",
		Short: "Track shelf locations, copy availability and reading sessions",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			return cfg.Validate()
		},
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.Store, "store", cfg.Store, "storage backend: postgres, sqlite, or memory")
	flags.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database file")
	flags.StringVar(&cfg.SeedFile, "seed", cfg.SeedFile, "YAML catalog imported before the command runs")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn, or error")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")

	root.AddCommand(newServeCmd(&cfg))
	root.AddCommand(newImportCmd(&cfg))
	root.AddCommand(newLocateCmd(&cfg))
	root.AddCommand(newSessionsCmd(&cfg))
	root.AddCommand(newShelvesCmd(&cfg))
	return root
}

// ── Wiring ────────────────────────────────────────────────────────────────────

func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger := cfg.NewLogger()
	a := &app{cfg: cfg, logger: logger, close: func() {}}

	switch cfg.Store {
	case config.StorePostgres:
		pool, err := database.NewPool(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := database.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		pg := repository.NewPostgresCatalog(pool, repository.WithLogger(logger))
		a.catalog, a.importer, a.listen = pg, pg, pg.Listen
		a.sessions = repository.NewPostgresSessions(pool)
		a.close = pool.Close
		logger.Info("connected to PostgreSQL", "host", cfg.Postgres.Host, "db", cfg.Postgres.DBName)

	case config.StoreSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		lite := repository.NewSQLiteCatalog(db, repository.WithLogger(logger))
		a.catalog, a.importer = lite, lite
		a.sessions = repository.NewSQLiteSessions(db)
		a.close = func() { _ = db.Close() }
		logger.Info("opened SQLite", "path", cfg.SQLitePath)

	case config.StoreMemory:
		mem := repository.NewMemoryCatalog()
		a.catalog, a.importer = mem, mem
		a.sessions = repository.NewMemorySessions()
		logger.Warn("using in-memory store, nothing is persisted")
	}

	l, err := ledger.New(a.catalog,
		ledger.WithLogger(logger),
		ledger.WithMaxAttempts(cfg.LedgerMaxAttempts),
		ledger.WithBaseDelay(cfg.LedgerBaseDelay),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	a.ledger = l
	a.service = service.NewSessionService(l, a.catalog, a.sessions, logger)

	if cfg.SeedFile != "" {
		n, err := database.ImportFile(ctx, cfg.SeedFile, a.importer)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("seed: %w", err)
		}
		logger.Info("catalog seeded", "file", cfg.SeedFile, "books", n)
	}
	return a, nil
}

// ── serve ─────────────────────────────────────────────────────────────────────

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	// ── Catalog index follows the store's snapshot feed ──────────────────
	index := catalog.NewIndex()
	unsubscribe, err := index.Attach(ctx, a.catalog)
	if err != nil {
		return err
	}
	defer unsubscribe()

	// ── Router ────────────────────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.Logger(a.logger))
	r.Use(handler.CORS)
	handler.NewLibraryHandler(index, a.service).Routes(r)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server listening", "addr", "http://localhost:"+cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if a.listen != nil {
		g.Go(func() error { return a.listen(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	err = g.Wait()
	a.logger.Info("server stopped")
	return err
}

// ── import ────────────────────────────────────────────────────────────────────

func newImportCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "import <catalog.yaml>",
		Short: "Load books from a YAML catalog into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := database.ImportFile(cmd.Context(), args[0], a.importer)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d book(s)\n", n)
			return nil
		},
	}
}

// ── locate ────────────────────────────────────────────────────────────────────

func newLocateCmd(cfg *config.Config) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "locate <query>",
		Short: "Find the shelf and layer of the first matching book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer a.close()

			books, err := a.catalog.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			hl, ok := locator.Locate(args[0], books)
			out := cmd.OutOrStdout()
			if asJSON {
				var v any
				if ok {
					v = hl
				}
				return jsoniter.NewEncoder(out).Encode(v)
			}
			if !ok {
				fmt.Fprintln(out, "No matching book.")
				return nil
			}
			fmt.Fprintf(out, "Shelf %s, layer %s (book %s)\n", hl.ShelfID, hl.Layer, hl.BookID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the highlight as JSON")
	return cmd
}

// ── sessions ──────────────────────────────────────────────────────────────────

func newSessionsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions <student-number>",
		Short: "List a student's open reading sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer a.close()

			sessions, err := a.service.FindOpenSessions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No active reading sessions found.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tBOOK\tSTARTED")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.BookTitle, s.Timestamp.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

// ── shelves ───────────────────────────────────────────────────────────────────

func newShelvesCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "shelves",
		Short: "Show each shelf with its books per layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer a.close()

			books, err := a.catalog.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, shelf := range catalog.Ingest(books).Shelves {
				marker := ""
				if shelf.ShelfID != model.UnknownShelf && !model.KnownShelf(shelf.ShelfID) {
					marker = " (not on map)"
				}
				fmt.Fprintf(out, "Shelf %s%s\n", shelf.ShelfID, marker)
				for _, layer := range shelf.Layers {
					fmt.Fprintf(out, "  Layer %s\n", layer.Layer)
					for _, b := range layer.Books {
						fmt.Fprintf(out, "    %-40s %d/%d available\n", b.Title, b.CopiesAvailable, b.TotalCopies)
					}
				}
			}
			return nil
		},
	}
}
