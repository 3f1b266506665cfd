// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/library-availability/internal/database"
)

// Storage backends.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Config is the full runtime configuration.
type Config struct {
	Port       string
	Store      string
	SQLitePath string
	Postgres   database.Config
	SeedFile   string

	LogLevel  string
	LogFormat string

	LedgerMaxAttempts int
	LedgerBaseDelay   time.Duration
}

// Load reads configuration from well-known environment variables, falling
// back to local-development defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:       getEnv("PORT", "8080"),
		Store:      strings.ToLower(getEnv("STORE", StoreSQLite)),
		SQLitePath: getEnv("SQLITE_PATH", "library.db"),
		Postgres: database.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "library"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		SeedFile:  os.Getenv("SEED_FILE"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	attempts, err := strconv.Atoi(getEnv("LEDGER_MAX_ATTEMPTS", "6"))
	if err != nil {
		return cfg, fmt.Errorf("LEDGER_MAX_ATTEMPTS: %w", err)
	}
	cfg.LedgerMaxAttempts = attempts

	delay, err := time.ParseDuration(getEnv("LEDGER_BASE_DELAY", "10ms"))
	if err != nil {
		return cfg, fmt.Errorf("LEDGER_BASE_DELAY: %w", err)
	}
	cfg.LedgerBaseDelay = delay

	return cfg, cfg.Validate()
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Store {
	case StorePostgres, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (choose postgres, sqlite, or memory)", c.Store)
	}
	if c.LedgerMaxAttempts <= 0 {
		return fmt.Errorf("ledger max attempts must be positive, got %d", c.LedgerMaxAttempts)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c Config) NewLogger() *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
