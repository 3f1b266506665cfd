package ledger

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/Shivanand-hulikatti/library-availability/internal/repository"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

type retryConfig struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}
}

// retry runs fn until it succeeds, fails with a non-retryable error, or
// the attempts run out. Only repository.ErrConcurrencyConflict is retried.
//
// Schedule with defaults: 0, 10, 20, 40, 80, 160 ms plus up to 30% jitter.
func retry(ctx context.Context, cfg retryConfig, fn func(ctx context.Context) error) (attempts int, err error) {
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * cfg.jitterFactor //nolint:gosec // jitter only
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return attempt, ctx.Err()
			}
		}

		err = fn(ctx)
		if err == nil || !errors.Is(err, repository.ErrConcurrencyConflict) {
			return attempt + 1, err
		}
	}
	return cfg.maxAttempts, err
}

// Option configures a Ledger.
type Option func(*Ledger) error

// WithMaxAttempts sets how often a conflicting write is attempted.
func WithMaxAttempts(attempts int) Option {
	return func(l *Ledger) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		l.retry.maxAttempts = attempts
		return nil
	}
}

// WithBaseDelay sets the base delay for exponential backoff.
// Actual delays: baseDelay, baseDelay*2, baseDelay*4, and so on.
func WithBaseDelay(delay time.Duration) Option {
	return func(l *Ledger) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}
		l.retry.baseDelay = delay
		return nil
	}
}

// WithJitterFactor sets the jitter added on top of each backoff delay,
// as a fraction of it (0.0 to 1.0).
func WithJitterFactor(factor float64) Option {
	return func(l *Ledger) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}
		l.retry.jitterFactor = factor
		return nil
	}
}

// WithLogger sets the logger for conflict and write diagnostics.
func WithLogger(logger Logger) Option {
	return func(l *Ledger) error {
		if logger != nil {
			l.logger = logger
		}
		return nil
	}
}
