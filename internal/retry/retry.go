// Package retry provides bounded retry with exponential backoff and jitter for
// provider calls that fail transiently (permission propagation races, quota).
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
)

// Sentinel errors for retry conditions.
var (
	// ErrMaxRetriesExceeded is returned when all retry attempts have been exhausted.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	// ErrNonRetryable is returned when the error is not retryable.
	ErrNonRetryable = errors.New("non-retryable error")
)

// Config holds retry configuration.
type Config struct {
	// MaxRetries is the number of retries after the first attempt (default: 3).
	MaxRetries int
	// InitialDelay is the delay before the first retry (default: 500ms).
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries (default: 4s).
	MaxDelay time.Duration
	// Multiplier is the backoff multiplier (default: 2.0).
	Multiplier float64
	// JitterFactor is the jitter factor (0.0 to 1.0) for randomization (default: 0.2).
	JitterFactor float64
	// Retryable decides whether an error is worth another attempt (default: IsTransient).
	Retryable func(err error) bool
	// Logger for retry events.
	Logger *slog.Logger
}

// DefaultConfig returns the copy retry policy: one attempt plus three retries.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
		Retryable:    IsTransient,
		Logger:       slog.Default(),
	}
}

// Retryer runs operations under a retry policy.
type Retryer struct {
	config Config
}

// New creates a new Retryer with the given configuration.
func New(config Config) *Retryer {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 500 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 4 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.JitterFactor <= 0 || config.JitterFactor > 1 {
		config.JitterFactor = 0.2
	}
	if config.Retryable == nil {
		config.Retryable = IsTransient
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Retryer{config: config}
}

// Error records the last failure of a retried operation.
type Error struct {
	Err      error
	Attempts int
}

// Error returns the error message.
func (e *Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// transientStatus lists HTTP status codes that are retried.
var transientStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsTransient reports whether err looks like a quota, server or transport failure.
// Errors without an HTTP status (connection resets, timeouts) count as transient;
// context cancellation and 4xx answers other than 429 do not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return transientStatus[apiErr.Code]
	}
	return true
}

// CalculateDelay calculates the delay for a given retry using exponential backoff with jitter.
// Attempt is 1-based (first retry is attempt 1).
func (r *Retryer) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(r.config.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= r.config.Multiplier
	}
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	// Range is [delay*(1-jitter), delay*(1+jitter)].
	jitterRange := delay * r.config.JitterFactor
	delay += rand.Float64()*2*jitterRange - jitterRange

	if delay < float64(time.Millisecond) {
		delay = float64(time.Millisecond)
	}
	return time.Duration(delay)
}

// Do executes op with retry logic.
func (r *Retryer) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := DoWithResult(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoWithResult executes op with retry logic and returns its result.
// Non-retryable errors are returned after the failing attempt, wrapped with
// ErrNonRetryable; exhausting the budget wraps the last error with ErrMaxRetriesExceeded.
func DoWithResult[T any](ctx context.Context, r *Retryer, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		res, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				r.config.Logger.Info("operation succeeded after retry",
					slog.Int("attempts", attempt+1),
				)
			}
			return res, nil
		}
		lastErr = err

		if !r.config.Retryable(err) {
			r.config.Logger.Debug("non-retryable error",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			return zero, &Error{
				Err:      errors.Join(ErrNonRetryable, err),
				Attempts: attempt + 1,
			}
		}

		if attempt >= r.config.MaxRetries {
			break
		}

		delay := r.CalculateDelay(attempt + 1)
		r.config.Logger.Warn("retrying operation",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", r.config.MaxRetries),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	r.config.Logger.Error("max retries exceeded",
		slog.Int("max_retries", r.config.MaxRetries),
		slog.String("last_error", lastErr.Error()),
	)

	return zero, &Error{
		Err:      errors.Join(ErrMaxRetriesExceeded, lastErr),
		Attempts: r.config.MaxRetries + 1,
	}
}

// MaxRetries returns the maximum number of retries.
func (r *Retryer) MaxRetries() int {
	return r.config.MaxRetries
}

// InitialDelay returns the initial delay.
func (r *Retryer) InitialDelay() time.Duration {
	return r.config.InitialDelay
}

// MaxDelay returns the maximum delay.
func (r *Retryer) MaxDelay() time.Duration {
	return r.config.MaxDelay
}
