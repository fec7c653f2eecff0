// Package ratelimit provides per-client rate limiting using a token bucket algorithm.
package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/smorand/google-slides-deckbuilder/internal/cache"
)

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerSecond is the rate limit (tokens added per second).
	RequestsPerSecond float64
	// BurstSize is the maximum number of tokens (burst capacity).
	BurstSize int
	// MaxClients bounds the number of tracked buckets.
	MaxClients int
	// IdleTTL drops the bucket of a client idle for that long.
	IdleTTL time.Duration
	// Logger for rate limit events.
	Logger *slog.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 5.0,
		BurstSize:         10,
		MaxClients:        1000,
		IdleTTL:           10 * time.Minute,
		Logger:            slog.Default(),
	}
}

// TokenBucket implements a token bucket rate limiter.
type TokenBucket struct {
	tokens         float64
	maxTokens      float64
	refillRate     float64 // tokens per second
	lastRefillTime time.Time
	mu             sync.Mutex
}

// NewTokenBucket creates a new token bucket with the specified rate and burst size.
func NewTokenBucket(refillRate float64, burstSize int) *TokenBucket {
	return &TokenBucket{
		tokens:         float64(burstSize), // Start full
		maxTokens:      float64(burstSize),
		refillRate:     refillRate,
		lastRefillTime: time.Now(),
	}
}

// Allow checks if a request is allowed and consumes a token if so.
// Returns whether the request is allowed, remaining tokens, and retry-after duration.
func (tb *TokenBucket) Allow() (allowed bool, remaining int, retryAfter time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()

	if tb.tokens >= 1 {
		tb.tokens--
		return true, int(tb.tokens), 0
	}

	tokensNeeded := 1 - tb.tokens
	retryAfter = time.Duration(tokensNeeded/tb.refillRate*float64(time.Second)) + time.Millisecond
	return false, 0, retryAfter
}

// Remaining returns the current number of available tokens.
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	return int(tb.tokens)
}

// Limit returns the maximum burst size.
func (tb *TokenBucket) Limit() int {
	return int(tb.maxTokens)
}

func (tb *TokenBucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefillTime)
	tb.tokens = math.Min(tb.maxTokens, tb.tokens+tb.refillRate*elapsed.Seconds())
	tb.lastRefillTime = now
}

// KeyFunc identifies the client a request counts against.
type KeyFunc func(r *http.Request) string

// RemoteAddrKey keys requests by remote address.
func RemoteAddrKey(r *http.Request) string {
	return r.RemoteAddr
}

// Limiter keeps one bucket per client key.
type Limiter struct {
	config  Config
	buckets *cache.LRU[*TokenBucket]
	mu      sync.Mutex
}

// New creates a new rate limiter with the given configuration.
func New(config Config) *Limiter {
	defaults := DefaultConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = defaults.BurstSize
	}
	if config.MaxClients <= 0 {
		config.MaxClients = defaults.MaxClients
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = defaults.IdleTTL
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Limiter{
		config: config,
		buckets: cache.NewLRU[*TokenBucket](cache.LRUConfig{
			MaxEntries: config.MaxClients,
			DefaultTTL: config.IdleTTL,
			Logger:     config.Logger,
		}),
	}
}

// bucket returns the client's bucket, creating it on first use. Every access
// extends the idle TTL.
func (l *Limiter) bucket(key string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets.Get(key)
	if !ok {
		b = NewTokenBucket(l.config.RequestsPerSecond, l.config.BurstSize)
	}
	l.buckets.Set(key, b)
	return b
}

// Allow consumes a token for key.
func (l *Limiter) Allow(key string) (allowed bool, remaining int, retryAfter time.Duration) {
	return l.bucket(key).Allow()
}

// Clients returns the number of tracked clients.
func (l *Limiter) Clients() int {
	return l.buckets.Size()
}

// Middleware returns an HTTP middleware that limits each client identified by keyFn.
func (l *Limiter) Middleware(keyFn KeyFunc, next http.HandlerFunc) http.HandlerFunc {
	if keyFn == nil {
		keyFn = RemoteAddrKey
	}
	return func(w http.ResponseWriter, r *http.Request) {
		b := l.bucket(keyFn(r))
		allowed, remaining, retryAfter := b.Allow()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(b.Limit()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			l.config.Logger.Warn("rate limit exceeded",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Duration("retry_after", retryAfter),
			)

			seconds := int(math.Ceil(retryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error":       "rate limit exceeded",
				"retry_after": seconds,
			})
			return
		}

		next(w, r)
	}
}
