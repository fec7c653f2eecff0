package cache

import (
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

// CachedToken holds the token source built for a session.
type CachedToken struct {
	SessionKey  string
	UserEmail   string
	UserName    string
	TokenSource oauth2.TokenSource
	CachedAt    time.Time
}

// TokenCacheConfig holds configuration for the token cache.
type TokenCacheConfig struct {
	MaxEntries int           // Maximum number of token sources to cache
	TTL        time.Duration // Should be less than the access token lifetime
	Logger     *slog.Logger
}

// DefaultTokenCacheConfig returns default configuration.
// Access tokens expire after 60 minutes, so entries live 55.
func DefaultTokenCacheConfig() TokenCacheConfig {
	return TokenCacheConfig{
		MaxEntries: 500,
		TTL:        55 * time.Minute,
		Logger:     slog.Default(),
	}
}

// TokenCache keeps one reusable token source per session so the refresh
// token is not exchanged on every request.
type TokenCache struct {
	lru    *LRU[*CachedToken]
	config TokenCacheConfig
}

// NewTokenCache creates a new token cache.
func NewTokenCache(config TokenCacheConfig) *TokenCache {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.TTL == 0 {
		config.TTL = 55 * time.Minute
	}
	if config.MaxEntries == 0 {
		config.MaxEntries = 500
	}

	return &TokenCache{
		lru: NewLRU[*CachedToken](LRUConfig{
			MaxEntries: config.MaxEntries,
			DefaultTTL: config.TTL,
			Logger:     config.Logger,
		}),
		config: config,
	}
}

// Get retrieves a token source by session key.
func (c *TokenCache) Get(sessionKey string) (*CachedToken, bool) {
	return c.lru.Get(sessionKey)
}

// Set stores a token source.
func (c *TokenCache) Set(token *CachedToken) {
	if token.CachedAt.IsZero() {
		token.CachedAt = time.Now()
	}
	c.lru.Set(token.SessionKey, token)
}

// Invalidate removes a session's token source.
func (c *TokenCache) Invalidate(sessionKey string) {
	c.lru.Delete(sessionKey)
}

// InvalidateByEmail removes the token sources of every session of a user.
func (c *TokenCache) InvalidateByEmail(email string) int {
	count := 0
	for _, token := range c.lru.Values() {
		if token.UserEmail == email && c.lru.Delete(token.SessionKey) {
			count++
		}
	}
	return count
}

// Size returns the number of cached token sources.
func (c *TokenCache) Size() int {
	return c.lru.Size()
}

// Metrics returns cache metrics.
func (c *TokenCache) Metrics() Metrics {
	return c.lru.Metrics()
}

// Cleanup removes expired entries.
func (c *TokenCache) Cleanup() int {
	return c.lru.Cleanup()
}
