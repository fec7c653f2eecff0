package cache

import (
	"log/slog"
	"strings"
	"time"
)

// LogoCacheConfig holds configuration for the logo cache.
type LogoCacheConfig struct {
	MaxEntries int           // Maximum number of company names to cache
	TTL        time.Duration // TTL for lookups, misses included
	Logger     *slog.Logger
}

// DefaultLogoCacheConfig returns default configuration.
func DefaultLogoCacheConfig() LogoCacheConfig {
	return LogoCacheConfig{
		MaxEntries: 500,
		TTL:        time.Hour,
		Logger:     slog.Default(),
	}
}

// LogoCache caches company logo lookups. An empty URL records a lookup that
// found nothing.
type LogoCache struct {
	lru    *LRU[string]
	config LogoCacheConfig
}

// NewLogoCache creates a new logo cache.
func NewLogoCache(config LogoCacheConfig) *LogoCache {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.TTL == 0 {
		config.TTL = time.Hour
	}
	if config.MaxEntries == 0 {
		config.MaxEntries = 500
	}

	return &LogoCache{
		lru: NewLRU[string](LRUConfig{
			MaxEntries: config.MaxEntries,
			DefaultTTL: config.TTL,
			Logger:     config.Logger,
		}),
		config: config,
	}
}

func logoKey(company string) string {
	return strings.ToLower(strings.TrimSpace(company))
}

// Get returns the cached logo URL for a company.
func (c *LogoCache) Get(company string) (string, bool) {
	return c.lru.Get(logoKey(company))
}

// Set stores a lookup result.
func (c *LogoCache) Set(company, logoURL string) {
	c.lru.Set(logoKey(company), logoURL)
}

// Invalidate removes a company from the cache.
func (c *LogoCache) Invalidate(company string) {
	c.lru.Delete(logoKey(company))
}

// Size returns the number of cached lookups.
func (c *LogoCache) Size() int {
	return c.lru.Size()
}

// Metrics returns cache metrics.
func (c *LogoCache) Metrics() Metrics {
	return c.lru.Metrics()
}

// Cleanup removes expired entries.
func (c *LogoCache) Cleanup() int {
	return c.lru.Cleanup()
}
