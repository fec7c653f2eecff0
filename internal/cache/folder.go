package cache

import (
	"log/slog"
	"time"
)

// FolderAccess is the cached result of a destination folder check.
type FolderAccess struct {
	UserEmail      string
	FolderID       string
	Name           string
	IsFolder       bool
	CanAddChildren bool
	CachedAt       time.Time
}

// FolderCacheConfig holds configuration for the folder cache.
type FolderCacheConfig struct {
	MaxEntries int
	TTL        time.Duration
	Logger     *slog.Logger
}

// DefaultFolderCacheConfig returns default configuration.
func DefaultFolderCacheConfig() FolderCacheConfig {
	return FolderCacheConfig{
		MaxEntries: 1000,
		TTL:        5 * time.Minute,
		Logger:     slog.Default(),
	}
}

// FolderCache caches folder checks per user and folder.
type FolderCache struct {
	lru    *LRU[*FolderAccess]
	config FolderCacheConfig
}

// NewFolderCache creates a new folder cache.
func NewFolderCache(config FolderCacheConfig) *FolderCache {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.TTL == 0 {
		config.TTL = 5 * time.Minute
	}
	if config.MaxEntries == 0 {
		config.MaxEntries = 1000
	}

	return &FolderCache{
		lru: NewLRU[*FolderAccess](LRUConfig{
			MaxEntries: config.MaxEntries,
			DefaultTTL: config.TTL,
			Logger:     config.Logger,
		}),
		config: config,
	}
}

func folderKey(userEmail, folderID string) string {
	return userEmail + ":" + folderID
}

// Get retrieves a folder check.
func (c *FolderCache) Get(userEmail, folderID string) (*FolderAccess, bool) {
	return c.lru.Get(folderKey(userEmail, folderID))
}

// Set stores a folder check.
func (c *FolderCache) Set(access *FolderAccess) {
	if access.CachedAt.IsZero() {
		access.CachedAt = time.Now()
	}
	c.lru.Set(folderKey(access.UserEmail, access.FolderID), access)
}

// Invalidate removes one folder check.
func (c *FolderCache) Invalidate(userEmail, folderID string) {
	c.lru.Delete(folderKey(userEmail, folderID))
}

// InvalidateByUser removes all folder checks of a user.
func (c *FolderCache) InvalidateByUser(userEmail string) int {
	return c.lru.DeletePrefix(userEmail + ":")
}

// Size returns the number of cached checks.
func (c *FolderCache) Size() int {
	return c.lru.Size()
}

// Metrics returns cache metrics.
func (c *FolderCache) Metrics() Metrics {
	return c.lru.Metrics()
}

// Cleanup removes expired entries.
func (c *FolderCache) Cleanup() int {
	return c.lru.Cleanup()
}
