package cache

import (
	"log/slog"
	"time"
)

// ManagerConfig holds configuration for the cache manager.
type ManagerConfig struct {
	LogoConfig      LogoCacheConfig
	TokenConfig     TokenCacheConfig
	FolderConfig    FolderCacheConfig
	CleanupInterval time.Duration // How often to run cleanup (0 = disabled)
	Logger          *slog.Logger
}

// DefaultManagerConfig returns default configuration.
func DefaultManagerConfig() ManagerConfig {
	logger := slog.Default()
	return ManagerConfig{
		LogoConfig: LogoCacheConfig{
			MaxEntries: 500,
			TTL:        time.Hour,
			Logger:     logger,
		},
		TokenConfig: TokenCacheConfig{
			MaxEntries: 500,
			TTL:        55 * time.Minute,
			Logger:     logger,
		},
		FolderConfig: FolderCacheConfig{
			MaxEntries: 1000,
			TTL:        5 * time.Minute,
			Logger:     logger,
		},
		CleanupInterval: 1 * time.Minute,
		Logger:          logger,
	}
}

// Manager coordinates all caches and handles invalidation.
type Manager struct {
	Logos       *LogoCache
	Tokens      *TokenCache
	Folders     *FolderCache
	config      ManagerConfig
	stopCleanup chan struct{}
	stopped     chan struct{}
}

// NewManager creates a new cache manager.
func NewManager(config ManagerConfig) *Manager {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	m := &Manager{
		Logos:       NewLogoCache(config.LogoConfig),
		Tokens:      NewTokenCache(config.TokenConfig),
		Folders:     NewFolderCache(config.FolderConfig),
		config:      config,
		stopCleanup: make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go m.cleanupLoop()
	} else {
		close(m.stopped)
	}

	return m
}

// cleanupLoop runs periodic cleanup of expired entries.
func (m *Manager) cleanupLoop() {
	defer close(m.stopped)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop stops the background cleanup goroutine and waits for it to exit.
func (m *Manager) Stop() {
	close(m.stopCleanup)
	<-m.stopped
}

// Cleanup removes expired entries from all caches.
func (m *Manager) Cleanup() int {
	total := 0
	total += m.Logos.Cleanup()
	total += m.Tokens.Cleanup()
	total += m.Folders.Cleanup()

	if total > 0 {
		m.config.Logger.Debug("cache cleanup completed",
			slog.Int("expired_entries", total),
		)
	}

	return total
}

// InvalidateSession drops everything cached for a signed-out session.
func (m *Manager) InvalidateSession(sessionKey, userEmail string) {
	m.Tokens.Invalidate(sessionKey)
	m.Folders.InvalidateByUser(userEmail)

	m.config.Logger.Debug("invalidated cache for session",
		slog.String("user_email", userEmail),
	)
}

// Stats returns statistics for all caches.
type Stats struct {
	Logos   CacheStats
	Tokens  CacheStats
	Folders CacheStats
}

// CacheStats holds statistics for a single cache.
type CacheStats struct {
	Size    int
	Metrics Metrics
}

// Stats returns statistics for all caches.
func (m *Manager) Stats() Stats {
	return Stats{
		Logos: CacheStats{
			Size:    m.Logos.Size(),
			Metrics: m.Logos.Metrics(),
		},
		Tokens: CacheStats{
			Size:    m.Tokens.Size(),
			Metrics: m.Tokens.Metrics(),
		},
		Folders: CacheStats{
			Size:    m.Folders.Size(),
			Metrics: m.Folders.Metrics(),
		},
	}
}

// LogStats logs cache statistics.
func (m *Manager) LogStats() {
	stats := m.Stats()

	group := func(name string, s CacheStats) slog.Attr {
		return slog.Group(name,
			slog.Int("size", s.Size),
			slog.Int64("hits", s.Metrics.Hits),
			slog.Int64("misses", s.Metrics.Misses),
			slog.Float64("hit_rate_pct", s.Metrics.HitRate()),
			slog.Int64("evictions", s.Metrics.Evictions),
		)
	}

	m.config.Logger.Info("cache statistics",
		group("logos", stats.Logos),
		group("tokens", stats.Tokens),
		group("folders", stats.Folders),
	)
}
