package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/smorand/google-slides-deckbuilder/internal/cache"
)

// MemoryStoreConfig holds configuration for the MemorySessionStore.
type MemoryStoreConfig struct {
	MaxSessions int
	SessionTTL  time.Duration
	Logger      *slog.Logger
}

// DefaultMemoryStoreConfig returns default configuration.
func DefaultMemoryStoreConfig() MemoryStoreConfig {
	return MemoryStoreConfig{
		MaxSessions: 10000,
		SessionTTL:  7 * 24 * time.Hour,
		Logger:      slog.Default(),
	}
}

// MemorySessionStore keeps sessions in process memory. Sessions are lost on
// restart; it serves deployments without a Firestore project.
type MemorySessionStore struct {
	sessions *cache.LRU[SessionRecord]
}

// NewMemorySessionStore creates a new MemorySessionStore.
func NewMemorySessionStore(config MemoryStoreConfig) *MemorySessionStore {
	defaults := DefaultMemoryStoreConfig()
	if config.MaxSessions <= 0 {
		config.MaxSessions = defaults.MaxSessions
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = defaults.SessionTTL
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &MemorySessionStore{
		sessions: cache.NewLRU[SessionRecord](cache.LRUConfig{
			MaxEntries: config.MaxSessions,
			DefaultTTL: config.SessionTTL,
			Logger:     config.Logger,
		}),
	}
}

// Store saves a copy of record.
func (m *MemorySessionStore) Store(_ context.Context, record *SessionRecord) error {
	m.sessions.Set(record.SessionKey, *record)
	return nil
}

// Get returns a copy of the stored record.
func (m *MemorySessionStore) Get(_ context.Context, sessionKey string) (*SessionRecord, error) {
	record, ok := m.sessions.Get(sessionKey)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &record, nil
}

// UpdateLastUsed updates the last_used timestamp and extends the session.
func (m *MemorySessionStore) UpdateLastUsed(_ context.Context, sessionKey string) error {
	record, ok := m.sessions.Get(sessionKey)
	if !ok {
		return ErrSessionNotFound
	}
	record.LastUsed = time.Now()
	m.sessions.Set(sessionKey, record)
	return nil
}

// Delete removes a session.
func (m *MemorySessionStore) Delete(_ context.Context, sessionKey string) error {
	m.sessions.Delete(sessionKey)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	return m.sessions.Size()
}

// Close is a no-op.
func (m *MemorySessionStore) Close() error {
	return nil
}

var _ SessionStore = (*MemorySessionStore)(nil)
