package auth

import (
	"log/slog"
	"time"

	"github.com/smorand/google-slides-deckbuilder/internal/cache"
)

// Ticket authorizes a single event stream of one generation, so the
// long-lived session key never travels in a URL.
type Ticket struct {
	SessionKey   string
	GenerationID string
}

// TicketStoreConfig holds configuration for the ticket store.
type TicketStoreConfig struct {
	TTL        time.Duration
	MaxEntries int
	Logger     *slog.Logger
}

// DefaultTicketStoreConfig returns default configuration.
func DefaultTicketStoreConfig() TicketStoreConfig {
	return TicketStoreConfig{
		TTL:        30 * time.Second,
		MaxEntries: 10000,
		Logger:     slog.Default(),
	}
}

// TicketStore issues one-time stream tickets.
type TicketStore struct {
	config  TicketStoreConfig
	tickets *cache.LRU[Ticket]
}

// NewTicketStore creates a new ticket store.
func NewTicketStore(config TicketStoreConfig) *TicketStore {
	defaults := DefaultTicketStoreConfig()
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaults.MaxEntries
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &TicketStore{
		config: config,
		tickets: cache.NewLRU[Ticket](cache.LRUConfig{
			MaxEntries: config.MaxEntries,
			DefaultTTL: config.TTL,
			Logger:     config.Logger,
		}),
	}
}

// TTL returns how long an issued ticket stays redeemable.
func (s *TicketStore) TTL() time.Duration {
	return s.config.TTL
}

// Issue returns a new ticket for the session's generation.
func (s *TicketStore) Issue(sessionKey, generationID string) (string, error) {
	id, err := generateState()
	if err != nil {
		return "", err
	}
	s.tickets.Set(id, Ticket{SessionKey: sessionKey, GenerationID: generationID})
	return id, nil
}

// Redeem consumes id. It fails for unknown, expired or already used tickets
// and for tickets issued for another generation.
func (s *TicketStore) Redeem(id, generationID string) (Ticket, bool) {
	ticket, ok := s.tickets.Get(id)
	if !ok || !s.tickets.Delete(id) {
		return Ticket{}, false
	}
	if ticket.GenerationID != generationID {
		s.config.Logger.Warn("stream ticket used for another generation",
			slog.String("generation_id", generationID),
		)
		return Ticket{}, false
	}
	return ticket, true
}
