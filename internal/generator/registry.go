package generator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smorand/google-slides-deckbuilder/internal/cache"
)

// ErrGenerationNotFound is returned for unknown, expired or foreign generations.
var ErrGenerationNotFound = errors.New("generation not found")

// Generation is a registered Generator owned by one session.
type Generation struct {
	ID        string
	Owner     string
	TeamID    string
	CreatedAt time.Time
	Generator *Generator

	// ctx bounds the background work and is cancelled when the generation
	// is dropped.
	ctx    context.Context
	cancel context.CancelFunc
}

// Context returns the context background work of the generation runs under.
func (g *Generation) Context() context.Context {
	return g.ctx
}

// RegistryConfig holds configuration for the Registry.
type RegistryConfig struct {
	// TTL bounds how long a generation stays addressable after it is
	// registered. Lookups do not extend it.
	TTL        time.Duration
	MaxEntries int
	// OnRelease is called after a generation is removed or expires.
	OnRelease func(gen *Generation)
	Logger    *slog.Logger
}

// DefaultRegistryConfig returns default configuration.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		TTL:        2 * time.Hour,
		MaxEntries: 1000,
		Logger:     slog.Default(),
	}
}

// Registry keeps in-flight generations addressable by ID.
type Registry struct {
	config      RegistryConfig
	generations *cache.LRU[*Generation]
	newID       func() string
}

// NewRegistry creates a new Registry.
func NewRegistry(config RegistryConfig) *Registry {
	defaults := DefaultRegistryConfig()
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaults.MaxEntries
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	r := &Registry{
		config: config,
		generations: cache.NewLRU[*Generation](cache.LRUConfig{
			MaxEntries: config.MaxEntries,
			DefaultTTL: config.TTL,
			Logger:     config.Logger,
		}),
		newID: uuid.NewString,
	}
	r.generations.OnRemove(func(_ string, gen *Generation) {
		r.release(gen, "expired")
	})
	return r
}

// Add registers a generation for owner. build receives the new id; the
// generation's context derives from parent.
func (r *Registry) Add(parent context.Context, owner, teamID string, build func(id string) *Generator) *Generation {
	ctx, cancel := context.WithCancel(parent)
	gen := &Generation{
		ID:        r.newID(),
		Owner:     owner,
		TeamID:    teamID,
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	gen.Generator = build(gen.ID)
	r.generations.Set(gen.ID, gen)

	r.config.Logger.Info("generation registered",
		slog.String("generation_id", gen.ID),
		slog.String("team", teamID),
	)
	return gen
}

// Get returns the generation id when it belongs to owner.
func (r *Registry) Get(owner, id string) (*Generation, error) {
	gen, ok := r.generations.Get(id)
	if !ok || gen.Owner != owner {
		return nil, ErrGenerationNotFound
	}
	return gen, nil
}

// Remove drops the generation and cancels its background work.
func (r *Registry) Remove(owner, id string) error {
	gen, err := r.Get(owner, id)
	if err != nil {
		return err
	}
	r.generations.Delete(id)
	r.release(gen, "removed")
	return nil
}

// Len returns the number of registered generations.
func (r *Registry) Len() int {
	return r.generations.Size()
}

// Cleanup drops expired generations.
func (r *Registry) Cleanup() int {
	return r.generations.Cleanup()
}

func (r *Registry) release(gen *Generation, reason string) {
	gen.cancel()
	if r.config.OnRelease != nil {
		r.config.OnRelease(gen)
	}
	r.config.Logger.Debug("generation released",
		slog.String("generation_id", gen.ID),
		slog.String("reason", reason),
	)
}
