package generator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(ttl time.Duration, onRelease func(*Generation)) *Registry {
	return NewRegistry(RegistryConfig{
		TTL:       ttl,
		OnRelease: onRelease,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func buildIdle(id string) *Generator {
	return New(&mockService{}, Config{}, nil)
}

func TestRegistry_ScopedToOwner(t *testing.T) {
	r := newTestRegistry(time.Hour, nil)
	g := New(&mockService{}, Config{}, nil)

	var builtFor string
	gen := r.Add(context.Background(), "session-a", "se", func(id string) *Generator {
		builtFor = id
		return g
	})
	require.NotEmpty(t, gen.ID)
	assert.Equal(t, gen.ID, builtFor)
	assert.Equal(t, "se", gen.TeamID)

	got, err := r.Get("session-a", gen.ID)
	require.NoError(t, err)
	assert.Same(t, g, got.Generator)

	_, err = r.Get("session-b", gen.ID)
	assert.ErrorIs(t, err, ErrGenerationNotFound)

	_, err = r.Get("session-a", "unknown")
	assert.ErrorIs(t, err, ErrGenerationNotFound)
}

func TestRegistry_UniqueIDs(t *testing.T) {
	r := newTestRegistry(time.Hour, nil)

	a := r.Add(context.Background(), "s", "se", buildIdle)
	b := r.Add(context.Background(), "s", "se", buildIdle)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_RemoveCancels(t *testing.T) {
	var released []string
	r := newTestRegistry(time.Hour, func(gen *Generation) { released = append(released, gen.ID) })

	gen := r.Add(context.Background(), "s", "se", buildIdle)
	ctx := gen.Context()

	assert.ErrorIs(t, r.Remove("other", gen.ID), ErrGenerationNotFound)
	assert.NoError(t, ctx.Err())

	require.NoError(t, r.Remove("s", gen.ID))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Zero(t, r.Len())
	assert.Equal(t, []string{gen.ID}, released)
}

func TestRegistry_ExpiryCancels(t *testing.T) {
	r := newTestRegistry(10*time.Millisecond, nil)

	gen := r.Add(context.Background(), "s", "se", buildIdle)
	ctx := gen.Context()
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 1, r.Cleanup())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	_, err := r.Get("s", gen.ID)
	assert.ErrorIs(t, err, ErrGenerationNotFound)
}

func TestRegistry_LookupDoesNotExtendTTL(t *testing.T) {
	r := newTestRegistry(100*time.Millisecond, nil)

	gen := r.Add(context.Background(), "s", "se", buildIdle)
	time.Sleep(60 * time.Millisecond)
	_, err := r.Get("s", gen.ID)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	_, err = r.Get("s", gen.ID)
	assert.ErrorIs(t, err, ErrGenerationNotFound)
	assert.ErrorIs(t, gen.Context().Err(), context.Canceled)
}

func TestRegistry_ContextDerivesFromParent(t *testing.T) {
	r := newTestRegistry(time.Hour, nil)
	parent, cancel := context.WithCancel(context.Background())

	gen := r.Add(parent, "s", "se", buildIdle)
	cancel()

	assert.ErrorIs(t, gen.Context().Err(), context.Canceled)
}
