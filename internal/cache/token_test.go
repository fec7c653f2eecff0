package cache

import (
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestTokenCacheSetAndGet(t *testing.T) {
	cache := NewTokenCache(TokenCacheConfig{Logger: testLogger()})

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access"})
	cache.Set(&CachedToken{SessionKey: "session-1", UserEmail: "sam@example.com", TokenSource: source})

	cached, ok := cache.Get("session-1")
	if !ok {
		t.Fatal("expected session-1 to be cached")
	}
	if cached.TokenSource != source {
		t.Error("expected the same token source back")
	}
	if cached.CachedAt.IsZero() {
		t.Error("expected CachedAt to be set")
	}

	cache.Invalidate("session-1")
	if _, ok := cache.Get("session-1"); ok {
		t.Error("expected session-1 to be invalidated")
	}
}

func TestTokenCacheInvalidateByEmail(t *testing.T) {
	cache := NewTokenCache(TokenCacheConfig{Logger: testLogger()})

	cache.Set(&CachedToken{SessionKey: "s1", UserEmail: "sam@example.com"})
	cache.Set(&CachedToken{SessionKey: "s2", UserEmail: "sam@example.com"})
	cache.Set(&CachedToken{SessionKey: "s3", UserEmail: "alex@example.com"})

	if n := cache.InvalidateByEmail("sam@example.com"); n != 2 {
		t.Errorf("expected 2 invalidations, got %d", n)
	}
	if cache.Size() != 1 {
		t.Errorf("expected 1 remaining token, got %d", cache.Size())
	}
	if _, ok := cache.Get("s3"); !ok {
		t.Error("expected alex's session to remain")
	}
}

func TestTokenCacheDefaults(t *testing.T) {
	cache := NewTokenCache(TokenCacheConfig{})

	if cache.config.TTL != 55*time.Minute {
		t.Errorf("expected 55 minute TTL, got %v", cache.config.TTL)
	}
	if cache.config.MaxEntries != 500 {
		t.Errorf("expected 500 entries, got %d", cache.config.MaxEntries)
	}
}
