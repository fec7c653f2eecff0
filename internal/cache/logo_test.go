package cache

import (
	"testing"
	"time"
)

func TestLogoCacheNormalizesKey(t *testing.T) {
	cache := NewLogoCache(LogoCacheConfig{TTL: time.Hour, Logger: testLogger()})

	cache.Set("  Acme ", "https://logo.example/acme.png")

	url, ok := cache.Get("acme")
	if !ok {
		t.Fatal("expected lookup by normalized name to hit")
	}
	if url != "https://logo.example/acme.png" {
		t.Errorf("unexpected url %q", url)
	}

	cache.Invalidate("ACME")
	if _, ok := cache.Get("acme"); ok {
		t.Error("expected acme to be invalidated")
	}
}

func TestLogoCacheRemembersMisses(t *testing.T) {
	cache := NewLogoCache(LogoCacheConfig{Logger: testLogger()})

	cache.Set("Nobody Inc", "")

	url, ok := cache.Get("nobody inc")
	if !ok {
		t.Fatal("expected a cached miss")
	}
	if url != "" {
		t.Errorf("expected empty url, got %q", url)
	}
	if cache.Size() != 1 {
		t.Errorf("expected size 1, got %d", cache.Size())
	}
}

func TestLogoCacheDefaults(t *testing.T) {
	cache := NewLogoCache(LogoCacheConfig{})

	if cache.config.TTL != time.Hour {
		t.Errorf("expected default TTL of an hour, got %v", cache.config.TTL)
	}
	if cache.config.MaxEntries != 500 {
		t.Errorf("expected default of 500 entries, got %d", cache.config.MaxEntries)
	}
}
