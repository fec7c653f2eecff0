package ratelimit

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTokenBucket_Allow(t *testing.T) {
	t.Run("allows requests within limit", func(t *testing.T) {
		bucket := NewTokenBucket(10.0, 5)

		for i := range 5 {
			allowed, remaining, retryAfter := bucket.Allow()
			if !allowed {
				t.Errorf("request %d should be allowed", i+1)
			}
			if remaining != 4-i {
				t.Errorf("expected remaining %d, got %d", 4-i, remaining)
			}
			if retryAfter != 0 {
				t.Errorf("expected no retry delay, got %v", retryAfter)
			}
		}
	})

	t.Run("blocks requests when exhausted", func(t *testing.T) {
		bucket := NewTokenBucket(10.0, 2)

		bucket.Allow()
		bucket.Allow()

		allowed, remaining, retryAfter := bucket.Allow()
		if allowed {
			t.Error("request should be blocked when tokens exhausted")
		}
		if remaining != 0 {
			t.Errorf("expected remaining 0, got %d", remaining)
		}
		if retryAfter <= 0 {
			t.Error("expected positive retry delay")
		}
	})

	t.Run("refills tokens over time", func(t *testing.T) {
		bucket := NewTokenBucket(100.0, 2)

		bucket.Allow()
		bucket.Allow()

		time.Sleep(20 * time.Millisecond)

		if allowed, _, _ := bucket.Allow(); !allowed {
			t.Error("request should be allowed after refill")
		}
	})

	t.Run("never exceeds burst", func(t *testing.T) {
		bucket := NewTokenBucket(1000.0, 3)
		time.Sleep(10 * time.Millisecond)

		if remaining := bucket.Remaining(); remaining != 3 {
			t.Errorf("expected remaining capped at 3, got %d", remaining)
		}
	})
}

func TestNew_Defaults(t *testing.T) {
	limiter := New(Config{})

	if limiter.config.RequestsPerSecond != 5.0 {
		t.Errorf("expected 5 req/s, got %f", limiter.config.RequestsPerSecond)
	}
	if limiter.config.BurstSize != 10 {
		t.Errorf("expected burst 10, got %d", limiter.config.BurstSize)
	}
	if limiter.config.IdleTTL != 10*time.Minute {
		t.Errorf("expected idle TTL 10m, got %v", limiter.config.IdleTTL)
	}
}

func TestLimiter_PerClientBuckets(t *testing.T) {
	limiter := New(Config{RequestsPerSecond: 0.001, BurstSize: 2, Logger: testLogger()})

	for i := 0; i < 2; i++ {
		if allowed, _, _ := limiter.Allow("session-a"); !allowed {
			t.Fatalf("request %d for session-a should be allowed", i+1)
		}
	}
	if allowed, _, _ := limiter.Allow("session-a"); allowed {
		t.Error("session-a should be limited")
	}
	if allowed, _, _ := limiter.Allow("session-b"); !allowed {
		t.Error("session-b has its own bucket")
	}
	if limiter.Clients() != 2 {
		t.Errorf("expected 2 tracked clients, got %d", limiter.Clients())
	}
}

func TestLimiter_MaxClients(t *testing.T) {
	limiter := New(Config{BurstSize: 1, MaxClients: 2, Logger: testLogger()})

	limiter.Allow("a")
	limiter.Allow("b")
	limiter.Allow("c")

	if limiter.Clients() != 2 {
		t.Errorf("expected bucket count bounded at 2, got %d", limiter.Clients())
	}
}

func TestLimiter_Middleware(t *testing.T) {
	limiter := New(Config{RequestsPerSecond: 0.001, BurstSize: 1, Logger: testLogger()})

	var calls int
	handler := limiter.Middleware(func(r *http.Request) string {
		return r.Header.Get("X-Session")
	}, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/logo?query=acme", nil)
	req.Header.Set("X-Session", "s1")

	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "1" {
		t.Errorf("expected limit header 1, got %q", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["error"] != "rate limit exceeded" {
		t.Errorf("unexpected error body: %v", body)
	}
	if calls != 1 {
		t.Errorf("expected handler called once, got %d", calls)
	}

	other := httptest.NewRequest(http.MethodGet, "/api/logo?query=acme", nil)
	other.Header.Set("X-Session", "s2")
	rec = httptest.NewRecorder()
	handler(rec, other)
	if rec.Code != http.StatusOK {
		t.Errorf("expected another session to pass, got %d", rec.Code)
	}
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	limiter := New(Config{RequestsPerSecond: 0.001, BurstSize: 50, Logger: testLogger()})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _, _ := limiter.Allow("shared"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("expected exactly 50 allowed, got %d", allowed)
	}
}
