package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"

	"github.com/smorand/google-slides-deckbuilder/internal/auth"
)

func TestExtractSessionKey(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		target     string
		wantKey    string
		wantErr    error
	}{
		{
			name:       "valid bearer token",
			authHeader: "Bearer session-12345",
			target:     "/",
			wantKey:    "session-12345",
		},
		{
			name:       "valid bearer token lowercase",
			authHeader: "bearer session-12345",
			target:     "/",
			wantKey:    "session-12345",
		},
		{
			name:       "valid bearer token with extra spaces",
			authHeader: "Bearer   session-12345  ",
			target:     "/",
			wantKey:    "session-12345",
		},
		{
			name:    "session key in query is ignored",
			target:  "/api/generations/g1/events?access_token=session-12345",
			wantErr: ErrMissingSession,
		},
		{
			name:    "missing session",
			target:  "/",
			wantErr: ErrMissingSession,
		},
		{
			name:       "invalid format - no bearer",
			authHeader: "Basic session-12345",
			target:     "/",
			wantErr:    ErrInvalidAuthHeader,
		},
		{
			name:       "invalid format - only spaces after bearer",
			authHeader: "Bearer   ",
			target:     "/",
			wantErr:    ErrInvalidAuthHeader,
		},
		{
			name:       "invalid format - no space",
			authHeader: "Bearertoken",
			target:     "/",
			wantErr:    ErrInvalidAuthHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			key, err := extractSessionKey(req)

			if err != tt.wantErr {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
			if key != tt.wantKey {
				t.Errorf("expected key %q, got %q", tt.wantKey, key)
			}
		})
	}
}

// countingStore wraps a MemorySessionStore and counts lookups.
type countingStore struct {
	*auth.MemorySessionStore
	gets   int
	getErr error
}

func (c *countingStore) Get(ctx context.Context, key string) (*auth.SessionRecord, error) {
	c.gets++
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.MemorySessionStore.Get(ctx, key)
}

func newTestSession(store auth.SessionStore) (*Session, *[]string) {
	var refreshTokens []string
	return NewSession(SessionConfig{
		Store: store,
		TokenSource: func(ctx context.Context, refreshToken string) oauth2.TokenSource {
			refreshTokens = append(refreshTokens, refreshToken)
			return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access-for-" + refreshToken})
		},
	}), &refreshTokens
}

func TestSession_Middleware_Authenticates(t *testing.T) {
	store := &countingStore{MemorySessionStore: auth.NewMemorySessionStore(auth.MemoryStoreConfig{})}
	store.Store(context.Background(), &auth.SessionRecord{
		SessionKey:   "session-1",
		RefreshToken: "refresh-1",
		UserEmail:    "jane@example.com",
		UserName:     "Jane Doe",
	})
	session, built := newTestSession(store)

	var gotEmail, gotName, gotKey, gotAccess string
	handler := session.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = GetSessionKey(r.Context())
		gotEmail = GetUserEmail(r.Context())
		gotName = GetUserName(r.Context())
		tok, err := GetTokenSource(r.Context()).Token()
		if err == nil {
			gotAccess = tok.AccessToken
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer session-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
		}
	}

	if gotKey != "session-1" || gotEmail != "jane@example.com" || gotName != "Jane Doe" {
		t.Errorf("unexpected context values: key=%q email=%q name=%q", gotKey, gotEmail, gotName)
	}
	if gotAccess != "access-for-refresh-1" {
		t.Errorf("expected token source built from refresh token, got %q", gotAccess)
	}
	if store.gets != 1 {
		t.Errorf("expected 1 store lookup thanks to the token cache, got %d", store.gets)
	}
	if len(*built) != 1 {
		t.Errorf("expected 1 token source built, got %d", len(*built))
	}
}

func TestSession_Middleware_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		getErr     error
		wantStatus int
	}{
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "unknown session", authHeader: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "store failure", authHeader: "Bearer s1", getErr: errors.New("firestore down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &countingStore{
				MemorySessionStore: auth.NewMemorySessionStore(auth.MemoryStoreConfig{}),
				getErr:             tt.getErr,
			}
			session, _ := newTestSession(store)

			called := false
			handler := session.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if called {
				t.Error("next handler must not run")
			}

			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body["error"] == "" {
				t.Error("expected error message")
			}
		})
	}
}
