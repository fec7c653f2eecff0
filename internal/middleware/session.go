// Package middleware authenticates API requests by session key.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/smorand/google-slides-deckbuilder/internal/auth"
	"github.com/smorand/google-slides-deckbuilder/internal/cache"
)

type contextKey string

const (
	sessionKeyContextKey  contextKey = "session_key"
	userEmailContextKey   contextKey = "user_email"
	userNameContextKey    contextKey = "user_name"
	tokenSourceContextKey contextKey = "token_source"
)

// Sentinel errors for session validation.
var (
	ErrMissingSession      = errors.New("missing session key")
	ErrInvalidAuthHeader   = errors.New("invalid Authorization header format")
	ErrInvalidSession      = errors.New("invalid session")
	ErrSessionLookupFailed = errors.New("failed to lookup session")
)

// TokenSourceFunc builds a refreshing token source from a refresh token.
type TokenSourceFunc func(ctx context.Context, refreshToken string) oauth2.TokenSource

// SessionConfig holds configuration for the session middleware.
type SessionConfig struct {
	Store       auth.SessionStore
	Tokens      *cache.TokenCache
	TokenSource TokenSourceFunc
	// UpdateLastUsed touches the stored session when its token source is built.
	UpdateLastUsed bool
	Logger         *slog.Logger
}

// Session validates session keys and attaches the user's token source.
type Session struct {
	config SessionConfig
}

// NewSession creates a new session middleware.
func NewSession(config SessionConfig) *Session {
	if config.Tokens == nil {
		config.Tokens = cache.NewTokenCache(cache.DefaultTokenCacheConfig())
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Session{config: config}
}

// Middleware returns an HTTP middleware that rejects unauthenticated requests.
func (m *Session) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionKey, err := extractSessionKey(r)
		if err != nil {
			m.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		cached, err := m.resolve(r.Context(), sessionKey)
		if err != nil {
			if errors.Is(err, ErrInvalidSession) {
				m.writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			m.config.Logger.Error("failed to validate session", slog.Any("error", err))
			m.writeError(w, http.StatusInternalServerError, "authentication failed")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), cached)))
	})
}

// extractSessionKey reads the Bearer token. Session keys are never read from
// the URL; websocket clients use a stream ticket instead.
func extractSessionKey(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingSession
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrInvalidAuthHeader
	}

	key := strings.TrimSpace(parts[1])
	if key == "" {
		return "", ErrInvalidAuthHeader
	}
	return key, nil
}

// resolve returns the cached token source for a session, building it from the
// store on a miss.
func (m *Session) resolve(ctx context.Context, sessionKey string) (*cache.CachedToken, error) {
	if cached, ok := m.config.Tokens.Get(sessionKey); ok {
		return cached, nil
	}

	record, err := m.config.Store.Get(ctx, sessionKey)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, errors.Join(ErrSessionLookupFailed, err)
	}

	// Token refreshes outlive the request that triggered them.
	tokenSource := m.config.TokenSource(context.Background(), record.RefreshToken)

	cached := &cache.CachedToken{
		SessionKey:  sessionKey,
		UserEmail:   record.UserEmail,
		UserName:    record.UserName,
		TokenSource: tokenSource,
		CachedAt:    time.Now(),
	}
	m.config.Tokens.Set(cached)

	if m.config.UpdateLastUsed {
		go m.updateLastUsed(sessionKey)
	}
	return cached, nil
}

func (m *Session) updateLastUsed(sessionKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.config.Store.UpdateLastUsed(ctx, sessionKey); err != nil {
		m.config.Logger.Warn("failed to update last_used timestamp",
			slog.String("session_prefix", prefix(sessionKey)),
			slog.Any("error", err),
		)
	}
}

// writeError writes a JSON error response.
func (m *Session) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func prefix(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}

// WithSession stores an authenticated session in ctx.
func WithSession(ctx context.Context, t *cache.CachedToken) context.Context {
	ctx = context.WithValue(ctx, sessionKeyContextKey, t.SessionKey)
	ctx = context.WithValue(ctx, userEmailContextKey, t.UserEmail)
	ctx = context.WithValue(ctx, userNameContextKey, t.UserName)
	return context.WithValue(ctx, tokenSourceContextKey, t.TokenSource)
}

// GetSessionKey retrieves the session key from the request context.
func GetSessionKey(ctx context.Context) string {
	v, _ := ctx.Value(sessionKeyContextKey).(string)
	return v
}

// GetUserEmail retrieves the user email from the request context.
func GetUserEmail(ctx context.Context) string {
	v, _ := ctx.Value(userEmailContextKey).(string)
	return v
}

// GetUserName retrieves the user's display name from the request context.
func GetUserName(ctx context.Context) string {
	v, _ := ctx.Value(userNameContextKey).(string)
	return v
}

// GetTokenSource retrieves the OAuth2 token source from the request context.
func GetTokenSource(ctx context.Context) oauth2.TokenSource {
	v, _ := ctx.Value(tokenSourceContextKey).(oauth2.TokenSource)
	return v
}
