package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ErrNoRefreshToken is returned when consent did not yield offline access.
var ErrNoRefreshToken = errors.New("no refresh token received")

// SessionCallbackConfig configures the session callback.
type SessionCallbackConfig struct {
	Store    SessionStore
	Profiles ProfileFetcher
	Logger   *slog.Logger
}

// NewSessionCallback creates a TokenCallback that reads the user's profile
// and stores a new session under a random key.
func NewSessionCallback(config SessionCallbackConfig) TokenCallback {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	profiles := config.Profiles
	if profiles == nil {
		profiles = GoogleProfileFetcher{}
	}

	return func(ctx context.Context, token *oauth2.Token) (*SessionResult, error) {
		if token.RefreshToken == "" {
			return nil, ErrNoRefreshToken
		}

		profile, err := profiles.Fetch(ctx, oauth2.StaticTokenSource(token))
		if err != nil {
			return nil, err
		}

		now := time.Now()
		record := &SessionRecord{
			SessionKey:   uuid.NewString(),
			RefreshToken: token.RefreshToken,
			UserEmail:    profile.Email,
			UserName:     profile.Name,
			CreatedAt:    now,
			LastUsed:     now,
		}

		if err := config.Store.Store(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to store session: %w", err)
		}

		logger.Info("session created",
			slog.String("session_prefix", record.SessionKey[:8]+"..."),
			slog.String("user_email", profile.Email),
		)

		return &SessionResult{
			SessionKey: record.SessionKey,
			UserEmail:  profile.Email,
			UserName:   profile.Name,
		}, nil
	}
}
