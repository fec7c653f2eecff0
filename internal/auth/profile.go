package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// ErrProfileUnavailable is returned when the signed-in user's identity cannot be read.
var ErrProfileUnavailable = errors.New("failed to read user profile")

// Profile identifies the signed-in user.
type Profile struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ProfileFetcher reads the profile of the token's owner.
type ProfileFetcher interface {
	Fetch(ctx context.Context, tokenSource oauth2.TokenSource) (*Profile, error)
}

// GoogleProfileFetcher reads profiles from the Google userinfo endpoint.
type GoogleProfileFetcher struct{}

// Fetch returns the user's email and display name.
func (GoogleProfileFetcher) Fetch(ctx context.Context, tokenSource oauth2.TokenSource) (*Profile, error) {
	srv, err := googleoauth.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
	}

	info, err := srv.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
	}
	if info.Email == "" {
		return nil, fmt.Errorf("%w: no email granted", ErrProfileUnavailable)
	}

	return &Profile{Email: info.Email, Name: info.Name}, nil
}
