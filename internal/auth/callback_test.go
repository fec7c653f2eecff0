package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// mockProfileFetcher implements ProfileFetcher for testing.
type mockProfileFetcher struct {
	FetchFunc func(ctx context.Context, tokenSource oauth2.TokenSource) (*Profile, error)
}

func (m *mockProfileFetcher) Fetch(ctx context.Context, tokenSource oauth2.TokenSource) (*Profile, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, tokenSource)
	}
	return nil, errors.New("not implemented")
}

// failingStore rejects every write.
type failingStore struct {
	*MemorySessionStore
	err error
}

func (f *failingStore) Store(ctx context.Context, record *SessionRecord) error {
	return f.err
}

func janeProfile() *mockProfileFetcher {
	return &mockProfileFetcher{
		FetchFunc: func(ctx context.Context, tokenSource oauth2.TokenSource) (*Profile, error) {
			tok, err := tokenSource.Token()
			if err != nil {
				return nil, err
			}
			if tok.AccessToken != "test-access-token" {
				return nil, errors.New("unexpected access token")
			}
			return &Profile{Email: "jane@example.com", Name: "Jane Doe"}, nil
		},
	}
}

func testToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "test-access-token",
		RefreshToken: "test-refresh-token",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func TestNewSessionCallback_Success(t *testing.T) {
	store := NewMemorySessionStore(MemoryStoreConfig{})
	callback := NewSessionCallback(SessionCallbackConfig{
		Store:    store,
		Profiles: janeProfile(),
	})

	result, err := callback(context.Background(), testToken())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.SessionKey == "" {
		t.Fatal("expected session key in result")
	}
	if result.UserEmail != "jane@example.com" || result.UserName != "Jane Doe" {
		t.Errorf("unexpected profile in result: %+v", result)
	}

	record, err := store.Get(context.Background(), result.SessionKey)
	if err != nil {
		t.Fatalf("failed to get stored record: %v", err)
	}
	if record.RefreshToken != "test-refresh-token" {
		t.Errorf("expected refresh token 'test-refresh-token', got %s", record.RefreshToken)
	}
	if record.UserEmail != "jane@example.com" {
		t.Errorf("expected email jane@example.com, got %s", record.UserEmail)
	}
	if record.CreatedAt.IsZero() || !record.CreatedAt.Equal(record.LastUsed) {
		t.Error("expected CreatedAt and LastUsed to be set and equal initially")
	}
}

func TestNewSessionCallback_UniqueKeys(t *testing.T) {
	store := NewMemorySessionStore(MemoryStoreConfig{})
	callback := NewSessionCallback(SessionCallbackConfig{
		Store:    store,
		Profiles: janeProfile(),
	})

	first, err := callback(context.Background(), testToken())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := callback(context.Background(), testToken())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.SessionKey == second.SessionKey {
		t.Error("expected a new session key per sign-in")
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 sessions, got %d", store.Len())
	}
}

func TestNewSessionCallback_Errors(t *testing.T) {
	profileErr := errors.New("userinfo unavailable")
	storeErr := errors.New("firestore unavailable")

	tests := []struct {
		name     string
		token    *oauth2.Token
		profiles ProfileFetcher
		store    SessionStore
		wantErr  error
	}{
		{
			name:     "no refresh token",
			token:    &oauth2.Token{AccessToken: "test-access-token"},
			profiles: janeProfile(),
			store:    NewMemorySessionStore(MemoryStoreConfig{}),
			wantErr:  ErrNoRefreshToken,
		},
		{
			name:  "profile failure",
			token: testToken(),
			profiles: &mockProfileFetcher{FetchFunc: func(ctx context.Context, ts oauth2.TokenSource) (*Profile, error) {
				return nil, profileErr
			}},
			store:   NewMemorySessionStore(MemoryStoreConfig{}),
			wantErr: profileErr,
		},
		{
			name:     "store failure",
			token:    testToken(),
			profiles: janeProfile(),
			store:    &failingStore{MemorySessionStore: NewMemorySessionStore(MemoryStoreConfig{}), err: storeErr},
			wantErr:  storeErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callback := NewSessionCallback(SessionCallbackConfig{
				Store:    tt.store,
				Profiles: tt.profiles,
			})

			result, err := callback(context.Background(), tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
			if result != nil {
				t.Error("expected nil result on error")
			}
		})
	}
}
