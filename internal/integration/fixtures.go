package integration

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/smorand/google-slides-deckbuilder/internal/auth"
	"github.com/smorand/google-slides-deckbuilder/internal/remote"
)

// Environment variable names for integration tests.
const (
	EnvIntegrationTest     = "INTEGRATION_TEST"
	EnvGoogleClientID      = "GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret  = "GOOGLE_CLIENT_SECRET"
	EnvGoogleRefreshToken  = "GOOGLE_REFRESH_TOKEN"
	EnvTestMasterDeckID    = "TEST_MASTER_DECK_ID"
	EnvTestCatalogURL      = "TEST_CATALOG_URL"
	EnvTestFolderID        = "TEST_FOLDER_ID"
	EnvTestCompanionID     = "TEST_COMPANION_TEMPLATE_ID"
	EnvGoogleProjectID     = "GOOGLE_PROJECT_ID"
	EnvFirestoreEmulator   = "FIRESTORE_EMULATOR_HOST"
	defaultIntegrationWait = 2 * time.Minute
)

// TestConfig holds configuration for integration tests.
type TestConfig struct {
	ClientID            string
	ClientSecret        string
	RefreshToken        string
	MasterDeckID        string
	CatalogURL          string
	FolderID            string
	CompanionTemplateID string
	ProjectID           string
}

// SkipIfNoIntegration skips the test if integration tests are not enabled.
func SkipIfNoIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv(EnvIntegrationTest) != "1" {
		t.Skip("Integration tests are disabled. Set INTEGRATION_TEST=1 to enable.")
	}
}

// LoadConfig loads test configuration from environment variables.
func LoadConfig(t *testing.T) *TestConfig {
	t.Helper()

	clientID := os.Getenv(EnvGoogleClientID)
	clientSecret := os.Getenv(EnvGoogleClientSecret)
	refreshToken := os.Getenv(EnvGoogleRefreshToken)

	if clientID == "" || clientSecret == "" || refreshToken == "" {
		t.Skipf("Missing required environment variables (%s, %s, %s)",
			EnvGoogleClientID, EnvGoogleClientSecret, EnvGoogleRefreshToken)
	}

	return &TestConfig{
		ClientID:            clientID,
		ClientSecret:        clientSecret,
		RefreshToken:        refreshToken,
		MasterDeckID:        os.Getenv(EnvTestMasterDeckID),
		CatalogURL:          os.Getenv(EnvTestCatalogURL),
		FolderID:            os.Getenv(EnvTestFolderID),
		CompanionTemplateID: os.Getenv(EnvTestCompanionID),
		ProjectID:           os.Getenv(EnvGoogleProjectID),
	}
}

// RequireDeck skips the test unless a master deck, catalog and folder are configured.
func (c *TestConfig) RequireDeck(t *testing.T) {
	t.Helper()
	if c.MasterDeckID == "" || c.CatalogURL == "" || c.FolderID == "" {
		t.Skipf("Missing deck environment variables (%s, %s, %s)",
			EnvTestMasterDeckID, EnvTestCatalogURL, EnvTestFolderID)
	}
}

// Fixtures manages test fixtures and cleanup.
type Fixtures struct {
	t           *testing.T
	config      *TestConfig
	tokenSource oauth2.TokenSource
	driveClient *drive.Service

	// Track created resources for cleanup
	mu           sync.Mutex
	files        []string
	cleanupFuncs []func()
}

// NewFixtures creates a new test fixtures manager.
func NewFixtures(t *testing.T, config *TestConfig) *Fixtures {
	t.Helper()

	f := &Fixtures{
		t:      t,
		config: config,
	}

	oauthConfig := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       auth.DefaultScopes,
	}
	f.tokenSource = oauthConfig.TokenSource(context.Background(), &oauth2.Token{
		RefreshToken: config.RefreshToken,
	})

	client, err := drive.NewService(context.Background(), option.WithTokenSource(f.tokenSource))
	if err != nil {
		t.Fatalf("Failed to create Drive service: %v", err)
	}
	f.driveClient = client

	t.Cleanup(f.Cleanup)
	return f
}

// TokenSource returns the OAuth2 token source for testing.
func (f *Fixtures) TokenSource() oauth2.TokenSource {
	return f.tokenSource
}

// Service returns a remote deck service acting as the test user.
func (f *Fixtures) Service() remote.Service {
	return remote.NewGoogleService(remote.Config{Logger: f.Logger()}, f.tokenSource, nil, nil)
}

// Logger returns a logger writing to the test log.
func (f *Fixtures) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{f.t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// TrackFile adds a Drive file to the cleanup list.
func (f *Fixtures) TrackFile(id string) {
	if id == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, id)
}

// RegisterCleanup registers a cleanup function to be called after the test.
func (f *Fixtures) RegisterCleanup(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupFuncs = append(f.cleanupFuncs, fn)
}

// Cleanup runs the registered functions and trashes tracked files.
func (f *Fixtures) Cleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := len(f.cleanupFuncs) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if r := recover(); r != nil {
					f.t.Logf("Cleanup function panicked: %v", r)
				}
			}()
			f.cleanupFuncs[i]()
		}()
	}

	for _, id := range f.files {
		if id == f.config.MasterDeckID || id == f.config.CompanionTemplateID {
			continue
		}
		_, err := f.driveClient.Files.Update(id, &drive.File{Trashed: true}).
			SupportsAllDrives(true).Context(ctx).Do()
		if err != nil {
			f.t.Logf("Warning: failed to trash test file %s: %v", id, err)
		} else {
			f.t.Logf("Trashed test file: %s", id)
		}
	}

	f.files = nil
	f.cleanupFuncs = nil
}

// TestTimeout returns a context with a standard timeout for integration tests.
func TestTimeout(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), defaultIntegrationWait)
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
