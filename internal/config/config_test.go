package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9090
teams:
  - id: se
    master_deck_id: master-se
    catalog_url: https://catalog.example/se
  - id: data
    master_deck_id: master-data
    catalog_url: https://catalog.example/data
    logo_placements:
      - placeholder: "{{LOGO}}"
      - slide_index: 4
        placement:
          width: 2000000
          height: 2000000
          scale_x: 0.5
          scale_y: 0.5
          translate_x: 100
          translate_y: 200
generation:
  companion_template_id: companion-1
retry:
  max_retries: 2
  initial_delay: 250ms
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deckbuilder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestParse_KeepsDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, Parse([]byte(sampleYAML), &cfg))
	require.NoError(t, cfg.ApplyEnv(noEnv))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout, "absent keys keep defaults")
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 4*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, " | Optimizely Overview", cfg.Generation.DeckSuffix)
	assert.Equal(t, "companion-1", cfg.Generation.CompanionTemplateID)

	data, ok := cfg.Team("data")
	require.True(t, ok)
	require.Len(t, data.LogoPlacements, 2)
	assert.Equal(t, "{{LOGO}}", data.LogoPlacements[0].Placeholder)
	assert.Equal(t, 4, data.LogoPlacements[1].SlideIndex)
	require.NotNil(t, data.LogoPlacements[1].Placement)
	assert.Equal(t, 0.5, data.LogoPlacements[1].Placement.ScaleX)

	gt := data.Generator()
	assert.Equal(t, "master-data", gt.MasterDeckID)
	assert.Len(t, gt.LogoPlacements, 2)

	_, ok = cfg.Team("unknown")
	assert.False(t, ok)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	err := Parse([]byte("server:\n  prot: 80\n"), &cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvClientID:     "client-from-env",
		EnvClientSecret: "secret-from-env",
		EnvRedirectURI:  "https://deckbuilder.example/auth/callback",
		EnvProjectID:    "project-from-env",
		EnvPort:         "7000",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	cfg.OAuth.ClientID = "client-from-file"
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, "client-from-env", cfg.OAuth.ClientID)
	assert.Equal(t, "secret-from-env", cfg.OAuth.ClientSecret)
	assert.Equal(t, "https://deckbuilder.example/auth/callback", cfg.OAuth.RedirectURI)
	assert.Equal(t, "project-from-env", cfg.ProjectID)
	assert.Equal(t, 7000, cfg.Server.Port)

	env[EnvPort] = "eighty"
	assert.ErrorIs(t, cfg.ApplyEnv(lookup), ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Teams = []Team{{ID: "se", MasterDeckID: "m", CatalogURL: "https://c"}}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no teams", mutate: func(c *Config) { c.Teams = nil }, wantErr: true},
		{name: "duplicate team", mutate: func(c *Config) { c.Teams = append(c.Teams, c.Teams[0]) }, wantErr: true},
		{name: "missing master deck", mutate: func(c *Config) { c.Teams[0].MasterDeckID = "" }, wantErr: true},
		{name: "missing catalog", mutate: func(c *Config) { c.Teams[0].CatalogURL = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "firestore without project", mutate: func(c *Config) { c.Sessions.FirestoreCollection = "sessions" }, wantErr: true},
		{name: "firestore with project", mutate: func(c *Config) {
			c.Sessions.FirestoreCollection = "sessions"
			c.ProjectID = "p"
		}},
		{name: "secrets without project", mutate: func(c *Config) { c.OAuth.Secrets.ClientID = "id" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: true},
		{name: "json logs", mutate: func(c *Config) { c.LogFormat = "json" }},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvPort, "")
	t.Setenv(EnvClientID, "")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Len(t, cfg.Teams, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv(EnvPort, "")

	cfg, err := Load(filepath.Join("..", "..", "configs", "deckbuilder.example.yaml"))
	require.NoError(t, err)

	data, ok := cfg.Team("data")
	require.True(t, ok)
	require.Len(t, data.LogoPlacements, 1)
	assert.Equal(t, "{{LOGO}}", data.LogoPlacements[0].Placeholder)
	assert.NotEmpty(t, cfg.Generation.CompanionTemplateID)
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ParseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}
