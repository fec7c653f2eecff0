// Package config loads the deck builder's YAML configuration and applies
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smorand/google-slides-deckbuilder/internal/auth"
	"github.com/smorand/google-slides-deckbuilder/internal/generator"
	"github.com/smorand/google-slides-deckbuilder/internal/logo"
)

// ErrInvalidConfig is returned when the configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variables overriding the file.
const (
	EnvClientID     = "GOOGLE_CLIENT_ID"
	EnvClientSecret = "GOOGLE_CLIENT_SECRET"
	EnvRedirectURI  = "GOOGLE_REDIRECT_URI"
	EnvProjectID    = "GOOGLE_PROJECT_ID"
	EnvPort         = "DECKBUILDER_PORT"
)

// Config is the complete deck builder configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	OAuth         OAuthConfig         `yaml:"oauth"`
	ProjectID     string              `yaml:"project_id"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Teams         []Team              `yaml:"teams"`
	Generation    GenerationConfig    `yaml:"generation"`
	Retry         RetryConfig         `yaml:"retry"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Logo          LogoConfig          `yaml:"logo"`
	Notifications NotificationsConfig `yaml:"notifications"`
	LogLevel      string              `yaml:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AllowedOrigins may open event streams; empty means same origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// OAuthConfig holds the OAuth client. Secrets, when named, are read from
// Secret Manager in ProjectID and win over the inline values.
type OAuthConfig struct {
	ClientID     string           `yaml:"client_id"`
	ClientSecret string           `yaml:"client_secret"`
	RedirectURI  string           `yaml:"redirect_uri"`
	Secrets      auth.SecretNames `yaml:"secrets"`
}

// UsesSecretManager reports whether any OAuth value comes from Secret Manager.
func (o OAuthConfig) UsesSecretManager() bool {
	s := o.Secrets
	return s.ClientID != "" || s.ClientSecret != "" || s.RedirectURI != ""
}

// SessionsConfig selects the session store.
type SessionsConfig struct {
	// FirestoreCollection enables the Firestore store in ProjectID.
	FirestoreCollection string        `yaml:"firestore_collection"`
	MaxSessions         int           `yaml:"max_sessions"`
	TTL                 time.Duration `yaml:"ttl"`
}

// Team is one master deck and the catalog describing it.
type Team struct {
	ID             string                    `yaml:"id"`
	Name           string                    `yaml:"name"`
	MasterDeckID   string                    `yaml:"master_deck_id"`
	CatalogURL     string                    `yaml:"catalog_url"`
	LogoPlacements []generator.LogoPlacement `yaml:"logo_placements"`
}

// Generator returns the generator's view of the team.
func (t Team) Generator() generator.Team {
	return generator.Team{
		ID:             t.ID,
		MasterDeckID:   t.MasterDeckID,
		LogoPlacements: t.LogoPlacements,
	}
}

// GenerationConfig holds file naming and the companion template.
type GenerationConfig struct {
	CompanionTemplateID string        `yaml:"companion_template_id"`
	TempName            string        `yaml:"temp_name"`
	DeckSuffix          string        `yaml:"deck_suffix"`
	CompanionSuffix     string        `yaml:"companion_suffix"`
	RegistryTTL         time.Duration `yaml:"registry_ttl"`
}

// RetryConfig is the retry policy for copies.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// CatalogConfig configures catalog fetches.
type CatalogConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LogoConfig configures company logo lookups.
type LogoConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	Timeout           time.Duration `yaml:"timeout"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// NotificationsConfig configures desktop notifications.
type NotificationsConfig struct {
	Icon string `yaml:"icon"`
}

// Default returns the configuration used for zero fields.
func Default() Config {
	defaults := generator.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Sessions: SessionsConfig{
			MaxSessions: 10000,
			TTL:         7 * 24 * time.Hour,
		},
		Generation: GenerationConfig{
			TempName:        defaults.TempName,
			DeckSuffix:      defaults.DeckSuffix,
			CompanionSuffix: defaults.CompanionSuffix,
			RegistryTTL:     2 * time.Hour,
		},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     4 * time.Second,
		},
		Catalog: CatalogConfig{
			Timeout: 15 * time.Second,
		},
		Logo: LogoConfig{
			Endpoint:          logo.DefaultEndpoint,
			Timeout:           5 * time.Second,
			CacheTTL:          time.Hour,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads path (when not empty) over the defaults and applies the
// environment. Unknown keys in the file are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := Parse(data, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML into cfg, keeping the values of absent keys.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ApplyEnv overrides credentials and the port from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvClientID); ok && v != "" {
		c.OAuth.ClientID = v
	}
	if v, ok := lookup(EnvClientSecret); ok && v != "" {
		c.OAuth.ClientSecret = v
	}
	if v, ok := lookup(EnvRedirectURI); ok && v != "" {
		c.OAuth.RedirectURI = v
	}
	if v, ok := lookup(EnvProjectID); ok && v != "" {
		c.ProjectID = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a port", ErrInvalidConfig, EnvPort, v)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if len(c.Teams) == 0 {
		errs = append(errs, errors.New("at least one team is required"))
	}

	seen := make(map[string]bool, len(c.Teams))
	for i, t := range c.Teams {
		switch {
		case t.ID == "":
			errs = append(errs, fmt.Errorf("teams[%d]: id is required", i))
		case seen[t.ID]:
			errs = append(errs, fmt.Errorf("teams[%d]: duplicate id %q", i, t.ID))
		}
		seen[t.ID] = true

		if t.MasterDeckID == "" {
			errs = append(errs, fmt.Errorf("team %q: master_deck_id is required", t.ID))
		}
		if t.CatalogURL == "" {
			errs = append(errs, fmt.Errorf("team %q: catalog_url is required", t.ID))
		}
		for j, p := range t.LogoPlacements {
			if p.Placeholder == "" && p.SlideIndex < 0 {
				errs = append(errs, fmt.Errorf("team %q: logo_placements[%d] has a negative slide_index", t.ID, j))
			}
		}
	}

	if (c.Sessions.FirestoreCollection != "" || c.OAuth.UsesSecretManager()) && c.ProjectID == "" {
		errs = append(errs, errors.New("project_id is required for Firestore sessions and Secret Manager"))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry.max_retries must not be negative"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Team returns the team with the given id.
func (c *Config) Team(id string) (Team, bool) {
	for _, t := range c.Teams {
		if t.ID == id {
			return t, true
		}
	}
	return Team{}, false
}

// ParseLogLevel maps a level name to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
