// Package logo looks up company logos by name for the title slide.
package logo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/smorand/google-slides-deckbuilder/internal/cache"
)

// DefaultEndpoint is the company autocomplete API.
const DefaultEndpoint = "https://autocomplete.clearbit.com/v1/companies/suggest"

// ErrLookupFailed is returned when the autocomplete API fails or answers garbage.
var ErrLookupFailed = errors.New("logo lookup failed")

// Config holds configuration for the Finder.
type Config struct {
	Endpoint   string
	HTTPClient *http.Client
	Timeout    time.Duration
	Cache      *cache.LogoCache
	Logger     *slog.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:   DefaultEndpoint,
		HTTPClient: http.DefaultClient,
		Timeout:    5 * time.Second,
		Logger:     slog.Default(),
	}
}

// suggestion is one autocomplete result.
type suggestion struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Logo   string `json:"logo"`
}

type inflight struct {
	id     uint64
	cancel context.CancelFunc
}

// Finder resolves company names to logo URLs. At most one lookup per field is
// in flight: a newer lookup for the same field cancels the older one.
type Finder struct {
	config Config

	mu       sync.Mutex
	seq      uint64
	inflight map[string]inflight
}

// NewFinder creates a new Finder.
func NewFinder(config Config) *Finder {
	defaults := DefaultConfig()
	if config.Endpoint == "" {
		config.Endpoint = defaults.Endpoint
	}
	if config.HTTPClient == nil {
		config.HTTPClient = defaults.HTTPClient
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Cache == nil {
		config.Cache = cache.NewLogoCache(cache.LogoCacheConfig{Logger: config.Logger})
	}

	return &Finder{
		config:   config,
		inflight: make(map[string]inflight),
	}
}

// Lookup returns the logo URL for company, or "" when none is known.
// field keys the last-writer-wins slot; a superseded call returns context.Canceled.
func (f *Finder) Lookup(ctx context.Context, field, company string) (string, error) {
	ctx, done := f.claim(ctx, field)
	defer done()

	company = strings.TrimSpace(company)
	if company == "" {
		return "", nil
	}

	if logoURL, ok := f.config.Cache.Get(company); ok {
		return logoURL, nil
	}

	logoURL, err := f.fetch(ctx, company)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		f.config.Logger.Warn("logo lookup failed",
			slog.String("company", company),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	f.config.Cache.Set(company, logoURL)
	return logoURL, nil
}

// claim cancels the lookup in flight for field and registers a new one.
func (f *Finder) claim(ctx context.Context, field string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	f.mu.Lock()
	if prev, ok := f.inflight[field]; ok {
		prev.cancel()
	}
	f.seq++
	id := f.seq
	f.inflight[field] = inflight{id: id, cancel: cancel}
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		if cur, ok := f.inflight[field]; ok && cur.id == id {
			delete(f.inflight, field)
		}
		f.mu.Unlock()
		cancel()
	}
}

func (f *Finder) fetch(ctx context.Context, company string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	endpoint := f.config.Endpoint + "?query=" + url.QueryEscape(company)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.config.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status code: %d", ErrLookupFailed, resp.StatusCode)
	}

	var suggestions []suggestion
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&suggestions); err != nil {
		return "", fmt.Errorf("%w: invalid response: %v", ErrLookupFailed, err)
	}

	if len(suggestions) == 0 {
		return "", nil
	}
	return suggestions[0].Logo, nil
}
