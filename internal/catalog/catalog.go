// Package catalog loads the sections of a team's master deck from the
// spreadsheet-backed configuration endpoint.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for catalog loading.
var (
	// ErrCatalogUnavailable is returned when the endpoint fails or answers a malformed document.
	ErrCatalogUnavailable = errors.New("deck catalog unavailable")
)

// Section is one contiguous run of slides in the master deck.
// Offset is derived on every load and only valid against the master deck.
type Section struct {
	Order       int    `json:"order"`
	Title       string `json:"title"`
	AgendaTitle string `json:"agenda_title"`
	SlideCount  int    `json:"slide_count"`
	Offset      int    `json:"offset"`
	IsDefault   bool   `json:"is_default"`
}

// Config holds configuration for the Loader.
type Config struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	// MaxBodyBytes bounds the catalog document size.
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		HTTPClient:   http.DefaultClient,
		Timeout:      15 * time.Second,
		MaxBodyBytes: 1 << 20,
		Logger:       slog.Default(),
	}
}

// Loader fetches and normalizes catalogs.
type Loader struct {
	config Config
}

// NewLoader creates a new Loader.
func NewLoader(config Config) *Loader {
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Loader{config: config}
}

// Load fetches the catalog for team from url and returns its sections in source
// order with offsets computed.
func (l *Loader) Load(ctx context.Context, team, url string) ([]Section, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: no catalog configured for team %q", ErrCatalogUnavailable, team)
	}

	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrCatalogUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.config.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", ErrCatalogUnavailable, err)
	}

	sections, err := Parse(data, team)
	if err != nil {
		return nil, err
	}

	l.config.Logger.Info("catalog loaded",
		slog.String("team", team),
		slog.Int("sections", len(sections)),
		slog.Int("slides", TotalSlides(sections)),
	)
	return sections, nil
}

// Parse decodes a catalog document. The document is an object keyed by team
// name; when team is missing and the document holds a single key, that key is used.
func Parse(data []byte, team string) ([]Section, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrCatalogUnavailable, err)
	}

	raw, ok := doc[team]
	if !ok {
		if len(doc) != 1 {
			return nil, fmt.Errorf("%w: no entry for team %q", ErrCatalogUnavailable, team)
		}
		for _, v := range doc {
			raw = v
		}
	}

	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: team entry is not an array: %v", ErrCatalogUnavailable, err)
	}

	sections := make([]Section, 0, len(entries))
	for i, entry := range entries {
		section, err := parseEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrCatalogUnavailable, i, err)
		}
		sections = append(sections, section)
	}

	seen := make(map[int]bool, len(sections))
	for _, s := range sections {
		if seen[s.Order] {
			return nil, fmt.Errorf("%w: duplicate order %d", ErrCatalogUnavailable, s.Order)
		}
		seen[s.Order] = true
	}

	ComputeOffsets(sections)
	return sections, nil
}

// ComputeOffsets sets each section's offset to the sum of the preceding slide counts.
func ComputeOffsets(sections []Section) {
	offset := 0
	for i := range sections {
		sections[i].Offset = offset
		offset += sections[i].SlideCount
	}
}

// TotalSlides returns the number of slides the sections cover.
func TotalSlides(sections []Section) int {
	total := 0
	for _, s := range sections {
		total += s.SlideCount
	}
	return total
}

func parseEntry(entry map[string]json.RawMessage) (Section, error) {
	var section Section

	orderRaw, ok := lookup(entry, "order")
	if !ok {
		return section, errors.New("missing order")
	}
	order, err := parseInt(orderRaw)
	if err != nil {
		return section, fmt.Errorf("order: %v", err)
	}
	section.Order = order

	slidesRaw, ok := lookup(entry, "slides", "slideCount", "slide_count")
	if !ok {
		return section, errors.New("missing slides")
	}
	count, err := parseInt(slidesRaw)
	if err != nil {
		return section, fmt.Errorf("slides: %v", err)
	}
	if count < 1 {
		return section, fmt.Errorf("slides must be at least 1, got %d", count)
	}
	section.SlideCount = count

	if raw, ok := lookup(entry, "title"); ok {
		section.Title = parseString(raw)
	}
	if raw, ok := lookup(entry, "agendaTitle", "agenda_title", "agenda"); ok {
		section.AgendaTitle = parseString(raw)
	}
	if section.AgendaTitle == "" {
		section.AgendaTitle = section.Title
	}
	if raw, ok := lookup(entry, "isDefault", "is_default", "default"); ok {
		section.IsDefault = parseBool(raw)
	}

	return section, nil
}

// lookup returns the first present, non-null key.
func lookup(entry map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := entry[k]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return v, true
		}
	}
	return nil, false
}

// parseInt accepts a JSON number or a numeric string; spreadsheet exports use both.
func parseInt(raw json.RawMessage) (int, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		if f, err := n.Float64(); err == nil && f == float64(int(f)) {
			return int(f), nil
		}
		return 0, fmt.Errorf("not an integer: %s", n)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return i, nil
}

func parseString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.Trim(string(raw), `" `)
}

func parseBool(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, _ := strconv.ParseBool(strings.TrimSpace(strings.ToLower(s)))
		return v
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	return false
}
