// Package notify tracks each session's desktop notification permission and
// sends the "deck ready" notification.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smorand/google-slides-deckbuilder/internal/cache"
	"github.com/smorand/google-slides-deckbuilder/internal/events"
)

// Permission mirrors the browser Notification.permission values.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ErrInvalidPermission is returned for values outside the browser's set.
var ErrInvalidPermission = errors.New("invalid notification permission")

// ParsePermission validates a browser permission value.
func ParsePermission(s string) (Permission, error) {
	switch p := Permission(s); p {
	case PermissionDefault, PermissionGranted, PermissionDenied:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPermission, s)
	}
}

// ReadyTitle and ReadyBody are the completion notification texts.
const (
	ReadyTitle = "Deck Builder"
	ReadyBody  = "Your deck is ready; click here to open."
)

// Publisher delivers events to a topic.
type Publisher interface {
	Publish(topic string, e events.Event)
}

// Config holds configuration for the Gateway.
type Config struct {
	// Icon is shown with every notification.
	Icon string
	// TTL forgets the permission of an idle session.
	TTL        time.Duration
	MaxEntries int
	Logger     *slog.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		TTL:        24 * time.Hour,
		MaxEntries: 10000,
		Logger:     slog.Default(),
	}
}

// Gateway holds notification permissions per session.
type Gateway struct {
	config      Config
	publisher   Publisher
	permissions *cache.LRU[Permission]
}

// NewGateway creates a new Gateway publishing through publisher.
func NewGateway(config Config, publisher Publisher) *Gateway {
	defaults := DefaultConfig()
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaults.MaxEntries
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Gateway{
		config:    config,
		publisher: publisher,
		permissions: cache.NewLRU[Permission](cache.LRUConfig{
			MaxEntries: config.MaxEntries,
			DefaultTTL: config.TTL,
			Logger:     config.Logger,
		}),
	}
}

// Permission returns the recorded permission; unknown sessions are default.
func (g *Gateway) Permission(session string) Permission {
	if p, ok := g.permissions.Get(session); ok {
		return p
	}
	return PermissionDefault
}

// Granted reports whether notifications may be shown.
func (g *Gateway) Granted(session string) bool {
	return g.Permission(session) == PermissionGranted
}

// Blocked reports whether the user refused notifications. A session that
// was never asked is not blocked.
func (g *Gateway) Blocked(session string) bool {
	p := g.Permission(session)
	return p != PermissionGranted && p != PermissionDefault
}

// Request records the browser's answer to the permission prompt and reports
// whether notifications are now granted.
func (g *Gateway) Request(session string, decision Permission) bool {
	g.permissions.Set(session, decision)
	g.config.Logger.Debug("notification permission recorded",
		slog.String("permission", string(decision)),
	)
	return decision == PermissionGranted
}

// Notify publishes a notification on topic when session granted permission.
// It reports whether the notification was sent.
func (g *Gateway) Notify(session, topic string, n events.Notification) bool {
	if !g.Granted(session) {
		return false
	}
	if n.Icon == "" {
		n.Icon = g.config.Icon
	}
	g.publisher.Publish(topic, events.Event{Type: events.TypeNotification, Notification: &n})
	return true
}

// NotifyDeckReady sends the completion notification linking to deckURL.
func (g *Gateway) NotifyDeckReady(session, topic, deckURL string) bool {
	return g.Notify(session, topic, events.Notification{
		Title: ReadyTitle,
		Body:  ReadyBody,
		URL:   deckURL,
	})
}
