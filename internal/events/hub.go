// Package events fans generation statuses and notifications out to browser
// subscribers over websockets.
package events

import (
	"log/slog"
	"sync"
)

// Event types.
const (
	TypeStatus       = "status"
	TypeError        = "error"
	TypeNotification = "notification"
)

// Notification is a desktop notification the browser should display.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Event is one message on a topic.
type Event struct {
	Type         string        `json:"type"`
	Status       string        `json:"status,omitempty"`
	Info         any           `json:"info,omitempty"`
	Error        string        `json:"error,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	// Reauth asks the client to sign in again before retrying.
	Reauth bool `json:"reauth,omitempty"`
}

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// Buffer is the per-subscriber queue length; a full queue drops events.
	Buffer int
	Logger *slog.Logger
}

// DefaultHubConfig returns default configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Buffer: 32,
		Logger: slog.Default(),
	}
}

type subscriber struct {
	ch chan Event
}

// Hub routes events by topic. A new subscriber first receives the latest
// status of the topic.
type Hub struct {
	config HubConfig

	mu     sync.Mutex
	topics map[string]map[*subscriber]struct{}
	latest map[string]Event
}

// NewHub creates a new Hub.
func NewHub(config HubConfig) *Hub {
	if config.Buffer <= 0 {
		config.Buffer = 32
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Hub{
		config: config,
		topics: make(map[string]map[*subscriber]struct{}),
		latest: make(map[string]Event),
	}
}

// Publish sends e to every subscriber of topic without blocking.
func (h *Hub) Publish(topic string, e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e.Type == TypeStatus || e.Type == TypeError {
		h.latest[topic] = e
	}

	for sub := range h.topics[topic] {
		select {
		case sub.ch <- e:
		default:
			h.config.Logger.Warn("dropping event for slow subscriber",
				slog.String("topic", topic),
				slog.String("type", e.Type),
			)
		}
	}
}

// Subscribe registers a subscriber on topic. The returned cancel func must be
// called once; it closes the channel.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.config.Buffer)}

	h.mu.Lock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*subscriber]struct{})
	}
	h.topics[topic][sub] = struct{}{}
	if last, ok := h.latest[topic]; ok {
		sub.ch <- last
	}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.topics[topic], sub)
			if len(h.topics[topic]) == 0 {
				delete(h.topics, topic)
			}
			close(sub.ch)
		})
	}
}

// Forget drops the retained status of a topic.
func (h *Hub) Forget(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.latest, topic)
}

// Subscribers returns the number of subscribers on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}
