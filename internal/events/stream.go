package events

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// StreamConfig holds configuration for the websocket Streamer.
type StreamConfig struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	// PongTimeout must exceed PingInterval.
	PongTimeout time.Duration
	// CheckOrigin validates the Origin header; nil accepts same-origin requests only.
	CheckOrigin func(r *http.Request) bool
	Logger      *slog.Logger
}

// DefaultStreamConfig returns default configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		Logger:       slog.Default(),
	}
}

// Streamer upgrades HTTP requests to websockets carrying a topic's events.
type Streamer struct {
	hub      *Hub
	upgrader websocket.Upgrader
	config   StreamConfig
}

// NewStreamer creates a new Streamer.
func NewStreamer(hub *Hub, config StreamConfig) *Streamer {
	defaults := DefaultStreamConfig()
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongTimeout <= config.PingInterval {
		config.PongTimeout = 2 * config.PingInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Streamer{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// Serve streams topic to the client until it disconnects or until is closed.
// Events already queued when until closes are still delivered.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, topic string, until <-chan struct{}) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		return err
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe(topic)
	defer cancel()

	s.config.Logger.Debug("event stream opened", slog.String("topic", topic))

	closed := make(chan struct{})
	go s.readLoop(conn, closed)

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-events:
			if err := s.write(conn, e); err != nil {
				return err
			}
		case <-ticker.C:
			deadline := time.Now().Add(s.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return err
			}
		case <-until:
			if err := s.drain(conn, events); err != nil {
				return err
			}
			deadline := time.Now().Add(s.config.WriteTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "generation complete")
			conn.WriteControl(websocket.CloseMessage, msg, deadline)
			<-closed
			return nil
		case <-closed:
			s.config.Logger.Debug("event stream closed by client", slog.String("topic", topic))
			return nil
		}
	}
}

// drain writes the events already queued.
func (s *Streamer) drain(conn *websocket.Conn, events <-chan Event) error {
	for {
		select {
		case e := <-events:
			if err := s.write(conn, e); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Streamer) write(conn *websocket.Conn, e Event) error {
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return conn.WriteJSON(e)
}

// readLoop consumes client frames so control messages are processed, and
// closes closed when the connection ends.
func (s *Streamer) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(s.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.PongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
