// Package ws carries broadcast events to remote subscribers over WebSocket
// (/ws) and Server-Sent Events ({api}/events). Each connection owns exactly
// one broadcast subscription and releases it when the connection ends.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/salio-edge/gateway/internal/broadcast"
	"github.com/salio-edge/gateway/internal/event"
)

const (
	DefaultPingInterval = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second

	// Subscribers only listen; anything they send is read and discarded.
	maxInboundMessage = 4096
)

// Options tunes the transports.
type Options struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	// AllowAnyOrigin accepts WebSocket upgrades from every origin.
	AllowAnyOrigin bool
	// AllowedOrigins lists accepted origins when AllowAnyOrigin is false.
	// With an empty list only same-host and loopback origins are accepted.
	AllowedOrigins []string
}

type Server struct {
	b    *broadcast.Broadcaster
	opts Options

	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	upgrader       websocket.Upgrader
}

func NewServer(b *broadcast.Broadcaster, opts Options) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	s := &Server{
		b:              b,
		opts:           opts,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}
	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			s.opts.AllowAnyOrigin = true
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// Register mounts /ws and the SSE stream under apiEndpoint.
func (s *Server) Register(mux *http.ServeMux, apiEndpoint string) {
	mux.HandleFunc("/ws", s.HandleWS)
	mux.HandleFunc(strings.TrimSuffix(apiEndpoint, "/")+"/events", s.HandleSSE)
}

func (s *Server) subscribe(w http.ResponseWriter) (*broadcast.Subscription, bool) {
	sub, err := s.b.Subscribe()
	switch {
	case errors.Is(err, broadcast.ErrTooManySubscribers):
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return nil, false
	case err != nil:
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return nil, false
	}
	return sub, true
}

// HandleWS upgrades the request and streams events as
// {"type": ..., "payload": ...} text frames.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subscribe(w)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.b.Unsubscribe(sub.ID())
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("Client connected: %s (%s)", r.RemoteAddr, sub.ID())
	c := newClient(conn, sub, s.opts)
	go c.writePump()
	c.readPump()
	close(c.peerGone)

	s.b.Unsubscribe(sub.ID())
	log.Printf("Client disconnected: %s (%s, %d events delivered, %d dropped)",
		r.RemoteAddr, sub.ID(), sub.Delivered(), sub.Dropped())
}

// HandleSSE streams events as Server-Sent Events: the event name is the
// event type and the data line is the payload.
func (s *Server) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	sub, ok := s.subscribe(w)
	if !ok {
		return
	}
	defer s.b.Unsubscribe(sub.ID())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Printf("SSE client connected: %s (%s)", r.RemoteAddr, sub.ID())
	defer log.Printf("SSE client disconnected: %s (%s)", r.RemoteAddr, sub.ID())

	keepalive := time.NewTicker(s.opts.PingInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(e.Payload())
			if err != nil {
				log.Printf("sse marshal %s: %v", e.Type, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.opts.AllowAnyOrigin {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}
	if host == r.Host {
		return true
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// client pairs one WebSocket connection with its subscription. Only
// writePump writes to conn.
type client struct {
	conn         *websocket.Conn
	sub          *broadcast.Subscription
	ping         time.Duration
	writeTimeout time.Duration

	// peerGone is closed once readPump returns, before the subscription is
	// released.
	peerGone chan struct{}
}

func newClient(conn *websocket.Conn, sub *broadcast.Subscription, opts Options) *client {
	return &client{
		conn:         conn,
		sub:          sub,
		ping:         opts.PingInterval,
		writeTimeout: opts.WriteTimeout,
		peerGone:     make(chan struct{}),
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case e, ok := <-c.sub.C():
			if !ok {
				c.closeSubscriptionEnded()
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.write(e); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeSubscriptionEnded sends a going-away close frame when the server
// ended the subscription. A peer that already hung up gets nothing.
func (c *client) closeSubscriptionEnded() {
	select {
	case <-c.peerGone:
		return
	default:
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
}

func (c *client) write(e event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("ws marshal %s: %v", e.Type, err)
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readPump consumes inbound frames so control messages are processed, and
// returns when the peer goes away or stops answering pings.
func (c *client) readPump() {
	pongWait := 2 * c.ping
	c.conn.SetReadLimit(maxInboundMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		// any inbound traffic proves liveness
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
