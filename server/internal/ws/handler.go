package ws

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/boardrelay/boardrelay/server/internal/hub"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// Defaults used when Options leaves a field zero.
	defaultPongWait    = 60 * time.Second
	defaultReadLimit   = 64 * 1024
	defaultSendBuffer  = 256
	defaultSendTimeout = 5 * time.Second
)

// Options tunes the transport. Zero fields take the defaults above.
type Options struct {
	ReadLimit   int64
	SendBuffer  int
	SendTimeout time.Duration
	PongWait    time.Duration

	// AllowedOrigins lists browser origins that may connect. Empty means
	// same-origin only; "*" allows any origin.
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = defaultSendTimeout
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	return o
}

// Handler upgrades HTTP requests to WebSocket connections and feeds every
// connection's lifecycle into a hub.Hub.
type Handler struct {
	hub      *hub.Hub
	opts     Options
	upgrader websocket.Upgrader
	origins  atomic.Pointer[[]string]

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// New creates a Handler that drives h.
func New(h *hub.Hub, opts Options) *Handler {
	opts = opts.withDefaults()
	ws := &Handler{
		hub:   h,
		opts:  opts,
		conns: make(map[*conn]struct{}),
	}
	ws.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     ws.checkOrigin,
	}
	ws.SetAllowedOrigins(opts.AllowedOrigins)
	return ws
}

// SetAllowedOrigins replaces the origin allow-list. Safe to call while
// serving; it only affects new upgrades.
func (ws *Handler) SetAllowedOrigins(origins []string) {
	cp := append([]string(nil), origins...)
	ws.origins.Store(&cp)
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (ws *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Debug("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newConn(wsConn, ws.opts.SendBuffer, ws.opts.SendTimeout)
	s := hub.NewSession(c, peerAddr(r))

	ws.register(c)
	defer ws.unregister(c)

	ws.hub.Open(s)
	go c.writePump(ws.opts.PongWait * 9 / 10)
	ws.readPump(r, c, s) // blocks until the connection closes
}

// Count returns the number of connections currently being served.
func (ws *Handler) Count() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.conns)
}

// Shutdown closes every connection with 1001 (going away).
func (ws *Handler) Shutdown() {
	ws.mu.Lock()
	targets := make([]*conn, 0, len(ws.conns))
	for c := range ws.conns {
		targets = append(targets, c)
	}
	ws.mu.Unlock()

	for _, c := range targets {
		c.Close(websocket.CloseGoingAway, "server shutting down") //nolint:errcheck
	}
	slog.Info("ws: connections closed", "count", len(targets))
}

// --- internal ---------------------------------------------------------------

func (ws *Handler) register(c *conn) {
	ws.mu.Lock()
	ws.conns[c] = struct{}{}
	ws.mu.Unlock()
}

func (ws *Handler) unregister(c *conn) {
	ws.mu.Lock()
	delete(ws.conns, c)
	ws.mu.Unlock()
}

// readPump forwards text frames to the hub and reports how the connection
// ended. Blocks until the connection closes.
func (ws *Handler) readPump(r *http.Request, c *conn, s *hub.Session) {
	defer c.shutdown()

	c.ws.SetReadLimit(ws.opts.ReadLimit)
	c.ws.SetReadDeadline(time.Now().Add(ws.opts.PongWait)) //nolint:errcheck
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(ws.opts.PongWait))
	})

	for {
		kind, msg, err := c.ws.ReadMessage()
		if err != nil {
			switch {
			case c.byServer():
				ws.hub.Close(s)
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				ws.hub.Close(s)
			default:
				ws.hub.Error(s, err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		ws.hub.Message(r.Context(), s, msg)
	}
}

func (ws *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Not a browser.
		return true
	}

	allowed := *ws.origins.Load()
	if len(allowed) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
			return true
		}
	}
	slog.Warn("ws: origin rejected", "origin", origin, "remote", r.RemoteAddr)
	return false
}

// peerAddr returns the host part of the request's remote address. Behind
// middleware.RealIP the address has no port and is returned as is.
func peerAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
