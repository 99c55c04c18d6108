package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/boardrelay/boardrelay/pkg/types"
	"github.com/boardrelay/boardrelay/server/internal/auth"
	"github.com/boardrelay/boardrelay/server/internal/hub"
)

// TicketIssuer mints single-use WebSocket tickets.
type TicketIssuer interface {
	Issue(ctx context.Context, userID, clientIP string) (string, error)
}

// Board is the hub surface the API reads and administers.
type Board interface {
	Stats() hub.Stats
	Sessions() []hub.SessionInfo
	History() [][]byte
	ClearHistory()
}

// Options wires the router. Nil handlers leave their route unmounted.
type Options struct {
	Board    Board
	Tickets  TicketIssuer
	Identity auth.Authenticator
	Admin    auth.APIKey

	// WebSocket is mounted with GET at WSPath.
	WebSocket http.Handler
	WSPath    string

	// Metrics is mounted at /metrics.
	Metrics http.Handler

	// AllowedOrigins returns the current CORS allow-list. It is called per
	// request so reloads take effect immediately.
	AllowedOrigins func() []string

	// TrustProxyHeaders rewrites RemoteAddr from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
}

// Handler serves the REST API, the WebSocket endpoint and /metrics.
type Handler struct {
	opts   Options
	router chi.Router
}

// New creates a Handler and registers all routes.
func New(opts Options) *Handler {
	h := &Handler{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(logRequests)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.cors().Handler)

		if opts.Tickets != nil && opts.Identity != nil {
			r.With(auth.RequireIdentity(opts.Identity)).Post("/ws-ticket", h.issueTicket)
		}

		r.Get("/v1/health", h.health)

		r.Group(func(r chi.Router) {
			r.Use(opts.Admin.Middleware)
			r.Get("/v1/sessions", h.sessions)
			r.Get("/v1/history", h.history)
			r.Delete("/v1/history", h.clearHistory)
		})
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.WebSocket != nil && opts.WSPath != "" {
		r.Method(http.MethodGet, opts.WSPath, opts.WebSocket)
	}

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// issueTicket returns POST /api/ws-ticket - a fresh ticket bound to the
// caller's identity and address.
func (h *Handler) issueTicket(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		jsonErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ticket, err := h.opts.Tickets.Issue(r.Context(), userID, clientIP(r))
	if err != nil {
		slog.Error("api: issue ticket", "user", userID, "err", err)
		jsonErr(w, http.StatusInternalServerError, "could not issue ticket")
		return
	}
	jsonResp(w, http.StatusOK, types.TicketResponse{Ticket: ticket})
}

// health returns GET /api/v1/health - liveness plus hub gauges.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	st := h.opts.Board.Stats()
	jsonResp(w, http.StatusOK, HealthResponse{
		State:         "ok",
		Sessions:      st.Sessions,
		Authenticated: st.Authenticated,
		HistoryLength: st.HistoryLength,
	})
}

// sessions returns GET /api/v1/sessions - every open session.
func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	list := h.opts.Board.Sessions()
	if list == nil {
		list = []hub.SessionInfo{}
	}
	jsonResp(w, http.StatusOK, SessionsResponse{Sessions: list})
}

// history returns GET /api/v1/history - the replay log in order.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, toHistoryResponse(h.opts.Board.History()))
}

// clearHistory handles DELETE /api/v1/history.
func (h *Handler) clearHistory(w http.ResponseWriter, r *http.Request) {
	h.opts.Board.ClearHistory()
	slog.Info("api: history cleared by admin", "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) cors() *cors.Cors {
	return cors.New(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			if h.opts.AllowedOrigins == nil {
				return false
			}
			for _, o := range h.opts.AllowedOrigins() {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions, http.MethodDelete},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// clientIP is the host part of RemoteAddr, which RealIP may already have
// replaced with a bare address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
