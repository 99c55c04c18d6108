package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boardrelay/boardrelay/server/internal/api"
	"github.com/boardrelay/boardrelay/server/internal/auth"
	"github.com/boardrelay/boardrelay/server/internal/hub"
)

// --- test helpers -----------------------------------------------------------

type fakeBoard struct {
	mu       sync.Mutex
	stats    hub.Stats
	sessions []hub.SessionInfo
	history  [][]byte
	cleared  int
}

func (b *fakeBoard) Stats() hub.Stats            { return b.stats }
func (b *fakeBoard) Sessions() []hub.SessionInfo { return b.sessions }
func (b *fakeBoard) History() [][]byte           { return b.history }

func (b *fakeBoard) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleared++
	b.history = nil
}

type fakeIssuer struct {
	user, ip string
	err      error
}

func (f *fakeIssuer) Issue(_ context.Context, userID, clientIP string) (string, error) {
	f.user, f.ip = userID, clientIP
	if f.err != nil {
		return "", f.err
	}
	return "ticket-1", nil
}

const adminKey = "admin-secret"

func newHandler(b *fakeBoard, iss *fakeIssuer, opts ...func(*api.Options)) *api.Handler {
	o := api.Options{
		Board:          b,
		Tickets:        iss,
		Identity:       auth.HeaderIdentity{},
		Admin:          auth.APIKey{Mode: "apikey", Header: "x-api-key", Key: adminKey},
		AllowedOrigins: func() []string { return []string{"https://board.example.com"} },
	}
	for _, fn := range opts {
		fn(&o)
	}
	return api.New(o)
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func adminReq(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Api-Key", adminKey)
	return req
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- ws-ticket --------------------------------------------------------------

func TestIssueTicket_OK(t *testing.T) {
	iss := &fakeIssuer{}
	h := newHandler(&fakeBoard{}, iss)

	req := httptest.NewRequest(http.MethodPost, "/api/ws-ticket", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("X-User-ID", "user123")
	rr := do(t, h, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	var body map[string]string
	decode(t, rr, &body)
	if body["ticket"] != "ticket-1" {
		t.Errorf("ticket: got %q, want ticket-1", body["ticket"])
	}
	if iss.user != "user123" || iss.ip != "203.0.113.7" {
		t.Errorf("issued for (%q, %q), want (user123, 203.0.113.7)", iss.user, iss.ip)
	}
}

func TestIssueTicket_Unauthenticated(t *testing.T) {
	iss := &fakeIssuer{}
	rr := do(t, newHandler(&fakeBoard{}, iss), httptest.NewRequest(http.MethodPost, "/api/ws-ticket", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rr.Code)
	}
	if iss.user != "" {
		t.Error("issuer called without identity")
	}
}

func TestIssueTicket_BackendFailure(t *testing.T) {
	h := newHandler(&fakeBoard{}, &fakeIssuer{err: errors.New("redis down")})
	req := httptest.NewRequest(http.MethodPost, "/api/ws-ticket", nil)
	req.Header.Set("X-User-ID", "user123")
	rr := do(t, h, req)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rr.Code)
	}
	var body map[string]string
	decode(t, rr, &body)
	if strings.Contains(body["error"], "redis") {
		t.Errorf("error body leaks backend detail: %q", body["error"])
	}
}

func TestIssueTicket_GetNotAllowed(t *testing.T) {
	rr := do(t, newHandler(&fakeBoard{}, &fakeIssuer{}), httptest.NewRequest(http.MethodGet, "/api/ws-ticket", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
}

func TestIssueTicket_TrustProxyHeaders(t *testing.T) {
	iss := &fakeIssuer{}
	h := newHandler(&fakeBoard{}, iss, func(o *api.Options) { o.TrustProxyHeaders = true })

	req := httptest.NewRequest(http.MethodPost, "/api/ws-ticket", nil)
	req.RemoteAddr = "10.0.0.2:4000"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	req.Header.Set("X-User-ID", "u")
	if rr := do(t, h, req); rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if iss.ip != "198.51.100.9" {
		t.Errorf("client ip: got %q, want 198.51.100.9", iss.ip)
	}
}

func TestIssueTicket_ProxyHeadersIgnoredByDefault(t *testing.T) {
	iss := &fakeIssuer{}
	req := httptest.NewRequest(http.MethodPost, "/api/ws-ticket", nil)
	req.RemoteAddr = "10.0.0.2:4000"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	req.Header.Set("X-User-ID", "u")
	do(t, newHandler(&fakeBoard{}, iss), req)
	if iss.ip != "10.0.0.2" {
		t.Errorf("client ip: got %q, want 10.0.0.2", iss.ip)
	}
}

// --- health -----------------------------------------------------------------

func TestHealth(t *testing.T) {
	b := &fakeBoard{stats: hub.Stats{Sessions: 3, Authenticated: 2, HistoryLength: 5}}
	rr := do(t, newHandler(b, &fakeIssuer{}), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	want := api.HealthResponse{State: "ok", Sessions: 3, Authenticated: 2, HistoryLength: 5}
	if resp != want {
		t.Errorf("health: got %+v, want %+v", resp, want)
	}
}

func TestHealth_NoAPIKeyNeeded(t *testing.T) {
	rr := do(t, newHandler(&fakeBoard{}, &fakeIssuer{}), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rr.Code)
	}
}

// --- admin ------------------------------------------------------------------

func TestAdmin_RequiresKey(t *testing.T) {
	h := newHandler(&fakeBoard{}, &fakeIssuer{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/sessions"},
		{http.MethodGet, "/api/v1/history"},
		{http.MethodDelete, "/api/v1/history"},
	} {
		rr := do(t, h, httptest.NewRequest(tc.method, tc.path, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without key: got %d, want 401", tc.method, tc.path, rr.Code)
		}
	}
}

func TestSessions(t *testing.T) {
	opened := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	b := &fakeBoard{sessions: []hub.SessionInfo{
		{ID: "s1", Addr: "127.0.0.1", State: "authenticated", OpenedAt: opened},
	}}
	rr := do(t, newHandler(b, &fakeIssuer{}), adminReq(http.MethodGet, "/api/v1/sessions"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	var resp api.SessionsResponse
	decode(t, rr, &resp)
	if len(resp.Sessions) != 1 {
		t.Fatalf("sessions: got %d, want 1", len(resp.Sessions))
	}
	if got := resp.Sessions[0]; got.ID != "s1" || got.State != "authenticated" || !got.OpenedAt.Equal(opened) {
		t.Errorf("session: got %+v", got)
	}
}

func TestSessions_EmptyIsArray(t *testing.T) {
	rr := do(t, newHandler(&fakeBoard{}, &fakeIssuer{}), adminReq(http.MethodGet, "/api/v1/sessions"))
	if !strings.Contains(rr.Body.String(), `"sessions":[]`) {
		t.Errorf("body: got %s, want empty array", rr.Body.String())
	}
}

func TestHistory_RawEntries(t *testing.T) {
	b := &fakeBoard{history: [][]byte{
		[]byte(`{"type":"draw","x":1}`),
		[]byte(`{malformed}`),
	}}
	rr := do(t, newHandler(b, &fakeIssuer{}), adminReq(http.MethodGet, "/api/v1/history"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	var resp struct {
		Entries []json.RawMessage `json:"entries"`
	}
	decode(t, rr, &resp)
	if len(resp.Entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(resp.Entries))
	}
	if got := string(resp.Entries[0]); got != `{"type":"draw","x":1}` {
		t.Errorf("entry 0: got %s", got)
	}
	if got := string(resp.Entries[1]); got != `"{malformed}"` {
		t.Errorf("entry 1: got %s, want quoted string", got)
	}
}

func TestHistory_Delete(t *testing.T) {
	b := &fakeBoard{history: [][]byte{[]byte(`{"type":"draw"}`)}}
	rr := do(t, newHandler(b, &fakeIssuer{}), adminReq(http.MethodDelete, "/api/v1/history"))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", rr.Code)
	}
	if b.cleared != 1 {
		t.Errorf("ClearHistory calls: got %d, want 1", b.cleared)
	}
}

func TestHistory_PostNotAllowed(t *testing.T) {
	rr := do(t, newHandler(&fakeBoard{}, &fakeIssuer{}), adminReq(http.MethodPost, "/api/v1/history"))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

func TestAdmin_ModeNone(t *testing.T) {
	h := newHandler(&fakeBoard{}, &fakeIssuer{}, func(o *api.Options) { o.Admin = auth.APIKey{Mode: "none"} })
	rr := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rr.Code)
	}
}

// --- cors, mounts -----------------------------------------------------------

func TestCORS_Preflight(t *testing.T) {
	h := newHandler(&fakeBoard{}, &fakeIssuer{})

	req := httptest.NewRequest(http.MethodOptions, "/api/ws-ticket", nil)
	req.Header.Set("Origin", "https://board.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := do(t, h, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://board.example.com" {
		t.Errorf("Allow-Origin: got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials: got %q, want true", got)
	}
}

func TestCORS_ForeignOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := do(t, newHandler(&fakeBoard{}, &fakeIssuer{}), req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin: got %q, want empty", got)
	}
}

func TestCORS_OriginsReloaded(t *testing.T) {
	var (
		mu      sync.Mutex
		origins = []string{"https://a.example.com"}
	)
	h := newHandler(&fakeBoard{}, &fakeIssuer{}, func(o *api.Options) {
		o.AllowedOrigins = func() []string { mu.Lock(); defer mu.Unlock(); return origins }
	})
	check := func(origin string) string {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.Header.Set("Origin", origin)
		return do(t, h, req).Header().Get("Access-Control-Allow-Origin")
	}

	if got := check("https://b.example.com"); got != "" {
		t.Errorf("before reload: got %q, want empty", got)
	}
	mu.Lock()
	origins = []string{"https://b.example.com"}
	mu.Unlock()
	if got := check("https://b.example.com"); got != "https://b.example.com" {
		t.Errorf("after reload: got %q", got)
	}
}

func TestMounts(t *testing.T) {
	mounted := func(name string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(name)) //nolint:errcheck
		})
	}
	h := newHandler(&fakeBoard{}, &fakeIssuer{}, func(o *api.Options) {
		o.Metrics = mounted("metrics")
		o.WebSocket = mounted("ws")
		o.WSPath = "/bbService"
	})

	for path, want := range map[string]string{"/metrics": "metrics", "/bbService": "ws"} {
		rr := do(t, h, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Body.String() != want {
			t.Errorf("GET %s: got %q, want %q", path, rr.Body.String(), want)
		}
	}

	rr := do(t, h, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown path: got %d, want 404", rr.Code)
	}
}
