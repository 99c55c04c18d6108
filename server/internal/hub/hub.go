package hub

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/boardrelay/boardrelay/pkg/types"
)

// DefaultVerifyTimeout bounds a single ticket validation.
const DefaultVerifyTimeout = 2 * time.Second

// Verifier validates and consumes authentication tickets. A false result,
// whatever its cause, denies the session.
type Verifier interface {
	Validate(ctx context.Context, ticket, clientAddr string) bool
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, ticket, clientAddr string) bool

// Validate calls f.
func (f VerifierFunc) Validate(ctx context.Context, ticket, clientAddr string) bool {
	return f(ctx, ticket, clientAddr)
}

// Group selects the recipients of a broadcast.
type Group int

const (
	// GroupAll is every open session, authenticated or not.
	GroupAll Group = iota
	// GroupAuthenticated is every authenticated session.
	GroupAuthenticated
)

// Option configures a Hub.
type Option func(*Hub)

// WithVerifyTimeout overrides DefaultVerifyTimeout.
func WithVerifyTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.verifyTimeout = d
		}
	}
}

// Hub owns the live sessions and the draw history.
type Hub struct {
	verifier      Verifier
	verifyTimeout time.Duration

	mu       sync.Mutex
	sessions map[*Session]struct{}
	history  *History

	stats counters
}

// New creates a Hub that authenticates sessions with v. A nil verifier
// denies every session.
func New(v Verifier, opts ...Option) *Hub {
	h := &Hub{
		verifier:      v,
		verifyTimeout: DefaultVerifyTimeout,
		sessions:      make(map[*Session]struct{}),
		history:       NewHistory(),
		stats:         newCounters(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Open registers a new, unauthenticated session. Opening a session twice,
// or reopening a closed one, is a no-op. From here on the session receives
// draw and clear events live; earlier history waits for authentication.
func (h *Hub) Open(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; ok || s.state == Closed {
		h.mu.Unlock()
		return
	}
	h.sessions[s] = struct{}{}
	s.joinSeq = h.history.Seq()
	n := len(h.sessions)
	h.mu.Unlock()

	slog.Debug("hub: session opened", "session", s.ID, "addr", s.Addr, "open", n)
}

// Message dispatches one inbound frame from s.
//
// The first frame of an unauthenticated session is always an authentication
// attempt, whatever it contains. Frames from sessions that are closed, unknown
// or still waiting on their ticket are dropped.
func (h *Hub) Message(ctx context.Context, s *Session, raw []byte) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	if s.state == Unauthenticated {
		if s.attempted {
			h.mu.Unlock()
			return
		}
		s.attempted = true
		h.mu.Unlock()
		h.authenticate(ctx, s, raw)
		return
	}
	h.mu.Unlock()

	ev := Classify(raw)
	h.stats.message(ev.Kind)

	switch ev.Kind {
	case types.KindChat:
		h.broadcast(GroupAuthenticated, raw, s)

	case types.KindClear:
		h.mu.Lock()
		h.history.Clear()
		recipients := h.queue(GroupAll, raw, s)
		h.mu.Unlock()
		h.flush(recipients)

	default:
		// draw, unknown and stray auth frames are all relayed as drawing data.
		h.mu.Lock()
		h.history.Append(raw)
		recipients := h.queue(GroupAll, raw, s)
		h.mu.Unlock()
		h.flush(recipients)
	}
}

// Close forgets s. It is safe to call more than once.
func (h *Hub) Close(s *Session) {
	if h.remove(s) {
		slog.Debug("hub: session closed", "session", s.ID, "addr", s.Addr)
	}
}

// Error forgets s and records the transport failure. The cause is never
// relayed to other sessions.
func (h *Hub) Error(s *Session, cause error) {
	h.remove(s)
	h.stats.transportErrors.Add(1)
	slog.Error("hub: session error", "session", s.ID, "addr", s.Addr, "err", cause)
}

// ClearHistory empties the history and tells every open session to clear its
// canvas. It is the administrative counterpart of a client clear.
func (h *Hub) ClearHistory() {
	h.mu.Lock()
	h.history.Clear()
	recipients := h.queue(GroupAll, types.ClearEvent(), nil)
	h.mu.Unlock()

	h.flush(recipients)
	slog.Info("hub: history cleared", "recipients", len(recipients))
}

// authenticate runs the ticket check for the first frame of s. The verifier is
// called without holding the hub lock.
func (h *Hub) authenticate(ctx context.Context, s *Session, raw []byte) {
	ticket := ticketFrom(raw)

	ok := false
	if h.verifier != nil {
		vctx, cancel := context.WithTimeout(ctx, h.verifyTimeout)
		ok = h.verifier.Validate(vctx, ticket, s.Addr)
		cancel()
	}

	if !ok {
		h.stats.authFailed.Add(1)
		h.remove(s)
		if err := s.conn.Close(ClosePolicyViolation, types.AuthFailedReason); err != nil {
			slog.Debug("hub: close after failed auth", "session", s.ID, "err", err)
		}
		slog.Warn("hub: authentication failed", "session", s.ID, "addr", s.Addr)
		return
	}

	h.mu.Lock()
	if _, open := h.sessions[s]; !open {
		// Closed while the ticket was being checked.
		h.mu.Unlock()
		return
	}
	s.state = Authenticated
	// Entries appended since Open already went out live. A clear since Open
	// leaves nothing older to replay.
	replay := h.history.Before(s.joinSeq)
	frames := make([]outbound, 0, len(replay)+1)
	for _, entry := range replay {
		frames = append(frames, outbound{payload: entry, replay: true})
	}
	frames = append(frames, outbound{payload: types.Info(types.AuthenticatedAck), replay: true})
	// Queued under the lock, so anything appended from here on lands behind
	// the ack.
	s.enqueue(frames...)
	h.mu.Unlock()

	h.stats.authSucceeded.Add(1)
	slog.Info("hub: session authenticated", "session", s.ID, "addr", s.Addr, "replay", len(replay))

	h.drain(s)
}

// broadcast sends payload to every member of group except exclude.
func (h *Hub) broadcast(group Group, payload []byte, exclude *Session) {
	h.mu.Lock()
	recipients := h.queue(group, payload, exclude)
	h.mu.Unlock()
	h.flush(recipients)
}

// members returns the sessions of group other than exclude. Callers must hold mu.
func (h *Hub) members(group Group, exclude *Session) []*Session {
	out := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		if s == exclude {
			continue
		}
		if group == GroupAuthenticated && s.state != Authenticated {
			continue
		}
		out = append(out, s)
	}
	return out
}

// queue appends payload to the outbound queue of every member of group except
// exclude and returns those members. Callers must hold mu, which fixes the
// order of frames across sessions; nothing here touches the transport.
func (h *Hub) queue(group Group, payload []byte, exclude *Session) []*Session {
	recipients := h.members(group, exclude)
	for _, r := range recipients {
		r.enqueue(outbound{payload: payload})
	}
	return recipients
}

// flush drains each recipient. Callers must not hold mu.
func (h *Hub) flush(recipients []*Session) {
	for _, r := range recipients {
		h.drain(r)
	}
}

// drain sends whatever is queued for s, in order. If another goroutine is
// already draining s it returns at once and that goroutine sends the frames.
// A failure is logged and skipped; it never removes the session. A failed
// replay frame drops the rest of the replay and the ack.
func (h *Hub) drain(s *Session) {
	if !s.claim() {
		return
	}
	aborted := false
	for {
		frames, ok := s.take()
		if !ok {
			return
		}
		for _, f := range frames {
			if f.replay && aborted {
				continue
			}
			if err := s.conn.Send(f.payload); err != nil {
				h.stats.sendFailures.Add(1)
				if f.replay {
					aborted = true
					slog.Warn("hub: history replay aborted", "session", s.ID, "err", err)
					continue
				}
				slog.Warn("hub: send failed", "session", s.ID, "addr", s.Addr, "err", err)
			}
		}
	}
}

// remove drops s from the hub and marks it closed. It reports whether s was present.
func (h *Hub) remove(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	s.state = Closed
	return ok
}

// --- inspection -------------------------------------------------------------

// Contains reports whether s is an open session.
func (h *Hub) Contains(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[s]
	return ok
}

// IsAuthenticated reports whether s is open and authenticated.
func (h *Hub) IsAuthenticated(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[s]
	return ok && s.state == Authenticated
}

// History returns a copy of the current draw history.
func (h *Hub) History() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.history.Snapshot()
}

// Sessions lists the open sessions, oldest first.
func (h *Hub) Sessions() []SessionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]SessionInfo, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, SessionInfo{
			ID:       s.ID,
			Addr:     s.Addr,
			State:    s.state.String(),
			OpenedAt: s.OpenedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Reset forgets every session and empties the history without notifying
// anyone. Intended for test harnesses.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = make(map[*Session]struct{})
	h.history.Clear()
}
