package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ClosePolicyViolation is the WebSocket close code (RFC 6455, 1008) used when
// authentication fails.
const ClosePolicyViolation = 1008

// State is a session's position in the authentication state machine.
// Unauthenticated -> Authenticated -> Closed, or Unauthenticated -> Closed.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the transport side of a session. The hub never owns the
// underlying connection; it only sends frames and requests a close.
type Conn interface {
	// Send delivers one text frame. It may block for a bounded time; the hub
	// never calls it while holding its own lock.
	Send(payload []byte) error
	// Close terminates the connection with a close code and reason.
	Close(code int, reason string) error
}

// Session is one client connection as seen by the hub.
type Session struct {
	ID       string
	Addr     string
	OpenedAt time.Time

	conn Conn

	// Guarded by Hub.mu.
	state     State
	attempted bool
	// joinSeq is the history position at Open. Entries from joinSeq on are
	// sent live, so only older ones are replayed on authentication.
	joinSeq uint64

	// outMu guards the outbound queue. It is never held across Conn.Send.
	outMu    sync.Mutex
	out      []outbound
	draining bool
}

// outbound is one queued frame. Replay frames, the ack included, are dropped
// together once one of them fails.
type outbound struct {
	payload []byte
	replay  bool
}

// NewSession wraps conn. addr is the transport's authoritative peer address
// and is what tickets are validated against.
func NewSession(conn Conn, addr string) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Addr:     addr,
		OpenedAt: time.Now(),
		conn:     conn,
	}
}

// enqueue appends frames to the outbound queue without blocking on the
// transport.
func (s *Session) enqueue(frames ...outbound) {
	s.outMu.Lock()
	s.out = append(s.out, frames...)
	s.outMu.Unlock()
}

// claim marks s as being drained. It returns false if another goroutine
// already is.
func (s *Session) claim() bool {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.draining {
		return false
	}
	s.draining = true
	return true
}

// take removes everything queued. Once the queue is empty it releases the
// claim and returns false.
func (s *Session) take() ([]outbound, bool) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if len(s.out) == 0 {
		s.draining = false
		return nil, false
	}
	frames := s.out
	s.out = nil
	return frames, true
}

// SessionInfo is a point-in-time view of a session for inspection.
type SessionInfo struct {
	ID       string    `json:"id"`
	Addr     string    `json:"addr"`
	State    string    `json:"state"`
	OpenedAt time.Time `json:"opened_at"`
}
