package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long an unredeemed ticket stays valid.
const DefaultTTL = 5 * time.Minute

// ErrNotFound is returned by a Backend when a ticket is unknown or expired.
var ErrNotFound = errors.New("ticket: not found")

// Backend stores tickets. Take must remove the ticket atomically so that
// concurrent redemptions have exactly one winner.
type Backend interface {
	Put(ctx context.Context, ticket, value string) error
	Take(ctx context.Context, ticket string) (string, error)
}

// record is the value stored for each ticket.
type record struct {
	UserID   string    `json:"user_id"`
	ClientIP string    `json:"client_ip"`
	IssuedAt time.Time `json:"issued_at"`
}

// Option configures a Service.
type Option func(*Service)

// WithClientIPBinding rejects tickets redeemed from a different address than
// the one they were issued to.
func WithClientIPBinding(on bool) Option {
	return func(s *Service) { s.bindIP = on }
}

// Service issues and validates tickets.
type Service struct {
	backend Backend
	bindIP  bool
	newID   func() string
	now     func() time.Time
}

// NewService creates a Service storing tickets in b.
func NewService(b Backend, opts ...Option) *Service {
	s := &Service{
		backend: b,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a ticket for userID connecting from clientIP.
func (s *Service) Issue(ctx context.Context, userID, clientIP string) (string, error) {
	data, err := json.Marshal(record{
		UserID:   userID,
		ClientIP: clientIP,
		IssuedAt: s.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("ticket: encode: %w", err)
	}

	t := s.newID()
	if err := s.backend.Put(ctx, t, string(data)); err != nil {
		return "", fmt.Errorf("ticket: store: %w", err)
	}
	slog.Debug("ticket: issued", "user", userID, "addr", clientIP)
	return t, nil
}

// Validate consumes ticket and reports whether it was valid for clientAddr.
// It never returns an error: an unreachable backend is a failed validation.
func (s *Service) Validate(ctx context.Context, ticket, clientAddr string) bool {
	if ticket == "" {
		return false
	}

	value, err := s.backend.Take(ctx, ticket)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("ticket: backend unavailable, denying", "addr", clientAddr, "err", err)
		}
		return false
	}

	var rec record
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		slog.Warn("ticket: unreadable record, denying", "addr", clientAddr, "err", err)
		return false
	}

	if s.bindIP && rec.ClientIP != clientAddr {
		slog.Warn("ticket: address mismatch",
			"user", rec.UserID, "issued_to", rec.ClientIP, "addr", clientAddr)
		return false
	}
	return true
}
