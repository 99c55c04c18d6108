package ticket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boardrelay/boardrelay/server/internal/hub"
	"github.com/boardrelay/boardrelay/server/internal/store"
)

// Service is what the hub authenticates against.
var _ hub.Verifier = (*Service)(nil)

// --- helpers ----------------------------------------------------------------

func newMemoryService(opts ...Option) *Service {
	return NewService(NewMemoryBackend(store.New(DefaultTTL)), opts...)
}

// failingBackend simulates an unreachable store.
type failingBackend struct{}

func (failingBackend) Put(context.Context, string, string) error {
	return errors.New("connection refused")
}

func (failingBackend) Take(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

// rawBackend returns a fixed stored value.
type rawBackend struct{ value string }

func (rawBackend) Put(context.Context, string, string) error { return nil }

func (b rawBackend) Take(context.Context, string) (string, error) { return b.value, nil }

// --- tests ------------------------------------------------------------------

func TestIssue_ReturnsUniqueTickets(t *testing.T) {
	s := newMemoryService()
	ctx := context.Background()

	t1, err := s.Issue(ctx, "user123", "127.0.0.1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	t2, err := s.Issue(ctx, "user123", "127.0.0.1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if t1 == "" || t1 == t2 {
		t.Errorf("tickets: got %q and %q, want two distinct non-empty values", t1, t2)
	}
}

func TestValidate_ConsumesTicket(t *testing.T) {
	s := newMemoryService()
	ctx := context.Background()
	tk, _ := s.Issue(ctx, "user123", "127.0.0.1")

	if !s.Validate(ctx, tk, "127.0.0.1") {
		t.Fatal("first Validate: got false, want true")
	}
	if s.Validate(ctx, tk, "127.0.0.1") {
		t.Error("second Validate: got true, want false")
	}
}

func TestValidate_UnknownAndEmpty(t *testing.T) {
	s := newMemoryService()
	ctx := context.Background()
	if s.Validate(ctx, "ticket-xyz", "127.0.0.1") {
		t.Error("unknown ticket: got true")
	}
	if s.Validate(ctx, "", "127.0.0.1") {
		t.Error("empty ticket: got true")
	}
}

func TestValidate_AddressIgnoredByDefault(t *testing.T) {
	s := newMemoryService()
	ctx := context.Background()
	tk, _ := s.Issue(ctx, "user123", "127.0.0.1")

	if !s.Validate(ctx, tk, "10.9.9.9") {
		t.Error("Validate from another address without binding: got false")
	}
}

func TestValidate_AddressBinding(t *testing.T) {
	s := newMemoryService(WithClientIPBinding(true))
	ctx := context.Background()

	tk, _ := s.Issue(ctx, "user123", "127.0.0.1")
	if s.Validate(ctx, tk, "10.9.9.9") {
		t.Fatal("mismatched address: got true")
	}
	// The failed attempt still consumed the ticket.
	if s.Validate(ctx, tk, "127.0.0.1") {
		t.Error("ticket reusable after a failed attempt")
	}

	tk, _ = s.Issue(ctx, "user123", "127.0.0.1")
	if !s.Validate(ctx, tk, "127.0.0.1") {
		t.Error("matching address: got false")
	}
}

func TestValidate_Expired(t *testing.T) {
	st := store.New(time.Minute)
	s := NewService(NewMemoryBackend(st))
	ctx := context.Background()
	tk, _ := s.Issue(ctx, "u", "ip")

	st.Evict(time.Now().Add(2 * time.Minute))
	if s.Validate(ctx, tk, "ip") {
		t.Error("expired ticket: got true")
	}
}

func TestValidate_BackendDownFailsClosed(t *testing.T) {
	s := NewService(failingBackend{})
	if s.Validate(context.Background(), "ticket-abc", "127.0.0.1") {
		t.Error("unreachable backend: got true, want false")
	}
}

func TestIssue_BackendDown(t *testing.T) {
	s := NewService(failingBackend{})
	if _, err := s.Issue(context.Background(), "u", "ip"); err == nil {
		t.Fatal("expected error from failing backend, got nil")
	}
}

func TestValidate_UnreadableRecord(t *testing.T) {
	s := NewService(rawBackend{value: "invalidformat"})
	if s.Validate(context.Background(), "ticket-abc", "127.0.0.1") {
		t.Error("unreadable record: got true, want false")
	}
}

func TestIssue_FixedIDAndClock(t *testing.T) {
	st := store.New(DefaultTTL)
	s := NewService(NewMemoryBackend(st))
	s.newID = func() string { return "ticket-abc" }
	s.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	tk, err := s.Issue(context.Background(), "user123", "127.0.0.1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if tk != "ticket-abc" {
		t.Errorf("ticket: got %q, want ticket-abc", tk)
	}
	v, ok := st.Take("ticket-abc")
	if !ok {
		t.Fatal("ticket not stored")
	}
	want := `{"user_id":"user123","client_ip":"127.0.0.1","issued_at":"2025-01-02T03:04:05Z"}`
	if v != want {
		t.Errorf("stored value:\n got %s\nwant %s", v, want)
	}
}
