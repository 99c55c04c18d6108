package ticket

import (
	"context"

	"github.com/boardrelay/boardrelay/server/internal/store"
)

// MemoryBackend keeps tickets in an in-process store.
type MemoryBackend struct {
	st *store.Store
}

// NewMemoryBackend wraps st. The caller owns st's eviction loop.
func NewMemoryBackend(st *store.Store) *MemoryBackend {
	return &MemoryBackend{st: st}
}

func (b *MemoryBackend) Put(_ context.Context, ticket, value string) error {
	b.st.Put(ticket, value)
	return nil
}

func (b *MemoryBackend) Take(_ context.Context, ticket string) (string, error) {
	v, ok := b.st.Take(ticket)
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}
