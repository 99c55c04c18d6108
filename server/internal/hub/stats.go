package hub

import (
	"sync/atomic"

	"github.com/boardrelay/boardrelay/pkg/types"
)

// messageKinds are the kinds counted after authentication.
var messageKinds = []types.Kind{
	types.KindDraw,
	types.KindClear,
	types.KindChat,
	types.KindAuth,
	types.KindUnknown,
}

type counters struct {
	messages        map[types.Kind]*atomic.Uint64
	authSucceeded   atomic.Uint64
	authFailed      atomic.Uint64
	sendFailures    atomic.Uint64
	transportErrors atomic.Uint64
}

func newCounters() counters {
	m := make(map[types.Kind]*atomic.Uint64, len(messageKinds))
	for _, k := range messageKinds {
		m[k] = new(atomic.Uint64)
	}
	return counters{messages: m}
}

func (c *counters) message(k types.Kind) {
	if n, ok := c.messages[k]; ok {
		n.Add(1)
	}
}

// Stats is a point-in-time summary of hub activity.
type Stats struct {
	Sessions        int
	Authenticated   int
	HistoryLength   int
	Messages        map[types.Kind]uint64
	AuthSucceeded   uint64
	AuthFailed      uint64
	SendFailures    uint64
	TransportErrors uint64
}

// Stats returns current gauges and cumulative counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	st := Stats{
		Sessions:      len(h.sessions),
		HistoryLength: h.history.Len(),
	}
	for s := range h.sessions {
		if s.state == Authenticated {
			st.Authenticated++
		}
	}
	h.mu.Unlock()

	st.Messages = make(map[types.Kind]uint64, len(h.stats.messages))
	for k, n := range h.stats.messages {
		st.Messages[k] = n.Load()
	}
	st.AuthSucceeded = h.stats.authSucceeded.Load()
	st.AuthFailed = h.stats.authFailed.Load()
	st.SendFailures = h.stats.sendFailures.Load()
	st.TransportErrors = h.stats.transportErrors.Load()
	return st
}
