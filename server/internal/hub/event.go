package hub

import (
	"encoding/json"

	"github.com/boardrelay/boardrelay/pkg/types"
)

// Event is a classified inbound frame.
type Event struct {
	Kind   types.Kind
	Ticket string
}

// envelope captures just enough of a frame to classify it. Pointers tell an
// absent field apart from an empty one.
type envelope struct {
	Type   *string `json:"type"`
	Ticket *string `json:"ticket"`
}

// Classify decodes raw into one of auth, draw, clear, chat or unknown.
// Payloads that are not JSON objects, or carry an unrecognised type, are
// unknown rather than an error.
func Classify(raw []byte) Event {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{Kind: types.KindUnknown}
	}

	if env.Type == nil {
		if env.Ticket != nil {
			return Event{Kind: types.KindAuth, Ticket: *env.Ticket}
		}
		return Event{Kind: types.KindUnknown}
	}

	switch k := types.Kind(*env.Type); k {
	case types.KindDraw, types.KindClear, types.KindChat:
		return Event{Kind: k}
	default:
		return Event{Kind: types.KindUnknown}
	}
}

// ticketFrom extracts the ticket of an authentication frame. Malformed or
// ticket-less frames yield "".
func ticketFrom(raw []byte) string {
	var req types.AuthRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return ""
	}
	return req.Ticket
}
