package types

import "encoding/json"

// Kind discriminates the events a client may send.
type Kind string

const (
	KindAuth    Kind = "auth"
	KindDraw    Kind = "draw"
	KindClear   Kind = "clear"
	KindChat    Kind = "chat"
	KindUnknown Kind = "unknown"

	// KindInfo is only ever sent by the server.
	KindInfo Kind = "info"
)

// AuthRequest is the first frame a client sends on a new connection.
type AuthRequest struct {
	Ticket string `json:"ticket"`
}

// InfoMessage is an informational server notice.
type InfoMessage struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

// TicketResponse is the body returned by POST /api/ws-ticket.
type TicketResponse struct {
	Ticket string `json:"ticket"`
}

// AuthenticatedAck is the text of the acknowledgment that follows a history
// replay. Clients treat it as the end-of-replay marker.
const AuthenticatedAck = "Authenticated."

// AuthFailedReason is the close reason sent with a policy-violation close.
const AuthFailedReason = "Invalid or missing ticket."

// Info encodes an InfoMessage.
func Info(message string) []byte {
	data, _ := json.Marshal(InfoMessage{Type: KindInfo, Message: message})
	return data
}

// ClearEvent is the canonical clear frame.
func ClearEvent() []byte {
	return []byte(`{"type":"clear"}`)
}
