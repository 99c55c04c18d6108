package api

import (
	"encoding/json"

	"github.com/boardrelay/boardrelay/server/internal/hub"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State         string `json:"state"`
	Sessions      int    `json:"sessions"`
	Authenticated int    `json:"authenticated"`
	HistoryLength int    `json:"history_length"`
}

// SessionsResponse is the payload for GET /api/v1/sessions.
type SessionsResponse struct {
	Sessions []hub.SessionInfo `json:"sessions"`
}

// HistoryResponse is the payload for GET /api/v1/history. Entries that are
// valid JSON are embedded as is; anything else is returned as a JSON string.
type HistoryResponse struct {
	Entries []json.RawMessage `json:"entries"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

func toHistoryResponse(entries [][]byte) HistoryResponse {
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		if json.Valid(e) {
			out = append(out, json.RawMessage(e))
			continue
		}
		quoted, _ := json.Marshal(string(e))
		out = append(out, quoted)
	}
	return HistoryResponse{Entries: out}
}
