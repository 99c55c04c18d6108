// Package api implements the HTTP surface of boardrelay-server on a chi router.
//
// New(opts) returns an http.Handler that serves:
//
//	POST   /api/ws-ticket     - single-use WebSocket ticket for the bearer's subject
//	GET    /api/v1/health     - liveness plus session and history gauges
//	GET    /api/v1/sessions   - open sessions (admin)
//	GET    /api/v1/history    - the replay log in order (admin)
//	DELETE /api/v1/history    - clear the board for everyone (admin)
//	GET    /metrics           - Prometheus exposition, when a handler is given
//	GET    <ws path>          - WebSocket upgrade, when a handler is given
//
// All JSON endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 with a JSON error body for unsupported methods
//   - Sit behind CORS for the configured origins (credentials allowed)
//
// Admin routes require the API key header when admin mode is apikey.
// POST /api/ws-ticket requires a bearer token; the ticket is recorded with the
// caller's address so the WebSocket handshake can be checked against it.
package api
