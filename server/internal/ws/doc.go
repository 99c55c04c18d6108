// Package ws is the WebSocket transport for the board hub.
//
// Handler upgrades requests on the board endpoint (default /bbService) and
// maps each connection's lifecycle onto hub callbacks:
//
//	connect            -> hub.Open
//	text frame         -> hub.Message
//	peer close         -> hub.Close
//	read/write failure -> hub.Error
//
// Outbound frames go through a bounded per-connection queue drained by a
// write goroutine that also sends pings. Send blocks for at most the
// configured send timeout and then fails with ErrSendTimeout; the hub logs the
// failure and leaves the session open.
//
// The session address passed to the hub is the host part of the request's
// RemoteAddr. When the server trusts proxy headers, chi's RealIP middleware
// rewrites RemoteAddr before it gets here.
//
// Browser origins are checked against an allow-list that can be swapped at
// runtime with SetAllowedOrigins.
package ws
