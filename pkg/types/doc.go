// Package types defines the wire shapes exchanged between boardrelay and its
// clients. Field names are load-bearing: browsers already in the field send
// and expect exactly these JSON keys.
//
// Client to server, first frame only:
//
//	{"ticket": "<token>"}
//
// Either direction after authentication:
//
//	{"type":"draw", ...}   persisted and relayed to every open session
//	{"type":"clear"}       empties the history and is relayed to every open session
//	{"type":"chat", ...}   relayed to authenticated sessions only, never persisted
//
// Server to client:
//
//	{"type":"info","message":"<text>"}
package types
