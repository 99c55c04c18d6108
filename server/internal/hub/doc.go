// Package hub implements the session hub of boardrelay: the set of live
// sessions, the shared draw history and the per-session authentication gate.
//
// The transport layer drives a Hub through four callbacks:
//
//	Open(s)            a connection was accepted
//	Message(ctx, s, b) a text frame arrived
//	Close(s)           the peer went away cleanly
//	Error(s, err)      the connection failed
//
// The first frame of every session is an authentication attempt. A valid
// ticket moves the session to Authenticated, replays the history to it and
// ends the replay with an info acknowledgment. Anything else closes the
// session with a policy-violation code.
//
// After authentication, draw and clear events are persisted (clear empties the
// history) and relayed to every open session except the sender; chat events
// are relayed to authenticated sessions only and never persisted.
//
// All hub state is guarded by one mutex. Frames are appended to each
// recipient's outbound queue under that lock, which fixes their order, and
// sent after it is released, so a slow peer never stalls hub mutations. A
// session that was open before it authenticated gets live events as they
// happen and, on authentication, only the history that predates its open.
package hub
