// Package ticket issues and validates the short-lived, single-use tickets a
// browser exchanges for a WebSocket session.
//
// A client first calls POST /api/ws-ticket with its identity token and gets a
// random UUID back. The ticket is stored with the caller's user id and address
// for the configured TTL (5 minutes by default). The first frame on the
// WebSocket carries the ticket; Service.Validate consumes it atomically so it
// can never be replayed.
//
// Two backends are provided: MemoryBackend for single-process deployments and
// RedisBackend (SET EX / GETDEL) when tickets are issued by one process and
// redeemed by another. Any backend failure denies the session.
package ticket
