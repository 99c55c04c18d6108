// Package store is an in-memory key/value store with per-entry expiry and
// atomic take-and-delete. It backs single-use authentication tickets when no
// Redis is configured.
//
// Entries expire TTL after they are put. Expired entries are invisible to
// Take immediately and are physically removed by the Run eviction loop.
package store
