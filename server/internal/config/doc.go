// Package config loads the server configuration from the `server:` section of
// config.yaml.
//
// Config fields:
//   - HTTPPort            REST API, WebSocket endpoint and /metrics (default 8080)
//   - GRPCPort            admin gRPC health service (default 50051, 0 disables)
//   - TrustProxyHeaders   derive the peer address from X-Forwarded-For
//   - CORS                allowed browser origins (list + env var, default FRONT)
//   - WebSocket           path (/bbService), read limit, send queue, timeouts
//   - Identity            jwt | none; HMAC secret env or RSA public key file
//   - Tickets             memory | redis backend, TTL (5m), IP binding
//   - Admin               apikey | none, key env, header (default x-api-key)
//   - Log                 level and json | text format
//
// Secrets are never stored in the file: fields ending in _env name the
// environment variable to read them from.
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, fn) reloads on write; the server applies the log level and
// allowed origins from a reload without restarting.
package config
