// Package auth provides authentication for boardrelay-server.
//
// APIKey guards the admin surface. UnaryInterceptor and StreamInterceptor
// check the key in gRPC metadata; Middleware checks the same key in an HTTP
// header. When Mode != "apikey" or Key == "", all calls pass through (useful
// for local development). A wrong or absent key gets codes.Unauthenticated or
// HTTP 401.
//
// RequireIdentity guards POST /api/ws-ticket. It asks an Authenticator for the
// caller's subject and stores it in the request context, where
// SubjectFromContext finds it. JWT verifies bearer tokens signed with an HMAC
// secret or an RSA key; HeaderIdentity trusts X-User-ID and is meant for
// development only.
package auth
