// Package admin runs the gRPC admin listener.
//
// It serves the standard grpc.health.v1 service and server reflection. The
// overall status ("") and the "boardrelay.Board" service report SERVING while
// the relay runs and flip to NOT_SERVING when shutdown begins, so load
// balancers drain the instance before connections are closed.
//
// Calls pass through the API-key interceptors from package auth; health
// methods are public so health checks need no key.
package admin
