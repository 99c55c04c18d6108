package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// APIKey checks a shared admin key carried in a header (HTTP) or metadata
// key (gRPC). When Mode != "apikey" or Key == "", every call passes.
type APIKey struct {
	Mode   string
	Header string
	Key    string

	// Public lists full gRPC method names, or prefixes ending in "/", that
	// skip the check (e.g. "/grpc.health.v1.Health/").
	Public []string
}

func (a APIKey) enabled() bool {
	return a.Mode == "apikey" && a.Key != ""
}

func (a APIKey) matches(got string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(a.Key)) == 1
}

func (a APIKey) public(method string) bool {
	for _, p := range a.Public {
		if method == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(method, p)) {
			return true
		}
	}
	return false
}

// check validates the key in the incoming gRPC metadata.
func (a APIKey) check(ctx context.Context, method string) error {
	if !a.enabled() || a.public(method) {
		return nil
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}

	vals := md.Get(a.Header)
	if len(vals) == 0 || !a.matches(vals[0]) {
		return status.Error(codes.Unauthenticated, "invalid api key")
	}
	return nil
}

// UnaryInterceptor returns a gRPC UnaryServerInterceptor enforcing the key.
//
// Header should be lowercase: gRPC normalises metadata keys to lowercase.
func (a APIKey) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if err := a.check(ctx, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor returns the streaming counterpart of UnaryInterceptor.
// Health Watch and server reflection are streaming calls.
func (a APIKey) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := a.check(ss.Context(), info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}
