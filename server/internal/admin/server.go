package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/boardrelay/boardrelay/server/internal/auth"
)

// BoardService is the health service name reported for the relay.
const BoardService = "boardrelay.Board"

// Server wraps a gRPC server exposing health and reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New builds a Server guarded by key.
func New(key auth.APIKey) *Server {
	key.Public = append(key.Public, "/grpc.health.v1.Health/")

	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(key.UnaryInterceptor()),
		grpc.ChainStreamInterceptor(key.StreamInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(BoardService, healthpb.HealthCheckResponse_SERVING)

	return &Server{grpc: gs, health: hs}
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("admin: gRPC listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("admin: serve: %w", err)
	}
	return nil
}

// Run listens on port and serves until ctx is cancelled, then stops
// gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("admin: listen on %d: %w", port, err)
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return s.Serve(lis)
}

// Drain marks every service NOT_SERVING. Health watchers are notified.
func (s *Server) Drain() {
	s.health.Shutdown()
}

// Stop drains and then stops the server gracefully.
func (s *Server) Stop() {
	s.Drain()
	s.grpc.GracefulStop()
	slog.Info("admin: gRPC stopped")
}
