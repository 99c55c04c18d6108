package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/boardrelay/boardrelay/server/internal/admin"
	"github.com/boardrelay/boardrelay/server/internal/api"
	"github.com/boardrelay/boardrelay/server/internal/auth"
	"github.com/boardrelay/boardrelay/server/internal/config"
	"github.com/boardrelay/boardrelay/server/internal/hub"
	"github.com/boardrelay/boardrelay/server/internal/metrics"
	"github.com/boardrelay/boardrelay/server/internal/store"
	"github.com/boardrelay/boardrelay/server/internal/ticket"
	"github.com/boardrelay/boardrelay/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func serveRun(cmd *cobra.Command, _ []string) error {
	loadEnv()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	s := cfg.Server

	level := new(slog.LevelVar)
	level.Set(s.Log.SlogLevel())
	slog.SetDefault(newLogger(s.Log.Format, level))

	slog.Info("boardrelay-server starting",
		"config", configPath,
		"http_port", s.HTTPPort,
		"grpc_port", s.GRPCPort,
		"ws_path", s.WebSocket.Path,
		"identity_mode", s.Identity.Mode,
		"ticket_backend", s.Tickets.Backend,
		"admin_mode", s.Admin.Mode,
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	// Ticket backend: in-process TTL store, or Redis shared with the issuer.
	var backend ticket.Backend
	switch s.Tickets.Backend {
	case "redis":
		url := s.Tickets.RedisURL()
		if url == "" {
			return fmt.Errorf("tickets: %s is empty", s.Tickets.RedisURLEnv)
		}
		client, err := ticket.DialRedis(ctx, url)
		if err != nil {
			return err
		}
		defer client.Close()
		backend = ticket.NewRedisBackend(client, s.Tickets.TTL)
	default:
		st := store.New(s.Tickets.TTL)
		g.Go(func() error {
			st.Run(gctx)
			return nil
		})
		backend = ticket.NewMemoryBackend(st)
	}
	tickets := ticket.NewService(backend, ticket.WithClientIPBinding(s.Tickets.BindClientIP))

	board := hub.New(tickets, hub.WithVerifyTimeout(s.Tickets.VerifyTimeout))

	var origins atomic.Pointer[[]string]
	initial := s.CORS.Origins()
	origins.Store(&initial)

	wsHandler := ws.New(board, ws.Options{
		ReadLimit:      s.WebSocket.ReadLimit,
		SendBuffer:     s.WebSocket.SendBuffer,
		SendTimeout:    s.WebSocket.SendTimeout,
		PongWait:       s.WebSocket.PongWait,
		AllowedOrigins: initial,
	})

	identity, err := newIdentity(s.Identity)
	if err != nil {
		return err
	}

	adminKey := auth.APIKey{
		Mode:   s.Admin.Mode,
		Header: s.Admin.EffectiveHeader(),
		Key:    s.Admin.Key(),
	}
	if adminKey.Mode == "apikey" && adminKey.Key == "" {
		slog.Warn("admin api key is empty, admin routes are unprotected", "env", s.Admin.KeyEnv)
	}

	router := api.New(api.Options{
		Board:             board,
		Tickets:           tickets,
		Identity:          identity,
		Admin:             adminKey,
		WebSocket:         wsHandler,
		WSPath:            s.WebSocket.Path,
		Metrics:           metrics.New(board, wsHandler.Count),
		AllowedOrigins:    func() []string { return *origins.Load() },
		TrustProxyHeaders: s.TrustProxyHeaders,
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		slog.Info("HTTP server listening", "port", s.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("boardrelay-server shutting down")
		wsHandler.Shutdown()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		return httpSrv.Shutdown(sctx)
	})

	if s.GRPCPort != 0 {
		adminSrv := admin.New(adminKey)
		g.Go(func() error { return adminSrv.Run(gctx, s.GRPCPort) })
	}

	// Hot reload: log level and allowed origins apply without a restart.
	g.Go(func() error {
		err := config.Watch(gctx, configPath, func(next *config.Config) {
			level.Set(next.Server.Log.SlogLevel())
			o := next.Server.CORS.Origins()
			origins.Store(&o)
			wsHandler.SetAllowedOrigins(o)
			slog.Info("config applied", "log_level", next.Server.Log.Level, "origins", len(o))
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "path", configPath, "err", err)
		}
		return nil
	})

	return g.Wait()
}

func newLogger(format string, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newIdentity(c config.IdentityConfig) (auth.Authenticator, error) {
	if c.Mode == "none" {
		slog.Warn("identity mode none: trusting X-User-ID, do not use in production")
		return auth.HeaderIdentity{}, nil
	}
	return auth.LoadJWT(c.PublicKeyFile, auth.JWTOptions{
		HMACSecret: c.HMACSecret(),
		Issuer:     c.Issuer,
		Audience:   c.Audience,
	})
}
