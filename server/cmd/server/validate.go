package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boardrelay/boardrelay/server/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate a config file, then print a summary",
	Args:  cobra.NoArgs,
	RunE:  validateRun,
}

func validateRun(cmd *cobra.Command, _ []string) error {
	loadEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	s := cfg.Server
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "config %s is valid\n", configPath)
	fmt.Fprintf(out, "  http_port:       %d\n", s.HTTPPort)
	fmt.Fprintf(out, "  grpc_port:       %d\n", s.GRPCPort)
	fmt.Fprintf(out, "  websocket.path:  %s\n", s.WebSocket.Path)
	fmt.Fprintf(out, "  identity.mode:   %s\n", s.Identity.Mode)
	fmt.Fprintf(out, "  tickets.backend: %s (ttl %s)\n", s.Tickets.Backend, s.Tickets.TTL)
	fmt.Fprintf(out, "  admin.mode:      %s\n", s.Admin.Mode)
	fmt.Fprintf(out, "  allowed origins: %d\n", len(s.CORS.Origins()))

	if s.Admin.Mode == "apikey" && s.Admin.Key() == "" {
		fmt.Fprintf(out, "warning: %s is empty, admin routes are open\n", s.Admin.KeyEnv)
	}
	if s.Tickets.Backend == "redis" && s.Tickets.RedisURL() == "" {
		fmt.Fprintf(out, "warning: %s is empty, the server will not start\n", s.Tickets.RedisURLEnv)
	}
	return nil
}
