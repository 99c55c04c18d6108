package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort      = 8080
	DefaultGRPCPort      = 50051
	DefaultWSPath        = "/bbService"
	DefaultReadLimit     = 64 * 1024
	DefaultSendBuffer    = 256
	DefaultSendTimeout   = 5 * time.Second
	DefaultPongWait      = 60 * time.Second
	DefaultTicketTTL     = 5 * time.Minute
	DefaultVerifyTimeout = 2 * time.Second
)

// Config holds the configuration parsed from the `server:` section of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort serves the REST API, the WebSocket endpoint and /metrics (default 8080).
	HTTPPort int `yaml:"http_port"`

	// GRPCPort serves the admin health service (default 50051). Zero disables it.
	GRPCPort int `yaml:"grpc_port"`

	// TrustProxyHeaders takes the peer address from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that sets these headers itself.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`

	CORS      CORSConfig      `yaml:"cors"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Identity  IdentityConfig  `yaml:"identity"`
	Tickets   TicketsConfig   `yaml:"tickets"`
	Admin     AdminConfig     `yaml:"admin"`
	Log       LogConfig       `yaml:"log"`
}

// CORSConfig lists the browser origins allowed to call the API and open WebSockets.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedOriginsEnv names an environment variable holding extra,
	// comma-separated origins.
	AllowedOriginsEnv string `yaml:"allowed_origins_env"`
}

// Origins returns the configured origins plus those from the environment.
func (c CORSConfig) Origins() []string {
	out := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if c.AllowedOriginsEnv != "" {
		for _, o := range strings.Split(os.Getenv(c.AllowedOriginsEnv), ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

// WebSocketConfig tunes the transport.
type WebSocketConfig struct {
	// Path is the upgrade endpoint (default /bbService).
	Path string `yaml:"path"`

	// ReadLimit caps a single inbound frame in bytes.
	ReadLimit int64 `yaml:"read_limit"`

	// SendBuffer is the per-connection outbound queue depth.
	SendBuffer int `yaml:"send_buffer"`

	// SendTimeout bounds how long one send may wait on a full queue.
	SendTimeout time.Duration `yaml:"send_timeout"`

	// PongWait is how long a silent peer is kept before it is dropped.
	PongWait time.Duration `yaml:"pong_wait"`
}

// IdentityConfig controls verification of identity tokens presented to
// POST /api/ws-ticket.
type IdentityConfig struct {
	// Mode is one of: jwt | none. "none" trusts an X-User-ID header and is
	// meant for local development only.
	Mode string `yaml:"mode"`

	// HMACSecretEnv names the environment variable holding an HS256 secret.
	HMACSecretEnv string `yaml:"hmac_secret_env"`

	// PublicKeyFile is an RSA public key in PEM form. Takes precedence over
	// the HMAC secret.
	PublicKeyFile string `yaml:"public_key_file"`

	// Issuer and Audience, when set, must match the token's iss and aud.
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// HMACSecret returns the HMAC secret resolved from the environment.
func (i IdentityConfig) HMACSecret() []byte {
	if i.HMACSecretEnv == "" {
		return nil
	}
	return []byte(os.Getenv(i.HMACSecretEnv))
}

// TicketsConfig controls ticket storage and validation.
type TicketsConfig struct {
	// Backend is one of: memory | redis.
	Backend string `yaml:"backend"`

	// TTL is how long an issued ticket can be redeemed (default 5m).
	TTL time.Duration `yaml:"ttl"`

	// RedisURLEnv names the environment variable holding the Redis URL.
	RedisURLEnv string `yaml:"redis_url_env"`

	// BindClientIP rejects tickets redeemed from another address than the
	// one they were issued to.
	BindClientIP bool `yaml:"bind_client_ip"`

	// VerifyTimeout bounds one validation round trip (default 2s).
	VerifyTimeout time.Duration `yaml:"verify_timeout"`
}

// RedisURL returns the Redis URL resolved from the environment.
func (t TicketsConfig) RedisURL() string {
	if t.RedisURLEnv == "" {
		return ""
	}
	return os.Getenv(t.RedisURLEnv)
}

// AdminConfig protects the admin REST routes and the gRPC listener.
type AdminConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header (and gRPC metadata key) carrying the key.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AdminConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AdminConfig) EffectiveHeader() string {
	if a.Header != "" {
		return strings.ToLower(a.Header)
	}
	return "x-api-key"
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// SlogLevel converts Level to a slog.Level. Unknown values map to info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config data.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
			CORS: CORSConfig{
				AllowedOriginsEnv: "FRONT",
			},
			WebSocket: WebSocketConfig{
				Path:        DefaultWSPath,
				ReadLimit:   DefaultReadLimit,
				SendBuffer:  DefaultSendBuffer,
				SendTimeout: DefaultSendTimeout,
				PongWait:    DefaultPongWait,
			},
			Identity: IdentityConfig{
				Mode:          "jwt",
				HMACSecretEnv: "JWT_SECRET",
			},
			Tickets: TicketsConfig{
				Backend:       "memory",
				TTL:           DefaultTicketTTL,
				RedisURLEnv:   "REDIS_URL",
				VerifyTimeout: DefaultVerifyTimeout,
			},
			Admin: AdminConfig{
				Mode:   "apikey",
				KeyEnv: "BOARD_ADMIN_KEY",
			},
			Log: LogConfig{
				Level:  "info",
				Format: "json",
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.GRPCPort < 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", s.GRPCPort)
	}
	if s.GRPCPort != 0 && s.GRPCPort == s.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port must differ")
	}
	if !strings.HasPrefix(s.WebSocket.Path, "/") {
		return fmt.Errorf("server.websocket.path %q must start with /", s.WebSocket.Path)
	}
	if s.WebSocket.ReadLimit <= 0 {
		return fmt.Errorf("server.websocket.read_limit must be positive")
	}
	if s.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("server.websocket.send_buffer must be positive")
	}
	if s.WebSocket.SendTimeout <= 0 || s.WebSocket.PongWait <= 0 {
		return fmt.Errorf("server.websocket timeouts must be positive")
	}
	switch s.Identity.Mode {
	case "jwt":
		if s.Identity.PublicKeyFile == "" && s.Identity.HMACSecretEnv == "" {
			return fmt.Errorf("server.identity: jwt mode needs public_key_file or hmac_secret_env")
		}
	case "none":
	default:
		return fmt.Errorf("server.identity.mode %q unknown: want jwt|none", s.Identity.Mode)
	}
	switch s.Tickets.Backend {
	case "memory":
	case "redis":
		if s.Tickets.RedisURLEnv == "" {
			return fmt.Errorf("server.tickets: redis backend needs redis_url_env")
		}
	default:
		return fmt.Errorf("server.tickets.backend %q unknown: want memory|redis", s.Tickets.Backend)
	}
	if s.Tickets.TTL <= 0 {
		return fmt.Errorf("server.tickets.ttl must be positive")
	}
	if s.Tickets.VerifyTimeout <= 0 {
		return fmt.Errorf("server.tickets.verify_timeout must be positive")
	}
	switch s.Admin.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.admin.mode %q unknown: want apikey|none", s.Admin.Mode)
	}
	switch s.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("server.log.format %q unknown: want json|text", s.Log.Format)
	}
	return nil
}
