package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/stackmesh/agenthub/cache"
	"github.com/stackmesh/agenthub/health"
	"github.com/stackmesh/agenthub/memory"
	"github.com/stackmesh/agenthub/queue"
	"github.com/stackmesh/agenthub/trace"
)

// Config is the complete hub configuration.
type Config struct {
	// Server holds the HTTP listener settings.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Cache configures the result cache.
	Cache cache.Config `yaml:"cache" env:"CACHE"`

	// Queue configures the durable degraded-mode queue.
	Queue queue.Config `yaml:"queue" env:"QUEUE"`

	// Memory configures session memory and its persistent layer.
	Memory memory.Config `yaml:"memory" env:"MEMORY"`

	// Health configures capability probing and hysteresis.
	Health health.Config `yaml:"health" env:"HEALTH"`

	// Trace configures the span recorder.
	Trace trace.Config `yaml:"trace" env:"TRACE"`

	// Replay configures queue drain parallelism.
	Replay ReplayConfig `yaml:"replay" env:"REPLAY"`

	// Backend is the commerce capability backend the hub proxies to.
	Backend BackendConfig `yaml:"backend" env:"BACKEND"`

	// Auth configures request authentication.
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures OpenTelemetry export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	RateLimitRPS    int           `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// ReplayConfig bounds queue drain parallelism.
type ReplayConfig struct {
	// Workers caps concurrent cross-session replay lanes.
	Workers int `yaml:"workers" env:"WORKERS"`
}

// BackendConfig points the hub at the commerce capability backend.
type BackendConfig struct {
	// BaseURL is the root of the commerce API the tools proxy to.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// APIKey authenticates the hub to the backend.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// Timeout bounds one backend round trip, before per-tool policies.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	// Enabled turns JWT verification on. Off by default for local runs.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// JWTSecret signs and verifies agent tokens (HS256).
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// TokenTTL bounds issued token lifetime.
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths passed straight to zap.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9091,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    100,
			RateLimitBurst:  200,
		},
		Cache:  cache.DefaultConfig(),
		Queue:  queue.DefaultConfig(),
		Memory: memory.DefaultConfig(),
		Health: health.DefaultConfig(),
		Trace:  trace.DefaultConfig(),
		Replay: ReplayConfig{Workers: 4},
		Backend: BackendConfig{
			BaseURL: "http://localhost:9000",
			Timeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Enabled:  false,
			TokenTTL: time.Hour,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "agenthub",
			SampleRate:   1.0,
		},
	}
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.RateLimitRPS <= 0 {
		errs = append(errs, "rate_limit_rps must be positive")
	}
	if err := c.Queue.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url is required")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required when auth is enabled")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
