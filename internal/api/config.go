package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/marcus/todos/internal/serverdb"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string        `env:"TODOS_LISTEN_ADDR" envDefault:":8080"`
	DBPath          string        `env:"TODOS_DB_PATH" envDefault:"./data/todos.db"`
	DBDriver        string        `env:"TODOS_DB_DRIVER" envDefault:"sqlite"`
	ShutdownTimeout time.Duration `env:"TODOS_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	AllowSignup     bool          `env:"TODOS_ALLOW_SIGNUP" envDefault:"true"`
	LogFormat       string        `env:"TODOS_LOG_FORMAT" envDefault:"json"` // "json" or "text"
	LogLevel        string        `env:"TODOS_LOG_LEVEL" envDefault:"info"`  // "debug", "info", "warn", "error"

	RateLimitAuth int `env:"TODOS_RATE_LIMIT_AUTH" envDefault:"10"` // /v1/auth/* per IP per minute

	SessionTTL         time.Duration `env:"TODOS_SESSION_TTL" envDefault:"720h"`
	AuthEventRetention time.Duration `env:"TODOS_AUTH_EVENT_RETENTION" envDefault:"2160h"`

	// External credential sign in. Disabled when the secret is empty.
	CredentialProvider string `env:"TODOS_CREDENTIAL_PROVIDER" envDefault:"external"`
	CredentialIssuer   string `env:"TODOS_CREDENTIAL_ISSUER"`
	CredentialSecret   string `env:"TODOS_CREDENTIAL_SECRET"`

	RedisURL           string   `env:"TODOS_REDIS_URL"`
	CORSAllowedOrigins []string `env:"TODOS_CORS_ORIGINS" envSeparator:","`
}

// LoadConfig reads configuration from environment variables with defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.CORSAllowedOrigins = trimAll(cfg.CORSAllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env parsing cannot.
func (c Config) Validate() error {
	switch c.DBDriver {
	case serverdb.DriverPure, serverdb.DriverCGO:
	default:
		return fmt.Errorf("TODOS_DB_DRIVER: unsupported driver %q", c.DBDriver)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("TODOS_LOG_FORMAT: want json or text, got %q", c.LogFormat)
	}
	if c.RateLimitAuth <= 0 {
		return fmt.Errorf("TODOS_RATE_LIMIT_AUTH must be positive")
	}
	return nil
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
