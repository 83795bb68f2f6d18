// Package config holds the client configuration: the server to talk to and
// the persisted session, stored under ~/.config/todos.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/marcus/todos/internal/models"
)

const (
	DefaultServerURL = "http://localhost:8080"

	configFile = "config.json"
	authFile   = "auth.json"
)

// Env holds the environment overrides.
type Env struct {
	ServerURL string        `env:"TODOS_SERVER_URL"`
	Token     string        `env:"TODOS_TOKEN"`
	Debug     bool          `env:"TODOS_DEBUG"`
	Timeout   time.Duration `env:"TODOS_TIMEOUT" envDefault:"15s"`
}

// LoadEnv parses the TODOS_* client variables.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	if e.Timeout <= 0 {
		return Env{}, fmt.Errorf("TODOS_TIMEOUT must be positive")
	}
	return e, nil
}

// Config is the client config stored at ~/.config/todos/config.json.
type Config struct {
	ServerURL string `json:"server_url,omitempty"`
}

// AuthCredentials is the persisted session at ~/.config/todos/auth.json.
type AuthCredentials struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Anonymous bool   `json:"anonymous"`
	ServerURL string `json:"server_url"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// Session returns the credentials as a session.
func (c *AuthCredentials) Session() models.Session {
	return models.Session{
		UserID:    c.UserID,
		Email:     c.Email,
		Anonymous: c.Anonymous,
		Token:     c.Token,
	}
}

// Expired reports whether the server-side expiry has passed.
func (c *AuthCredentials) Expired(now time.Time) bool {
	if c.ExpiresAt == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, c.ExpiresAt)
	return err == nil && now.After(t)
}

// Dir returns the config directory, creating it if necessary.
// TODOS_CONFIG_DIR overrides ~/.config/todos.
func Dir() (string, error) {
	dir := os.Getenv("TODOS_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".config", "todos")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Load reads config.json. A missing file is an empty config.
func Load() (*Config, error) {
	var cfg Config
	found, err := readJSON(configFile, &cfg)
	if err != nil || !found {
		return &Config{}, err
	}
	return &cfg, nil
}

// Save writes config.json.
func Save(cfg *Config) error {
	return writeJSON(configFile, cfg, 0644)
}

// LoadAuth reads auth.json. It returns nil, nil when nobody is signed in.
func LoadAuth() (*AuthCredentials, error) {
	var creds AuthCredentials
	found, err := readJSON(authFile, &creds)
	if err != nil || !found {
		return nil, err
	}
	return &creds, nil
}

// SaveAuth writes auth.json with owner-only permissions.
func SaveAuth(creds *AuthCredentials) error {
	return writeJSON(authFile, creds, 0600)
}

// ClearAuth removes auth.json.
func ClearAuth() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, authFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ServerURL returns the server base URL.
// Priority: TODOS_SERVER_URL env > config.json > default.
func ServerURL(e Env) string {
	if e.ServerURL != "" {
		return e.ServerURL
	}
	cfg, err := Load()
	if err == nil && cfg.ServerURL != "" {
		return cfg.ServerURL
	}
	return DefaultServerURL
}

func readJSON(name string, dst any) (bool, error) {
	dir, err := Dir()
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return true, nil
}

// writeJSON replaces name atomically: temp file in the same dir, then rename.
func writeJSON(name string, v any, perm os.FileMode) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
