// Package config owns the immutable Config struct assembled at startup from
// environment variables (spec §6), plus flag-parsed CLI overrides for
// `serve-http --host/--port/--no-auth`. No viper/cobra: plain `flag` and a
// hand-rolled os.Args[1] subcommand dispatch in cmd/server and cmd/am.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the immutable configuration derived from the environment at
// startup (spec §9: "Global mutable state: none beyond the Store handle and
// an immutable configuration struct").
type Config struct {
	DatabaseURL    string // DATABASE_URL
	StorageRoot    string // STORAGE_ROOT
	HTTPHost       string // HTTP_HOST
	HTTPPort       int    // HTTP_PORT
	BearerToken    string // HTTP_BEARER_TOKEN
	AllowLocalhost bool   // HTTP_ALLOW_LOCALHOST_UNAUTHENTICATED
	RBACEnabled    bool   // HTTP_RBAC_ENABLED (reserved, unused)
	RateLimitOn    bool   // HTTP_RATE_LIMIT_ENABLED
	WorktreesOn    bool   // WORKTREES_ENABLED
}

const (
	defaultHTTPHost = "127.0.0.1"
	defaultHTTPPort = 8085
	defaultDBURL    = "sqlite:///./agentmail.db"
)

// Load assembles a Config from the process environment. It never fails on
// missing optional variables; only a malformed HTTP_PORT is an error.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    getenv("DATABASE_URL", defaultDBURL),
		StorageRoot:    getenv("STORAGE_ROOT", "./agentmail-data"),
		HTTPHost:       getenv("HTTP_HOST", defaultHTTPHost),
		HTTPPort:       defaultHTTPPort,
		BearerToken:    os.Getenv("HTTP_BEARER_TOKEN"),
		AllowLocalhost: boolEnv("HTTP_ALLOW_LOCALHOST_UNAUTHENTICATED"),
		RBACEnabled:    boolEnv("HTTP_RBAC_ENABLED"),
		RateLimitOn:    boolEnv("HTTP_RATE_LIMIT_ENABLED"),
		WorktreesOn:    boolEnv("WORKTREES_ENABLED"),
	}
	if raw := os.Getenv("HTTP_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_PORT %q: %w", raw, err)
		}
		cfg.HTTPPort = port
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return v == "1" || strings.EqualFold(v, "true")
}

// DBPath extracts the filesystem path from a DATABASE_URL of the form
// `sqlite:///<path>` or the aiosqlite-compat `sqlite+aiosqlite:///<path>`.
func (c *Config) DBPath() string {
	url := c.DatabaseURL
	for _, prefix := range []string{"sqlite+aiosqlite:///", "sqlite:///"} {
		if strings.HasPrefix(url, prefix) {
			return url[len(prefix):]
		}
	}
	return url
}
