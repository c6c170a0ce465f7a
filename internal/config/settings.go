// Package config loads the standalone binary's process-wide settings:
// listener/timeout shape from a YAML file, overlaid with the
// environment-variable knobs the external interface names (admin host,
// rate limiting, secrets).
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Server is the listener shape: address, timeouts, and header limits.
type Server struct {
	Listen   string   `yaml:"listen"`
	Timeouts Timeouts `yaml:"timeouts"`
	Limits   Limits   `yaml:"limits"`

	// OutboundFetchesPerSec paces origin dials process-wide; zero means
	// unpaced. OutboundFetchBurst is the token bucket's burst size,
	// defaulting to 1 when fetches are paced at all.
	OutboundFetchesPerSec float64 `yaml:"outbound_fetches_per_sec"`
	OutboundFetchBurst    int     `yaml:"outbound_fetch_burst"`
}

type Timeouts struct {
	Read  time.Duration `yaml:"read"`
	Write time.Duration `yaml:"write"`
	Idle  time.Duration `yaml:"idle"`
}

type Limits struct {
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// Settings is the full process configuration: the YAML-sourced server
// shape plus the environment-sourced knobs from the external-interface
// contract. Fields with an env var are always read from the environment,
// never from YAML, so the contract stays independent of file layout.
type Settings struct {
	Server Server `yaml:"server"`

	// AdminHost is the only admin-surface knob this binary consumes: it
	// tells the router which Host to send to the admin handler. Admin
	// credentials are the delegated admin collaborator's concern, not
	// this binary's, so they are never loaded here.
	AdminHost string
	SecretKey string

	RateLimitRequests          int
	RateLimitWindow            time.Duration
	MaxResponseSizeMB          int
	RequestTimeout             time.Duration
	EnableRateLimiting         bool
	RateLimitTrustProxyHeaders bool
	SessionCookieSecure        bool

	SitesDir string
}

// LoadSettings reads the YAML file at path for the server shape, defaults
// Server.Listen to ":80" when absent, and overlays the
// environment-variable knobs with their documented defaults.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Settings
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":80"
	}

	cfg.AdminHost = os.Getenv("ADMIN_HOST")
	cfg.SecretKey = os.Getenv("SECRET_KEY")

	cfg.RateLimitRequests = envInt("RATE_LIMIT_REQUESTS", 60)
	cfg.RateLimitWindow = envSeconds("RATE_LIMIT_WINDOW", 60*time.Second)
	cfg.MaxResponseSizeMB = envInt("MAX_RESPONSE_SIZE_MB", 15)
	cfg.RequestTimeout = envSeconds("REQUEST_TIMEOUT", 15*time.Second)
	cfg.EnableRateLimiting = envBool("ENABLE_RATE_LIMITING", true)
	cfg.RateLimitTrustProxyHeaders = envBool("RATE_LIMIT_TRUST_PROXY_HEADERS", false)
	cfg.SessionCookieSecure = envBool("SESSION_COOKIE_SECURE", false)

	cfg.SitesDir = os.Getenv("SITES_DIR")
	if cfg.SitesDir == "" {
		cfg.SitesDir = "./config/sites"
	}

	return &cfg, nil
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envSeconds(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
