// Package config loads and validates node configuration from a TOML file
// with DOCMESH_* environment overrides.
package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config holds everything a node needs at startup. Tokens and peers are
// loaded once and read-only afterwards.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":5984".
	Listen string `toml:"listen"`

	// DataDir roots the embedded key-value store. Required.
	DataDir string `toml:"data_dir"`

	// Peers are the base URLs of every replication peer. May be empty.
	Peers []string `toml:"peers"`

	// AuthTokens are the bearer tokens accepted on inbound requests. At
	// least one is required.
	AuthTokens []string `toml:"auth_tokens"`

	// OutboundToken is the bearer token presented to peers. Required
	// whenever Peers is non-empty; it is never inferred from AuthTokens.
	OutboundToken string `toml:"outbound_token"`

	// PeerTimeoutMS bounds each outbound replicate request, in
	// milliseconds.
	PeerTimeoutMS int `toml:"peer_timeout_ms"`

	// LogLevel is a logrus level name.
	LogLevel string `toml:"log_level"`
}

// Default returns the baseline configuration before file and env overrides.
func Default() *Config {
	return &Config{
		Listen:        ":5984",
		PeerTimeoutMS: 3000,
		LogLevel:      "info",
	}
}

// Load reads the TOML file at path, applies environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromEnv builds a configuration from defaults and environment variables
// alone, for file-less deployments.
func FromEnv() (*Config, error) {
	c := Default()
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyEnv overrides fields from DOCMESH_* variables. List-valued
// variables are comma-separated.
func (c *Config) applyEnv() error {
	if v := os.Getenv("DOCMESH_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("DOCMESH_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DOCMESH_PEERS"); v != "" {
		c.Peers = splitList(v)
	}
	if v := os.Getenv("DOCMESH_AUTH_TOKENS"); v != "" {
		c.AuthTokens = splitList(v)
	}
	if v := os.Getenv("DOCMESH_OUTBOUND_TOKEN"); v != "" {
		c.OutboundToken = v
	}
	if v := os.Getenv("DOCMESH_PEER_TIMEOUT_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "parse DOCMESH_PEER_TIMEOUT_MS")
		}
		c.PeerTimeoutMS = n
	}
	if v := os.Getenv("DOCMESH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration is complete and coherent.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address must not be empty")
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if len(c.AuthTokens) == 0 {
		return errors.New("at least one auth token is required")
	}
	for _, t := range c.AuthTokens {
		if t == "" {
			return errors.New("auth tokens must not be empty")
		}
	}
	if len(c.Peers) > 0 && c.OutboundToken == "" {
		return errors.New("outbound_token is required when peers are configured")
	}
	if c.PeerTimeoutMS <= 0 {
		return errors.New("peer_timeout_ms must be positive")
	}
	for _, p := range c.Peers {
		u, err := url.Parse(p)
		if err != nil {
			return errors.Wrapf(err, "peer %q", p)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.Errorf("peer %q is not an http(s) base URL", p)
		}
	}
	return nil
}

// PeerTimeout returns the per-peer request bound as a duration.
func (c *Config) PeerTimeout() time.Duration {
	return time.Duration(c.PeerTimeoutMS) * time.Millisecond
}
