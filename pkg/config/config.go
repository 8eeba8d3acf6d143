// Package config loads the server configuration from a YAML file, applies
// environment overrides, and exposes the merged effective config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full on-disk configuration. Zero values fall back to the
// defaults applied in Effective().
type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
		TLS     struct {
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"server"`

	// Socket configures the broadcast socket server process.
	Socket struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
		// RelayURL is where the API server pushes created notifications,
		// e.g. ws://127.0.0.1:9081/socket. Empty disables the relay.
		RelayURL string `yaml:"relay_url"`
	} `yaml:"socket"`

	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`

	Security struct {
		APIKeys struct {
			Backend  []string `yaml:"backend"`
			Frontend []string `yaml:"frontend"`
		} `yaml:"api_keys"`
		// SigningKeys verify the HMAC subject headers. Backend API keys
		// are implicitly included so trusted services can mint their own
		// signatures.
		SigningKeys []string `yaml:"signing_keys"`
		CORS        struct {
			AllowedOrigins []string `yaml:"allowed_origins"`
		} `yaml:"cors"`
		RateLimit struct {
			Max      int `yaml:"max"`
			WindowMS int `yaml:"window_ms"`
		} `yaml:"rate_limit"`
	} `yaml:"security"`

	// Durations are Go duration strings ("3s", "5m"); they are parsed and
	// defaulted in Effective().
	Stream struct {
		PollInterval     string `yaml:"poll_interval"`
		UnreadInterval   string `yaml:"unread_interval"`
		MaxConnectionAge string `yaml:"max_connection_age"`
		HeartbeatEvery   int    `yaml:"heartbeat_every"`
	} `yaml:"stream"`

	Janitor struct {
		// Schedule is a cron expression; empty disables the janitor.
		Schedule string `yaml:"schedule"`
		// Retain is how long read notifications are kept before purge.
		Retain string `yaml:"retain"`
	} `yaml:"janitor"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Addr returns host:port for the API server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 9080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// SocketAddr returns host:port for the socket server.
func (c *Config) SocketAddr() string {
	addr := c.Socket.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Socket.Port
	if p == 0 {
		p = 9081
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// Load reads and parses the YAML config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s: %w", path, err)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}
