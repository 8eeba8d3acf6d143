package config

import (
	"errors"
	"flag"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// ParseFlags parses command-line flags and returns them as a Flags struct.
func ParseFlags() Flags {
	addrPtr := flag.String("addr", ":9080", "HTTP listen address")
	dbPtr := flag.String("db", "./.snapfeed", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and SNAPFEED_CONFIG when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("SNAPFEED_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// ApplyEnvOverrides mutates cfg with SNAPFEED_* environment variables and
// reports whether any were present.
func ApplyEnvOverrides(cfg *Config) bool {
	envUsed := false

	if v := os.Getenv("SNAPFEED_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("SNAPFEED_SOCKET_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Socket.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Socket.Port = pi
			}
		} else {
			cfg.Socket.Address = v
		}
	}
	if v := os.Getenv("SNAPFEED_SOCKET_RELAY_URL"); v != "" {
		envUsed = true
		cfg.Socket.RelayURL = v
	}
	if v := os.Getenv("SNAPFEED_DB_PATH"); v != "" {
		envUsed = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("SNAPFEED_API_BACKEND_KEYS"); v != "" {
		envUsed = true
		cfg.Security.APIKeys.Backend = parseList(v)
	}
	if v := os.Getenv("SNAPFEED_API_FRONTEND_KEYS"); v != "" {
		envUsed = true
		cfg.Security.APIKeys.Frontend = parseList(v)
	}
	if v := os.Getenv("SNAPFEED_SIGNING_KEYS"); v != "" {
		envUsed = true
		cfg.Security.SigningKeys = parseList(v)
	}
	if v := os.Getenv("SNAPFEED_CORS_ORIGINS"); v != "" {
		envUsed = true
		cfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := os.Getenv("SNAPFEED_RATE_MAX"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Security.RateLimit.Max = n
		}
	}
	if v := os.Getenv("SNAPFEED_RATE_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Security.RateLimit.WindowMS = n
		}
	}
	if v := os.Getenv("SNAPFEED_JANITOR_SCHEDULE"); v != "" {
		envUsed = true
		cfg.Janitor.Schedule = v
	}
	if v := os.Getenv("SNAPFEED_JANITOR_RETAIN"); v != "" {
		envUsed = true
		cfg.Janitor.Retain = v
	}
	if v := os.Getenv("SNAPFEED_LOG_LEVEL"); v != "" {
		envUsed = true
		cfg.Logging.Level = v
	}
	if c := os.Getenv("SNAPFEED_TLS_CERT"); c != "" {
		envUsed = true
		cfg.Server.TLS.CertFile = c
	}
	if k := os.Getenv("SNAPFEED_TLS_KEY"); k != "" {
		envUsed = true
		cfg.Server.TLS.KeyFile = k
	}
	return envUsed
}

// Effective is the fully merged runtime configuration with parsed durations
// and derived key sets.
type Effective struct {
	Config *Config

	Addr       string
	SocketAddr string
	DBPath     string

	BackendKeys  map[string]struct{}
	FrontendKeys map[string]struct{}
	SigningKeys  map[string]struct{}

	StreamPoll      time.Duration
	StreamUnread    time.Duration
	StreamMaxAge    time.Duration
	StreamHeartbeat int

	JanitorRetain time.Duration
}

func parseDur(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func keySet(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k != "" {
			out[k] = struct{}{}
		}
	}
	return out
}

// LoadEffective loads the config file named by flags, layers env overrides
// on top, and resolves every derived value. A missing config file is not an
// error; env and defaults still apply.
func LoadEffective(flags Flags) (*Effective, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
	}
	ApplyEnvOverrides(cfg)

	eff := &Effective{
		Config:     cfg,
		Addr:       cfg.Addr(),
		SocketAddr: cfg.SocketAddr(),
		DBPath:     cfg.Storage.DBPath,

		BackendKeys:  keySet(cfg.Security.APIKeys.Backend),
		FrontendKeys: keySet(cfg.Security.APIKeys.Frontend),
		SigningKeys:  keySet(cfg.Security.SigningKeys),

		StreamPoll:      parseDur(cfg.Stream.PollInterval, 3*time.Second),
		StreamUnread:    parseDur(cfg.Stream.UnreadInterval, 10*time.Second),
		StreamMaxAge:    parseDur(cfg.Stream.MaxConnectionAge, 5*time.Minute),
		StreamHeartbeat: cfg.Stream.HeartbeatEvery,

		JanitorRetain: parseDur(cfg.Janitor.Retain, 30*24*time.Hour),
	}

	// flag fallbacks apply only when neither file nor env set a value
	if flags.Set["addr"] || (cfg.Server.Address == "" && cfg.Server.Port == 0) {
		eff.Addr = flags.Addr
	}
	if eff.DBPath == "" {
		eff.DBPath = flags.DB
	}

	// backend services sign their own subject headers
	for k := range eff.BackendKeys {
		eff.SigningKeys[k] = struct{}{}
	}
	return eff, nil
}
