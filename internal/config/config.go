// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Server modes.
const (
	ModeHTTP = "http"
	ModeRaw  = "raw"
)

// DefaultBaseURL is the upstream API host requests are forwarded to.
const DefaultBaseURL = "https://api.spotify.com"

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/spotify-proxy/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Mode     string `kong:"short='m',help='Inbound mode: http|raw (overrides config).',env='PROXY_MODE'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds inbound listener settings.
type ServerConfig struct {
	Host         string    `toml:"host"`
	Port         int       `toml:"port"` // 0 means "use default" (3030)
	Mode         string    `toml:"mode"`
	BodyMaxBytes int64     `toml:"body_max_bytes"`
	Raw          RawConfig `toml:"raw"`
}

// RawConfig controls the hand-parsed socket listener used in raw mode.
type RawConfig struct {
	MaxRequestBytes int    `toml:"max_request_bytes"`
	ReadTimeoutMS   int    `toml:"read_timeout_ms"`
	SingleRead      bool   `toml:"single_read"`
	// AdminAddr, when set, serves health, status and metrics over HTTP
	// alongside the raw listener.
	AdminAddr       string `toml:"admin_addr"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	BaseURL                      string   `toml:"base_url"`
	TimeoutSeconds               int      `toml:"timeout_seconds"` // 0 disables the end-to-end deadline
	ResponseHeaderTimeoutSeconds int      `toml:"response_header_timeout_seconds"`
	IdleConnections              int      `toml:"idle_connections"`
	UserAgents                   []string `toml:"user_agents"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file, if any, and applies CLI overrides.
// An explicit path (via --config or CONFIG_PATH) must exist. Otherwise
// /etc/spotify-proxy/config.toml then configs/config.toml are searched, and
// built-in defaults are used when neither is present.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Mode != "" {
		c.Server.Mode = cli.Mode
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil {
		return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("upstream.base_url must be an http(s) URL; got %q", c.Upstream.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("upstream.base_url has no host; got %q", c.Upstream.BaseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("upstream.base_url must not carry a query or fragment; got %q", c.Upstream.BaseURL)
	}
	for i, ua := range c.Upstream.UserAgents {
		if strings.TrimSpace(ua) == "" {
			return fmt.Errorf("upstream.user_agents[%d] is empty", i)
		}
	}

	switch strings.ToLower(c.Server.Mode) {
	case ModeHTTP, ModeRaw:
	default:
		return fmt.Errorf("server.mode must be one of: http, raw; got %q", c.Server.Mode)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0-65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Server.Raw.MaxRequestBytes < 0 {
		return fmt.Errorf("server.raw.max_request_bytes must be non-negative; got %d", c.Server.Raw.MaxRequestBytes)
	}
	if c.Server.Raw.ReadTimeoutMS < 0 {
		return fmt.Errorf("server.raw.read_timeout_ms must be non-negative; got %d", c.Server.Raw.ReadTimeoutMS)
	}
	if c.Server.Mode == ModeRaw && c.Server.Raw.AdminAddr != "" && c.Server.Raw.AdminAddr == c.Server.Addr() {
		return fmt.Errorf("server.raw.admin_addr must differ from the proxy listen address %q", c.Server.Addr())
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.ResponseHeaderTimeoutSeconds < 0 {
		return fmt.Errorf("upstream.response_header_timeout_seconds must be non-negative; got %d", c.Upstream.ResponseHeaderTimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/v1", "/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// TOML cannot distinguish an explicit 0 from an omitted key, so zero means
// "unset" for every integer field except upstream.timeout_seconds, where 0
// leaves the end-to-end deadline disabled.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3030
	}
	if c.Server.Mode == "" {
		c.Server.Mode = ModeHTTP
	}
	c.Server.Mode = strings.ToLower(c.Server.Mode)
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Server.Raw.MaxRequestBytes == 0 {
		c.Server.Raw.MaxRequestBytes = 8192
	}
	if c.Server.Raw.ReadTimeoutMS == 0 {
		c.Server.Raw.ReadTimeoutMS = 5000
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultBaseURL
	}
	c.Upstream.BaseURL = strings.TrimRight(c.Upstream.BaseURL, "/")
	if c.Upstream.ResponseHeaderTimeoutSeconds == 0 {
		c.Upstream.ResponseHeaderTimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ReadTimeout returns the raw-mode bound on acquiring one request.
func (c *RawConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
