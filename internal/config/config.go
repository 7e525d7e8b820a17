package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	toml "github.com/pelletier/go-toml/v2"
)

// Config is the on-disk kanri configuration.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	API      APIConfig      `toml:"api"`
	Auth     AuthConfig     `toml:"auth"`
	Board    BoardConfig    `toml:"board"`
	Logging  LoggingConfig  `toml:"logging"`
	Server   ServerConfig   `toml:"server"`
}

// DatabaseConfig points at the sqlite file holding client storage and the mock backend.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// APIConfig describes the REST backend the client talks to.
type APIConfig struct {
	BaseURL   string   `toml:"base_url"`
	V1Prefix  string   `toml:"v1_prefix"`
	APIPrefix string   `toml:"api_prefix"`
	Timeout   Duration `toml:"timeout"`
	PageSize  int      `toml:"page_size"`
}

type AuthConfig struct {
	PrehashPasswords bool `toml:"prehash_passwords"`
}

type BoardConfig struct {
	Compact      bool     `toml:"compact"`
	PollInterval Duration `toml:"poll_interval"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// ServerConfig configures `kanri serve`.
type ServerConfig struct {
	HTTPBind        string `toml:"http_bind"`
	MCPEndpoint     string `toml:"mcp_endpoint"`
	MetricsEndpoint string `toml:"metrics_endpoint"`
}

// Duration decodes TOML strings such as "3s".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the built-in configuration.
func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		API: APIConfig{
			BaseURL:   "http://127.0.0.1:8080",
			V1Prefix:  "/v1",
			APIPrefix: "/api",
			Timeout:   Duration(15 * time.Second),
			PageSize:  20,
		},
		Auth: AuthConfig{
			PrehashPasswords: true,
		},
		Board: BoardConfig{
			Compact:      false,
			PollInterval: Duration(3 * time.Second),
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".kanri/log",
			},
		},
		Server: ServerConfig{
			HTTPBind:        "127.0.0.1:8080",
			MCPEndpoint:     "/mcp",
			MetricsEndpoint: "/metrics",
		},
	}
}

// Load reads path over defaults. A missing or empty file yields the defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	decoder := toml.NewDecoder(bytes.NewReader(content))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks every section for usable values.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	base, err := url.Parse(strings.TrimSpace(c.API.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("invalid api.base_url: %q", c.API.BaseURL)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https: %q", c.API.BaseURL)
	}
	for name, prefix := range map[string]string{"api.v1_prefix": c.API.V1Prefix, "api.api_prefix": c.API.APIPrefix} {
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("%s must start with '/': %q", name, prefix)
		}
	}
	if c.API.Timeout.Std() <= 0 {
		return errors.New("api.timeout must be positive")
	}
	if c.API.PageSize <= 0 || c.API.PageSize > 200 {
		return fmt.Errorf("api.page_size must be within 1..200, got %d", c.API.PageSize)
	}
	if c.Board.PollInterval.Std() < 100*time.Millisecond {
		return fmt.Errorf("board.poll_interval must be at least 100ms, got %s", c.Board.PollInterval.Std())
	}

	if _, err := charmLog.ParseLevel(strings.TrimSpace(c.Logging.Level)); err != nil {
		return fmt.Errorf("invalid logging.level %q: %w", c.Logging.Level, err)
	}
	if c.Logging.DevFile.Enabled && strings.TrimSpace(c.Logging.DevFile.Dir) == "" {
		return errors.New("logging.dev_file.dir is required when dev file logging is enabled")
	}

	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}
	for name, endpoint := range map[string]string{"server.mcp_endpoint": c.Server.MCPEndpoint, "server.metrics_endpoint": c.Server.MetricsEndpoint} {
		if !strings.HasPrefix(endpoint, "/") {
			return fmt.Errorf("%s must start with '/': %q", name, endpoint)
		}
	}

	return nil
}

// EnsureConfigDir creates the parent directory of path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
