package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// FileEnv names the environment variable pointing at an optional config file.
const FileEnv = "USERSCRIPTS_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	Fetch     FetchConfig     `toml:"fetch" yaml:"fetch"`
	Sandbox   SandboxConfig   `toml:"sandbox" yaml:"sandbox"`
	Logging   LogConfig       `toml:"logging" yaml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" toml:"port" yaml:"port"`
	Host string `envconfig:"HOST" toml:"host" yaml:"host"`
}

// StorageConfig locates persisted state.
type StorageConfig struct {
	// DatabasePath is the SQLite file; empty keeps everything in memory.
	DatabasePath string `envconfig:"USERSCRIPTS_DB" toml:"database_path" yaml:"database_path"`
	ScriptsDir   string `envconfig:"USERSCRIPTS_DIR" toml:"scripts_dir" yaml:"scripts_dir"`
}

// FetchConfig controls outbound script, resource and cross-origin fetches.
type FetchConfig struct {
	Timeout           Duration `envconfig:"FETCH_TIMEOUT" toml:"timeout" yaml:"timeout"`
	UserAgent         string   `envconfig:"FETCH_USER_AGENT" toml:"user_agent" yaml:"user_agent"`
	RequestsPerSecond float64  `envconfig:"FETCH_RPS" toml:"requests_per_second" yaml:"requests_per_second"`
	MaxBodyBytes      int64    `envconfig:"FETCH_MAX_BODY" toml:"max_body_bytes" yaml:"max_body_bytes"`
}

// SandboxConfig controls the built-in script execution environment.
type SandboxConfig struct {
	Timeout  Duration `envconfig:"SANDBOX_TIMEOUT" toml:"timeout" yaml:"timeout"`
	PoolSize int      `envconfig:"SANDBOX_POOL" toml:"pool_size" yaml:"pool_size"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" toml:"level" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" toml:"development" yaml:"development"`
}

// RateLimitConfig holds rate limiting configuration for the API.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" toml:"requests_per_second" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" toml:"burst" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" toml:"enabled" yaml:"enabled"`
}

// Duration is a time.Duration that decodes from strings such as "30s" in
// environment variables, TOML and YAML alike.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load builds configuration from defaults, then the optional config file
// named by USERSCRIPTS_CONFIG, then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	// Fields carry no default tags, so unset variables leave earlier layers intact.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile reads a TOML or YAML file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config file type: %s", path)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Storage: StorageConfig{
			DatabasePath: "",
			ScriptsDir:   "scripts",
		},
		Fetch: FetchConfig{
			Timeout:           Duration(30 * time.Second),
			UserAgent:         "userscripts/1.0",
			RequestsPerSecond: 0,
			MaxBodyBytes:      10 << 20,
		},
		Sandbox: SandboxConfig{
			Timeout:  Duration(5 * time.Second),
			PoolSize: 4,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
