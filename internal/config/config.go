// Package config loads configuration from an optional YAML file and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "STUDIOKIT_"

// Config holds configuration for both the panel and the script host.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Log      LogConfig      `yaml:"log"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Settings SettingsConfig `yaml:"settings"`
	Library  LibraryConfig  `yaml:"library"`
	Host     HostConfig     `yaml:"host"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// BridgeConfig selects how the panel reaches the scripting engine.
// "local" embeds the engine in-process; "http" talks to a scripthost server.
type BridgeConfig struct {
	Mode          string        `yaml:"mode"`
	BaseURL       string        `yaml:"base_url"`
	Token         string        `yaml:"token"`
	Timeout       time.Duration `yaml:"timeout"`
	LaunchTimeout time.Duration `yaml:"launch_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	Events        bool          `yaml:"events"`
}

type SettingsConfig struct {
	Backend     string `yaml:"backend"` // file, sqlite, postgres, s3, memory
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`

	S3Endpoint  string `yaml:"s3_endpoint"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Prefix    string `yaml:"s3_prefix"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Region    string `yaml:"s3_region"`
}

type LibraryConfig struct {
	ScriptExtension  string `yaml:"script_extension"`
	RegistryFilename string `yaml:"registry_filename"`
}

type HostConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	JWTSecret     string `yaml:"jwt_secret"`
	OIDCIssuerURL string `yaml:"oidc_issuer_url"`
	OIDCClientID  string `yaml:"oidc_client_id"`

	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	ScriptTimeout     time.Duration `yaml:"script_timeout"`
	WatchRoot         string        `yaml:"watch_root"`
	WatchDebounce     time.Duration `yaml:"watch_debounce"`
	ReplyFormat       string        `yaml:"reply_format"` // envelope, legacy
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Log:     LogConfig{Level: "info", Format: "json", Output: "stderr"},
		Bridge: BridgeConfig{
			Mode:          "local",
			BaseURL:       "http://localhost:8484",
			Timeout:       10 * time.Second,
			LaunchTimeout: 35 * time.Second,
			RetryAttempts: 3,
			Events:        true,
		},
		Settings: SettingsConfig{
			Backend:  "file",
			S3Bucket: "studiokit",
			S3Prefix: "settings/",
			S3Region: "us-east-1",
		},
		Library: LibraryConfig{
			ScriptExtension:  ".jsx",
			RegistryFilename: "descriptions.json",
		},
		Host: HostConfig{
			ListenAddr:        ":8484",
			MetricsAddr:       ":9494",
			RequestsPerSecond: 50,
			Burst:             100,
			ScriptTimeout:     30 * time.Second,
			WatchDebounce:     250 * time.Millisecond,
			ReplyFormat:       "envelope",
		},
	}
}

// Load applies defaults, then the YAML file at path (if non-empty and
// present), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if cfg.Settings.Path == "" {
		cfg.Settings.Path = filepath.Join(cfg.DataDir, "settings.json")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DataDir = envOr("DATA_DIR", c.DataDir)

	c.Log.Level = envOr("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("LOG_FORMAT", c.Log.Format)
	c.Log.Output = envOr("LOG_OUTPUT", c.Log.Output)

	c.Bridge.Mode = envOr("BRIDGE_MODE", c.Bridge.Mode)
	c.Bridge.BaseURL = envOr("BRIDGE_URL", c.Bridge.BaseURL)
	c.Bridge.Token = envOr("BRIDGE_TOKEN", c.Bridge.Token)
	c.Bridge.Timeout = envDuration("BRIDGE_TIMEOUT", c.Bridge.Timeout)
	c.Bridge.LaunchTimeout = envDuration("BRIDGE_LAUNCH_TIMEOUT", c.Bridge.LaunchTimeout)
	c.Bridge.RetryAttempts = envInt("BRIDGE_RETRY_ATTEMPTS", c.Bridge.RetryAttempts)
	c.Bridge.Events = envBool("BRIDGE_EVENTS", c.Bridge.Events)

	c.Settings.Backend = envOr("SETTINGS_BACKEND", c.Settings.Backend)
	c.Settings.Path = envOr("SETTINGS_PATH", c.Settings.Path)
	c.Settings.DatabaseURL = envOr("DATABASE_URL", c.Settings.DatabaseURL)
	c.Settings.S3Endpoint = envOr("S3_ENDPOINT", c.Settings.S3Endpoint)
	c.Settings.S3Bucket = envOr("S3_BUCKET", c.Settings.S3Bucket)
	c.Settings.S3Prefix = envOr("S3_PREFIX", c.Settings.S3Prefix)
	c.Settings.S3AccessKey = envOr("S3_ACCESS_KEY", c.Settings.S3AccessKey)
	c.Settings.S3SecretKey = envOr("S3_SECRET_KEY", c.Settings.S3SecretKey)
	c.Settings.S3Region = envOr("S3_REGION", c.Settings.S3Region)

	c.Library.ScriptExtension = envOr("SCRIPT_EXTENSION", c.Library.ScriptExtension)
	c.Library.RegistryFilename = envOr("REGISTRY_FILENAME", c.Library.RegistryFilename)

	c.Host.ListenAddr = envOr("LISTEN_ADDR", c.Host.ListenAddr)
	c.Host.MetricsAddr = envOr("METRICS_ADDR", c.Host.MetricsAddr)
	c.Host.JWTSecret = envOr("JWT_SECRET", c.Host.JWTSecret)
	c.Host.OIDCIssuerURL = envOr("OIDC_ISSUER_URL", c.Host.OIDCIssuerURL)
	c.Host.OIDCClientID = envOr("OIDC_CLIENT_ID", c.Host.OIDCClientID)
	c.Host.RequestsPerSecond = envFloat("REQUESTS_PER_SECOND", c.Host.RequestsPerSecond)
	c.Host.Burst = envInt("BURST", c.Host.Burst)
	c.Host.ScriptTimeout = envDuration("SCRIPT_TIMEOUT", c.Host.ScriptTimeout)
	c.Host.WatchRoot = envOr("WATCH_ROOT", c.Host.WatchRoot)
	c.Host.WatchDebounce = envDuration("WATCH_DEBOUNCE", c.Host.WatchDebounce)
	c.Host.ReplyFormat = envOr("REPLY_FORMAT", c.Host.ReplyFormat)
}

// Validate checks enumerated fields and timeouts.
func (c *Config) Validate() error {
	switch c.Bridge.Mode {
	case "local", "http":
	default:
		return fmt.Errorf("bridge mode %q: must be local or http", c.Bridge.Mode)
	}
	switch c.Settings.Backend {
	case "file", "sqlite", "memory":
	case "postgres":
		if c.Settings.DatabaseURL == "" {
			return fmt.Errorf("%sDATABASE_URL is required for the postgres settings backend", envPrefix)
		}
	case "s3":
		if c.Settings.S3Bucket == "" {
			return fmt.Errorf("%sS3_BUCKET is required for the s3 settings backend", envPrefix)
		}
	default:
		return fmt.Errorf("settings backend %q: unknown", c.Settings.Backend)
	}
	switch c.Host.ReplyFormat {
	case "envelope", "legacy":
	default:
		return fmt.Errorf("reply format %q: must be envelope or legacy", c.Host.ReplyFormat)
	}
	if !strings.HasPrefix(c.Library.ScriptExtension, ".") {
		return fmt.Errorf("script extension %q must start with a dot", c.Library.ScriptExtension)
	}
	if c.Bridge.Timeout <= 0 {
		return fmt.Errorf("bridge timeout must be positive")
	}
	if c.Bridge.LaunchTimeout < c.Host.ScriptTimeout {
		return fmt.Errorf("bridge launch timeout %v is shorter than the script timeout %v",
			c.Bridge.LaunchTimeout, c.Host.ScriptTimeout)
	}
	return nil
}

// DefaultDataDir returns the per-OS directory holding panel state.
func DefaultDataDir() string {
	if custom := os.Getenv(envPrefix + "DATA_DIR"); custom != "" {
		return custom
	}
	switch runtime.GOOS {
	case "windows":
		if base := os.Getenv("APPDATA"); base != "" {
			return filepath.Join(base, "studiokit")
		}
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", "studiokit")
		}
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "studiokit")
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share", "studiokit")
		}
	}
	return ".studiokit"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
