package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
)

// FileEnv names the environment variable pointing at an optional YAML file
const FileEnv = "AGENT_CONFIG_FILE"

// Config holds all application configuration.
type Config struct {
	Server          ServerConfig    `yaml:"server"`
	Paths           PathsConfig     `yaml:"paths"`
	Logging         LogConfig       `yaml:"logging"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
	Watch           WatchConfig     `yaml:"watch"`
	Scan            ScanConfig      `yaml:"scan"`
	ConnectionToken string          `envconfig:"CONNECTION_TOKEN" yaml:"connectionToken"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string   `envconfig:"PORT" yaml:"port"`
	Host           string   `envconfig:"HOST" yaml:"host"`
	MaxMessageSize int64    `envconfig:"MAX_MESSAGE_SIZE" yaml:"maxMessageSize"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" yaml:"allowedOrigins"`
}

// PathsConfig holds the locations served to clients. Empty derived paths
// are filled in from UserHome and AppRoot.
type PathsConfig struct {
	AppRoot                     string   `envconfig:"APP_ROOT" yaml:"appRoot"`
	UserHome                    string   `envconfig:"USER_HOME" yaml:"userHome"`
	UserDataPath                string   `envconfig:"USER_DATA_PATH" yaml:"userDataPath"`
	ExtensionsPath              string   `envconfig:"EXTENSIONS_PATH" yaml:"extensionsPath"`
	BuiltinExtensionsPath       string   `envconfig:"BUILTIN_EXTENSIONS_PATH" yaml:"builtinExtensionsPath"`
	ExtraExtensionsPaths        []string `envconfig:"EXTRA_EXTENSIONS_PATHS" yaml:"extraExtensionsPaths"`
	ExtraBuiltinExtensionsPaths []string `envconfig:"EXTRA_BUILTIN_EXTENSIONS_PATHS" yaml:"extraBuiltinExtensionsPaths"`
	LogsPath                    string   `envconfig:"LOGS_PATH" yaml:"logsPath"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development"`
	// ToFile also writes logs below Paths.LogsPath
	ToFile bool `envconfig:"LOG_TO_FILE" yaml:"toFile"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requestsPerSecond"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled"`
}

// WatchConfig holds file watching configuration.
type WatchConfig struct {
	BatchDelay       time.Duration `envconfig:"WATCH_BATCH_DELAY" yaml:"batchDelay"`
	// FailureThreshold consecutive watcher creation failures open the breaker
	FailureThreshold int           `envconfig:"WATCH_FAILURE_THRESHOLD" yaml:"failureThreshold"`
	Cooldown         time.Duration `envconfig:"WATCH_COOLDOWN" yaml:"cooldown"`
}

// ScanConfig holds extension scanning configuration.
type ScanConfig struct {
	// Concurrency bounds parallel root scans per group, zero uses GOMAXPROCS
	Concurrency int `envconfig:"SCAN_CONCURRENCY" yaml:"concurrency"`
}

// Load builds configuration from defaults, then the YAML file named by
// AGENT_CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	cfg := defaults()
	cfg.resolve()
	return cfg
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8000",
			Host:           "0.0.0.0",
			MaxMessageSize: 64 << 20,
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
		Watch: WatchConfig{
			BatchDelay:       75 * time.Millisecond,
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// resolve fills in derived paths and generates a connection token if none
// was configured. An unknown home directory falls back to the working
// directory.
func (c *Config) resolve() {
	p := &c.Paths
	if p.AppRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			p.AppRoot = wd
		} else {
			p.AppRoot = "."
		}
	}
	if p.UserHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			p.UserHome = home
		} else {
			p.UserHome = p.AppRoot
		}
	}

	dataRoot := filepath.Join(p.UserHome, ".agent-server")
	if p.UserDataPath == "" {
		p.UserDataPath = filepath.Join(dataRoot, "data")
	}
	if p.ExtensionsPath == "" {
		p.ExtensionsPath = filepath.Join(dataRoot, "extensions")
	}
	if p.BuiltinExtensionsPath == "" {
		p.BuiltinExtensionsPath = filepath.Join(p.AppRoot, "extensions")
	}
	if p.LogsPath == "" {
		p.LogsPath = filepath.Join(p.UserDataPath, "logs")
	}

	if c.ConnectionToken == "" {
		c.ConnectionToken = uuid.NewString()
	}
}

// SetAppRoot moves the application root. A builtin extensions path derived
// from the old root follows it.
func (c *Config) SetAppRoot(root string) {
	if root == "" || root == c.Paths.AppRoot {
		return
	}
	if c.Paths.BuiltinExtensionsPath == filepath.Join(c.Paths.AppRoot, "extensions") {
		c.Paths.BuiltinExtensionsPath = filepath.Join(root, "extensions")
	}
	c.Paths.AppRoot = root
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Server.MaxMessageSize < 0 {
		errs = append(errs, errors.New("max message size must not be negative"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate limit requires positive rps and burst"))
	}
	if c.Watch.BatchDelay < 0 {
		errs = append(errs, errors.New("watch batch delay must not be negative"))
	}
	if c.Watch.FailureThreshold < 0 || c.Watch.Cooldown < 0 {
		errs = append(errs, errors.New("watch breaker settings must not be negative"))
	}
	if c.Scan.Concurrency < 0 {
		errs = append(errs, errors.New("scan concurrency must not be negative"))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
