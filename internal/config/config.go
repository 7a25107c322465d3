// ABOUTME: Configuration loading and parsing for coven-workbench binaries
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left empty.
const (
	DefaultHTTPAddr           = "127.0.0.1:3000"
	DefaultGRPCAddr           = "127.0.0.1:3001"
	DefaultServiceURL         = "http://127.0.0.1:3000"
	DefaultKeepaliveInterval  = 15 * time.Second
	DefaultStreamRetry        = 3 * time.Second
	DefaultHistoryLimit       = 100
	DefaultTransitionDuration = 150 * time.Millisecond
	DefaultGracePeriod        = 5 * time.Second
	DefaultReadyTimeout       = 30 * time.Second
)

// Config represents the complete coven-workbench configuration.
// The service, the terminal frontend and the dev orchestrator all read the
// same file and validate only the sections they use.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Stream    StreamConfig    `yaml:"stream" toml:"stream"`
	Workbench WorkbenchConfig `yaml:"workbench" toml:"workbench"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Dev       DevConfig       `yaml:"dev" toml:"dev"`
}

// ServerConfig holds listen addresses for the workbench service
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration.
// An empty JWTSecret disables auth on the /api routes.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// StreamConfig controls the server side of the conversation event streams
type StreamConfig struct {
	KeepaliveInterval time.Duration `yaml:"-" toml:"-"`
	Retry             time.Duration `yaml:"-" toml:"-"`
	HistoryLimit      int           `yaml:"history_limit" toml:"history_limit"`

	// Raw string values for unmarshaling
	KeepaliveIntervalRaw string `yaml:"keepalive_interval" toml:"keepalive_interval"`
	RetryRaw             string `yaml:"retry" toml:"retry"`
}

// WorkbenchConfig holds client-side settings for the panel frontend
type WorkbenchConfig struct {
	ServiceURL         string        `yaml:"service_url" toml:"service_url"`
	ConversationID     string        `yaml:"conversation_id" toml:"conversation_id"`
	Token              string        `yaml:"token" toml:"token"`
	StatePath          string        `yaml:"state_path" toml:"state_path"`
	TransitionDuration time.Duration `yaml:"-" toml:"-"`

	TransitionDurationRaw string `yaml:"transition_duration" toml:"transition_duration"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DevConfig describes the processes started by workbench-dev
type DevConfig struct {
	GracePeriod  time.Duration   `yaml:"-" toml:"-"`
	ReadyTimeout time.Duration   `yaml:"-" toml:"-"`
	Processes    []ProcessConfig `yaml:"processes" toml:"processes"`

	GracePeriodRaw  string `yaml:"grace_period" toml:"grace_period"`
	ReadyTimeoutRaw string `yaml:"ready_timeout" toml:"ready_timeout"`
}

// ProcessConfig is one child process of the local dev stack
type ProcessConfig struct {
	Name    string            `yaml:"name" toml:"name"`
	Command []string          `yaml:"command" toml:"command"`
	Dir     string            `yaml:"dir" toml:"dir"`
	Env     map[string]string `yaml:"env" toml:"env"`
	Color   string            `yaml:"color" toml:"color"`

	// WaitReady blocks the start of later processes until the service
	// health check passes.
	WaitReady bool `yaml:"wait_ready" toml:"wait_ready"`

	// Optional processes may exit without stopping the stack.
	Optional bool `yaml:"optional" toml:"optional"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values and defaults applied.
// Role-specific validation is left to the caller (ValidateService, ValidateClient, ValidateDev).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a Config with every default applied, used when no file exists.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// envVarPattern matches ${VAR_NAME}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = DefaultGRPCAddr
	}
	if c.Stream.KeepaliveInterval == 0 {
		c.Stream.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.Stream.Retry == 0 {
		c.Stream.Retry = DefaultStreamRetry
	}
	if c.Stream.HistoryLimit <= 0 {
		c.Stream.HistoryLimit = DefaultHistoryLimit
	}
	if c.Workbench.ServiceURL == "" {
		c.Workbench.ServiceURL = DefaultServiceURL
	}
	if c.Workbench.TransitionDurationRaw == "" && c.Workbench.TransitionDuration == 0 {
		c.Workbench.TransitionDuration = DefaultTransitionDuration
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Dev.GracePeriod == 0 {
		c.Dev.GracePeriod = DefaultGracePeriod
	}
	if c.Dev.ReadyTimeout == 0 {
		c.Dev.ReadyTimeout = DefaultReadyTimeout
	}
}

// ValidateService checks the fields the workbench service needs.
func (c *Config) ValidateService() error {
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}
	if c.Server.GRPCAddr == "" {
		return errors.New("server.grpc_addr is required")
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	return c.validateLogging()
}

// ValidateClient checks the fields the panel frontend and example agent need.
func (c *Config) ValidateClient() error {
	u, err := url.Parse(c.Workbench.ServiceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("workbench.service_url %q must be an absolute URL", c.Workbench.ServiceURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("workbench.service_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.Workbench.TransitionDuration < 0 {
		return errors.New("workbench.transition_duration must not be negative")
	}
	return c.validateLogging()
}

// ValidateDev checks the dev orchestrator section.
func (c *Config) ValidateDev() error {
	if len(c.Dev.Processes) == 0 {
		return errors.New("dev.processes must list at least one process")
	}
	seen := make(map[string]bool, len(c.Dev.Processes))
	for i, p := range c.Dev.Processes {
		if p.Name == "" {
			return fmt.Errorf("dev.processes[%d].name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("dev.processes[%d].name %q is duplicated", i, p.Name)
		}
		seen[p.Name] = true
		if len(p.Command) == 0 {
			return fmt.Errorf("dev.processes[%d].command is required", i)
		}
	}
	return c.validateLogging()
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"stream.keepalive_interval", cfg.Stream.KeepaliveIntervalRaw, &cfg.Stream.KeepaliveInterval},
		{"stream.retry", cfg.Stream.RetryRaw, &cfg.Stream.Retry},
		{"workbench.transition_duration", cfg.Workbench.TransitionDurationRaw, &cfg.Workbench.TransitionDuration},
		{"dev.grace_period", cfg.Dev.GracePeriodRaw, &cfg.Dev.GracePeriod},
		{"dev.ready_timeout", cfg.Dev.ReadyTimeoutRaw, &cfg.Dev.ReadyTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// ResolvePath returns the config file path.
// Priority: explicit flag > WORKBENCH_CONFIG > XDG_CONFIG_HOME/coven/workbench.yaml > ~/.config/coven/workbench.yaml
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("WORKBENCH_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "workbench.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven", "workbench.yaml")
}

// ResolveServiceURL returns the workbench service URL.
// Priority: flag > WORKBENCH_SERVICE_URL > workbench.service_url.
func (c *Config) ResolveServiceURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envURL := os.Getenv("WORKBENCH_SERVICE_URL"); envURL != "" {
		return envURL
	}
	return c.Workbench.ServiceURL
}

// LoadOrDefault loads path, or returns Default() when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}
