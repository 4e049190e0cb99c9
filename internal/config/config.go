// ABOUTME: Configuration loading and parsing for synapse-warden
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete synapse-warden configuration
type Config struct {
	Homeserver HomeserverConfig `yaml:"homeserver"`
	Mjolnir    MjolnirConfig    `yaml:"mjolnir"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Secrets    SecretsConfig    `yaml:"secrets"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// HomeserverConfig holds the Synapse deployment being reconciled
type HomeserverConfig struct {
	// PublicURL is the homeserver URL as clients see it
	PublicURL string `yaml:"public_url"`

	// LocalURL is the URL the warden uses to reach the admin API,
	// typically the container-local listener
	LocalURL string `yaml:"local_url"`

	// ServerName is the Matrix server_name (the domain part of user IDs)
	ServerName string `yaml:"server_name"`

	// RegistrationSharedSecret authorizes the shared-secret register flow
	RegistrationSharedSecret string `yaml:"registration_shared_secret"`
}

// MjolnirConfig holds the moderation add-on settings
type MjolnirConfig struct {
	// Enabled is the administrative feature toggle
	Enabled bool `yaml:"enabled"`

	// BotUsername is the localpart of the dedicated bot account
	BotUsername string `yaml:"bot_username"`

	// ConfigPath is where the add-on reads its configuration inside
	// the container
	ConfigPath string `yaml:"config_path"`

	// RateLimit is the per-user override applied to the bot account.
	// Zero values mean unlimited.
	RateLimit RateLimitPolicy `yaml:"rate_limit"`
}

// RateLimitPolicy parameterizes the admin API rate-limit override
type RateLimitPolicy struct {
	MessagesPerSecond int `yaml:"messages_per_second"`
	BurstCount        int `yaml:"burst_count"`
}

// SupervisorConfig holds the container process-supervisor connection
type SupervisorConfig struct {
	// SocketPath is the supervisor's unix socket
	SocketPath string `yaml:"socket_path"`

	// ServiceName is the workload the homeserver runs under
	ServiceName string `yaml:"service_name"`
}

// SecretsConfig holds the local secret store configuration
type SecretsConfig struct {
	Path string `yaml:"path"`

	// BootstrapAdmin registers an admin account and persists its token
	// when the store has none yet
	BootstrapAdmin bool `yaml:"bootstrap_admin"`
}

// ReconcileConfig holds reconciliation loop timing
type ReconcileConfig struct {
	Interval time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	IntervalRaw string `yaml:"interval"`
}

// ServerConfig holds the status endpoint configuration
type ServerConfig struct {
	HTTPAddr  string `yaml:"http_addr"`
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultReconcileInterval is used when reconcile.interval is unset
const DefaultReconcileInterval = 2 * time.Minute

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in the fields most deployments never change
func applyDefaults(cfg *Config) {
	if cfg.Mjolnir.BotUsername == "" {
		cfg.Mjolnir.BotUsername = "moderator"
	}
	if cfg.Mjolnir.ConfigPath == "" {
		cfg.Mjolnir.ConfigPath = "/data/config/production.yaml"
	}
	if cfg.Supervisor.ServiceName == "" {
		cfg.Supervisor.ServiceName = "synapse"
	}
	if cfg.Homeserver.LocalURL == "" {
		cfg.Homeserver.LocalURL = "http://localhost:8008"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Homeserver.ServerName == "" {
		return fmt.Errorf("homeserver.server_name is required")
	}

	if _, err := url.Parse(c.Homeserver.LocalURL); err != nil {
		return fmt.Errorf("homeserver.local_url is not a valid URL: %w", err)
	}

	if c.Supervisor.SocketPath == "" {
		return fmt.Errorf("supervisor.socket_path is required")
	}

	if c.Secrets.Path == "" {
		return fmt.Errorf("secrets.path is required")
	}

	if c.Server.HTTPAddr != "" && len(c.Server.JWTSecret) < 32 {
		return fmt.Errorf("server.jwt_secret must be at least 32 bytes when the status endpoint is enabled")
	}

	if c.Mjolnir.RateLimit.MessagesPerSecond < 0 || c.Mjolnir.RateLimit.BurstCount < 0 {
		return fmt.Errorf("mjolnir.rate_limit values must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Reconcile.IntervalRaw == "" {
		cfg.Reconcile.Interval = DefaultReconcileInterval
		return nil
	}

	interval, err := time.ParseDuration(cfg.Reconcile.IntervalRaw)
	if err != nil {
		return fmt.Errorf("parsing reconcile interval %q: %w", cfg.Reconcile.IntervalRaw, err)
	}
	if interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive, got %q", cfg.Reconcile.IntervalRaw)
	}
	cfg.Reconcile.Interval = interval

	return nil
}
