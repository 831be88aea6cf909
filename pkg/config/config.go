// Package config handles configuration loading from files and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// keyDelimiter separates nested keys. Agent ids contain dots (fqdn), so the
// viper default "." cannot be used.
const keyDelimiter = "::"

// EnvPrefix is prepended to every environment variable, e.g. QUASAR_CHEF_SERVER_URL
const EnvPrefix = "QUASAR"

// Config holds all configuration for the Quasar Resque agent
type Config struct {
	Chef      ChefConfig              `mapstructure:"chef"`
	Poll      PollConfig              `mapstructure:"agent"`
	Agents    map[string]TargetConfig `mapstructure:"agents"`
	Transport TransportConfig         `mapstructure:"transport"`
	HTTP      HTTPConfig              `mapstructure:"http"`
	Log       LogConfig               `mapstructure:"log"`
}

// ChefConfig points discovery at a Chef server. Discovery is disabled when
// ServerURL is empty and the static Agents section is used instead.
type ChefConfig struct {
	ServerURL   string `mapstructure:"server_url" validate:"omitempty,url"`
	ClientName  string `mapstructure:"client_name" validate:"required_with=ServerURL"`
	ClientKey   string `mapstructure:"client_key" validate:"required_with=ServerURL"` // path to a PEM file or the PEM itself
	Environment string `mapstructure:"environment" validate:"required"`
	Role        string `mapstructure:"role" validate:"required"`
	SkipSSL     bool   `mapstructure:"skip_ssl"`
}

// PollConfig controls every agent's poll cycle
type PollConfig struct {
	Interval  time.Duration `mapstructure:"interval" validate:"gt=0"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Namespace string        `mapstructure:"namespace"`
}

// TargetConfig carries the options declared by a Resque agent
type TargetConfig struct {
	Redis     string `mapstructure:"redis"`
	Namespace string `mapstructure:"namespace"`
	Hostname  string `mapstructure:"hostname"`
}

// TransportConfig enables publishing reports to a Redis instance
type TransportConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// HTTPConfig controls the /metrics surface. Empty ListenAddr disables it.
type HTTPConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LogConfig controls the slog handler built in main
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// DiscoveryEnabled reports whether targets come from the Chef server
func (c *Config) DiscoveryEnabled() bool {
	return c.Chef.ServerURL != ""
}

// SlogLevel converts the configured level for slog.HandlerOptions
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(key("chef", "server_url"), "")
	v.SetDefault(key("chef", "client_name"), "")
	v.SetDefault(key("chef", "client_key"), "")
	v.SetDefault(key("chef", "environment"), "production")
	v.SetDefault(key("chef", "role"), "yotpo_redis")
	v.SetDefault(key("chef", "skip_ssl"), false)

	v.SetDefault(key("agent", "interval"), "60s")
	v.SetDefault(key("agent", "timeout"), "5s")
	v.SetDefault(key("agent", "namespace"), "resque")

	v.SetDefault(key("transport", "redis_url"), "")
	v.SetDefault(key("transport", "ttl"), "3m")

	v.SetDefault(key("http", "listen_addr"), ":9121")
	v.SetDefault(key("log", "level"), "info")
}

func key(parts ...string) string {
	return strings.Join(parts, keyDelimiter)
}

// Load reads configuration from path (or quasar.yaml in the working directory
// and /etc/quasar when path is empty) overlaid with QUASAR_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()
	// Legacy shorthand for the transport
	if err := v.BindEnv(key("transport", "redis_url"), "QUASAR_TRANSPORT_REDIS_URL", "QUASAR_REDIS_URL"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("quasar")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/quasar")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		slog.Debug("config file not found, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFiles loads KEY=VALUE pairs into the environment. Missing files are
// skipped and variables already set win.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ConfigError{
				Field:   strings.TrimPrefix(fe.Namespace(), "Config."),
				Message: fmt.Sprintf("failed %q validation (value %v)", fe.Tag(), fe.Value()),
			}
		}
		return &ConfigError{Field: "Config", Message: err.Error()}
	}

	if !c.DiscoveryEnabled() && len(c.Agents) == 0 {
		return &ConfigError{
			Field:   "Agents",
			Message: "no agents configured (set chef.server_url or an agents section)",
		}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}
