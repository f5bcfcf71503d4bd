// Package config loads instance configuration from built-in defaults, a
// YAML file, and environment variables (HALOIAM_ prefixed), in that order
// of increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for a haloiam instance process.
type Config struct {
	// InstanceID is the tenant this process serves: the instance its
	// projection workers poll and its demo/seed commands default to.
	InstanceID string           `mapstructure:"instance_id"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Events     EventsConfig     `mapstructure:"events"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Projection ProjectionConfig `mapstructure:"projection"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

// DatabaseConfig selects the eventstore/projection backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres
	DSN    string `mapstructure:"dsn"`
}

// EventsConfig controls the in-process best-effort subscription layer.
type EventsConfig struct {
	Publisher string `mapstructure:"publisher"` // channel
}

// LoggingConfig controls pkg/logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error, fatal
	Format string `mapstructure:"format"` // json, text
}

// ProjectionConfig tunes the projection registry.
type ProjectionConfig struct {
	CheckpointStore string        `mapstructure:"checkpoint_store"` // gorm, dynamodb
	LeaseDuration   time.Duration `mapstructure:"lease_duration"`
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	// MaxRetries caps consecutive tick failures on one checkpoint before a
	// worker marks it failed rather than retrying the poison event forever.
	MaxRetries int `mapstructure:"max_retries"`
}

// AuthConfig configures the API facade's JWT verification and session cookie.
type AuthConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	SessionSecret string `mapstructure:"session_secret"`
}

// Load reads configuration from ./config.yaml (or ./configs, ./config dirs),
// environment variables prefixed HALOIAM_, and falls back to defaults.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("HALOIAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("instance_id", "default")
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "file:haloiam.db?cache=shared&mode=rwc")

	viper.SetDefault("events.publisher", "channel")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("projection.checkpoint_store", "gorm")
	viper.SetDefault("projection.lease_duration", "30s")
	viper.SetDefault("projection.batch_size", 200)
	viper.SetDefault("projection.poll_interval", "500ms")
	viper.SetDefault("projection.max_retries", 5)

	viper.SetDefault("auth.jwt_signing_key", "")
	viper.SetDefault("auth.session_secret", "")
}

func validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance id cannot be empty")
	}
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres)", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}
	switch cfg.Events.Publisher {
	case "channel":
	default:
		return fmt.Errorf("unsupported events publisher: %s (supported: channel)", cfg.Events.Publisher)
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("unsupported logging level: %s", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported logging format: %s", cfg.Logging.Format)
	}
	switch cfg.Projection.CheckpointStore {
	case "gorm", "dynamodb":
	default:
		return fmt.Errorf("unsupported checkpoint store: %s (supported: gorm, dynamodb)", cfg.Projection.CheckpointStore)
	}
	if cfg.Projection.BatchSize <= 0 {
		return fmt.Errorf("projection batch size must be positive")
	}
	return nil
}

// SQLiteDSN builds a DSN for the given database file.
func SQLiteDSN(dbFile string) string {
	return fmt.Sprintf("file:%s?cache=shared&mode=rwc", dbFile)
}

// PostgresDSN builds a libpq-style DSN from discrete parameters.
func PostgresDSN(host, user, password, dbname string, port int, sslmode string) string {
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		host, user, password, dbname, port, sslmode)
}
