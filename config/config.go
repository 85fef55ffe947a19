package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage driver names accepted in storage.driver.
const (
	DriverJournal  = "journal"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

const (
	defaultSyncInterval = 30 * time.Second

	minKeyLength = 4
	maxKeyLength = 32
)

type Config struct {
	// HTTP server
	Server ServerConfig `mapstructure:"server"`

	// Link storage
	Storage StorageConfig `mapstructure:"storage"`

	// Key generation
	Keys KeysConfig `mapstructure:"keys"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	BaseURL     string `mapstructure:"base_url"`
}

type StorageConfig struct {
	Driver       string `mapstructure:"driver"`
	Path         string `mapstructure:"path"`
	SyncInterval string `mapstructure:"sync_interval"`
}

type KeysConfig struct {
	Length      int    `mapstructure:"length"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	Blacklist   string `mapstructure:"blacklist"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type NATSConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type PrometheusConfig struct {
	Port int `mapstructure:"port"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Storage.Path == "" {
		path, err := defaultDataPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data path: %w", err)
		}
		cfg.Storage.Path = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.bind_address", "localhost:7171")
	v.SetDefault("server.base_url", "http://localhost:7171/")
	v.SetDefault("storage.driver", DriverJournal)
	v.SetDefault("storage.sync_interval", "30s")
	v.SetDefault("keys.length", 7)
	v.SetDefault("keys.max_attempts", 5)
}

func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.bind_address", "LANDMOWER_BIND_ADDRESS")
	v.BindEnv("server.base_url", "LANDMOWER_BASE_URL")

	// Storage
	v.BindEnv("storage.driver", "LANDMOWER_STORAGE_DRIVER")
	v.BindEnv("storage.path", "LANDMOWER_LINK_DATA_PATH")
	v.BindEnv("storage.sync_interval", "LANDMOWER_SYNC_INTERVAL")

	// Keys
	v.BindEnv("keys.length", "LANDMOWER_KEY_LENGTH")
	v.BindEnv("keys.max_attempts", "LANDMOWER_KEY_MAX_ATTEMPTS")
	v.BindEnv("keys.blacklist", "LANDMOWER_KEY_BLACKLIST")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")
}

// Validate checks the settings that would otherwise fail deep inside startup.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverJournal, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Keys.Length < minKeyLength || c.Keys.Length > maxKeyLength {
		return fmt.Errorf("config: key length %d out of range %d..%d", c.Keys.Length, minKeyLength, maxKeyLength)
	}
	if c.Keys.MaxAttempts <= 0 {
		return fmt.Errorf("config: key max_attempts must be positive")
	}
	if c.Storage.SyncInterval != "" {
		if _, err := time.ParseDuration(c.Storage.SyncInterval); err != nil {
			return fmt.Errorf("config: bad sync_interval: %w", err)
		}
	}
	return nil
}

// BlacklistKeys returns the blacklisted keys as a list. The setting is a
// whitespace-separated string so it can live in a single env variable.
func (c *KeysConfig) BlacklistKeys() []string {
	return strings.Fields(c.Blacklist)
}

// SyncIntervalDuration parses the sync interval, falling back to the default.
func (c *StorageConfig) SyncIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.SyncInterval)
	if err != nil || d <= 0 {
		return defaultSyncInterval
	}
	return d
}

func defaultDataPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "landmower", "links.jsonl"), nil
}
