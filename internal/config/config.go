package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config stores all configuration for the service. Values come from the
// environment, optionally seeded from a .env file.
type Config struct {
	ServerPort         string   `mapstructure:"SERVER_PORT"`
	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	AutoMigrate   bool   `mapstructure:"AUTO_MIGRATE"`

	RedisURL string        `mapstructure:"REDIS_URL"`
	LockTTL  time.Duration `mapstructure:"LOCK_TTL"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`

	DefaultCurrency string `mapstructure:"DEFAULT_CURRENCY"`

	ReconcileSchedule  string        `mapstructure:"RECONCILE_SCHEDULE"`
	ReconcileThreshold time.Duration `mapstructure:"RECONCILE_THRESHOLD"`
	ReconcileBatch     int           `mapstructure:"RECONCILE_BATCH"`
}

var defaults = map[string]interface{}{
	"SERVER_PORT":          "8080",
	"CORS_ALLOWED_ORIGINS": "*",
	"DB_HOST":              "localhost",
	"DB_PORT":              "5432",
	"DB_USER":              "postgres",
	"DB_PASSWORD":          "password",
	"DB_NAME":              "ledger",
	"DB_SSLMODE":           "disable",
	"STORAGE_DRIVER":       StoragePostgres,
	"AUTO_MIGRATE":         true,
	"REDIS_URL":            "",
	"LOCK_TTL":             "10s",
	"RABBITMQ_URL":         "",
	"EVENTS_EXCHANGE":      "ledger_events",
	"DEFAULT_CURRENCY":     "EUR",
	"RECONCILE_SCHEDULE":   "@every 1m",
	"RECONCILE_THRESHOLD":  "5m",
	"RECONCILE_BATCH":      100,
}

// Load reads dir/.env when present, then the environment, which wins.
func Load(dir string) (*Config, error) {
	if dir != "" {
		if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StoragePostgres, StorageMemory, c.StorageDriver)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	if c.ReconcileThreshold <= 0 {
		return fmt.Errorf("RECONCILE_THRESHOLD must be positive")
	}
	return nil
}

func (c *Config) GetDBConnectionString() string {
	sslMode := c.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, sslMode)
}
