package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment variables.
type Config struct {
	// Mode selects the runtime mode: "api" or "worker".
	Mode string `env:"STOREPLANE_MODE" envDefault:"api"`

	// Server
	Host string `env:"STOREPLANE_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"STOREPLANE_PORT" envDefault:"8080"`

	// Database
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBName     string `env:"DB_NAME" envDefault:"storeplane"`
	DBUser     string `env:"DB_USER" envDefault:"storeplane"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"storeplane"`

	// Redis — backs the readiness-watch ownership lease, not request state.
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Migrations
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Orchestrator — external CLI collaborators and the chart they install.
	HelmBin    string `env:"HELM_BIN" envDefault:"helm"`
	KubectlBin string `env:"KUBECTL_BIN" envDefault:"kubectl"`
	ChartPath  string `env:"CHART_PATH" envDefault:"./charts/store"`
	DNSSuffix  string `env:"DNS_SUFFIX" envDefault:"stores.example.com"`

	// Quota, idempotency and rate limits (§6).
	MaxStoresGlobal          int `env:"MAX_STORES_GLOBAL" envDefault:"100"`
	MaxStoresPerTenant       int `env:"MAX_STORES_PER_TENANT" envDefault:"10"`
	MaxStoresPerHour         int `env:"MAX_STORES_PER_HOUR" envDefault:"5"`
	ProvisioningTimeoutMs    int `env:"PROVISIONING_TIMEOUT_MS" envDefault:"300000"`
	ReadinessCheckIntervalMs int `env:"READINESS_CHECK_INTERVAL_MS" envDefault:"5000"`
	MaxReadinessChecks       int `env:"MAX_READINESS_CHECKS" envDefault:"60"`
	IdempotencyWindowMs      int `env:"IDEMPOTENCY_WINDOW_MS" envDefault:"300000"`

	// Maintenance task cadence.
	MaintenanceIntervalMs int `env:"MAINTENANCE_INTERVAL_MS" envDefault:"300000"`

	// Slack (optional — if not set, lifecycle notifications are disabled).
	SlackBotToken     string `env:"SLACK_BOT_TOKEN"`
	SlackAlertChannel string `env:"SLACK_ALERT_CHANNEL"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseURL assembles the postgres connection string from the discrete
// DB_* fields, matching the environment shape named in §6.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}
