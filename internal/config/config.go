// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// databaseFileName is the SQLite file created under DataDir.
const databaseFileName = "directory.db"

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC health server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// HTTPAddr is the address the HTTP API adapter listens on (e.g. :8081).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DataDir is the base data directory; the database file lives directly under it.
	DataDir string `mapstructure:"DATA_DIR"`

	// SyncEnabled turns the periodic directory sync on. Credentials must also be present.
	SyncEnabled bool `mapstructure:"DIRECTORY_SYNC_ENABLED"`
	// TenantID, ClientID and ClientSecret form the app-only service credential.
	TenantID     string `mapstructure:"DIRECTORY_TENANT_ID"`
	ClientID     string `mapstructure:"DIRECTORY_CLIENT_ID"`
	ClientSecret string `mapstructure:"DIRECTORY_CLIENT_SECRET"`
	// SyncIntervalMs is the sync period in milliseconds (default one hour).
	SyncIntervalMs int64 `mapstructure:"DIRECTORY_SYNC_INTERVAL_MS"`
	// APIBaseURL is the directory API base; relative continuation cursors are resolved against it.
	APIBaseURL string `mapstructure:"DIRECTORY_API_BASE_URL"`
	// TokenEndpoint overrides the token URL derived from TenantID.
	TokenEndpoint string `mapstructure:"DIRECTORY_TOKEN_URL"`
	// Scope is the client-credentials scope requested with each token.
	Scope string `mapstructure:"DIRECTORY_SCOPE"`
	// PageDelayMs is the fixed pause between page fetches.
	PageDelayMs int64 `mapstructure:"DIRECTORY_PAGE_DELAY_MS"`
	// RequestTimeoutStr bounds each directory API request (e.g. "30s").
	RequestTimeoutStr string `mapstructure:"DIRECTORY_REQUEST_TIMEOUT"`

	// SeedOverrides seeds one override record at startup when the override store is empty.
	SeedOverrides bool `mapstructure:"SEED_OVERRIDES"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Telemetry (optional). An empty endpoint yields no-op OTel providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
	// TelemetryKafkaBrokers is a comma-separated list of Kafka brokers for sync events.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for sync events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the event worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("HTTP_ADDR", ":8081")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("DIRECTORY_SYNC_ENABLED", false)
	v.SetDefault("DIRECTORY_TENANT_ID", "")
	v.SetDefault("DIRECTORY_CLIENT_ID", "")
	v.SetDefault("DIRECTORY_CLIENT_SECRET", "")
	v.SetDefault("DIRECTORY_SYNC_INTERVAL_MS", int64(time.Hour/time.Millisecond))
	v.SetDefault("DIRECTORY_API_BASE_URL", "https://graph.microsoft.com/v1.0")
	v.SetDefault("DIRECTORY_TOKEN_URL", "")
	v.SetDefault("DIRECTORY_SCOPE", "https://graph.microsoft.com/.default")
	v.SetDefault("DIRECTORY_PAGE_DELAY_MS", 100)
	v.SetDefault("DIRECTORY_REQUEST_TIMEOUT", "30s")
	v.SetDefault("APP_ENV", "")
	// Seeding is on by default outside production only.
	v.SetDefault("SEED_OVERRIDES", v.GetString("APP_ENV") != "production")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "directory-sync")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "directory-sync-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "directory-sync-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.DataDir == "" {
		return nil, errors.New("config: DATA_DIR must be set")
	}
	if cfg.SyncIntervalMs < 1000 {
		return nil, fmt.Errorf("config: DIRECTORY_SYNC_INTERVAL_MS must be at least 1000, got %d", cfg.SyncIntervalMs)
	}
	if cfg.PageDelayMs < 0 {
		return nil, errors.New("config: DIRECTORY_PAGE_DELAY_MS must not be negative")
	}
	if cfg.SeedOverrides && cfg.Env == "production" {
		return nil, errors.New("config: SEED_OVERRIDES must not be true when APP_ENV=production")
	}

	return &cfg, nil
}

// HasCredentials reports whether all three parts of the service credential are set.
func (c *Config) HasCredentials() bool {
	return c != nil && c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// SyncInterval returns SyncIntervalMs as a time.Duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMs) * time.Millisecond
}

// PageDelay returns PageDelayMs as a time.Duration.
func (c *Config) PageDelay() time.Duration {
	return time.Duration(c.PageDelayMs) * time.Millisecond
}

// RequestTimeout parses RequestTimeoutStr as a time.Duration. Returns 30s if unset or invalid.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeoutStr)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// DatabasePath returns the SQLite file path under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, databaseFileName)
}

// TokenURL returns TokenEndpoint when set, otherwise the v2 token endpoint for TenantID.
func (c *Config) TokenURL() string {
	if c.TokenEndpoint != "" {
		return c.TokenEndpoint
	}
	if c.TenantID == "" {
		return ""
	}
	return "https://login.microsoftonline.com/" + c.TenantID + "/oauth2/v2.0/token"
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the event producer is enabled (non-empty list) and to create it.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
