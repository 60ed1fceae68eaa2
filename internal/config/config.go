// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address of the REST and websocket listener (e.g. :4000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health listener (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file. Only the seed command signs tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file used to verify access tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31) used when seeding accounts; default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// KafkaBrokers is a comma-separated list of Kafka brokers. When empty, accepted fixes
	// are not published and the worker cannot run.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// PositionKafkaTopic is the topic for position_fix events (default fleet-positions).
	PositionKafkaTopic string `mapstructure:"POSITION_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group of the position worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// Worker-only: Loki URL for the position worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTel exporters. Empty endpoint means no-op providers.
	OTELEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTELServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// RegistryRefreshInterval bounds how long a change made directly in the store stays invisible to dispatch.
	RegistryRefreshInterval string `mapstructure:"REGISTRY_REFRESH_INTERVAL"`
	// SessionSendBuffer is the per-viewer outbound queue length.
	SessionSendBuffer int    `mapstructure:"SESSION_SEND_BUFFER"`
	WSPingInterval    string `mapstructure:"WS_PING_INTERVAL"`
	WSWriteTimeout    string `mapstructure:"WS_WRITE_TIMEOUT"`
	// HealthCheckInterval is how often the health checker pings Postgres and the policy engine.
	HealthCheckInterval string `mapstructure:"HEALTH_CHECK_INTERVAL"`

	// LogFile, when set, sends log output to a rotated file instead of stderr.
	LogFile       string `mapstructure:"LOG_FILE"`
	LogMaxSizeMB  int    `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `mapstructure:"LOG_MAX_BACKUPS"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":4000")
	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "fleet-auth")
	v.SetDefault("JWT_AUDIENCE", "fleet-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("POSITION_KAFKA_TOPIC", "fleet-positions")
	v.SetDefault("KAFKA_GROUP_ID", "fleet-position-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "fleet-tracker")
	v.SetDefault("REGISTRY_REFRESH_INTERVAL", "30s")
	v.SetDefault("SESSION_SEND_BUFFER", 64)
	v.SetDefault("WS_PING_INTERVAL", "30s")
	v.SetDefault("WS_WRITE_TIMEOUT", "10s")
	v.SetDefault("HEALTH_CHECK_INTERVAL", "10s")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.SessionSendBuffer < 1 {
		return nil, errors.New("config: SESSION_SEND_BUFFER must be at least 1")
	}
	if cfg.LogMaxSizeMB <= 0 {
		cfg.LogMaxSizeMB = 100
	}

	return &cfg, nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RegistryRefresh returns the registry refresh interval, 30s if unset or invalid.
func (c *Config) RegistryRefresh() time.Duration {
	return parseDuration(c.RegistryRefreshInterval, 30*time.Second)
}

// PingInterval returns the websocket ping interval, 30s if unset or invalid.
func (c *Config) PingInterval() time.Duration {
	return parseDuration(c.WSPingInterval, 30*time.Second)
}

// WriteTimeout returns the websocket write deadline, 10s if unset or invalid.
func (c *Config) WriteTimeout() time.Duration {
	return parseDuration(c.WSWriteTimeout, 10*time.Second)
}

// HealthInterval returns the health check interval, 10s if unset or invalid.
func (c *Config) HealthInterval() time.Duration {
	return parseDuration(c.HealthCheckInterval, 10*time.Second)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables position publishing.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
