// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DevJWTSecret is the signing secret used when JWT_SECRET is unset. Rejected in production.
const DevJWTSecret = "dev-secret-change-me"

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP/WebSocket server listens on (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// MigrateOnStart applies embedded migrations (up) before the server starts serving.
	MigrateOnStart bool `mapstructure:"MIGRATE_ON_START"`

	// JWTSecret is the shared HS256 secret for access tokens.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim set on and required of access tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// RefreshTTLDays is the refresh session lifetime in days.
	RefreshTTLDays int `mapstructure:"REFRESH_TTL_DAYS"`
	// RefreshCookieName is the name of the HttpOnly cookie carrying the refresh session value.
	RefreshCookieName string `mapstructure:"REFRESH_COOKIE_NAME"`
	// CookieSecure sets the Secure attribute on the refresh cookie. Disable only for plain-http local dev.
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`

	// VAPIDPublicKey and VAPIDPrivateKey are the Web Push application server keys (base64url).
	VAPIDPublicKey  string `mapstructure:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `mapstructure:"VAPID_PRIVATE_KEY"`
	// VAPIDSubject is the sender identity (mailto: or https: URL) sent to push services.
	VAPIDSubject string `mapstructure:"VAPID_SUBJECT"`
	// PushTTLSeconds is how long a push service should retain an undelivered message.
	PushTTLSeconds int `mapstructure:"PUSH_TTL_SECONDS"`
	// PushConcurrency bounds the number of in-flight push sends per notify call.
	PushConcurrency int `mapstructure:"PUSH_CONCURRENCY"`
	// PushTimeout is the per-fan-out deadline for push sends (e.g. "10s").
	PushTimeout string `mapstructure:"PUSH_TIMEOUT"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses. Empty disables Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// NotifyKafkaTopic, when set, makes the server consume notify requests from this topic.
	NotifyKafkaTopic string `mapstructure:"NOTIFY_KAFKA_TOPIC"`
	// DeliveryKafkaTopic is the topic delivery events are produced to (and consumed by cmd/worker).
	DeliveryKafkaTopic string `mapstructure:"DELIVERY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group for the notify consumer and the worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is used by cmd/worker only.
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// NotifyPolicyFile is an optional path to a Rego module overriding the default notify admission policy.
	NotifyPolicyFile string `mapstructure:"NOTIFY_POLICY_FILE"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MIGRATE_ON_START", false)
	v.SetDefault("JWT_SECRET", DevJWTSecret)
	v.SetDefault("JWT_ISSUER", "notifyhub")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL_DAYS", 7)
	v.SetDefault("REFRESH_COOKIE_NAME", "refresh_token")
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("VAPID_PUBLIC_KEY", "")
	v.SetDefault("VAPID_PRIVATE_KEY", "")
	v.SetDefault("VAPID_SUBJECT", "mailto:admin@example.com")
	v.SetDefault("PUSH_TTL_SECONDS", 60)
	v.SetDefault("PUSH_CONCURRENCY", 8)
	v.SetDefault("PUSH_TIMEOUT", "10s")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NOTIFY_KAFKA_TOPIC", "")
	v.SetDefault("DELIVERY_KAFKA_TOPIC", "notifyhub-delivery")
	v.SetDefault("KAFKA_GROUP_ID", "notifyhub")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("NOTIFY_POLICY_FILE", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: JWT_SECRET must be set")
	}
	if cfg.Env == "production" && cfg.JWTSecret == DevJWTSecret {
		return nil, errors.New("config: JWT_SECRET must be changed from the development default when APP_ENV=production")
	}
	if cfg.RefreshTTLDays <= 0 {
		return nil, errors.New("config: REFRESH_TTL_DAYS must be positive")
	}
	if strings.TrimSpace(cfg.RefreshCookieName) == "" {
		return nil, errors.New("config: REFRESH_COOKIE_NAME must be set")
	}
	if (cfg.VAPIDPublicKey == "") != (cfg.VAPIDPrivateKey == "") {
		return nil, errors.New("config: VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}
	if cfg.PushConcurrency <= 0 {
		cfg.PushConcurrency = 8
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL returns the refresh session lifetime. Returns 7 days if unset.
func (c *Config) RefreshTTL() time.Duration {
	if c.RefreshTTLDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}

// PushDeadline parses PushTimeout. Returns 10s if unset or invalid.
func (c *Config) PushDeadline() time.Duration {
	d, err := time.ParseDuration(c.PushTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// PushEnabled reports whether VAPID credentials are configured.
func (c *Config) PushEnabled() bool {
	return c != nil && c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
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
