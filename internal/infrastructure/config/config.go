package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Provider      ProviderConfig      `mapstructure:"provider"`
	Store         StoreConfig         `mapstructure:"store"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// ProviderConfig describes the Pix provider account and API.
type ProviderConfig struct {
	ClientID              string        `mapstructure:"client_id"`
	ClientSecret          string        `mapstructure:"client_secret"`
	CertificateBase64     string        `mapstructure:"certificate_base64"`
	CertificatePassphrase string        `mapstructure:"certificate_passphrase"`
	APIBase               string        `mapstructure:"api_base"`
	OAuthURL              string        `mapstructure:"oauth_url"`
	OAuthScope            string        `mapstructure:"oauth_scope"`
	PixKey                string        `mapstructure:"pix_key"`
	PixPath               string        `mapstructure:"pix_path"`
	QRFallbackPath        string        `mapstructure:"qr_fallback_path"`
	CACertBase64          string        `mapstructure:"ca_cert_base64"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	TokenMargin           time.Duration `mapstructure:"token_margin"`
	ChargeExpiration      time.Duration `mapstructure:"charge_expiration"`
	BreakerMaxRequests    uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval       time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout        time.Duration `mapstructure:"breaker_timeout"`
	BreakerFailureRatio   float64       `mapstructure:"breaker_failure_ratio"`
	BreakerMinRequests    uint32        `mapstructure:"breaker_min_requests"`
}

// Missing returns the environment variables of required credentials that are
// not set. The service starts without them but cannot create charges.
func (p ProviderConfig) Missing() []string {
	var missing []string
	required := []struct {
		env   string
		value string
	}{
		{"PIXRELAY_PROVIDER_CLIENT_ID", p.ClientID},
		{"PIXRELAY_PROVIDER_CLIENT_SECRET", p.ClientSecret},
		{"PIXRELAY_PROVIDER_CERTIFICATE_BASE64", p.CertificateBase64},
		{"PIXRELAY_PROVIDER_API_BASE", p.APIBase},
		{"PIXRELAY_PROVIDER_OAUTH_URL", p.OAuthURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.env)
		}
	}
	return missing
}

type StoreConfig struct {
	Backend        string        `mapstructure:"backend"`
	Retention      time.Duration `mapstructure:"retention"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	ConnectRetries  uint          `mapstructure:"connect_retries"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    uint          `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
	EventStream       string        `mapstructure:"event_stream"`
}

// WebhookConfig names where the provider places its ownership challenge.
type WebhookConfig struct {
	ChallengeHeader string `mapstructure:"challenge_header"`
	ChallengeQuery  string `mapstructure:"challenge_query"`
	ChallengeField  string `mapstructure:"challenge_field"`
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("PIXRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Platforms usually hand the listen port over as plain PORT.
	if err := v.BindEnv("server.port", "PIXRELAY_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("bind port env: %w", err)
	}

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pixrelay")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Provider.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("provider.request_timeout must be positive"))
	}
	if c.Provider.TokenMargin < 0 {
		errs = append(errs, fmt.Errorf("provider.token_margin must not be negative"))
	}
	if c.Provider.ChargeExpiration < time.Second {
		errs = append(errs, fmt.Errorf("provider.charge_expiration must be at least 1s"))
	}
	if c.Provider.PixPath == "" || !strings.HasPrefix(c.Provider.PixPath, "/") {
		errs = append(errs, fmt.Errorf("provider.pix_path must start with /"))
	}
	if c.Provider.QRFallbackPath != "" && !strings.HasPrefix(c.Provider.QRFallbackPath, "/") {
		errs = append(errs, fmt.Errorf("provider.qr_fallback_path must start with /"))
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Port <= 0 {
			errs = append(errs, fmt.Errorf("redis.port must be positive"))
		}
	case StorePostgres:
		if c.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required"))
		}
		if c.Database.Port <= 0 {
			errs = append(errs, fmt.Errorf("database.port must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be one of memory, redis, postgres, got %q", c.Store.Backend))
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Provider defaults; credentials have none on purpose
	v.SetDefault("provider.client_id", "")
	v.SetDefault("provider.client_secret", "")
	v.SetDefault("provider.certificate_base64", "")
	v.SetDefault("provider.certificate_passphrase", "")
	v.SetDefault("provider.api_base", "")
	v.SetDefault("provider.oauth_url", "")
	v.SetDefault("provider.oauth_scope", "")
	v.SetDefault("provider.pix_key", "")
	v.SetDefault("provider.pix_path", "/pix/v2")
	v.SetDefault("provider.qr_fallback_path", "/v2")
	v.SetDefault("provider.ca_cert_base64", "")
	v.SetDefault("provider.request_timeout", "15s")
	v.SetDefault("provider.token_margin", "5s")
	v.SetDefault("provider.charge_expiration", "300s")
	v.SetDefault("provider.breaker_max_requests", 5)
	v.SetDefault("provider.breaker_interval", "60s")
	v.SetDefault("provider.breaker_timeout", "30s")
	v.SetDefault("provider.breaker_failure_ratio", 0.6)
	v.SetDefault("provider.breaker_min_requests", 10)

	// Store defaults
	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.retention", "168h")
	v.SetDefault("store.idempotency_ttl", "24h")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pixrelay")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "pixrelay")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.auto_migrate", false)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")
	v.SetDefault("redis.event_stream", "pix:charges")

	// Webhook defaults
	v.SetDefault("webhook.challenge_header", "X-Webhook-Challenge")
	v.SetDefault("webhook.challenge_query", "challenge")
	v.SetDefault("webhook.challenge_field", "challenge")
	v.SetDefault("webhook.max_body_bytes", 1<<20)

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_tracing", false)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrationURL is the DSN in the form golang-migrate's pgx driver expects.
func (c *DatabaseConfig) MigrationURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
