package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Backend       BackendConfig       `mapstructure:"backend"`
	Processor     ProcessorConfig     `mapstructure:"processor"`
	Checkout      CheckoutConfig      `mapstructure:"checkout"`
	Session       SessionConfig       `mapstructure:"session"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                 int           `mapstructure:"port"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
	ConfirmRatePerMinute int           `mapstructure:"confirm_rate_per_minute"`
	CORS                 CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// BackendConfig points at the storefront backend API.
type BackendConfig struct {
	BaseURL                 string        `mapstructure:"base_url"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

// ProcessorConfig selects and configures the payment processor client.
type ProcessorConfig struct {
	Name            string        `mapstructure:"name"`
	BaseURL         string        `mapstructure:"base_url"`
	PublishableKey  string        `mapstructure:"publishable_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ReturnURL       string        `mapstructure:"return_url"`
	MockLatency     time.Duration `mapstructure:"mock_latency"`
	MockFailureRate float64       `mapstructure:"mock_failure_rate"`
}

// CheckoutConfig parameterizes the checkout flow.
type CheckoutConfig struct {
	Mode               string        `mapstructure:"mode"`
	PaymentMethodTypes []string      `mapstructure:"payment_method_types"`
	ConfirmTimeout     time.Duration `mapstructure:"confirm_timeout"`
	AsyncGracePeriod   time.Duration `mapstructure:"async_grace_period"`
}

// SessionConfig selects where attempt-scoped state lives between requests.
type SessionConfig struct {
	Store      string        `mapstructure:"store"`
	AttemptTTL time.Duration `mapstructure:"attempt_ttl"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
}

// DatabaseConfig holds PostgreSQL configuration for the outcome journal
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
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    uint          `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// WorkerConfig holds outcome journal worker configuration
type WorkerConfig struct {
	BatchSize     int64         `mapstructure:"batch_size"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
	// OpsPort serves /health and /metrics for the worker.
	OpsPort int `mapstructure:"ops_port"`
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

// Load reads configuration from a .env file, environment variables and config files
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	// STOREFRONT_BACKEND_BASE_URL -> backend.base_url
	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/storefront")

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

// Validate checks that required configuration fields have valid values.
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
	if u, err := url.Parse(c.Backend.BaseURL); c.Backend.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url must be an absolute URL, got %q", c.Backend.BaseURL))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("backend.timeout must be positive"))
	}
	switch c.Processor.Name {
	case "http":
		if c.Processor.BaseURL == "" {
			errs = append(errs, fmt.Errorf("processor.base_url is required for the http processor"))
		}
		if c.Processor.PublishableKey == "" {
			errs = append(errs, fmt.Errorf("processor.publishable_key is required for the http processor"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("processor.name must be http or mock, got %q", c.Processor.Name))
	}
	if c.Checkout.Mode != "capture_customer" && c.Checkout.Mode != "skip_capture" {
		errs = append(errs, fmt.Errorf("checkout.mode must be capture_customer or skip_capture, got %q", c.Checkout.Mode))
	}
	if len(c.Checkout.PaymentMethodTypes) == 0 {
		errs = append(errs, fmt.Errorf("checkout.payment_method_types must not be empty"))
	}
	if c.Checkout.ConfirmTimeout <= 0 {
		errs = append(errs, fmt.Errorf("checkout.confirm_timeout must be positive"))
	}
	if c.Checkout.AsyncGracePeriod < 0 {
		errs = append(errs, fmt.Errorf("checkout.async_grace_period must not be negative"))
	}
	switch c.Session.Store {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, fmt.Errorf("session.store=redis requires redis.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.store must be memory or redis, got %q", c.Session.Store))
	}
	if c.Session.AttemptTTL <= 0 {
		errs = append(errs, fmt.Errorf("session.attempt_ttl must be positive"))
	}
	if c.Redis.Enabled && c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}

	return errors.Join(errs...)
}

// ValidateWorker checks the settings only the journal worker needs.
func (c *Config) ValidateWorker() error {
	var errs []error
	if !c.Redis.Enabled {
		errs = append(errs, fmt.Errorf("redis.enabled is required for the worker"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "45s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.confirm_rate_per_minute", 30)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Backend defaults
	v.SetDefault("backend.base_url", "http://localhost:5000")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.circuit_breaker_threshold", 5)
	v.SetDefault("backend.circuit_breaker_timeout", "30s")

	// Processor defaults
	v.SetDefault("processor.name", "mock")
	v.SetDefault("processor.base_url", "https://api.stripe.com")
	v.SetDefault("processor.publishable_key", "")
	v.SetDefault("processor.timeout", "20s")
	v.SetDefault("processor.return_url", "http://localhost:3000/payment/status")
	v.SetDefault("processor.mock_latency", "200ms")
	v.SetDefault("processor.mock_failure_rate", 0.0)

	// Checkout defaults
	v.SetDefault("checkout.mode", "capture_customer")
	v.SetDefault("checkout.payment_method_types", []string{"card"})
	v.SetDefault("checkout.confirm_timeout", "30s")
	v.SetDefault("checkout.async_grace_period", "3s")

	// Session defaults
	v.SetDefault("session.store", "memory")
	v.SetDefault("session.attempt_ttl", "30m")
	v.SetDefault("session.lock_ttl", "5s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "storefront")
	v.SetDefault("database.password", "storefront")
	v.SetDefault("database.database", "storefront")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.connect_retries", 5)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.consumer_group", "outcome-journal")
	v.SetDefault("worker.ops_port", 9091)

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Instance ID
	v.SetDefault("instance_id", "storefront-1")
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
