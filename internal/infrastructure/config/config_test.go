package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 10 * time.Second,
		},
		Processor: ProcessorConfig{Name: "mock"},
		Checkout: CheckoutConfig{
			Mode:               "capture_customer",
			PaymentMethodTypes: []string{"card"},
			ConfirmTimeout:     30 * time.Second,
			AsyncGracePeriod:   3 * time.Second,
		},
		Session: SessionConfig{
			Store:      "memory",
			AttemptTTL: 30 * time.Minute,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_BackendBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"absolute http", "http://backend:5000", false},
		{"absolute https", "https://api.example.com/shop", false},
		{"empty", "", true},
		{"relative", "/api", true},
		{"no scheme", "backend:5000/api", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Backend.BaseURL = tt.url

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "backend.base_url")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Validate_HTTPProcessorNeedsKey(t *testing.T) {
	cfg := validConfig()
	cfg.Processor = ProcessorConfig{Name: "http", BaseURL: "https://api.stripe.com"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processor.publishable_key")

	cfg.Processor.PublishableKey = "pk_test_123"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_UnknownProcessor(t *testing.T) {
	cfg := validConfig()
	cfg.Processor.Name = "paypal"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processor.name")
}

func TestConfig_Validate_CheckoutMode(t *testing.T) {
	cfg := validConfig()
	cfg.Checkout.Mode = "skip_capture"
	assert.NoError(t, cfg.Validate())

	cfg.Checkout.Mode = "express"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkout.mode")
}

func TestConfig_Validate_RedisSessionStoreNeedsRedis(t *testing.T) {
	cfg := validConfig()
	cfg.Session.Store = "redis"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.enabled")

	cfg.Redis = RedisConfig{Enabled: true, Host: "localhost", Port: 6379}
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)
	errStr := err.Error()
	assert.Contains(t, errStr, "server.port")
	assert.Contains(t, errStr, "server.read_timeout")
	assert.Contains(t, errStr, "backend.base_url")
	assert.Contains(t, errStr, "processor.name")
	assert.Contains(t, errStr, "checkout.mode")
	assert.Contains(t, errStr, "checkout.confirm_timeout")
	assert.Contains(t, errStr, "session.store")
}

func TestConfig_ValidateWorker(t *testing.T) {
	cfg := validConfig()
	err := cfg.ValidateWorker()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.enabled")
	assert.Contains(t, err.Error(), "worker.batch_size")

	cfg.Redis = RedisConfig{Enabled: true, Port: 6379}
	cfg.Database = DatabaseConfig{Host: "localhost", Port: 5432}
	cfg.Worker = WorkerConfig{BatchSize: 10}
	assert.NoError(t, cfg.ValidateWorker())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STOREFRONT_BACKEND_BASE_URL", "http://backend.internal:5000")
	t.Setenv("STOREFRONT_PROCESSOR_NAME", "http")
	t.Setenv("STOREFRONT_PROCESSOR_PUBLISHABLE_KEY", "pk_test_abc")
	t.Setenv("STOREFRONT_CHECKOUT_MODE", "skip_capture")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://backend.internal:5000", cfg.Backend.BaseURL)
	assert.Equal(t, "pk_test_abc", cfg.Processor.PublishableKey)
	assert.Equal(t, "skip_capture", cfg.Checkout.Mode)
	assert.Equal(t, []string{"card"}, cfg.Checkout.PaymentMethodTypes)
	assert.Equal(t, 3*time.Second, cfg.Checkout.AsyncGracePeriod)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5432,
		User:     "admin",
		Password: "secret",
		Database: "storefront",
		SSLMode:  "require",
	}

	assert.Equal(t, "host=db.example.com port=5432 user=admin password=secret dbname=storefront sslmode=require", cfg.DatabaseDSN())
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "redis.example.com", Port: 6380}
	assert.Equal(t, "redis.example.com:6380", cfg.RedisAddr())
}
