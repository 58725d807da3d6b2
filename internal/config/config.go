package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Lock backends selectable via LOCK_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Lock storage configuration
	LockBackend string
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	// Redis configuration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Lock lifetime configuration
	LockTTL    time.Duration
	LockMaxTTL time.Duration

	// Sweep configuration
	SweepInterval time.Duration
	SweepGrace    time.Duration

	// Order directory configuration
	OrderLookupEnabled  bool
	CustomerOrdersTable string
	InternalOrdersTable string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		LockBackend:      getEnv("LOCK_BACKEND", BackendPostgres),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "sera"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvAsInt("REDIS_DB", 0),

		LockTTL:    getEnvAsDuration("LOCK_TTL", 5*time.Minute),
		LockMaxTTL: getEnvAsDuration("LOCK_MAX_TTL", time.Hour),

		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		SweepGrace:    getEnvAsDuration("SWEEP_GRACE", 0),

		OrderLookupEnabled:  getEnvAsBool("ORDER_LOOKUP_ENABLED", false),
		CustomerOrdersTable: getEnv("CUSTOMER_ORDERS_TABLE", "customer_orders"),
		InternalOrdersTable: getEnv("INTERNAL_ORDERS_TABLE", "internal_orders"),

		APIPort: getEnvAsInt("API_PORT", 8080),
	}

	// An unset grace follows the lock lifetime, so an expired lock stays
	// visible for one more TTL before the sweeper removes the row.
	if cfg.SweepGrace == 0 {
		cfg.SweepGrace = cfg.LockTTL
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	switch c.LockBackend {
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("LOCK_BACKEND must be one of postgres, redis or memory, got %q", c.LockBackend)
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT must be between 1 and 65535")
	}

	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}

	if c.LockMaxTTL < c.LockTTL {
		return fmt.Errorf("LOCK_MAX_TTL cannot be below LOCK_TTL")
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}

	if c.SweepGrace < 0 {
		return fmt.Errorf("SWEEP_GRACE cannot be negative")
	}

	if c.LockBackend == BackendPostgres || c.OrderLookupEnabled {
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	}

	if c.LockBackend == BackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
