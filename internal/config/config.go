package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Pricing PricingConfig
	Catalog CatalogConfig
	Carts   CartStoreConfig
	Redis   RedisConfig
	Orders  OrderStoreConfig
	Kafka   KafkaConfig
}

type ServerConfig struct {
	HTTPPort        string        `validate:"required,numeric"`
	GRPCPort        string        `validate:"required,numeric"`
	RequestTimeout  time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	HealthInterval  time.Duration `validate:"gt=0"`
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

type PricingConfig struct {
	TaxPercent decimal.Decimal
	Currency   string `validate:"len=3,uppercase"`
	MaxRetries int    `validate:"gte=1,lte=10"`
}

type CatalogConfig struct {
	Driver         string `validate:"oneof=memory sqlite"`
	SQLitePath     string `validate:"required_if=Driver sqlite"`
	MigrationsPath string `validate:"required_if=Driver sqlite"`
}

type CartStoreConfig struct {
	Driver   string `validate:"oneof=memory mongo"`
	MongoURI string `validate:"required_if=Driver mongo"`
	MongoDB  string `validate:"required_if=Driver mongo"`
}

// RedisConfig enables the cart cache and idempotency store when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int           `validate:"gte=0"`
	CacheTTL time.Duration `validate:"gt=0"`
}

type OrderStoreConfig struct {
	Driver         string `validate:"oneof=memory postgres"`
	PostgresDSN    string `validate:"required_if=Driver postgres"`
	MigrationsPath string `validate:"required_if=Driver postgres"`
}

// KafkaConfig enables checkout event publishing when Brokers is non-empty.
// Events are relayed from the order outbox every PollInterval.
type KafkaConfig struct {
	Brokers      []string
	Topic        string        `validate:"required"`
	PollInterval time.Duration `validate:"gt=0"`
}

// Load reads an optional .env file, then the environment, and validates the result.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	taxPercent, err := decimal.NewFromString(getEnv("TAX_PERCENT", "0"))
	if err != nil {
		return nil, fmt.Errorf("TAX_PERCENT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			HTTPPort:        getEnv("HTTP_PORT", "8080"),
			GRPCPort:        getEnv("GRPC_PORT", "50051"),
			RequestTimeout:  getDuration("REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			HealthInterval:  getDuration("HEALTH_CHECK_INTERVAL", 15*time.Second),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Pricing: PricingConfig{
			TaxPercent: taxPercent,
			Currency:   strings.ToUpper(getEnv("CURRENCY", "USD")),
			MaxRetries: getInt("CART_MAX_RETRIES", 3),
		},
		Catalog: CatalogConfig{
			Driver:         getEnv("CATALOG_DRIVER", "memory"),
			SQLitePath:     getEnv("CATALOG_SQLITE_PATH", "catalog.db"),
			MigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "internal/catalog/migrations"),
		},
		Carts: CartStoreConfig{
			Driver:   getEnv("CART_STORE", "memory"),
			MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDB:  getEnv("MONGO_DB_NAME", "plancart"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			CacheTTL: getDuration("CART_CACHE_TTL", 15*time.Minute),
		},
		Orders: OrderStoreConfig{
			Driver:         getEnv("ORDER_STORE", "memory"),
			PostgresDSN:    getEnv("ORDERS_POSTGRES_DSN", ""),
			MigrationsPath: getEnv("ORDERS_MIGRATIONS_PATH", "internal/orders/migrations"),
		},
		Kafka: KafkaConfig{
			Brokers:      splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:        getEnv("KAFKA_TOPIC", "checkout.completed"),
			PollInterval: getDuration("OUTBOX_POLL_INTERVAL", time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Pricing.TaxPercent.IsNegative() || c.Pricing.TaxPercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("invalid config: TAX_PERCENT must be within [0, 100], got %s", c.Pricing.TaxPercent)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
