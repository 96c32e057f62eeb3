// ==============================================================================
// CONFIG PACKAGE - pkg/config/config.go
// ==============================================================================
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	CoreBanking CoreBankingConfig
	Accounts    AccountsConfig
	Payment     PaymentConfig
	Processing  ProcessingConfig
	Validation  ValidationConfig
	RateLimit   RateLimitConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// AuthConfig carries the credentials accepted on service-to-service calls:
// a pre-shared secret or an HMAC-signed bearer token, checked in that order.
type AuthConfig struct {
	SharedSecret string
	JWTSecret    string
}

type CoreBankingConfig struct {
	URL          string
	Timeout      time.Duration
	SharedSecret string
}

type AccountsConfig struct {
	URL       string
	JWTSecret string
	Timeout   time.Duration
}

type PaymentConfig struct {
	APIClient         string
	DispatchWorkers   int
	DispatchQueueSize int
	RecordTTL         time.Duration
	LockTTL           time.Duration
	BalanceTTL        time.Duration
	DefaultBalance    decimal.Decimal
}

type ProcessingConfig struct {
	ClearingDelay      time.Duration
	AmountCeiling      decimal.Decimal
	Currency           string
	DefaultAccountType string
}

type ValidationConfig struct {
	MaxPayloadBytes   int
	MaxCommentsLength int
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			SharedSecret: getEnv("SERVICE_SHARED_SECRET", "change-this-shared-secret"),
			JWTSecret:    getEnv("JWT_SECRET", "change-this-secret"),
		},
		CoreBanking: CoreBankingConfig{
			URL:          getEnv("COREBANKING_URL", "http://localhost:8081"),
			Timeout:      getDurationEnv("COREBANKING_TIMEOUT", 5*time.Second),
			SharedSecret: getEnv("COREBANKING_SHARED_SECRET", "change-this-shared-secret"),
		},
		Accounts: AccountsConfig{
			URL:       getEnv("ACCOUNTS_URL", "http://localhost:8002"),
			JWTSecret: getEnv("ACCOUNTS_JWT_SECRET", "change-this-secret"),
			Timeout:   getDurationEnv("ACCOUNTS_TIMEOUT", 5*time.Second),
		},
		Payment: PaymentConfig{
			APIClient:         getEnv("PAYMENT_API_CLIENT", "web-portal"),
			DispatchWorkers:   getIntEnv("PAYMENT_DISPATCH_WORKERS", 8),
			DispatchQueueSize: getIntEnv("PAYMENT_DISPATCH_QUEUE", 256),
			RecordTTL:         getDurationEnv("PAYMENT_RECORD_TTL", 24*time.Hour),
			LockTTL:           getDurationEnv("PAYMENT_LOCK_TTL", 30*time.Second),
			BalanceTTL:        getDurationEnv("PAYMENT_BALANCE_TTL", 60*time.Second),
			DefaultBalance:    getDecimalEnv("PAYMENT_DEFAULT_BALANCE", decimal.NewFromInt(100000)),
		},
		Processing: ProcessingConfig{
			ClearingDelay:      getDurationEnv("PROCESSING_CLEARING_DELAY", 1500*time.Millisecond),
			AmountCeiling:      getDecimalEnv("PROCESSING_AMOUNT_CEILING", decimal.NewFromInt(100000)),
			Currency:           getEnv("PROCESSING_CURRENCY", "INR"),
			DefaultAccountType: getEnv("PROCESSING_DEFAULT_ACCOUNT_TYPE", "SAVINGS"),
		},
		Validation: ValidationConfig{
			MaxPayloadBytes:   getIntEnv("VALIDATION_MAX_PAYLOAD_BYTES", 1<<20),
			MaxCommentsLength: getIntEnv("VALIDATION_MAX_COMMENTS_LENGTH", 500),
		},
		RateLimit: RateLimitConfig{
			Limit:  getIntEnv("RATE_LIMIT", 100),
			Window: getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
