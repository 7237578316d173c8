package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Kafka configuration
	Kafka KafkaConfig

	// Waiting-room queue
	Queue QueueConfig

	// Seat locking
	Lock LockConfig

	// Reservation holds
	Reservation ReservationConfig

	// Payment saga
	Payment PaymentConfig

	// Idempotency records
	Idempotency IdempotencyConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string
}

// KafkaConfig holds Kafka configuration for the payment saga bus
type KafkaConfig struct {
	Brokers         []string
	ConsumerGroup   string
	DeadLetterTopic string
	ProducerRetries int
	ProducerTimeout time.Duration
	HandlerRetries  int
	HandlerBackoff  time.Duration
}

// QueueConfig holds waiting-room admission configuration
type QueueConfig struct {
	TokenLength     int
	WaitingTTL      time.Duration
	EnteredTTL      time.Duration
	Capacity        int
	PromoteInterval time.Duration
	Backend         string // "redis" or "memory"
}

// LockConfig holds distributed seat-lock configuration
type LockConfig struct {
	WaitTime      time.Duration
	LeaseTime     time.Duration
	RetryInterval time.Duration
}

// ReservationConfig holds reservation hold configuration
type ReservationConfig struct {
	HoldDuration  time.Duration
	SweepInterval time.Duration
	SweepBatch    int
}

// PaymentConfig holds external charge and saga configuration
type PaymentConfig struct {
	ChargeURL          string
	ChargeTimeout      time.Duration
	ChargeMaxAttempts  int
	ChargeBackoff      time.Duration
	ProcessingDeadline time.Duration
	SweepInterval      time.Duration
	SweepBatch         int
}

// IdempotencyConfig holds idempotency record configuration
type IdempotencyConfig struct {
	RecordTTL       time.Duration
	CleanupInterval time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled         bool          `json:"enabled"`
	WindowDuration  time.Duration `json:"window_duration"`
	DefaultRequests int           `json:"default_requests"`
	QueueRequests   int           `json:"queue_requests"`
	ReserveRequests int           `json:"reserve_requests"`
	PaymentRequests int           `json:"payment_requests"`
	WhitelistedIPs  []string      `json:"whitelisted_ips"`
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "showtix_db"),
			User:     getEnv("DB_USER", "showtix_user"),
			Password: getEnv("DB_PASSWORD", "showtix_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},

		Kafka: KafkaConfig{
			Brokers:         getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			ConsumerGroup:   getEnv("KAFKA_CONSUMER_GROUP", "showtix-payment-saga"),
			DeadLetterTopic: getEnv("KAFKA_DLQ_TOPIC", "payment.saga.dlq"),
			ProducerRetries: getIntEnv("KAFKA_PRODUCER_RETRIES", 3),
			ProducerTimeout: getDurationEnv("KAFKA_PRODUCER_TIMEOUT", 10*time.Second),
			HandlerRetries:  getIntEnv("KAFKA_HANDLER_RETRIES", 3),
			HandlerBackoff:  getDurationEnv("KAFKA_HANDLER_BACKOFF", time.Second),
		},

		Queue: QueueConfig{
			TokenLength:     getIntEnv("QUEUE_TOKEN_LENGTH", 16),
			WaitingTTL:      getDurationEnv("QUEUE_WAITING_TTL", 30*time.Minute),
			EnteredTTL:      getDurationEnv("QUEUE_ENTERED_TTL", 5*time.Minute),
			Capacity:        getIntEnv("QUEUE_CAPACITY", 50),
			PromoteInterval: getDurationEnv("QUEUE_PROMOTE_INTERVAL", 10*time.Second),
			Backend:         getEnv("QUEUE_BACKEND", "redis"),
		},

		Lock: LockConfig{
			WaitTime:      getDurationEnv("LOCK_WAIT_TIME", 3*time.Second),
			LeaseTime:     getDurationEnv("LOCK_LEASE_TIME", 10*time.Second),
			RetryInterval: getDurationEnv("LOCK_RETRY_INTERVAL", 50*time.Millisecond),
		},

		Reservation: ReservationConfig{
			HoldDuration:  getDurationEnv("RESERVATION_HOLD_DURATION", 5*time.Minute),
			SweepInterval: getDurationEnv("RESERVATION_SWEEP_INTERVAL", 30*time.Second),
			SweepBatch:    getIntEnv("RESERVATION_SWEEP_BATCH", 100),
		},

		Payment: PaymentConfig{
			ChargeURL:          getEnv("PAYMENT_CHARGE_URL", "http://localhost:9090"),
			ChargeTimeout:      getDurationEnv("PAYMENT_CHARGE_TIMEOUT", 5*time.Second),
			ChargeMaxAttempts:  getIntEnv("PAYMENT_CHARGE_MAX_ATTEMPTS", 3),
			ChargeBackoff:      getDurationEnv("PAYMENT_CHARGE_BACKOFF", 500*time.Millisecond),
			ProcessingDeadline: getDurationEnv("PAYMENT_PROCESSING_DEADLINE", 10*time.Minute),
			SweepInterval:      getDurationEnv("PAYMENT_SWEEP_INTERVAL", time.Minute),
			SweepBatch:         getIntEnv("PAYMENT_SWEEP_BATCH", 100),
		},

		Idempotency: IdempotencyConfig{
			RecordTTL:       getDurationEnv("IDEMPOTENCY_RECORD_TTL", 30*time.Minute),
			CleanupInterval: getDurationEnv("IDEMPOTENCY_CLEANUP_INTERVAL", 10*time.Minute),
		},

		RateLimit: RateLimitConfig{
			Enabled:         getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:  getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests: getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			QueueRequests:   getIntEnv("RATE_LIMIT_QUEUE_REQUESTS", 120),
			ReserveRequests: getIntEnv("RATE_LIMIT_RESERVE_REQUESTS", 20),
			PaymentRequests: getIntEnv("RATE_LIMIT_PAYMENT_REQUESTS", 20),
			WhitelistedIPs:  getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
