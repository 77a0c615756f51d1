// Package config provides configuration management for the ad sync engine.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Platform  PlatformConfig
	Queue     QueueConfig
	Scheduler SchedulerConfig
	Report    ReportConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Port string
	Host string
	// ManualSyncRPS limits POST /api/accounts/{id}/sync per client
	ManualSyncRPS   float64
	ManualSyncBurst int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
	MigrationsPath string
}

// URL returns the connection URL used by the migrator
func (c PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%s", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MigrationsPath string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// PlatformConfig holds the advertising platform client configuration
type PlatformConfig struct {
	BaseURL        string
	ClientID       string
	RequestTimeout time.Duration
	// RequestsPerSecond paces calls from this process
	RequestsPerSecond float64
	// BudgetPerMinute caps calls across every process sharing Redis
	BudgetPerMinute int
	// BreakerThreshold consecutive failures open the circuit for BreakerCooldown
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// QueueConfig holds work queue configuration
type QueueConfig struct {
	MinInterval     time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
	HonorRetryAfter bool
}

// SchedulerConfig holds tier timer configuration
type SchedulerConfig struct {
	Enabled        bool
	HighInterval   time.Duration
	MediumInterval time.Duration
	LowInterval    time.Duration
	FullInterval   time.Duration
	// PreferredTimeTolerance is the window around a schedule's preferred time
	PreferredTimeTolerance time.Duration
}

// ReportConfig holds performance report configuration
type ReportConfig struct {
	RoutineDays       int
	FirstSyncDays     int
	MaxDaysPerRequest int
	PollInterval      time.Duration
	PollTimeout       time.Duration
	RequestPause      time.Duration
	SyntheticFallback bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ManualSyncRPS:   getEnvAsFloat("MANUAL_SYNC_RPS", 1),
			ManualSyncBurst: getEnvAsInt("MANUAL_SYNC_BURST", 5),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "ads_sync"),
				User:           getEnv("POSTGRES_USER", "ads_sync"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
				MigrationsPath: getEnv("POSTGRES_MIGRATIONS_PATH", "migrations/postgres"),
			},
			ClickHouse: ClickHouseConfig{
				Host:           getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:           getEnv("CLICKHOUSE_PORT", "9000"),
				Database:       getEnv("CLICKHOUSE_DB", "ads_sync"),
				User:           getEnv("CLICKHOUSE_USER", "default"),
				Password:       getEnv("CLICKHOUSE_PASSWORD", ""),
				MigrationsPath: getEnv("CLICKHOUSE_MIGRATIONS_PATH", "migrations/clickhouse"),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
			},
		},
		Platform: PlatformConfig{
			BaseURL:           getEnv("PLATFORM_BASE_URL", "https://advertising-api.amazon.com"),
			ClientID:          getEnv("PLATFORM_CLIENT_ID", ""),
			RequestTimeout:    getEnvAsDuration("PLATFORM_REQUEST_TIMEOUT", 30*time.Second),
			RequestsPerSecond: getEnvAsFloat("PLATFORM_RPS", 5),
			BudgetPerMinute:   getEnvAsInt("PLATFORM_BUDGET_PER_MINUTE", 240),
			BreakerThreshold:  getEnvAsInt("PLATFORM_BREAKER_THRESHOLD", 5),
			BreakerCooldown:   getEnvAsDuration("PLATFORM_BREAKER_COOLDOWN", 60*time.Second),
		},
		Queue: QueueConfig{
			MinInterval:     getEnvAsDuration("QUEUE_MIN_INTERVAL", 200*time.Millisecond),
			MaxRetries:      getEnvAsInt("QUEUE_MAX_RETRIES", 3),
			RetryBaseDelay:  getEnvAsDuration("QUEUE_RETRY_BASE_DELAY", time.Second),
			HonorRetryAfter: getEnvAsBool("QUEUE_HONOR_RETRY_AFTER", true),
		},
		Scheduler: SchedulerConfig{
			Enabled:                getEnvAsBool("SCHEDULER_ENABLED", true),
			HighInterval:           getEnvAsDuration("SCHEDULER_HIGH_INTERVAL", 15*time.Minute),
			MediumInterval:         getEnvAsDuration("SCHEDULER_MEDIUM_INTERVAL", 30*time.Minute),
			LowInterval:            getEnvAsDuration("SCHEDULER_LOW_INTERVAL", 60*time.Minute),
			FullInterval:           getEnvAsDuration("SCHEDULER_FULL_INTERVAL", 60*time.Minute),
			PreferredTimeTolerance: getEnvAsDuration("SCHEDULER_PREFERRED_TIME_TOLERANCE", 5*time.Minute),
		},
		Report: ReportConfig{
			RoutineDays:       getEnvAsInt("REPORT_ROUTINE_DAYS", 14),
			FirstSyncDays:     getEnvAsInt("REPORT_FIRST_SYNC_DAYS", 90),
			MaxDaysPerRequest: getEnvAsInt("REPORT_MAX_DAYS_PER_REQUEST", 31),
			PollInterval:      getEnvAsDuration("REPORT_POLL_INTERVAL", 5*time.Second),
			PollTimeout:       getEnvAsDuration("REPORT_POLL_TIMEOUT", 5*time.Minute),
			RequestPause:      getEnvAsDuration("REPORT_REQUEST_PAUSE", 2*time.Second),
			SyntheticFallback: getEnvAsBool("REPORT_SYNTHETIC_FALLBACK", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	var problems []string

	if c.Report.MaxDaysPerRequest < 1 || c.Report.MaxDaysPerRequest > 31 {
		problems = append(problems, "REPORT_MAX_DAYS_PER_REQUEST must be between 1 and 31")
	}
	if c.Report.RoutineDays < 1 || c.Report.FirstSyncDays < c.Report.RoutineDays {
		problems = append(problems, "REPORT_FIRST_SYNC_DAYS must be >= REPORT_ROUTINE_DAYS >= 1")
	}
	if c.Report.PollInterval <= 0 || c.Report.PollTimeout < c.Report.PollInterval {
		problems = append(problems, "REPORT_POLL_TIMEOUT must be >= REPORT_POLL_INTERVAL > 0")
	}
	if c.Scheduler.FullInterval < 30*time.Minute || c.Scheduler.FullInterval > 120*time.Minute {
		problems = append(problems, "SCHEDULER_FULL_INTERVAL must be between 30m and 120m")
	}
	if c.Scheduler.HighInterval <= 0 || c.Scheduler.MediumInterval <= 0 || c.Scheduler.LowInterval <= 0 {
		problems = append(problems, "scheduler tier intervals must be positive")
	}
	if c.Queue.MinInterval < 0 || c.Queue.MaxRetries < 0 {
		problems = append(problems, "QUEUE_MIN_INTERVAL and QUEUE_MAX_RETRIES must not be negative")
	}
	if c.Platform.RequestsPerSecond <= 0 {
		problems = append(problems, "PLATFORM_RPS must be positive")
	}
	if c.Platform.BudgetPerMinute < 1 {
		problems = append(problems, "PLATFORM_BUDGET_PER_MINUTE must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
