package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Draft     DraftConfig
	Flow      FlowConfig
	Scheduler SchedulerConfig
}

// AppConfig holds general application configuration
type AppConfig struct {
	Env      string
	Name     string
	LogLevel string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	TimeoutRead  time.Duration
	TimeoutWrite time.Duration
	TimeoutIdle  time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// RedisConfig holds redis configuration, used when Draft.Store is "redis"
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// DraftConfig holds draft persistence configuration
type DraftConfig struct {
	Store string // postgres, redis or memory
	TTL   time.Duration
}

// FlowConfig holds respondent flow configuration
type FlowConfig struct {
	// MaxTransitions caps branch-driven section transitions per draft. 0 disables the guard.
	MaxTransitions int
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	EnableDraftCleanup bool
	DraftCleanupCron   string // e.g., "0 3 * * *" (Daily 3 AM)
	Workers            int
	QueueSize          int
	Retries            int
	RetryDelay         time.Duration
}

var draftStores = map[string]bool{"postgres": true, "redis": true, "memory": true}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// godotenv doesn't override already-set variables, so order matters
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		App: AppConfig{
			Env:      getEnv("APP_ENV", "development"),
			Name:     getEnv("APP_NAME", "surveyflow"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnv("SERVER_PORT", "8080"),
			TimeoutRead:  getDurationEnv("SERVER_TIMEOUT_READ", 15*time.Second),
			TimeoutWrite: getDurationEnv("SERVER_TIMEOUT_WRITE", 15*time.Second),
			TimeoutIdle:  getDurationEnv("SERVER_TIMEOUT_IDLE", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "surveyflow"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "surveyflow"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getIntEnv("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "surveyflow:draft"),
		},
		Draft: DraftConfig{
			Store: strings.ToLower(getEnv("DRAFT_STORE", "postgres")),
			TTL:   getDurationEnv("DRAFT_TTL", 30*24*time.Hour),
		},
		Flow: FlowConfig{
			MaxTransitions: getIntEnv("FLOW_MAX_TRANSITIONS", 200),
		},
		Scheduler: SchedulerConfig{
			EnableDraftCleanup: getBoolEnv("SCHEDULER_ENABLE_DRAFT_CLEANUP", true),
			DraftCleanupCron:   getEnv("SCHEDULER_DRAFT_CLEANUP_CRON", "0 3 * * *"),
			Workers:            getIntEnv("SCHEDULER_WORKERS", 1),
			QueueSize:          getIntEnv("SCHEDULER_QUEUE_SIZE", 8),
			Retries:            getIntEnv("SCHEDULER_RETRIES", 3),
			RetryDelay:         getDurationEnv("SCHEDULER_RETRY_DELAY", 30*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !draftStores[c.Draft.Store] {
		return fmt.Errorf("DRAFT_STORE must be one of postgres, redis, memory (got %q)", c.Draft.Store)
	}
	if c.Draft.TTL <= 0 {
		return fmt.Errorf("DRAFT_TTL must be positive")
	}
	if c.Flow.MaxTransitions < 0 {
		return fmt.Errorf("FLOW_MAX_TRANSITIONS must not be negative")
	}
	if c.Database.Password == "" && c.App.Env == "production" && c.Draft.Store == "postgres" {
		return fmt.Errorf("DB_PASSWORD is required in production")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
