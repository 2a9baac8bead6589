package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store backends understood by the persistence gateway.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	// Environment
	Environment string

	// Server
	Port string

	// Logging
	LogLevel  string
	LogFormat string

	// Persistence
	StoreBackend   string
	DatabaseURL    string
	RedisURL       string
	MigrateOnStart bool
	MigrationsPath string

	// Housekeeping
	PairSweepSeconds     int
	StatsIntervalSeconds int

	// Sessions
	MaxRecordedMoves int
	SendBufferSize   int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	env := getEnv("APP_ENV", "development")
	defaultFormat := "json"
	if env == "development" {
		defaultFormat = "console"
	}

	return &Config{
		Environment: env,

		Port: getEnv("PORT", "8080"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", defaultFormat),

		StoreBackend:   strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", false),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),

		PairSweepSeconds:     getEnvInt("PAIR_SWEEP_SECONDS", 5),
		StatsIntervalSeconds: getEnvInt("STATS_INTERVAL_SECONDS", 30),

		MaxRecordedMoves: getEnvInt("MAX_RECORDED_MOVES", 500),
		SendBufferSize:   getEnvInt("SEND_BUFFER_SIZE", 256),
	}
}

// Validate reports every inconsistent setting in one error.
func (c *Config) Validate() error {
	var errs []string

	if c.Port == "" {
		errs = append(errs, "PORT must not be empty")
	} else if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Sprintf("PORT %q is not a valid port", c.Port))
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres store")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, "REDIS_URL is required for the redis store")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	if c.PairSweepSeconds <= 0 {
		errs = append(errs, "PAIR_SWEEP_SECONDS must be positive")
	}
	if c.StatsIntervalSeconds <= 0 {
		errs = append(errs, "STATS_INTERVAL_SECONDS must be positive")
	}
	if c.MaxRecordedMoves < 0 {
		errs = append(errs, "MAX_RECORDED_MOVES must not be negative")
	}
	if c.SendBufferSize <= 0 {
		errs = append(errs, "SEND_BUFFER_SIZE must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
