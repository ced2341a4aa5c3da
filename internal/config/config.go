package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Storage backend: mysql | postgres | sqlite
	DBDriver    string
	DatabaseURL string // full DSN; wins over the discrete fields below
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	DBLogLevel  string // silent | error | warn | info

	Port        string
	Environment string

	// Trailing window applied to batch comparisons, in calendar days. 0 disables it.
	CompareWindowDays int
	MaxUploadMB       int
	RemoteTimeoutSec  int
	InsertBatchSize   int

	// Extract URLs polled by the daemon.
	ExtractURLs []string
}

func Load() *Config {
	return &Config{
		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnvInt("DB_PORT", 3306),
		DBUser:      getEnv("DB_USER", "demand"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "demand_trend"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),
		DBLogLevel:  getEnv("DB_LOG_LEVEL", "warn"),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		CompareWindowDays: getEnvInt("COMPARE_WINDOW_DAYS", 150),
		MaxUploadMB:       getEnvInt("MAX_UPLOAD_MB", 32),
		RemoteTimeoutSec:  getEnvInt("REMOTE_TIMEOUT_SECONDS", 30),
		InsertBatchSize:   getEnvInt("INSERT_BATCH_SIZE", 500),

		ExtractURLs: getEnvList("EXTRACT_URLS"),
	}
}

// IsProduction reports whether gin should run in release mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
