package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	// Storage selects the repository backend: "postgres" or "memory"
	Storage     string
	DatabaseURL string
	TablePrefix string
	CORSOrigins string
	// Path cache (optional - disabled when RedisURL is empty)
	RedisURL     string
	PathCacheTTL time.Duration
	// MaxPathDepth bounds root-to-leaf paths (MAX_PATH_DEPTH)
	MaxPathDepth int
	// Generation
	AnthropicAPIKey string
	DefaultModel    string
	// File logging (optional - disabled when LogDir is empty)
	LogDir      string
	LogMaxFiles int
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	databaseURL := getEnv("DATABASE_URL", "")

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     env,
		Storage:         getEnv("STORAGE", getDefaultStorage(databaseURL)),
		DatabaseURL:     databaseURL,
		TablePrefix:     getTablePrefix(env),
		CORSOrigins:     getEnv("CORS_ORIGINS", "http://localhost:3000"),
		RedisURL:        getEnv("REDIS_URL", ""),
		PathCacheTTL:    time.Duration(getEnvInt("PATH_CACHE_TTL_SECONDS", 300)) * time.Second,
		MaxPathDepth:    getEnvInt("MAX_PATH_DEPTH", MaxPathDepth),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", "lorem-fast"),
		LogDir:          getEnv("LOG_DIR", ""),
		LogMaxFiles:     getEnvInt("LOG_MAX_FILES", 10),
	}
}

// getDefaultStorage falls back to the in-memory store when no database is configured
func getDefaultStorage(databaseURL string) string {
	if databaseURL == "" {
		return "memory"
	}
	return "postgres"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
