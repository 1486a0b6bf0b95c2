package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env         string
	Addr        string
	MongoURL    string
	MongoDB     string
	CORSOrigin  string
	PageSize    int
	// Redis - list caching is disabled when no URL is configured
	RedisURL string
	CacheTTL time.Duration
}

func Load() Config {
	return Config{
		Env:        getenv("APP_ENV", "development"),
		Addr:       getenv("API_ADDR", ":8080"),
		MongoURL:   getenv("MONGO_URL", "mongodb://localhost:27017"),
		MongoDB:    getenv("MONGO_DB", "grantflow"),
		CORSOrigin: getenv("GRANTFLOW_CORS_ORIGIN", "*"),
		PageSize:   getenvInt("GRANTFLOW_PAGE_SIZE", 10),
		RedisURL:   getenv("REDIS_URL", ""),
		CacheTTL:   time.Duration(getenvInt("GRANTFLOW_CACHE_TTL_SECONDS", 30)) * time.Second,
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
