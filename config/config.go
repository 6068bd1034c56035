package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string
	Redis          RedisConfig
	Daily          DailyConfig
	ContactsDB     string
	CallTimeout    time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// DailyConfig holds credentials for the external call-room service.
type DailyConfig struct {
	APIKey string
	APIURL string
	Domain string
}

func Load() *Config {
	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	origins := strings.Split(originsStr, ",")

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		},
		Daily: DailyConfig{
			APIKey: getEnv("DAILY_API_KEY", ""),
			APIURL: getEnv("DAILY_API_URL", "https://api.daily.co/v1"),
			Domain: getEnv("DAILY_DOMAIN", "kiko-beam.daily.co"),
		},
		ContactsDB:  getEnv("CONTACTS_DB", "contacts.db"),
		CallTimeout: time.Duration(getEnvInt("CALL_TIMEOUT_SEC", 25)) * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
