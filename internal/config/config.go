package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"booking/internal/models"
)

// Storage backends selectable with STORAGE_BACKEND
const (
	BackendMemory     = "memory"
	BackendClickHouse = "clickhouse"
	BackendPostgres   = "postgres"
)

// Config holds the application configuration
type Config struct {
	Port     string
	LogLevel string
	GinMode  string

	// APIKeys maps a bearer token to the user it authenticates
	APIKeys map[string]models.UserRef

	// Telegram notifications are enabled when the token is set
	TelegramToken  string
	TelegramChatID int64

	StorageBackend string
	SeedDemoData   bool

	// ClickHouse configuration
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	// PostgreSQL configuration
	PostgresDSN string

	// Redis resource cache, disabled when RedisAddr is empty
	RedisAddr     string
	RedisCacheTTL time.Duration

	// OpenTelemetry export: "stdout" or "none"
	TelemetryExporter string
	TelemetryInterval time.Duration
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		GinMode:  getEnv("GIN_MODE", "release"),
	}

	// API keys (required)
	apiKeys := os.Getenv("API_KEYS")
	if apiKeys == "" {
		return nil, fmt.Errorf("API_KEYS is required (comma-separated list of key:userID:login)")
	}
	keys, err := ParseAPIKeys(apiKeys)
	if err != nil {
		return nil, err
	}
	config.APIKeys = keys

	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if config.TelegramToken != "" {
		chatStr := os.Getenv("TELEGRAM_CHAT_ID")
		if chatStr == "" {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
		}
		chatID, err := strconv.ParseInt(chatStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		config.TelegramChatID = chatID
	}

	config.SeedDemoData = os.Getenv("SEED_DEMO_DATA") == "true"

	config.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", BackendMemory))
	switch config.StorageBackend {
	case BackendMemory:
	case BackendClickHouse:
		if err := loadClickHouse(config); err != nil {
			return nil, err
		}
	case BackendPostgres:
		config.PostgresDSN = os.Getenv("POSTGRES_DSN")
		if config.PostgresDSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN is required when STORAGE_BACKEND is postgres")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q (expected memory, clickhouse or postgres)", config.StorageBackend)
	}

	config.RedisAddr = os.Getenv("REDIS_ADDR")
	config.RedisCacheTTL = 5 * time.Minute
	if ttlStr := os.Getenv("REDIS_CACHE_TTL"); ttlStr != "" {
		ttl, err := time.ParseDuration(ttlStr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_CACHE_TTL: %w", err)
		}
		config.RedisCacheTTL = ttl
	}

	config.TelemetryExporter = strings.ToLower(getEnv("TELEMETRY_EXPORTER", "stdout"))
	config.TelemetryInterval = time.Minute
	if intervalStr := os.Getenv("TELEMETRY_INTERVAL"); intervalStr != "" {
		interval, err := time.ParseDuration(intervalStr)
		if err != nil || interval <= 0 {
			return nil, fmt.Errorf("invalid TELEMETRY_INTERVAL %q", intervalStr)
		}
		config.TelemetryInterval = interval
	}

	return config, nil
}

func loadClickHouse(config *Config) error {
	config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
	if config.ClickHouseHost == "" {
		return fmt.Errorf("CLICKHOUSE_HOST is required when STORAGE_BACKEND is clickhouse")
	}

	portStr := os.Getenv("CLICKHOUSE_PORT")
	if portStr == "" {
		config.ClickHousePort = 9000 // Default ClickHouse native port
	} else {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid CLICKHOUSE_PORT: %w", err)
		}
		config.ClickHousePort = port
	}

	config.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", "default")
	config.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")
	config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
	config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	return nil
}

// ParseAPIKeys parses "key:userID:login" entries separated by commas.
// The login part is optional.
func ParseAPIKeys(s string) (map[string]models.UserRef, error) {
	keys := make(map[string]models.UserRef)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid API_KEYS entry %q (expected key:userID[:login])", entry)
		}
		userID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || userID <= 0 {
			return nil, fmt.Errorf("invalid user ID in API_KEYS entry %q", entry)
		}
		user := models.UserRef{ID: userID}
		if len(parts) == 3 {
			user.Login = parts[2]
		}
		keys[parts[0]] = user
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("API_KEYS contains no keys")
	}
	return keys, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
