package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Service ServiceConfig
	Discord DiscordConfig
	Cache   CacheConfig
	NATS    NATSConfig
	Logging LoggingConfig
}

// ServiceConfig holds service-level configuration
type ServiceConfig struct {
	Port       int
	APIVersion string
	CORSOrigin string
}

// DiscordConfig holds the gateway connection configuration
type DiscordConfig struct {
	BotToken string
}

// CacheConfig holds cache configuration. RedisURL selects the Redis
// backend when set; otherwise the NATS KV backend is tried, and memory
// is the last resort.
type CacheConfig struct {
	TTL         string
	RedisURL    string
	MaxCost     int64
	NumCounters int64
	BufferItems int64
}

// NATSConfig holds the NATS KV backend configuration
type NATSConfig struct {
	Embedded  bool
	ServerURL string
	DataDir   string
	KVBucket  string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	config := &Config{
		Service: ServiceConfig{
			Port:       getEnvIntOrDefault("PORT", 3000),
			APIVersion: getEnvOrDefault("API_VERSION", "v1"),
			CORSOrigin: getEnvOrDefault("CORS_ORIGIN", "*"),
		},
		Discord: DiscordConfig{
			BotToken: getEnvOrDefault("DISCORD_BOT_TOKEN", ""),
		},
		Cache: CacheConfig{
			TTL:         getEnvOrDefault("CACHE_TTL", "300s"),
			RedisURL:    getEnvOrDefault("REDIS_URL", ""),
			MaxCost:     getEnvInt64OrDefault("CACHE_MAX_COST", 1<<20),
			NumCounters: getEnvInt64OrDefault("CACHE_NUM_COUNTERS", 100000),
			BufferItems: getEnvInt64OrDefault("CACHE_BUFFER_ITEMS", 64),
		},
		NATS: NATSConfig{
			Embedded:  getEnvBoolOrDefault("NATS_EMBEDDED", false),
			ServerURL: getEnvOrDefault("NATS_SERVER_URL", ""),
			DataDir:   getEnvOrDefault("NATS_DATA_DIR", "./nats-data"),
			KVBucket:  getEnvOrDefault("NATS_KV_BUCKET", "presence"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if _, err := config.Cache.GetTTL(); err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	return config, nil
}

// GetTTL returns cache TTL as duration
func (c *CacheConfig) GetTTL() (time.Duration, error) {
	return time.ParseDuration(c.TTL)
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
