// Package cache implements the tiered presence/profile cache: a durable
// backend (Redis or NATS JetStream KV) selected at startup, with a
// permanent in-process fallback when no backend is reachable.
package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Backend names reported by Store.Backend
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

// Store is the key-value cache shared by the normalizer and the read path.
// Values are serialized canonical records; an expired entry behaves exactly
// like a miss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Size() int
	Backend() string
	Close() error
}

// Config holds cache construction parameters
type Config struct {
	TTL time.Duration

	// Redis backend; empty URL disables it
	RedisURL string

	// NATS KV backend; disabled unless Embedded is set or ServerURL given
	NATS NATSConfig

	// In-process fallback (ristretto) sizing
	MaxCost     int64
	NumCounters int64
	BufferItems int64
}

// ProfileKey returns the cache key for a subject's profile record
func ProfileKey(userID string) string { return "user:" + userID }

// PresenceKey returns the cache key for a subject's presence record
func PresenceKey(userID string) string { return "presence:" + userID }

// New selects and initializes the cache backend. A configured durable
// backend that fails to initialize downgrades to the in-process store for
// the remainder of the process lifetime; the choice is observable via
// Store.Backend.
func New(cfg Config, logger *zap.Logger) Store {
	if cfg.RedisURL != "" {
		store, err := NewRedisStore(cfg.RedisURL, cfg.TTL)
		if err == nil {
			logger.Info("cache backend ready", zap.String("backend", BackendRedis))
			return store
		}
		logger.Warn("redis unavailable, falling back to memory cache", zap.Error(err))
	}

	if cfg.NATS.Embedded || cfg.NATS.ServerURL != "" {
		store, err := NewNATSStore(cfg.NATS, cfg.TTL)
		if err == nil {
			logger.Info("cache backend ready", zap.String("backend", BackendNATS))
			return store
		}
		logger.Warn("nats unavailable, falling back to memory cache", zap.Error(err))
	}

	store, err := NewMemoryStore(cfg)
	if err != nil {
		// Ristretto only rejects invalid sizing parameters; the defaults
		// in config.Load are always valid.
		panic("failed to create memory cache: " + err.Error())
	}
	logger.Info("cache backend ready", zap.String("backend", BackendMemory))
	return store
}
