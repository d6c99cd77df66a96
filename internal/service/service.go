// Package service implements the read path: cache lookup, backfill from
// the live source, and the canonical offline default. Reads are passive;
// nothing here publishes to subscribers.
package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"dispresence/internal/cache"
	"dispresence/internal/discord"
	"dispresence/internal/metrics"
	"dispresence/internal/models"
	"dispresence/internal/normalize"
)

// LiveSource is the on-demand lookup boundary of the gateway client
type LiveSource interface {
	Ready() bool
	FetchUser(ctx context.Context, userID string) (normalize.RawProfile, error)
	Guilds() []models.Guild
	GuildPresence(ctx context.Context, guildID, userID string) (normalize.RawPresence, error)
}

// Service resolves profile and presence reads against the cache and the
// live source. Both handles are injected once at startup.
type Service struct {
	cache  cache.Store
	source LiveSource
	logger *zap.Logger
}

// New creates the read-path service
func New(store cache.Store, source LiveSource, logger *zap.Logger) *Service {
	return &Service{
		cache:  store,
		source: source,
		logger: logger,
	}
}

// ResolveProfile resolves a subject's profile: cache hit, then live
// backfill with write-through. Unresolvable subjects (including an unready
// source) report discord.ErrNotFound; the source's forbidden answer is
// passed through as discord.ErrForbidden.
func (s *Service) ResolveProfile(ctx context.Context, userID string) (models.UserProfile, error) {
	key := cache.ProfileKey(userID)

	if data, found := s.cache.Get(ctx, key); found {
		var profile models.UserProfile
		if err := json.Unmarshal(data, &profile); err == nil {
			metrics.CacheHit("profile")
			return profile, nil
		}
		s.logger.Warn("corrupt cached profile, refetching", zap.String("user_id", userID))
	}
	metrics.CacheMiss("profile")

	if !s.sourceReady() {
		return models.UserProfile{}, discord.ErrNotFound
	}

	raw, err := s.source.FetchUser(ctx, userID)
	switch {
	case err == nil:
		profile := normalize.Profile(raw)
		s.writeThrough(ctx, key, profile)
		return profile, nil
	case errors.Is(err, discord.ErrNotFound) || errors.Is(err, discord.ErrForbidden):
		return models.UserProfile{}, err
	default:
		// Transient source failures fall through to not-found rather
		// than surfacing internals to the caller
		s.logger.Warn("profile backfill failed", zap.String("user_id", userID), zap.Error(err))
		return models.UserProfile{}, discord.ErrNotFound
	}
}

// ResolvePresence resolves a subject's presence. It never fails: a cache
// miss triggers a guild-by-guild search of the live source, and when
// nothing resolves the offline default is synthesized. The default is
// returned but never written to the cache.
func (s *Service) ResolvePresence(ctx context.Context, userID, guildHint string) models.PresenceSnapshot {
	key := cache.PresenceKey(userID)

	if data, found := s.cache.Get(ctx, key); found {
		var snapshot models.PresenceSnapshot
		if err := json.Unmarshal(data, &snapshot); err == nil {
			metrics.CacheHit("presence")
			return snapshot
		}
		s.logger.Warn("corrupt cached presence, refetching", zap.String("user_id", userID))
	}
	metrics.CacheMiss("presence")

	if s.sourceReady() {
		for _, guildID := range s.searchOrder(guildHint) {
			raw, err := s.source.GuildPresence(ctx, guildID, userID)
			if err != nil {
				// Not found or forbidden within one guild skips to
				// the next, it is not fatal
				continue
			}

			snapshot := normalize.Presence(raw)
			s.writeThrough(ctx, key, snapshot)
			return snapshot
		}
	}

	snapshot := models.OfflinePresence(userID)
	if guildHint != "" {
		// The caller's hint is echoed in the default so clients can tell
		// which guild's view came up empty
		snapshot.GuildID = &guildHint
	}
	return snapshot
}

// searchOrder yields guild ids in the order backfill probes them: the
// caller's hint first, then the source's ascending-id order.
func (s *Service) searchOrder(guildHint string) []string {
	guilds := s.source.Guilds()
	order := make([]string, 0, len(guilds)+1)
	if guildHint != "" {
		order = append(order, guildHint)
	}
	for _, g := range guilds {
		if g.ID != guildHint {
			order = append(order, g.ID)
		}
	}
	return order
}

// Guilds lists the source's membership groups, or discord.ErrUnready when
// the gateway session is not up yet.
func (s *Service) Guilds(_ context.Context) ([]models.Guild, error) {
	if !s.sourceReady() {
		return nil, discord.ErrUnready
	}
	return s.source.Guilds(), nil
}

// SourceReady reports gateway readiness for health/debug endpoints
func (s *Service) SourceReady() bool { return s.sourceReady() }

// A nil source means the process runs cache-only, every live path
// behaves as not-ready.
func (s *Service) sourceReady() bool { return s.source != nil && s.source.Ready() }

// CacheBackend reports which cache backend was selected at startup
func (s *Service) CacheBackend() string { return s.cache.Backend() }

// CacheSize reports the approximate number of cached entries
func (s *Service) CacheSize() int { return s.cache.Size() }

// writeThrough caches a freshly-resolved record. A failed write is logged
// and otherwise ignored; the caller still gets the resolved value.
func (s *Service) writeThrough(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("failed to marshal record", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, data); err != nil {
		s.logger.Warn("cache write-through failed", zap.String("key", key), zap.Error(err))
	}
}
