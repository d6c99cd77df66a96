// Package ingest runs the dispatch loop between the live source and the
// cache/fanout layers: one goroutine drains the event channel, normalizes
// each event, writes it through to the cache and republishes it. The
// single consumer is what preserves per-subject publish order.
package ingest

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"dispresence/internal/cache"
	"dispresence/internal/discord"
	"dispresence/internal/metrics"
	"dispresence/internal/normalize"
)

// Event names pushed to subscribers
const (
	EventPresenceUpdate = "presenceUpdate"
	EventUserUpdate     = "userUpdate"
)

// Publisher is the fanout boundary; publishing never returns an error
// because delivery is best-effort by contract.
type Publisher interface {
	Publish(event, subjectID string, payload any)
}

// Ingester consumes raw gateway events
type Ingester struct {
	events <-chan discord.Event
	cache  cache.Store
	hub    Publisher
	logger *zap.Logger
}

// New creates an ingester over an event stream
func New(events <-chan discord.Event, store cache.Store, hub Publisher, logger *zap.Logger) *Ingester {
	return &Ingester{
		events: events,
		cache:  store,
		hub:    hub,
		logger: logger,
	}
}

// Run drains the event stream until the context is canceled or the stream
// closes. Call it from exactly one goroutine.
func (i *Ingester) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-i.events:
			if !ok {
				return
			}
			i.handle(ctx, ev)
		}
	}
}

func (i *Ingester) handle(ctx context.Context, ev discord.Event) {
	switch {
	case ev.Presence != nil:
		snapshot := normalize.Presence(*ev.Presence)
		i.store(ctx, cache.PresenceKey(snapshot.UserID), snapshot)
		// Fanout is best-effort and happens after the cache write; a
		// publish with no subscribers changes nothing
		i.hub.Publish(EventPresenceUpdate, snapshot.UserID, snapshot)
		metrics.EventIngested("presence")

	case ev.Member != nil:
		profile, changed := normalize.Member(*ev.Member)
		if !changed {
			return
		}
		i.store(ctx, cache.ProfileKey(profile.ID), profile)
		i.hub.Publish(EventUserUpdate, profile.ID, profile)
		metrics.EventIngested("member")
	}
}

func (i *Ingester) store(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		i.logger.Error("failed to marshal record", zap.String("key", key), zap.Error(err))
		return
	}
	if err := i.cache.Set(ctx, key, data); err != nil {
		i.logger.Error("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
