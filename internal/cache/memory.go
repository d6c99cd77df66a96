package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// entry pairs a serialized payload with its insertion time for
// application-level TTL checks on read.
type entry struct {
	payload    []byte
	insertedAt time.Time
}

// memoryStore is the in-process fallback backed by Ristretto. Ristretto
// handles admission and eviction under memory pressure; freshness is
// enforced here by comparing the insertion timestamp against the TTL on
// every read, deleting expired entries instead of returning them.
type memoryStore struct {
	cache *ristretto.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore creates the in-process fallback store
func NewMemoryStore(cfg Config) (Store, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		MaxCost:     cfg.MaxCost,
		NumCounters: cfg.NumCounters,
		BufferItems: cfg.BufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	return &memoryStore{
		cache: cache,
		ttl:   cfg.TTL,
		now:   time.Now,
	}, nil
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	value, found := s.cache.Get(key)
	if !found {
		return nil, false
	}

	e, ok := value.(entry)
	if !ok {
		// Corrupted entry; treat as a miss
		s.cache.Del(key)
		s.cache.Wait()
		return nil, false
	}

	// An entry is valid iff now - insertion < TTL. Expired entries are
	// evicted and reported as absent, never returned stale.
	if s.ttl > 0 && s.now().Sub(e.insertedAt) >= s.ttl {
		s.cache.Del(key)
		s.cache.Wait()
		return nil, false
	}

	return e.payload, true
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte) error {
	cost := int64(len(value) + 64)
	s.cache.Set(key, entry{payload: value, insertedAt: s.now()}, cost)
	// Flush Ristretto's async buffers so a subsequent Get observes the write
	s.cache.Wait()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.cache.Del(key)
	s.cache.Wait()
	return nil
}

func (s *memoryStore) Size() int {
	m := s.cache.Metrics
	return int(m.KeysAdded() - m.KeysEvicted())
}

func (s *memoryStore) Backend() string { return BackendMemory }

func (s *memoryStore) Close() error {
	s.cache.Close()
	return nil
}
