package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"dispresence/internal/cache"
	"dispresence/internal/discord"
	"dispresence/internal/models"
	"dispresence/internal/normalize"
)

type recordedPublish struct {
	event     string
	subjectID string
}

type mockHub struct {
	published []recordedPublish
}

func (m *mockHub) Publish(event, subjectID string, _ any) {
	m.published = append(m.published, recordedPublish{event: event, subjectID: subjectID})
}

// failStore wraps a real store but fails every write
type failStore struct {
	cache.Store
}

func (f *failStore) Set(_ context.Context, _ string, _ []byte) error {
	return context.DeadlineExceeded
}

func newTestStore(t *testing.T) cache.Store {
	t.Helper()
	store, err := cache.NewMemoryStore(cache.Config{
		TTL:         time.Minute,
		MaxCost:     1 << 20,
		NumCounters: 10000,
		BufferItems: 64,
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func runOne(t *testing.T, ing *Ingester, events chan discord.Event, ev discord.Event) {
	t.Helper()
	events <- ev
	close(events)
	ing.Run(context.Background())
}

func TestIngester_PresenceEvent(t *testing.T) {
	store := newTestStore(t)
	hub := &mockHub{}
	events := make(chan discord.Event, 1)
	ing := New(events, store, hub, zap.NewNop())

	runOne(t, ing, events, discord.Event{
		Presence: &normalize.RawPresence{
			UserID: "user1",
			Status: "online",
			Activities: []normalize.RawActivity{
				{Type: 2, Name: "Spotify", SyncID: "track1"},
			},
		},
	})

	data, found := store.Get(context.Background(), cache.PresenceKey("user1"))
	if !found {
		t.Fatal("Expected presence to be cached")
	}
	var snapshot models.PresenceSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.Fatalf("Failed to decode cached presence: %v", err)
	}
	if snapshot.Status != models.StatusOnline {
		t.Errorf("Expected status online, got %s", snapshot.Status)
	}
	if !snapshot.ListeningToSpotify {
		t.Error("Expected listening_to_spotify true")
	}

	if len(hub.published) != 1 {
		t.Fatalf("Expected 1 publish, got %d", len(hub.published))
	}
	if hub.published[0].event != EventPresenceUpdate || hub.published[0].subjectID != "user1" {
		t.Errorf("Unexpected publish: %+v", hub.published[0])
	}
}

func TestIngester_MemberEvent(t *testing.T) {
	store := newTestStore(t)
	hub := &mockHub{}
	events := make(chan discord.Event, 1)
	ing := New(events, store, hub, zap.NewNop())

	before := normalize.RawProfile{ID: "user1", DisplayName: "Old", AvatarURL: "a"}
	runOne(t, ing, events, discord.Event{
		Member: &normalize.RawMemberUpdate{
			Before: &before,
			After:  normalize.RawProfile{ID: "user1", Username: "alice", DisplayName: "New", AvatarURL: "a"},
		},
	})

	data, found := store.Get(context.Background(), cache.ProfileKey("user1"))
	if !found {
		t.Fatal("Expected profile to be cached")
	}
	var profile models.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		t.Fatalf("Failed to decode cached profile: %v", err)
	}
	if profile.DisplayName != "New" {
		t.Errorf("Expected display name 'New', got %q", profile.DisplayName)
	}

	if len(hub.published) != 1 || hub.published[0].event != EventUserUpdate {
		t.Errorf("Unexpected publishes: %+v", hub.published)
	}
}

func TestIngester_MemberEventGated(t *testing.T) {
	store := newTestStore(t)
	hub := &mockHub{}
	events := make(chan discord.Event, 1)
	ing := New(events, store, hub, zap.NewNop())

	before := normalize.RawProfile{ID: "user1", DisplayName: "Same", AvatarURL: "a"}
	runOne(t, ing, events, discord.Event{
		Member: &normalize.RawMemberUpdate{
			Before: &before,
			After:  normalize.RawProfile{ID: "user1", DisplayName: "Same", AvatarURL: "a"},
		},
	})

	if _, found := store.Get(context.Background(), cache.ProfileKey("user1")); found {
		t.Error("Expected no cache write for an unchanged profile")
	}
	if len(hub.published) != 0 {
		t.Errorf("Expected no publishes, got %+v", hub.published)
	}
}

func TestIngester_CacheFailureStillPublishes(t *testing.T) {
	store := newTestStore(t)
	hub := &mockHub{}
	events := make(chan discord.Event, 1)
	ing := New(events, &failStore{Store: store}, hub, zap.NewNop())

	runOne(t, ing, events, discord.Event{
		Presence: &normalize.RawPresence{UserID: "user1", Status: "idle"},
	})

	// A failed cache write is logged, not propagated; fanout still runs
	if len(hub.published) != 1 {
		t.Errorf("Expected 1 publish despite cache failure, got %d", len(hub.published))
	}
}

func TestIngester_StopsOnContextCancel(t *testing.T) {
	store := newTestStore(t)
	events := make(chan discord.Event)
	ing := New(events, store, &mockHub{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ing.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
