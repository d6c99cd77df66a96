package cache

import (
	"context"
	"testing"
	"time"
)

func TestKVKeyMapping(t *testing.T) {
	if got := kvKey("user:123"); got != "user.123" {
		t.Errorf("Expected 'user.123', got %q", got)
	}
	if got := kvKey("presence:123"); got != "presence.123" {
		t.Errorf("Expected 'presence.123', got %q", got)
	}
}

func TestNATSStore_Embedded(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded NATS test in short mode")
	}

	store, err := NewNATSStore(NATSConfig{
		Embedded:   true,
		BucketName: "test-presence-cache",
	}, time.Minute)
	if err != nil {
		t.Fatalf("Failed to create NATS store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if store.Backend() != BackendNATS {
		t.Errorf("Expected backend %q, got %q", BackendNATS, store.Backend())
	}

	payload := []byte(`{"id":"u1","username":"alice"}`)
	if err := store.Set(ctx, ProfileKey("u1"), payload); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}

	got, found := store.Get(ctx, ProfileKey("u1"))
	if !found {
		t.Fatal("Expected hit after set")
	}
	if string(got) != string(payload) {
		t.Errorf("Round-trip mismatch: %s", got)
	}

	if _, found := store.Get(ctx, ProfileKey("u2")); found {
		t.Error("Expected miss for unknown key")
	}

	if err := store.Delete(ctx, ProfileKey("u1")); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, found := store.Get(ctx, ProfileKey("u1")); found {
		t.Error("Expected miss after delete")
	}

	// Deleting an absent key is not an error
	if err := store.Delete(ctx, ProfileKey("u1")); err != nil {
		t.Errorf("Unexpected error deleting absent key: %v", err)
	}
}
