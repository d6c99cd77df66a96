package normalize

import (
	"testing"
	"time"

	"dispresence/internal/models"
)

func TestPresence_Basic(t *testing.T) {
	observed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	raw := RawPresence{
		UserID:  "user1",
		GuildID: "guild1",
		Status:  "online",
		ClientStatus: RawClientStatus{
			Desktop: "online",
			Mobile:  "",
			Web:     "idle",
		},
		Activities: []RawActivity{
			{Type: 0, Name: "Minecraft", Details: "Survival"},
		},
		ObservedAt: observed,
	}

	snapshot := Presence(raw)

	if snapshot.UserID != "user1" {
		t.Errorf("Expected user id 'user1', got %q", snapshot.UserID)
	}
	if snapshot.Status != models.StatusOnline {
		t.Errorf("Expected status online, got %s", snapshot.Status)
	}
	if !snapshot.ActiveOnDesktop {
		t.Error("Expected desktop to be active")
	}
	if snapshot.ActiveOnMobile {
		t.Error("Expected mobile to be inactive")
	}
	if !snapshot.ActiveOnWeb {
		t.Error("Expected web to be active")
	}
	if snapshot.ActiveOnEmbedded {
		t.Error("Expected embedded to be inactive")
	}
	if len(snapshot.Activities) != 1 {
		t.Fatalf("Expected 1 activity, got %d", len(snapshot.Activities))
	}
	if snapshot.Activities[0].Name != "Minecraft" {
		t.Errorf("Unexpected activity name %q", snapshot.Activities[0].Name)
	}
	if snapshot.Activities[0].Details == nil || *snapshot.Activities[0].Details != "Survival" {
		t.Errorf("Unexpected details: %v", snapshot.Activities[0].Details)
	}
	if snapshot.ListeningToSpotify {
		t.Error("Expected listening_to_spotify false without a Spotify activity")
	}
	if snapshot.Spotify != nil {
		t.Errorf("Expected nil spotify session, got %+v", snapshot.Spotify)
	}
	if snapshot.LastSeen == nil || !snapshot.LastSeen.Equal(observed) {
		t.Errorf("Unexpected last_seen: %v", snapshot.LastSeen)
	}
	if snapshot.GuildID == nil || *snapshot.GuildID != "guild1" {
		t.Errorf("Unexpected guild id: %v", snapshot.GuildID)
	}
}

func TestPresence_SpotifyDetection(t *testing.T) {
	raw := RawPresence{
		UserID: "user1",
		Status: "idle",
		Activities: []RawActivity{
			{
				Type:           2,
				Name:           "Spotify",
				Details:        "Song",
				State:          "Artist",
				SyncID:         "track1",
				ApplicationID:  "99",
				Assets:         &RawAssets{LargeImage: "spotify:img1", LargeText: "Album"},
				TimestampStart: 1000,
				TimestampEnd:   2000,
			},
		},
	}

	snapshot := Presence(raw)

	if !snapshot.ListeningToSpotify {
		t.Error("Expected listening_to_spotify true")
	}
	if snapshot.Spotify == nil {
		t.Fatal("Expected a spotify session")
	}
	if snapshot.Spotify.AlbumArtURL == nil || *snapshot.Spotify.AlbumArtURL != "https://i.scdn.co/image/img1" {
		t.Errorf("Unexpected album art url: %v", snapshot.Spotify.AlbumArtURL)
	}
	if snapshot.Spotify.Timestamps.Start == nil || *snapshot.Spotify.Timestamps.Start != 1000 {
		t.Errorf("Unexpected start: %v", snapshot.Spotify.Timestamps.Start)
	}
}

func TestPresence_InvalidStatusDefaultsToOffline(t *testing.T) {
	snapshot := Presence(RawPresence{UserID: "user1", Status: "invisible?"})
	if snapshot.Status != models.StatusOffline {
		t.Errorf("Expected offline for unknown status, got %s", snapshot.Status)
	}
}

func TestPresence_EmptyActivities(t *testing.T) {
	snapshot := Presence(RawPresence{UserID: "user1", Status: "dnd"})
	if snapshot.Activities == nil {
		t.Error("Expected non-nil activities slice")
	}
	if len(snapshot.Activities) != 0 {
		t.Errorf("Expected empty activities, got %d", len(snapshot.Activities))
	}
}

func TestActivity_OptionalBlocks(t *testing.T) {
	raw := RawActivity{
		Type:  0,
		Name:  "Game",
		Party: &RawParty{ID: "p1", Size: 2, Max: 4},
	}

	activity := Activity(raw)

	if activity.Party == nil {
		t.Fatal("Expected party block")
	}
	if activity.Party.ID == nil || *activity.Party.ID != "p1" {
		t.Errorf("Unexpected party id: %v", activity.Party.ID)
	}
	if activity.Party.Size == nil || *activity.Party.Size != 2 {
		t.Errorf("Unexpected party size: %v", activity.Party.Size)
	}
	if activity.Party.Max == nil || *activity.Party.Max != 4 {
		t.Errorf("Unexpected party max: %v", activity.Party.Max)
	}
	if activity.Assets != nil {
		t.Error("Expected nil assets when raw assets absent")
	}
	if activity.Timestamps != nil {
		t.Error("Expected nil timestamps when raw timestamps absent")
	}
	if activity.Details != nil {
		t.Error("Expected nil details for empty string")
	}
}

func TestMember_Gate(t *testing.T) {
	before := RawProfile{ID: "u1", DisplayName: "Alice", AvatarURL: "a1"}

	tests := []struct {
		name    string
		update  RawMemberUpdate
		changed bool
	}{
		{
			name:    "no change",
			update:  RawMemberUpdate{Before: &before, After: RawProfile{ID: "u1", DisplayName: "Alice", AvatarURL: "a1"}},
			changed: false,
		},
		{
			name:    "display name changed",
			update:  RawMemberUpdate{Before: &before, After: RawProfile{ID: "u1", DisplayName: "Bob", AvatarURL: "a1"}},
			changed: true,
		},
		{
			name:    "avatar changed",
			update:  RawMemberUpdate{Before: &before, After: RawProfile{ID: "u1", DisplayName: "Alice", AvatarURL: "a2"}},
			changed: true,
		},
		{
			name:    "missing before state",
			update:  RawMemberUpdate{After: RawProfile{ID: "u1", DisplayName: "Alice", AvatarURL: "a1"}},
			changed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, changed := Member(tt.update)
			if changed != tt.changed {
				t.Fatalf("Expected changed=%v, got %v", tt.changed, changed)
			}
			if changed && profile.ID != "u1" {
				t.Errorf("Unexpected profile id %q", profile.ID)
			}
		})
	}
}

func TestProfile_OptionalFields(t *testing.T) {
	accent := 0xFF0000
	profile := Profile(RawProfile{
		ID:          "u1",
		Username:    "alice",
		GlobalName:  "Alice",
		AccentColor: &accent,
	})

	if profile.Avatar != nil {
		t.Error("Expected nil avatar for empty string")
	}
	if profile.Banner != nil {
		t.Error("Expected nil banner for empty string")
	}
	if profile.AccentColor == nil || *profile.AccentColor != accent {
		t.Errorf("Unexpected accent color: %v", profile.AccentColor)
	}
}
