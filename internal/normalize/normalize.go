// Package normalize converts raw gateway payloads into the canonical
// records the cache and fanout layers operate on. All optional fields are
// resolved here, once, so readers never probe for defaults.
package normalize

import (
	"time"

	"dispresence/internal/models"
)

// RawParty is the party block of a raw activity
type RawParty struct {
	ID   string
	Size int
	Max  int
}

// RawAssets is the assets block of a raw activity; empty string means unset
type RawAssets struct {
	LargeImage string
	LargeText  string
	SmallImage string
	SmallText  string
}

// RawActivity is one activity as delivered by the live source
type RawActivity struct {
	ID             string
	Type           int
	Name           string
	Details        string
	State          string
	ApplicationID  string
	SyncID         string
	SessionID      string
	CreatedAt      int64 // unix ms, 0 = unset
	Flags          int
	Party          *RawParty
	Assets         *RawAssets
	TimestampStart int64 // unix ms, 0 = unset
	TimestampEnd   int64 // unix ms, 0 = unset
}

// RawClientStatus carries the per-surface status strings from the gateway.
// A surface is considered active when its status is set and not offline.
type RawClientStatus struct {
	Desktop string
	Mobile  string
	Web     string
}

// RawPresence is a presence change as delivered by the live source
type RawPresence struct {
	UserID       string
	GuildID      string
	Status       string
	ClientStatus RawClientStatus
	Activities   []RawActivity
	ObservedAt   time.Time
}

// RawProfile is a member/user profile as delivered by the live source;
// empty strings mean unset, pointer fields are passed through as-is
type RawProfile struct {
	ID               string
	Username         string
	GlobalName       string
	DisplayName      string
	AvatarURL        string
	Discriminator    string
	PublicFlags      int
	BannerURL        string
	AccentColor      *int
	Bot              bool
	AvatarDecoration string
}

// RawMemberUpdate is a member change event with its previous state. Before
// may be absent when the gateway did not supply one.
type RawMemberUpdate struct {
	GuildID string
	Before  *RawProfile
	After   RawProfile
}

// Presence builds the canonical PresenceSnapshot for a raw presence change,
// including the music-session derivation.
func Presence(raw RawPresence) models.PresenceSnapshot {
	status := models.Status(raw.Status)
	if !status.IsValid() {
		status = models.StatusOffline
	}

	activities := make([]models.Activity, 0, len(raw.Activities))
	for _, a := range raw.Activities {
		activities = append(activities, Activity(a))
	}

	spotify := models.DeriveMusicSession(activities)

	snapshot := models.PresenceSnapshot{
		UserID:             raw.UserID,
		Status:             status,
		ActiveOnDesktop:    surfaceActive(raw.ClientStatus.Desktop),
		ActiveOnMobile:     surfaceActive(raw.ClientStatus.Mobile),
		ActiveOnWeb:        surfaceActive(raw.ClientStatus.Web),
		ActiveOnEmbedded:   false,
		ListeningToSpotify: spotify != nil,
		Activities:         activities,
		Spotify:            spotify,
	}

	if raw.GuildID != "" {
		snapshot.GuildID = strOrNil(raw.GuildID)
	}
	if !raw.ObservedAt.IsZero() {
		observed := raw.ObservedAt.UTC()
		snapshot.LastSeen = &observed
	}

	return snapshot
}

// Activity builds one canonical Activity from its raw form
func Activity(raw RawActivity) models.Activity {
	activity := models.Activity{
		Type:          models.ActivityType(raw.Type),
		Name:          raw.Name,
		Details:       strOrNil(raw.Details),
		State:         strOrNil(raw.State),
		ApplicationID: strOrNil(raw.ApplicationID),
		ID:            strOrNil(raw.ID),
		Flags:         raw.Flags,
		SyncID:        strOrNil(raw.SyncID),
		SessionID:     strOrNil(raw.SessionID),
	}

	if raw.CreatedAt != 0 {
		created := raw.CreatedAt
		activity.CreatedAt = &created
	}
	if raw.Party != nil {
		party := &models.ActivityParty{ID: strOrNil(raw.Party.ID)}
		if raw.Party.Size != 0 {
			size := raw.Party.Size
			party.Size = &size
		}
		if raw.Party.Max != 0 {
			max := raw.Party.Max
			party.Max = &max
		}
		activity.Party = party
	}
	if raw.Assets != nil {
		activity.Assets = &models.ActivityAssets{
			LargeImage: strOrNil(raw.Assets.LargeImage),
			LargeText:  strOrNil(raw.Assets.LargeText),
			SmallImage: strOrNil(raw.Assets.SmallImage),
			SmallText:  strOrNil(raw.Assets.SmallText),
		}
	}
	if raw.TimestampStart != 0 || raw.TimestampEnd != 0 {
		ts := &models.ActivityTimestamps{}
		if raw.TimestampStart != 0 {
			start := raw.TimestampStart
			ts.Start = &start
		}
		if raw.TimestampEnd != 0 {
			end := raw.TimestampEnd
			ts.End = &end
		}
		activity.Timestamps = ts
	}

	return activity
}

// Profile builds the canonical UserProfile from a raw profile
func Profile(raw RawProfile) models.UserProfile {
	return models.UserProfile{
		ID:               raw.ID,
		Username:         raw.Username,
		GlobalName:       raw.GlobalName,
		DisplayName:      raw.DisplayName,
		Avatar:           strOrNil(raw.AvatarURL),
		Discriminator:    raw.Discriminator,
		PublicFlags:      raw.PublicFlags,
		Banner:           strOrNil(raw.BannerURL),
		AccentColor:      raw.AccentColor,
		Bot:              raw.Bot,
		AvatarDecoration: strOrNil(raw.AvatarDecoration),
	}
}

// Member applies the profile-change gate to a member update: a canonical
// profile is produced only when the display name or avatar differs between
// the before and after states. A missing before state always passes the
// gate, since nothing proves the write would be redundant.
func Member(raw RawMemberUpdate) (models.UserProfile, bool) {
	if raw.Before != nil &&
		raw.Before.DisplayName == raw.After.DisplayName &&
		raw.Before.AvatarURL == raw.After.AvatarURL {
		return models.UserProfile{}, false
	}
	return Profile(raw.After), true
}

func surfaceActive(status string) bool {
	return status != "" && status != string(models.StatusOffline)
}

func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
