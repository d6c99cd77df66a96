package models

import (
	"strings"
	"time"
)

// Status represents a user's presence status as reported by the gateway
type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusDND     Status = "dnd"
	StatusOffline Status = "offline"
)

// IsValid checks if the status is one of the known gateway values
func (s Status) IsValid() bool {
	switch s {
	case StatusOnline, StatusIdle, StatusDND, StatusOffline:
		return true
	default:
		return false
	}
}

// ActivityType mirrors the gateway's activity type enumeration
type ActivityType int

const (
	ActivityGame      ActivityType = 0
	ActivityStreaming ActivityType = 1
	ActivityListening ActivityType = 2
	ActivityWatching  ActivityType = 3
	ActivityCustom    ActivityType = 4
	ActivityCompeting ActivityType = 5
)

// UserProfile is the canonical profile record cached under user:{id}.
// Records are replaced wholesale on every write; there is no partial merge.
type UserProfile struct {
	ID               string  `json:"id"`
	Username         string  `json:"username"`
	GlobalName       string  `json:"global_name,omitempty"`
	DisplayName      string  `json:"display_name,omitempty"`
	Avatar           *string `json:"avatar"`
	Discriminator    string  `json:"discriminator,omitempty"`
	PublicFlags      int     `json:"public_flags"`
	Banner           *string `json:"banner"`
	AccentColor      *int    `json:"accent_color"`
	Bot              bool    `json:"bot"`
	AvatarDecoration *string `json:"avatar_decoration_data"`
}

// ActivityParty holds optional party info nested in an activity
type ActivityParty struct {
	ID   *string `json:"id"`
	Size *int    `json:"size,omitempty"`
	Max  *int    `json:"max,omitempty"`
}

// ActivityAssets holds the image assets nested in an activity
type ActivityAssets struct {
	LargeImage *string `json:"large_image"`
	LargeText  *string `json:"large_text"`
	SmallImage *string `json:"small_image"`
	SmallText  *string `json:"small_text"`
}

// ActivityTimestamps holds start/end unix-millisecond timestamps
type ActivityTimestamps struct {
	Start *int64 `json:"start"`
	End   *int64 `json:"end"`
}

// Activity is one entry of a presence's activity list. It is always nested
// inside a PresenceSnapshot and never cached on its own.
type Activity struct {
	Type          ActivityType        `json:"type"`
	Name          string              `json:"name"`
	Details       *string             `json:"details"`
	State         *string             `json:"state"`
	ApplicationID *string             `json:"application_id"`
	ID            *string             `json:"id"`
	Flags         int                 `json:"flags"`
	CreatedAt     *int64              `json:"created_at"`
	SyncID        *string             `json:"sync_id"`
	SessionID     *string             `json:"session_id"`
	Party         *ActivityParty      `json:"party,omitempty"`
	Assets        *ActivityAssets     `json:"assets,omitempty"`
	Timestamps    *ActivityTimestamps `json:"timestamps,omitempty"`
}

// MusicSession is the Spotify session derived from a listening activity
type MusicSession struct {
	TrackID     *string            `json:"track_id"`
	Timestamps  ActivityTimestamps `json:"timestamps"`
	Song        *string            `json:"song"`
	Artist      *string            `json:"artist"`
	AlbumArtURL *string            `json:"album_art_url"`
	Album       *string            `json:"album"`
}

// PresenceSnapshot is the canonical presence record cached under
// presence:{id}. Replaced wholesale on every presence event or backfill.
type PresenceSnapshot struct {
	UserID             string        `json:"user_id"`
	Status             Status        `json:"discord_status"`
	ActiveOnDesktop    bool          `json:"active_on_discord_desktop"`
	ActiveOnMobile     bool          `json:"active_on_discord_mobile"`
	ActiveOnWeb        bool          `json:"active_on_discord_web"`
	ActiveOnEmbedded   bool          `json:"active_on_discord_embedded"`
	ListeningToSpotify bool          `json:"listening_to_spotify"`
	Activities         []Activity    `json:"activities"`
	Spotify            *MusicSession `json:"spotify"`
	LastSeen           *time.Time    `json:"last_seen"`
	GuildID            *string       `json:"guild_id,omitempty"`
}

// Guild describes a membership group the bot account belongs to
type Guild struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        *string  `json:"icon"`
	MemberCount int      `json:"member_count"`
	OwnerID     *string  `json:"owner_id"`
	Features    []string `json:"features"`
}

// OfflinePresence synthesizes the canonical offline default for a subject
// with no known presence. It is returned to callers but never cached.
func OfflinePresence(userID string) PresenceSnapshot {
	return PresenceSnapshot{
		UserID:     userID,
		Status:     StatusOffline,
		Activities: []Activity{},
	}
}

const (
	// SpotifyActivityName is the displayed name of the music provider's
	// activity; detection matches on it exactly.
	SpotifyActivityName = "Spotify"

	spotifyAssetPrefix = "spotify:"
	spotifyImageHost   = "https://i.scdn.co/image/"
	appAssetsHost      = "https://cdn.discordapp.com/app-assets/"
	appAssetsExt       = ".png"
)

// AlbumArtURL builds the album art URL for a listening activity's large
// image asset. Assets carrying the platform-internal spotify: marker map to
// the Spotify image CDN with the marker stripped; anything else maps to the
// application-assets CDN under the activity's application id.
func AlbumArtURL(applicationID, assetID string) string {
	if strings.HasPrefix(assetID, spotifyAssetPrefix) {
		return spotifyImageHost + strings.TrimPrefix(assetID, spotifyAssetPrefix)
	}
	return appAssetsHost + applicationID + "/" + assetID + appAssetsExt
}

// DeriveMusicSession scans an activity list for the music provider's
// activity and derives a MusicSession from it. Returns nil if no activity
// name matches exactly.
func DeriveMusicSession(activities []Activity) *MusicSession {
	for i := range activities {
		a := &activities[i]
		if a.Name != SpotifyActivityName {
			continue
		}

		session := &MusicSession{
			TrackID: a.SyncID,
			Song:    a.Details,
			Artist:  a.State,
		}
		if a.Timestamps != nil {
			session.Timestamps = *a.Timestamps
		}
		if a.Assets != nil {
			if a.Assets.LargeImage != nil {
				appID := ""
				if a.ApplicationID != nil {
					appID = *a.ApplicationID
				}
				url := AlbumArtURL(appID, *a.Assets.LargeImage)
				session.AlbumArtURL = &url
			}
			session.Album = a.Assets.LargeText
		}
		return session
	}
	return nil
}
