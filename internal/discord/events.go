package discord

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"dispresence/internal/normalize"
)

// Gateway presence payloads carry fields the typed discordgo structs do
// not surface (per-surface client status, activity session ids), so
// PRESENCE_UPDATE is decoded from the raw dispatch payload instead.

type gatewayPresence struct {
	User         gatewayUser       `json:"user"`
	GuildID      string            `json:"guild_id"`
	Status       string            `json:"status"`
	Activities   []gatewayActivity `json:"activities"`
	ClientStatus struct {
		Desktop string `json:"desktop"`
		Mobile  string `json:"mobile"`
		Web     string `json:"web"`
	} `json:"client_status"`
}

type gatewayUser struct {
	ID string `json:"id"`
}

type gatewayActivity struct {
	ID            string `json:"id"`
	Type          int    `json:"type"`
	Name          string `json:"name"`
	Details       string `json:"details"`
	State         string `json:"state"`
	ApplicationID string `json:"application_id"`
	SyncID        string `json:"sync_id"`
	SessionID     string `json:"session_id"`
	CreatedAt     int64  `json:"created_at"`
	Flags         int    `json:"flags"`
	Party         *struct {
		ID   string `json:"id"`
		Size []int  `json:"size"`
	} `json:"party"`
	Assets *struct {
		LargeImage string `json:"large_image"`
		LargeText  string `json:"large_text"`
		SmallImage string `json:"small_image"`
		SmallText  string `json:"small_text"`
	} `json:"assets"`
	Timestamps *struct {
		Start int64 `json:"start"`
		End   int64 `json:"end"`
	} `json:"timestamps"`
}

func (c *Client) onRawEvent(_ *discordgo.Session, e *discordgo.Event) {
	if e.Type != "PRESENCE_UPDATE" {
		return
	}

	var payload gatewayPresence
	if err := json.Unmarshal(e.RawData, &payload); err != nil {
		c.logger.Warn("failed to decode presence payload", zap.Error(err))
		return
	}
	if payload.User.ID == "" {
		return
	}

	raw := normalize.RawPresence{
		UserID:     payload.User.ID,
		GuildID:    payload.GuildID,
		Status:     payload.Status,
		ObservedAt: time.Now().UTC(),
	}
	raw.ClientStatus.Desktop = payload.ClientStatus.Desktop
	raw.ClientStatus.Mobile = payload.ClientStatus.Mobile
	raw.ClientStatus.Web = payload.ClientStatus.Web

	for _, a := range payload.Activities {
		raw.Activities = append(raw.Activities, gatewayToRawActivity(a))
	}

	c.deliver(Event{Presence: &raw})
}

func gatewayToRawActivity(a gatewayActivity) normalize.RawActivity {
	activity := normalize.RawActivity{
		ID:            a.ID,
		Type:          a.Type,
		Name:          a.Name,
		Details:       a.Details,
		State:         a.State,
		ApplicationID: a.ApplicationID,
		SyncID:        a.SyncID,
		SessionID:     a.SessionID,
		CreatedAt:     a.CreatedAt,
		Flags:         a.Flags,
	}

	if a.Party != nil {
		party := &normalize.RawParty{ID: a.Party.ID}
		if len(a.Party.Size) > 0 {
			party.Size = a.Party.Size[0]
		}
		if len(a.Party.Size) > 1 {
			party.Max = a.Party.Size[1]
		}
		activity.Party = party
	}
	if a.Assets != nil {
		activity.Assets = &normalize.RawAssets{
			LargeImage: a.Assets.LargeImage,
			LargeText:  a.Assets.LargeText,
			SmallImage: a.Assets.SmallImage,
			SmallText:  a.Assets.SmallText,
		}
	}
	if a.Timestamps != nil {
		activity.TimestampStart = a.Timestamps.Start
		activity.TimestampEnd = a.Timestamps.End
	}

	return activity
}
