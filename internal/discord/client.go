// Package discord adapts the Discord gateway to the live-source boundary
// the rest of the service consumes: a typed event channel for pushed
// changes plus on-demand lookups for the read path's backfill.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"dispresence/internal/models"
	"dispresence/internal/normalize"
)

// Sentinel errors for on-demand lookups
var (
	ErrNotFound  = errors.New("subject not found")
	ErrForbidden = errors.New("access denied")
	ErrUnready   = errors.New("live source not connected")
)

// Event is one inbound change from the gateway; exactly one field is set
type Event struct {
	Presence *normalize.RawPresence
	Member   *normalize.RawMemberUpdate
}

// Client wraps a discordgo session. The connection lifecycle (auth,
// reconnect, intent negotiation) is discordgo's concern; this type only
// translates payloads and tracks readiness.
type Client struct {
	session *discordgo.Session
	events  chan Event
	ready   atomic.Bool
	logger  *zap.Logger
}

// New creates a gateway client with presence, guild and member intents
func New(token string, logger *zap.Logger) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildPresences |
		discordgo.IntentsGuildMembers
	session.StateEnabled = true
	session.State.TrackPresences = true
	session.State.TrackMembers = true

	c := &Client{
		session: session,
		events:  make(chan Event, 256),
		logger:  logger,
	}

	session.AddHandler(c.onReady)
	session.AddHandler(c.onDisconnect)
	session.AddHandler(c.onRawEvent)
	session.AddHandler(c.onMemberUpdate)

	return c, nil
}

// Open connects to the gateway
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	return nil
}

// Close disconnects from the gateway and stops event delivery. The event
// channel is deliberately left open: discordgo runs handlers in their own
// goroutines, so one spawned just before Close may still reach deliver
// afterwards. Consumers stop via context cancellation instead.
func (c *Client) Close() error {
	c.ready.Store(false)
	return c.session.Close()
}

// Ready reports whether the gateway session has completed its handshake
func (c *Client) Ready() bool { return c.ready.Load() }

// Events is the inbound change stream consumed by the dispatch loop
func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	c.ready.Store(true)
	c.logger.Info("gateway ready",
		zap.String("user", r.User.Username),
		zap.Int("guilds", len(r.Guilds)))
}

func (c *Client) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	c.ready.Store(false)
	c.logger.Warn("gateway disconnected")
}

func (c *Client) onMemberUpdate(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
	if e.Member == nil || e.User == nil {
		return
	}

	update := &normalize.RawMemberUpdate{
		GuildID: e.GuildID,
		After:   memberProfile(e.Member),
	}
	if e.BeforeUpdate != nil {
		before := memberProfile(e.BeforeUpdate)
		update.Before = &before
	}

	c.deliver(Event{Member: update})
}

// deliver pushes an event without ever blocking the gateway callback; a
// full buffer drops the event, which the next event or a TTL'd backfill
// will correct. Events straggling in after Close (or before the handshake
// completes) are dropped.
func (c *Client) deliver(ev Event) {
	if !c.ready.Load() {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event buffer full, dropping event")
	}
}

// FetchUser fetches a profile from the REST API
func (c *Client) FetchUser(ctx context.Context, userID string) (normalize.RawProfile, error) {
	if !c.Ready() {
		return normalize.RawProfile{}, ErrUnready
	}

	user, err := c.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return normalize.RawProfile{}, mapRESTError(err)
	}

	return userProfile(user), nil
}

// Guilds lists the membership groups known to the session, ordered by
// ascending guild id. The gateway promises no particular order, so the
// sort here is what makes presence backfill deterministic.
func (c *Client) Guilds() []models.Guild {
	state := c.session.State
	state.RLock()
	guilds := make([]*discordgo.Guild, len(state.Guilds))
	copy(guilds, state.Guilds)
	state.RUnlock()

	sort.Slice(guilds, func(i, j int) bool {
		return snowflakeLess(guilds[i].ID, guilds[j].ID)
	})

	out := make([]models.Guild, 0, len(guilds))
	for _, g := range guilds {
		guild := models.Guild{
			ID:          g.ID,
			Name:        g.Name,
			MemberCount: g.MemberCount,
			Features:    featureNames(g.Features),
		}
		if g.Icon != "" {
			icon := g.IconURL("")
			guild.Icon = &icon
		}
		if g.OwnerID != "" {
			owner := g.OwnerID
			guild.OwnerID = &owner
		}
		out = append(out, guild)
	}
	return out
}

// GuildPresence looks up a subject's presence within one guild from the
// session's state cache. Absence is ErrNotFound so the caller can move on
// to the next guild.
func (c *Client) GuildPresence(_ context.Context, guildID, userID string) (normalize.RawPresence, error) {
	if !c.Ready() {
		return normalize.RawPresence{}, ErrUnready
	}

	presence, err := c.session.State.Presence(guildID, userID)
	if err != nil {
		return normalize.RawPresence{}, ErrNotFound
	}

	return statePresence(presence, guildID), nil
}

// statePresence converts a state-cached presence. The state cache does not
// retain per-surface client status, so surface flags stay false here; the
// event path carries them.
func statePresence(p *discordgo.Presence, guildID string) normalize.RawPresence {
	raw := normalize.RawPresence{
		UserID:     p.User.ID,
		GuildID:    guildID,
		Status:     string(p.Status),
		ObservedAt: time.Now().UTC(),
	}

	for _, a := range p.Activities {
		if a == nil {
			continue
		}
		activity := normalize.RawActivity{
			Type:           int(a.Type),
			Name:           a.Name,
			Details:        a.Details,
			State:          a.State,
			ApplicationID:  a.ApplicationID,
			Flags:          a.Flags,
			TimestampStart: a.Timestamps.StartTimestamp,
			TimestampEnd:   a.Timestamps.EndTimestamp,
		}
		if !a.CreatedAt.IsZero() {
			activity.CreatedAt = a.CreatedAt.UnixMilli()
		}
		if a.Assets != (discordgo.Assets{}) {
			activity.Assets = &normalize.RawAssets{
				LargeImage: a.Assets.LargeImageID,
				LargeText:  a.Assets.LargeText,
				SmallImage: a.Assets.SmallImageID,
				SmallText:  a.Assets.SmallText,
			}
		}
		raw.Activities = append(raw.Activities, activity)
	}

	return raw
}

func memberProfile(m *discordgo.Member) normalize.RawProfile {
	profile := userProfile(m.User)
	if m.Nick != "" {
		profile.DisplayName = m.Nick
	}
	return profile
}

func userProfile(u *discordgo.User) normalize.RawProfile {
	display := u.GlobalName
	if display == "" {
		display = u.Username
	}

	profile := normalize.RawProfile{
		ID:            u.ID,
		Username:      u.Username,
		GlobalName:    u.GlobalName,
		DisplayName:   display,
		Discriminator: u.Discriminator,
		PublicFlags:   int(u.PublicFlags),
		Bot:           u.Bot,
	}
	if u.Avatar != "" {
		profile.AvatarURL = u.AvatarURL("")
	}
	if u.Banner != "" {
		profile.BannerURL = bannerURL(u.ID, u.Banner)
	}
	if u.AccentColor != 0 {
		accent := u.AccentColor
		profile.AccentColor = &accent
	}
	return profile
}

func bannerURL(userID, hash string) string {
	return "https://cdn.discordapp.com/banners/" + userID + "/" + hash + ".png"
}

func featureNames(features []discordgo.GuildFeature) []string {
	out := make([]string, 0, len(features))
	for _, f := range features {
		out = append(out, string(f))
	}
	return out
}

func mapRESTError(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusForbidden:
			return ErrForbidden
		}
	}
	return err
}

// snowflakeLess orders two snowflake ids numerically without parsing them
// into integers (they can exceed 63 bits as strings of differing length).
func snowflakeLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
