package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"dispresence/internal/cache"
	"dispresence/internal/discord"
	"dispresence/internal/models"
)

// Resolver is the read-path interface the handlers consume
type Resolver interface {
	ResolveProfile(ctx context.Context, userID string) (models.UserProfile, error)
	ResolvePresence(ctx context.Context, userID, guildHint string) models.PresenceSnapshot
	Guilds(ctx context.Context) ([]models.Guild, error)
	SourceReady() bool
	CacheBackend() string
	CacheSize() int
}

// APIError is the error block of a failed response
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is the envelope every endpoint answers with
type Response struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// userDocument is the combined profile+presence document served by the
// users endpoint. Presence fields carry the offline default when only the
// profile is known.
type userDocument struct {
	KV                 map[string]string    `json:"kv"`
	DiscordUser        models.UserProfile   `json:"discord_user"`
	Activities         []models.Activity    `json:"activities"`
	DiscordStatus      models.Status        `json:"discord_status"`
	ActiveOnDesktop    bool                 `json:"active_on_discord_desktop"`
	ActiveOnMobile     bool                 `json:"active_on_discord_mobile"`
	ActiveOnWeb        bool                 `json:"active_on_discord_web"`
	ActiveOnEmbedded   bool                 `json:"active_on_discord_embedded"`
	ListeningToSpotify bool                 `json:"listening_to_spotify"`
	Spotify            *models.MusicSession `json:"spotify"`
}

// DebugInfo is what the debug endpoint reports about the loaded config
type DebugInfo struct {
	TokenSet    bool
	RedisURLSet bool
	Port        int
	APIVersion  string
}

// Handler serves the read API
type Handler struct {
	service Resolver
	logger  *zap.Logger
	debug   DebugInfo
	started time.Time
}

// New creates the API handler
func New(service Resolver, logger *zap.Logger, debug DebugInfo) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
		debug:   debug,
		started: time.Now().UTC(),
	}
}

// GetUser handles GET /{version}/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	profile, err := h.service.ResolveProfile(r.Context(), userID)
	switch {
	case err == nil:
	case errors.Is(err, discord.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "User not found")
		return
	case errors.Is(err, discord.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "Access denied")
		return
	default:
		h.logger.Error("user resolution failed", zap.String("user_id", userID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch user data")
		return
	}

	presence := h.service.ResolvePresence(r.Context(), userID, "")

	doc := userDocument{
		KV:                 map[string]string{},
		DiscordUser:        profile,
		Activities:         presence.Activities,
		DiscordStatus:      presence.Status,
		ActiveOnDesktop:    presence.ActiveOnDesktop,
		ActiveOnMobile:     presence.ActiveOnMobile,
		ActiveOnWeb:        presence.ActiveOnWeb,
		ActiveOnEmbedded:   presence.ActiveOnEmbedded,
		ListeningToSpotify: presence.ListeningToSpotify,
		Spotify:            presence.Spotify,
	}

	h.writeJSON(w, http.StatusOK, Response{Success: true, Data: doc})
}

// GetPresence handles GET /{version}/presence/{id}. It always succeeds at
// the protocol level; an unknown subject yields the offline default.
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	guildHint := r.URL.Query().Get("guild_id")
	presence := h.service.ResolvePresence(r.Context(), userID, guildHint)

	h.writeJSON(w, http.StatusOK, Response{Success: true, Data: presence})
}

// GetGuilds handles GET /{version}/guilds
func (h *Handler) GetGuilds(w http.ResponseWriter, r *http.Request) {
	guilds, err := h.service.Guilds(r.Context())
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "Bot not ready")
		return
	}

	h.writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]any{
		"guilds": guilds,
		"total":  len(guilds),
	}})
}

// Root handles GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	monitored := any("connected")
	if h.service.CacheBackend() == cache.BackendMemory {
		monitored = h.service.CacheSize()
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"message":              "Discord Presence API",
		"version":              "1.0.0",
		"info":                 "Public Discord presence API - no authentication required",
		"monitored_user_count": monitored,
	})
}

// Ping handles GET /ping for uptime monitors
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Debug handles GET /debug
func (h *Handler) Debug(w http.ResponseWriter, r *http.Request) {
	guildCount := 0
	if guilds, err := h.service.Guilds(r.Context()); err == nil {
		guildCount = len(guilds)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"config": map[string]any{
			"discord_bot_token_set": h.debug.TokenSet,
			"redis_url_set":         h.debug.RedisURLSet,
			"port":                  h.debug.Port,
			"api_version":           h.debug.APIVersion,
		},
		"bot": map[string]any{
			"ready":  h.service.SourceReady(),
			"guilds": guildCount,
		},
		"cache": map[string]any{
			"backend": h.service.CacheBackend(),
			"size":    h.service.CacheSize(),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, message string) {
	h.writeJSON(w, code, Response{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
	})
}
