package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Health handles GET /{version}/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ready := h.service.SourceReady()

	discordStatus := "disconnected"
	guildCount := 0
	if ready {
		discordStatus = "connected"
		if guilds, err := h.service.Guilds(r.Context()); err == nil {
			guildCount = len(guilds)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"discord": map[string]any{
			"status": discordStatus,
			"ready":  ready,
			"guilds": guildCount,
		},
		"cache": map[string]any{
			"backend": h.service.CacheBackend(),
		},
		"uptime": time.Since(h.started).Truncate(time.Second).String(),
	})
}

// RecoverMiddleware is the internal-error boundary of the read path: a
// panicking handler is logged and answered with a generic 500, never with
// internal detail.
func RecoverMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"success":false,"error":{"code":500,"message":"Internal server error"}}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
