package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dispresence/internal/metrics"
)

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// The production chain wraps the websocket endpoint in the metrics
// middleware, so the handshake must survive response-writer wrapping.
func TestServeWS_HandshakeThroughMetricsMiddleware(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	var handler http.Handler = ServeWS(hub, zap.NewNop())
	handler = metrics.Middleware("api", handler, nil)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Handshake through middleware failed: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("Expected 101, got %d", resp.StatusCode)
	}

	sub := `{"op":"subscribe_user","user_id":"u1"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(sub)); err != nil {
		t.Fatalf("Failed to send subscribe message: %v", err)
	}
	waitUntil(t, "subscription", func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.groups["u1"]) == 1
	})

	hub.Publish("presenceUpdate", "u1", map[string]string{"user_id": "u1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read pushed message: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	if env.Event != "presenceUpdate" {
		t.Errorf("Expected presenceUpdate, got %q", env.Event)
	}

	conn.Close()
	waitUntil(t, "client cleanup", func() bool {
		return hub.Subscribers() == 0
	})
}
