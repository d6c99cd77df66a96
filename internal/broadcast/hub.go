// Package broadcast implements the subscriber fanout: clients join groups
// keyed by subject id over a websocket, and normalized records are
// republished to the matching group. Delivery is best-effort and
// at-most-once; nothing is queued or persisted.
package broadcast

import (
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"dispresence/internal/metrics"
)

// ErrClosed is returned for subscriptions attempted during shutdown
var ErrClosed = errors.New("broadcaster is closed")

// Envelope is the message shape pushed to subscribers
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub maintains the fanout groups. All group state is guarded by one
// mutex; delivery itself is a non-blocking channel send so a slow client
// can never stall a publish.
type Hub struct {
	mu      sync.RWMutex
	groups  map[string]map[*Client]struct{}
	clients map[*Client]struct{}
	closed  bool
	logger  *zap.Logger
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		groups:  make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Subscribe adds a client to the group named for the subject id
func (h *Hub) Subscribe(c *Client, subjectID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	group, ok := h.groups[subjectID]
	if !ok {
		group = make(map[*Client]struct{})
		h.groups[subjectID] = group
	}
	group[c] = struct{}{}
	c.subjects[subjectID] = struct{}{}

	h.logger.Debug("client subscribed",
		zap.String("client_id", c.ID),
		zap.String("subject_id", subjectID))
	return nil
}

// Publish delivers an event to every client subscribed to the subject id,
// or to every connected client when subjectID is empty. Failures (no
// subscribers, full client buffers, a closed hub) are silently absorbed;
// publish must never fail the caller.
func (h *Hub) Publish(event, subjectID string, payload any) {
	data, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("failed to marshal fanout message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	var targets map[*Client]struct{}
	if subjectID == "" {
		targets = h.clients
	} else {
		targets = h.groups[subjectID]
	}

	for c := range targets {
		select {
		case c.send <- data:
			metrics.FanoutDelivered(event)
		default:
			// Client can't keep up; this publish is skipped for it
		}
	}
}

// Subscribers reports the number of connected clients
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops accepting subscriptions and disconnects every client. Part
// of the ordered shutdown sequence; runs before the live source closes.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	h.clients[c] = struct{}{}
	metrics.SetSubscribers(len(h.clients))
	return nil
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, c)
	for subject := range c.subjects {
		if group, ok := h.groups[subject]; ok {
			delete(group, c)
			if len(group) == 0 {
				delete(h.groups, subject)
			}
		}
	}
	metrics.SetSubscribers(len(h.clients))
}
