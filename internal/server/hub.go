package server

import (
	"encoding/json"
	"sync"

	"github.com/clockfield/chesshall/backend/internal/lobby"
	"go.uber.org/zap"
)

const (
	// Outbound envelope types.
	envelopeTypeTopic = "topic"
	envelopeTypeQueue = "queue"
	envelopeTypeError = "error"

	// Inbound envelope types.
	envelopeTypeSubscribe       = "subscribe"
	envelopeTypeUnsubscribe     = "unsubscribe"
	envelopeTypePresenceRequest = "presence.request"
	envelopeTypeInviteSend      = "invite.send"
	envelopeTypeInviteReply     = "invite.reply"
	envelopeTypeMoveSubmit      = "move.submit"
)

// envelope is the wire frame exchanged over a websocket connection.
type envelope struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Queue   string          `json:"queue,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Hub tracks live websocket sessions and implements the lobby's Notifier.
// Topic sends fan out to subscribers; queue sends reach every live session of
// one user. Slow consumers are dropped rather than blocking the sender.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*client
	byUser   map[int64]map[string]*client
	topics   map[string]map[string]*client
	logger   *zap.Logger
}

// NewHub constructs an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string]*client),
		byUser:   make(map[int64]map[string]*client),
		topics:   make(map[string]map[string]*client),
		logger:   logger,
	}
}

// SendToTopic fans a payload out to every subscriber of the topic.
func (h *Hub) SendToTopic(topic string, payload interface{}) {
	frame, err := encodeEnvelope(envelope{Type: envelopeTypeTopic, Topic: topic}, payload)
	if err != nil {
		h.logger.Error("failed to encode topic payload", zap.String("topic", topic), zap.Error(err))
		return
	}

	h.mu.RLock()
	subscribers := make([]*client, 0, len(h.topics[topic]))
	for _, subscriber := range h.topics[topic] {
		subscribers = append(subscribers, subscriber)
	}
	h.mu.RUnlock()

	for _, subscriber := range subscribers {
		subscriber.enqueue(frame)
	}
}

// SendToUser delivers a payload to all live sessions of one user.
func (h *Hub) SendToUser(userID int64, queue string, payload interface{}) {
	frame, err := encodeEnvelope(envelope{Type: envelopeTypeQueue, Queue: queue}, payload)
	if err != nil {
		h.logger.Error("failed to encode queue payload", zap.String("queue", queue), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.byUser[userID]))
	for _, target := range h.byUser[userID] {
		targets = append(targets, target)
	}
	h.mu.RUnlock()

	for _, target := range targets {
		target.enqueue(frame)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.sessions[c.sessionID] = c
	if _, ok := h.byUser[c.user.ID]; !ok {
		h.byUser[c.user.ID] = make(map[string]*client)
	}
	h.byUser[c.user.ID][c.sessionID] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.sessions, c.sessionID)
	if userSessions, ok := h.byUser[c.user.ID]; ok {
		delete(userSessions, c.sessionID)
		if len(userSessions) == 0 {
			delete(h.byUser, c.user.ID)
		}
	}
	for topic, subscribers := range h.topics {
		delete(subscribers, c.sessionID)
		if len(subscribers) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) subscribe(c *client, topic string) {
	if topic == "" {
		return
	}
	h.mu.Lock()
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[string]*client)
	}
	h.topics[topic][c.sessionID] = c
	h.mu.Unlock()
	h.logger.Debug("session subscribed",
		zap.String("session", c.sessionID),
		zap.String("topic", topic))
}

func (h *Hub) unsubscribe(c *client, topic string) {
	h.mu.Lock()
	if subscribers, ok := h.topics[topic]; ok {
		delete(subscribers, c.sessionID)
		if len(subscribers) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()
}

// sessionCount reports live sessions, for tests and diagnostics.
func (h *Hub) sessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func encodeEnvelope(frame envelope, payload interface{}) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	frame.Payload = encoded
	return json.Marshal(frame)
}

// userLite converts the hub's notion of a user for lobby calls.
func userLite(id int64, displayName string) lobby.UserLite {
	return lobby.UserLite{ID: id, DisplayName: displayName}
}
