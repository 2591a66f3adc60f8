package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"artisora/internal/domain/entity"
	"artisora/pkg/logger"
)

// Client -> server event types.
const (
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"
	EventSendMessage    = "send-message"
	EventTypingStart    = "typing-start"
	EventTypingStop     = "typing-stop"
	EventPresenceOnline = "presence-online"
)

// Server -> client event types.
const (
	EventReceiveMessage = "receive-message"
	EventMessageSent    = "message-sent"
	EventUserTyping     = "user-typing"
	EventUserStatus     = "user-status"
)

// Event is the wire envelope: an event name plus a JSON payload.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName"`
	SenderType     string `json:"senderType"`
	ClientID       string `json:"clientId,omitempty"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
}

type PresencePayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type UserTypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	IsTyping       bool   `json:"isTyping"`
}

type UserStatusPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsOnline bool   `json:"isOnline"`
}

// HandleEvent dispatches one inbound event. A malformed event is dropped and
// logged; it never terminates the sender's connection and never reaches other
// participants.
func (m *Manager) HandleEvent(client *Client, raw []byte) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		logger.DroppedEvent(client.UserID, "unknown", "invalid JSON")
		return
	}

	switch event.Type {
	case EventJoinRoom:
		m.handleJoinRoom(client, event.Data)
	case EventLeaveRoom:
		m.handleLeaveRoom(client, event.Data)
	case EventSendMessage:
		m.handleSendMessage(client, event.Data)
	case EventTypingStart:
		m.handleTyping(client, event.Data, true)
	case EventTypingStop:
		m.handleTyping(client, event.Data, false)
	case EventPresenceOnline:
		m.handlePresenceOnline(client, event.Data)
	default:
		logger.DroppedEvent(client.UserID, event.Type, "unknown event type")
	}
}

func (m *Manager) handleJoinRoom(client *Client, data json.RawMessage) {
	var conversationID string
	if err := json.Unmarshal(data, &conversationID); err != nil || conversationID == "" {
		logger.DroppedEvent(client.UserID, EventJoinRoom, "missing conversation id")
		return
	}

	m.JoinRoom(conversationID, client)
}

func (m *Manager) handleLeaveRoom(client *Client, data json.RawMessage) {
	var conversationID string
	if err := json.Unmarshal(data, &conversationID); err != nil || conversationID == "" {
		logger.DroppedEvent(client.UserID, EventLeaveRoom, "missing conversation id")
		return
	}

	m.LeaveRoom(conversationID, client)
}

func (m *Manager) handleSendMessage(client *Client, data json.RawMessage) {
	var payload SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.DroppedEvent(client.UserID, EventSendMessage, "invalid payload")
		return
	}
	if payload.ConversationID == "" || payload.Content == "" || payload.SenderID == "" {
		logger.DroppedEvent(client.UserID, EventSendMessage, "missing required field")
		return
	}

	if m.limiter != nil && !m.limiter.Allow(client.UserID, "send-message") {
		logger.DroppedEvent(client.UserID, EventSendMessage, "rate limited")
		return
	}

	// The relay owns id assignment and the timestamp; clients only supply a
	// correlation id, echoed back so the sender can reconcile its optimistic
	// copy.
	message := entity.Message{
		ID:             uuid.NewString(),
		ClientID:       payload.ClientID,
		ConversationID: payload.ConversationID,
		SenderID:       payload.SenderID,
		SenderName:     payload.SenderName,
		SenderType:     payload.SenderType,
		Content:        payload.Content,
		Timestamp:      time.Now().UTC(),
	}

	message.IsRead = false
	m.broadcastToRoom(payload.ConversationID, client, marshalEvent(EventReceiveMessage, message))

	message.IsRead = true
	m.sendToClient(client, marshalEvent(EventMessageSent, message))
}

func (m *Manager) handleTyping(client *Client, data json.RawMessage, isTyping bool) {
	eventType := EventTypingStop
	if isTyping {
		eventType = EventTypingStart
	}

	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.DroppedEvent(client.UserID, eventType, "invalid payload")
		return
	}
	if payload.ConversationID == "" || payload.UserID == "" {
		logger.DroppedEvent(client.UserID, eventType, "missing required field")
		return
	}

	out := UserTypingPayload{
		ConversationID: payload.ConversationID,
		UserID:         payload.UserID,
		UserName:       payload.UserName,
		IsTyping:       isTyping,
	}

	m.broadcastToRoom(payload.ConversationID, client, marshalEvent(EventUserTyping, out))
}

func (m *Manager) handlePresenceOnline(client *Client, data json.RawMessage) {
	var payload PresencePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.UserID == "" {
		logger.DroppedEvent(client.UserID, EventPresenceOnline, "missing user id")
		return
	}

	// user-status goes to every connection, the announcing one included; a
	// client seeing its own status online doubles as a liveness ack.
	m.broadcastAll(nil, marshalEvent(EventUserStatus, UserStatusPayload{
		UserID:   payload.UserID,
		UserName: payload.UserName,
		IsOnline: true,
	}))
}

func (m *Manager) broadcastUserStatus(userID, userName string, isOnline bool) {
	m.broadcastAll(nil, marshalEvent(EventUserStatus, UserStatusPayload{
		UserID:   userID,
		UserName: userName,
		IsOnline: isOnline,
	}))
}

func marshalEvent(eventType string, data interface{}) []byte {
	payload, err := json.Marshal(data)
	if err != nil {
		logger.Error("Failed to marshal %s payload: %v", eventType, err)
		return nil
	}
	raw, err := json.Marshal(Event{Type: eventType, Data: payload})
	if err != nil {
		logger.Error("Failed to marshal %s event: %v", eventType, err)
		return nil
	}
	return raw
}
