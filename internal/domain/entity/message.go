package entity

import "time"

// SenderType values carried on the wire.
const (
	SenderTypeUser    = "user"
	SenderTypeArtisan = "artisan"
)

// Message is immutable once created. Attribution to a conversation and a
// sender is fixed at creation; UI alignment is derived by comparing SenderID
// with the local user id, never stored on the message.
type Message struct {
	ID             string    `json:"id"`
	ClientID       string    `json:"clientId,omitempty"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	SenderType     string    `json:"senderType,omitempty"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	IsRead         bool      `json:"isRead"`
}
