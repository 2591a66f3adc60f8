package entity

import (
	"fmt"
	"time"
)

// ProductSnapshot captures the product details at conversation-start time so
// the counterparty has reply context without a live product lookup.
type ProductSnapshot struct {
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Price       float64 `json:"price,omitempty"`
	Materials   string  `json:"materials,omitempty"`
	Dimensions  string  `json:"dimensions,omitempty"`
	Location    string  `json:"location,omitempty"`
}

// Conversation is a buyer-initiated thread about one product with one
// counterparty. Messages are append-only from the perspective of either party.
//
// IsActive, IsTyping, TypingUser and CounterpartyOnline are transient overlays
// driven by UI state and inbound relay events; they are reset when a persisted
// conversation list is reloaded.
type Conversation struct {
	ID                string          `json:"id"`
	CounterpartyID    string          `json:"counterpartyId"`
	CounterpartyName  string          `json:"counterpartyName"`
	CounterpartyImage string          `json:"counterpartyImage,omitempty"`
	ProductID         string          `json:"productId"`
	ProductName       string          `json:"productName"`
	ProductImage      string          `json:"productImage,omitempty"`
	Product           ProductSnapshot `json:"product"`

	Messages        []*Message `json:"messages"`
	LastMessage     string     `json:"lastMessage,omitempty"`
	LastMessageTime time.Time  `json:"lastMessageTime"`
	UnreadCount     int        `json:"unreadCount"`

	IsActive           bool   `json:"isActive"`
	IsTyping           bool   `json:"isTyping"`
	TypingUser         string `json:"typingUser,omitempty"`
	CounterpartyOnline bool   `json:"counterpartyOnline"`
}

// Clone returns a deep copy whose message slice and message values share
// nothing with the receiver, so the copy can be read while the original keeps
// changing.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = make([]*Message, len(c.Messages))
	for i, msg := range c.Messages {
		copied := *msg
		out.Messages[i] = &copied
	}
	return &out
}

// ConversationID derives the composite key for a (user, counterparty, product)
// triple. The derivation is deterministic so reopening a conversation for the
// same triple always resolves to the same id.
func ConversationID(userID, counterpartyID, productID string) string {
	return fmt.Sprintf("%s_%s_%s", userID, counterpartyID, productID)
}
