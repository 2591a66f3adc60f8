// Package responder produces counterparty replies for conversations that have
// no live artisan on the other end. The interface is the seam where a real
// artisan reply path replaces the simulation without touching relay or store.
package responder

import (
	"context"
	"sync"

	"artisora/internal/domain/entity"
)

// Responder produces a reply given the conversation context and the message
// being answered.
type Responder interface {
	Reply(ctx context.Context, conv *entity.Conversation, last *entity.Message) (string, error)
}

var cannedReplies = []string{
	"Thank you for your interest in my work! I'd be happy to answer any questions you have.",
	"That's a great question! Let me provide you with more details about this piece.",
	"I'm glad you like this product! Would you like to know more about the materials used?",
	"Thank you for reaching out! This piece was crafted with traditional techniques.",
	"I appreciate your interest! This item is one of my favorites from my recent collection.",
	"Hello! I'm excited to tell you more about this handcrafted piece.",
	"Thank you for your message! I'd love to share the story behind this creation.",
	"I'm here to help! What would you like to know about this product?",
}

// Canned rotates through a fixed set of artisan replies. It never fails, which
// makes it the fallback for every other responder.
type Canned struct {
	mu      sync.Mutex
	next    int
	replies []string
}

func NewCanned() *Canned {
	return &Canned{replies: cannedReplies}
}

func (c *Canned) Reply(ctx context.Context, conv *entity.Conversation, last *entity.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply := c.replies[c.next%len(c.replies)]
	c.next++
	return reply, nil
}
