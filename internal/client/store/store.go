// Package store holds the authoritative client-side view of all conversations
// for the signed-in user.
package store

import (
	"encoding/json"
	"sort"
	"sync"

	"artisora/internal/domain/entity"
	"artisora/pkg/logger"
)

// Store is an explicit state container, constructed per session and passed to
// its consumers. It is never a package-level singleton, so tests can run
// independent instances side by side.
//
// Every mutation rewrites the persisted snapshot wholesale through the
// configured Storage.
type Store struct {
	mu            sync.Mutex
	conversations []*entity.Conversation
	activeID      string
	storage       Storage
}

// New creates a store backed by storage and loads any persisted snapshot.
// Transient overlays (active, typing, presence) never survive a reload.
func New(storage Storage) (*Store, error) {
	s := &Store{storage: storage}

	raw, err := storage.Load()
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		var conversations []*entity.Conversation
		if err := json.Unmarshal(raw, &conversations); err != nil {
			// A corrupt cache is not worth failing login over; start clean.
			logger.Warn("Discarding unreadable conversation cache: %v", err)
		} else {
			for _, conv := range conversations {
				conv.IsActive = false
				conv.IsTyping = false
				conv.TypingUser = ""
				conv.CounterpartyOnline = false
			}
			s.conversations = conversations
		}
	}

	return s, nil
}

// Start adds conv unless a conversation with the same id already exists, and
// marks it active either way. Returns true when the conversation was created.
func (s *Store) Start(conv *entity.Conversation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.find(conv.ID) != nil {
		s.setActive(conv.ID)
		s.persist()
		return false
	}

	s.conversations = append([]*entity.Conversation{conv}, s.conversations...)
	s.setActive(conv.ID)
	s.persist()
	return true
}

// AppendOutgoing applies the local optimistic copy of a message the user just
// sent.
func (s *Store) AppendOutgoing(conversationID string, message *entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.find(conversationID)
	if conv == nil {
		return
	}

	conv.Messages = append(conv.Messages, message)
	conv.LastMessage = message.Content
	conv.LastMessageTime = message.Timestamp
	s.persist()
}

// ApplyIncoming appends a message received from the relay. The unread count
// grows only while the conversation is not the active one.
func (s *Store) ApplyIncoming(message *entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.find(message.ConversationID)
	if conv == nil {
		return
	}

	conv.Messages = append(conv.Messages, message)
	conv.LastMessage = message.Content
	conv.LastMessageTime = message.Timestamp
	if conv.ID != s.activeID {
		conv.UnreadCount++
	} else {
		message.IsRead = true
	}
	s.persist()
}

// Reconcile replaces the optimistic copy matching the echo's correlation id
// with the server-confirmed message, or ignores the echo when no copy is
// found. Appending is never correct here: it would double the message.
func (s *Store) Reconcile(message *entity.Message) {
	if message.ClientID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.find(message.ConversationID)
	if conv == nil {
		return
	}

	for i, existing := range conv.Messages {
		if existing.ClientID == message.ClientID {
			conv.Messages[i] = message
			if i == len(conv.Messages)-1 {
				conv.LastMessage = message.Content
				conv.LastMessageTime = message.Timestamp
			}
			s.persist()
			return
		}
	}
}

// SetActive marks the given conversation as the single active one, resets its
// unread count and marks its messages read. It returns the previously active
// id so the caller can pair the room leave/join correctly. An empty id just
// deactivates everything.
func (s *Store) SetActive(conversationID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.activeID
	s.setActive(conversationID)
	s.persist()
	return previous
}

func (s *Store) setActive(conversationID string) {
	s.activeID = conversationID
	for _, conv := range s.conversations {
		conv.IsActive = conv.ID == conversationID
		if conv.IsActive {
			conv.UnreadCount = 0
			for _, message := range conv.Messages {
				message.IsRead = true
			}
		}
	}
}

// SetTyping applies a typing overlay from an inbound user-typing event.
func (s *Store) SetTyping(conversationID, userName string, isTyping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.find(conversationID)
	if conv == nil {
		return
	}

	conv.IsTyping = isTyping
	if isTyping {
		conv.TypingUser = userName
	} else {
		conv.TypingUser = ""
	}
}

// SetPresence applies an online/offline overlay to every conversation with
// the given counterparty.
func (s *Store) SetPresence(userID string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conv := range s.conversations {
		if conv.CounterpartyID == userID {
			conv.CounterpartyOnline = online
		}
	}
}

// ClearAll removes every conversation. Individual conversations are never
// deleted.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = nil
	s.activeID = ""
	s.persist()
}

// Get returns a deep copy of the conversation with the given id. The copy is
// detached: it can be read on any goroutine while the store keeps applying
// events, and mutating it never reaches the store.
func (s *Store) Get(conversationID string) (*entity.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.find(conversationID)
	if conv == nil {
		return nil, false
	}
	return conv.Clone(), true
}

// List returns deep copies of all conversations sorted by last activity,
// newest first.
func (s *Store) List() []*entity.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*entity.Conversation, len(s.conversations))
	for i, conv := range s.conversations {
		out[i] = conv.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out
}

func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// TotalUnread sums unread counts across all conversations, the number behind
// the chat icon badge.
func (s *Store) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, conv := range s.conversations {
		total += conv.UnreadCount
	}
	return total
}

func (s *Store) find(conversationID string) *entity.Conversation {
	for _, conv := range s.conversations {
		if conv.ID == conversationID {
			return conv
		}
	}
	return nil
}

// persist is called with the lock held.
func (s *Store) persist() {
	raw, err := json.Marshal(s.conversations)
	if err != nil {
		logger.Error("Failed to marshal conversation snapshot: %v", err)
		return
	}
	if err := s.storage.Save(raw); err != nil {
		logger.Error("Failed to persist conversation snapshot: %v", err)
	}
}
