// Package session drives the conversation lifecycle for one signed-in user:
// starting threads, sending messages, room activation and typing indicators.
package session

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"artisora/internal/client/responder"
	"artisora/internal/client/store"
	"artisora/internal/domain/entity"
	ws "artisora/internal/infrastructure/websocket"
	"artisora/pkg/errors"
	"artisora/pkg/logger"
)

// Conn is the slice of the relay connection the session uses; *socket.Client
// satisfies it.
type Conn interface {
	IsConnected() bool
	JoinRoom(conversationID string)
	LeaveRoom(conversationID string)
	SendMessage(payload ws.SendMessagePayload) error
	TypingStart(conversationID, userID, userName string)
	TypingStop(conversationID, userID, userName string)
	OnReceiveMessage(handler func(entity.Message)) func()
	OnMessageSent(handler func(entity.Message)) func()
	OnUserTyping(handler func(ws.UserTypingPayload)) func()
	OnUserStatus(handler func(ws.UserStatusPayload)) func()
}

const (
	defaultTypingWindow     = 2 * time.Second
	defaultStaleTypingBound = 5 * time.Second
)

// Counterparty identifies who the conversation is with.
type Counterparty struct {
	ID    string
	Name  string
	Image string
}

// Session wires the conversation store to the relay connection. It owns the
// typing timers and the simulated counterparty reply path.
type Session struct {
	user  *entity.User
	store *store.Store
	conn  Conn

	responder responder.Responder
	fallback  *responder.Canned
	simulate  bool

	typingWindow     time.Duration
	staleTypingBound time.Duration
	replyDelay       func() time.Duration

	mu           sync.Mutex
	timerGen     uint64
	typingTimers map[string]*timerSlot
	staleTimers  map[string]*timerSlot
	unsubs       []func()
}

type Option func(*Session)

// WithResponder replaces the canned auto-reply with a custom one. Failures
// still fall back to canned text.
func WithResponder(r responder.Responder) Option {
	return func(s *Session) { s.responder = r }
}

// WithSimulatedReplies toggles the counterparty reply simulation.
func WithSimulatedReplies(enabled bool) Option {
	return func(s *Session) { s.simulate = enabled }
}

func WithTypingWindow(d time.Duration) Option {
	return func(s *Session) { s.typingWindow = d }
}

func WithStaleTypingBound(d time.Duration) Option {
	return func(s *Session) { s.staleTypingBound = d }
}

func WithReplyDelay(f func() time.Duration) Option {
	return func(s *Session) { s.replyDelay = f }
}

// New creates a session for user. user may be nil (browsing while logged
// out); operations that need an identity fail with UNAUTHENTICATED.
func New(user *entity.User, st *store.Store, conn Conn, opts ...Option) *Session {
	s := &Session{
		user:             user,
		store:            st,
		conn:             conn,
		fallback:         responder.NewCanned(),
		typingWindow:     defaultTypingWindow,
		staleTypingBound: defaultStaleTypingBound,
		replyDelay: func() time.Duration {
			return time.Second + time.Duration(rand.Int63n(int64(2*time.Second)))
		},
		typingTimers: make(map[string]*timerSlot),
		staleTimers:  make(map[string]*timerSlot),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.responder == nil {
		s.responder = s.fallback
	}
	return s
}

// Attach subscribes the session to the connection's events. Call Detach on
// teardown; handlers are not removed automatically and a second Attach
// without it would apply every event twice.
func (s *Session) Attach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unsubs = append(s.unsubs,
		s.conn.OnReceiveMessage(s.handleReceiveMessage),
		s.conn.OnMessageSent(s.handleMessageSent),
		s.conn.OnUserTyping(s.handleUserTyping),
		s.conn.OnUserStatus(s.handleUserStatus),
	)
}

// Detach unsubscribes all handlers and stops pending timers. No typing-stop
// is emitted for timers cancelled here; the relay peers fall back to their
// own stale-typing bound.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil

	for id, slot := range s.typingTimers {
		slot.timer.Stop()
		delete(s.typingTimers, id)
	}
	for id, slot := range s.staleTimers {
		slot.timer.Stop()
		delete(s.staleTimers, id)
	}
}

// StartConversation opens (or reopens) the thread for (user, counterparty,
// product) and marks it active. The id is deterministic, so starting the same
// triple twice never duplicates the conversation.
func (s *Session) StartConversation(counterparty Counterparty, product *entity.Product) (string, error) {
	if s.user == nil || s.user.ID == "" {
		return "", errors.Unauthenticated("Sign in to contact an artisan")
	}

	id := entity.ConversationID(s.user.ID, counterparty.ID, product.ID)

	conv := &entity.Conversation{
		ID:                id,
		CounterpartyID:    counterparty.ID,
		CounterpartyName:  counterparty.Name,
		CounterpartyImage: counterparty.Image,
		ProductID:         product.ID,
		ProductName:       product.Name,
		ProductImage:      product.ThumbnailURL(),
		Product:           product.Snapshot(),
		Messages:          []*entity.Message{},
		LastMessageTime:   time.Now(),
	}

	if created := s.store.Start(conv); created {
		logger.Debug("Started conversation %s", id)
	}

	return id, nil
}

// SendMessage optimistically appends the message locally, then emits it on
// the wire. Whitespace-only content is a silent no-op, mirroring a disabled
// send button. The local echo never waits on the server round trip.
func (s *Session) SendMessage(conversationID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if s.user == nil || s.user.ID == "" {
		return errors.Unauthenticated("Sign in to send messages")
	}

	conv, ok := s.store.Get(conversationID)
	if !ok {
		return errors.NotFound("Conversation", nil)
	}

	if !s.conn.IsConnected() {
		return errors.TransportUnavailable("Cannot send while disconnected")
	}

	clientID := uuid.NewString()
	message := &entity.Message{
		ID:             clientID,
		ClientID:       clientID,
		ConversationID: conversationID,
		SenderID:       s.user.ID,
		SenderName:     s.user.DisplayName,
		SenderType:     entity.SenderTypeUser,
		Content:        content,
		Timestamp:      time.Now(),
		IsRead:         true,
	}

	s.store.AppendOutgoing(conversationID, message)

	if err := s.conn.SendMessage(ws.SendMessagePayload{
		ConversationID: conversationID,
		Content:        content,
		SenderID:       s.user.ID,
		SenderName:     s.user.DisplayName,
		SenderType:     entity.SenderTypeUser,
		ClientID:       clientID,
	}); err != nil {
		// The optimistic copy stays; durability is the local store's job.
		logger.Warn("Wire send failed for %s: %v", conversationID, err)
	}

	if s.simulate {
		go s.simulateReply(conv.CounterpartyID, conv.CounterpartyName, conversationID, message)
	}

	return nil
}

// SetActiveConversation switches the open thread: leave the previous room
// only when actually switching, join the new one, reset unread state.
func (s *Session) SetActiveConversation(conversationID string) error {
	if _, ok := s.store.Get(conversationID); !ok {
		return errors.NotFound("Conversation", nil)
	}

	previous := s.store.SetActive(conversationID)
	if previous != "" && previous != conversationID {
		s.conn.LeaveRoom(previous)
	}
	s.conn.JoinRoom(conversationID)

	return nil
}

// ClearConversations is the bulk clear-all; individual threads are never
// deleted.
func (s *Session) ClearConversations() {
	s.store.ClearAll()
}

func (s *Session) handleReceiveMessage(message entity.Message) {
	msg := message
	s.store.ApplyIncoming(&msg)

	// A delivered message implies the sender stopped typing even if their
	// typing-stop was lost.
	s.clearStaleTimer(message.ConversationID)
	s.store.SetTyping(message.ConversationID, "", false)
}

func (s *Session) handleMessageSent(message entity.Message) {
	msg := message
	s.store.Reconcile(&msg)
}

func (s *Session) handleUserTyping(payload ws.UserTypingPayload) {
	s.store.SetTyping(payload.ConversationID, payload.UserName, payload.IsTyping)

	if payload.IsTyping {
		s.armStaleTimer(payload.ConversationID)
	} else {
		s.clearStaleTimer(payload.ConversationID)
	}
}

func (s *Session) handleUserStatus(payload ws.UserStatusPayload) {
	s.store.SetPresence(payload.UserID, payload.IsOnline)
}

// armStaleTimer bounds how long a typing indicator can stay lit if the peer
// disconnects between typing-start and typing-stop. Guarded by the same
// generation scheme as the inactivity timer: a callback that lost the race
// against a Reset must not clear an indicator that was just refreshed.
func (s *Session) armStaleTimer(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot, ok := s.staleTimers[conversationID]; ok {
		s.timerGen++
		slot.gen = s.timerGen
		if !slot.timer.Reset(s.staleTypingBound) {
			slot.timer = s.newStaleTimer(conversationID, slot.gen)
		}
		return
	}

	s.timerGen++
	s.staleTimers[conversationID] = &timerSlot{
		timer: s.newStaleTimer(conversationID, s.timerGen),
		gen:   s.timerGen,
	}
}

func (s *Session) newStaleTimer(conversationID string, gen uint64) *time.Timer {
	return time.AfterFunc(s.staleTypingBound, func() {
		s.mu.Lock()
		slot, ok := s.staleTimers[conversationID]
		if !ok || slot.gen != gen {
			s.mu.Unlock()
			return
		}
		delete(s.staleTimers, conversationID)
		s.mu.Unlock()

		s.store.SetTyping(conversationID, "", false)
	})
}

func (s *Session) clearStaleTimer(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot, ok := s.staleTimers[conversationID]; ok {
		slot.timer.Stop()
		delete(s.staleTimers, conversationID)
	}
}

func (s *Session) simulateReply(counterpartyID, counterpartyName, conversationID string, last *entity.Message) {
	time.Sleep(s.replyDelay())

	conv, ok := s.store.Get(conversationID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	content, err := s.responder.Reply(ctx, conv, last)
	if err != nil {
		logger.Debug("Responder failed, using canned reply: %v", err)
		content, _ = s.fallback.Reply(ctx, conv, last)
	}

	s.store.ApplyIncoming(&entity.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       counterpartyID,
		SenderName:     counterpartyName,
		SenderType:     entity.SenderTypeArtisan,
		Content:        content,
		Timestamp:      time.Now(),
	})
}
