// Package socket implements the client side of the relay connection: one
// persistent websocket per signed-in session, typed event subscriptions and
// automatic reconnection.
package socket

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"artisora/internal/domain/entity"
	ws "artisora/internal/infrastructure/websocket"
	"artisora/pkg/errors"
	"artisora/pkg/logger"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// Client owns one relay connection. Connect is idempotent and Disconnect is
// safe to call even if the client never connected.
//
// Event handlers registered through the On* methods live for the client's
// lifetime, across reconnects, until their unsubscribe func is called. Owners
// must unsubscribe on teardown or they will handle events twice after
// re-attaching.
type Client struct {
	baseURL string
	dialer  *websocket.Dialer

	mu          sync.Mutex
	writeMu     sync.Mutex
	conn        *websocket.Conn
	state       State
	closing     bool
	userID      string
	displayName string
	token       string

	nextSubID   int
	messageSubs map[int]func(entity.Message)
	sentSubs    map[int]func(entity.Message)
	typingSubs  map[int]func(ws.UserTypingPayload)
	statusSubs  map[int]func(ws.UserStatusPayload)

	maxBackoff time.Duration
}

// NewClient creates a client for the relay at baseURL (e.g.
// "ws://localhost:8080/ws").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:     baseURL,
		dialer:      websocket.DefaultDialer,
		messageSubs: make(map[int]func(entity.Message)),
		sentSubs:    make(map[int]func(entity.Message)),
		typingSubs:  make(map[int]func(ws.UserTypingPayload)),
		statusSubs:  make(map[int]func(ws.UserStatusPayload)),
		maxBackoff:  30 * time.Second,
	}
}

// SetToken attaches an identity token presented at connect time for server
// side verification.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Connect establishes the relay connection for the given identity. Calling it
// while already connected returns immediately. A successful connect announces
// the user's presence to the relay.
func (c *Client) Connect(ctx context.Context, userID, displayName string) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.closing = false
	c.userID = userID
	c.displayName = displayName
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return errors.TransportUnavailable("Failed to connect to chat relay")
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop(conn)

	c.PresenceOnline()

	return nil
}

// Disconnect tears the transport down and stops any reconnect attempts.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closing = true
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	params := url.Values{}
	params.Set("user_id", c.userID)
	params.Set("display_name", c.displayName)
	if c.token != "" {
		params.Set("token", c.token)
	}
	target := c.baseURL + "?" + params.Encode()
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	return conn, err
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		c.dispatch(raw)
	}
	conn.Close()

	c.mu.Lock()
	if c.closing || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateConnecting
	c.mu.Unlock()

	go c.reconnect()
}

// reconnect retries with exponential backoff until it succeeds or Disconnect
// is called.
func (c *Client) reconnect() {
	delay := time.Second
	for {
		c.mu.Lock()
		if c.closing {
			c.state = StateDisconnected
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		conn, err := c.dial(context.Background())
		if err == nil {
			c.mu.Lock()
			if c.closing {
				c.mu.Unlock()
				conn.Close()
				return
			}
			c.conn = conn
			c.state = StateConnected
			c.mu.Unlock()

			go c.readLoop(conn)
			c.PresenceOnline()
			logger.Info("Reconnected to chat relay as %s", c.userID)
			return
		}

		logger.Warn("Relay reconnect failed, retrying in %v: %v", delay, err)
		time.Sleep(delay)
		if delay < c.maxBackoff {
			delay *= 2
		}
	}
}

// emit writes one event envelope. It fails with TransportUnavailable when the
// connection is down; it never queues.
func (c *Client) emit(eventType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Internal("Failed to marshal event payload", err)
	}
	raw, err := json.Marshal(ws.Event{Type: eventType, Data: payload})
	if err != nil {
		return errors.Internal("Failed to marshal event", err)
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		return errors.TransportUnavailable("Not connected to chat relay")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, raw)
}

// JoinRoom subscribes this connection to a conversation's events. A no-op
// while disconnected; rooms are joined lazily on activation.
func (c *Client) JoinRoom(conversationID string) {
	if err := c.emit(ws.EventJoinRoom, conversationID); err != nil {
		logger.Debug("join-room skipped for %s: %v", conversationID, err)
	}
}

func (c *Client) LeaveRoom(conversationID string) {
	if err := c.emit(ws.EventLeaveRoom, conversationID); err != nil {
		logger.Debug("leave-room skipped for %s: %v", conversationID, err)
	}
}

// SendMessage emits a send-message event. Unlike typing events this surfaces
// transport failures so the UI can keep the send action blocked while offline.
func (c *Client) SendMessage(payload ws.SendMessagePayload) error {
	return c.emit(ws.EventSendMessage, payload)
}

// TypingStart is best-effort: a typing indicator lost to a dead connection is
// not worth an error.
func (c *Client) TypingStart(conversationID, userID, userName string) {
	c.emit(ws.EventTypingStart, ws.TypingPayload{
		ConversationID: conversationID,
		UserID:         userID,
		UserName:       userName,
	})
}

func (c *Client) TypingStop(conversationID, userID, userName string) {
	c.emit(ws.EventTypingStop, ws.TypingPayload{
		ConversationID: conversationID,
		UserID:         userID,
		UserName:       userName,
	})
}

func (c *Client) PresenceOnline() {
	c.mu.Lock()
	userID, userName := c.userID, c.displayName
	c.mu.Unlock()

	c.emit(ws.EventPresenceOnline, ws.PresencePayload{
		UserID:   userID,
		UserName: userName,
	})
}

// OnReceiveMessage registers a handler for inbound messages and returns its
// unsubscribe func.
func (c *Client) OnReceiveMessage(handler func(entity.Message)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.messageSubs[id] = handler
	return func() {
		c.mu.Lock()
		delete(c.messageSubs, id)
		c.mu.Unlock()
	}
}

// OnMessageSent registers a handler for the sender-side echo of a delivered
// message.
func (c *Client) OnMessageSent(handler func(entity.Message)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.sentSubs[id] = handler
	return func() {
		c.mu.Lock()
		delete(c.sentSubs, id)
		c.mu.Unlock()
	}
}

func (c *Client) OnUserTyping(handler func(ws.UserTypingPayload)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.typingSubs[id] = handler
	return func() {
		c.mu.Lock()
		delete(c.typingSubs, id)
		c.mu.Unlock()
	}
}

func (c *Client) OnUserStatus(handler func(ws.UserStatusPayload)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.statusSubs[id] = handler
	return func() {
		c.mu.Lock()
		delete(c.statusSubs, id)
		c.mu.Unlock()
	}
}

// dispatch runs on the single read goroutine, so handlers observe events in
// arrival order.
func (c *Client) dispatch(raw []byte) {
	var event ws.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		logger.Warn("Dropping malformed relay event: %v", err)
		return
	}

	switch event.Type {
	case ws.EventReceiveMessage:
		var message entity.Message
		if err := json.Unmarshal(event.Data, &message); err != nil {
			logger.Warn("Dropping malformed receive-message payload: %v", err)
			return
		}
		for _, handler := range c.snapshotMessageSubs(c.messageSubs) {
			handler(message)
		}

	case ws.EventMessageSent:
		var message entity.Message
		if err := json.Unmarshal(event.Data, &message); err != nil {
			logger.Warn("Dropping malformed message-sent payload: %v", err)
			return
		}
		for _, handler := range c.snapshotMessageSubs(c.sentSubs) {
			handler(message)
		}

	case ws.EventUserTyping:
		var payload ws.UserTypingPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			logger.Warn("Dropping malformed user-typing payload: %v", err)
			return
		}
		c.mu.Lock()
		handlers := make([]func(ws.UserTypingPayload), 0, len(c.typingSubs))
		for _, handler := range c.typingSubs {
			handlers = append(handlers, handler)
		}
		c.mu.Unlock()
		for _, handler := range handlers {
			handler(payload)
		}

	case ws.EventUserStatus:
		var payload ws.UserStatusPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			logger.Warn("Dropping malformed user-status payload: %v", err)
			return
		}
		c.mu.Lock()
		handlers := make([]func(ws.UserStatusPayload), 0, len(c.statusSubs))
		for _, handler := range c.statusSubs {
			handlers = append(handlers, handler)
		}
		c.mu.Unlock()
		for _, handler := range handlers {
			handler(payload)
		}

	default:
		logger.Debug("Ignoring unknown relay event type %q", event.Type)
	}
}

func (c *Client) snapshotMessageSubs(subs map[int]func(entity.Message)) []func(entity.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	handlers := make([]func(entity.Message), 0, len(subs))
	for _, handler := range subs {
		handlers = append(handlers, handler)
	}
	return handlers
}
