package websocket

import (
	"sync"

	"github.com/gorilla/websocket"

	"artisora/internal/infrastructure/ratelimit"
	"artisora/pkg/logger"
)

// Client represents one authenticated relay connection.
type Client struct {
	UserID      string
	DisplayName string
	Conn        *websocket.Conn
	Send        chan []byte
}

// Manager routes events between the participants of a conversation. It holds
// no durable message history; rooms exist only while they have members.
//
// All membership mutation and fan-out happens under one mutex, so every room
// member observes broadcasts in the server's receipt order.
type Manager struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
	limiter *ratelimit.RateLimiter
	mutex   sync.Mutex
}

// NewManager creates a relay manager. limiter may be nil to disable
// send-message rate limiting (tests).
func NewManager(limiter *ratelimit.RateLimiter) *Manager {
	return &Manager{
		clients: make(map[*Client]bool),
		rooms:   make(map[string]map[*Client]bool),
		limiter: limiter,
	}
}

// Register adds a connection to the relay.
func (m *Manager) Register(client *Client) {
	m.mutex.Lock()
	m.clients[client] = true
	m.mutex.Unlock()

	logger.Info("Client connected: %s (%s)", client.UserID, client.DisplayName)
}

// Unregister removes a connection, drops it from every room it joined and
// garbage-collects rooms left empty. The departed user's offline status is
// broadcast to all remaining connections.
func (m *Manager) Unregister(client *Client) {
	m.mutex.Lock()
	if _, ok := m.clients[client]; !ok {
		m.mutex.Unlock()
		return
	}
	delete(m.clients, client)
	for roomID, members := range m.rooms {
		if members[client] {
			delete(members, client)
			if len(members) == 0 {
				delete(m.rooms, roomID)
			}
		}
	}
	close(client.Send)
	m.mutex.Unlock()

	logger.Info("Client disconnected: %s", client.UserID)

	m.broadcastUserStatus(client.UserID, client.DisplayName, false)
}

// JoinRoom adds the connection to a conversation's room, creating the room on
// first join. No ack is sent.
func (m *Manager) JoinRoom(roomID string, client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	members, ok := m.rooms[roomID]
	if !ok {
		members = make(map[*Client]bool)
		m.rooms[roomID] = members
	}
	members[client] = true

	logger.Debug("Client %s joined room %s (%d members)", client.UserID, roomID, len(members))
}

// LeaveRoom removes the connection from a room and garbage-collects the room
// when it has no members left.
func (m *Manager) LeaveRoom(roomID string, client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	members, ok := m.rooms[roomID]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(m.rooms, roomID)
	}

	logger.Debug("Client %s left room %s", client.UserID, roomID)
}

// RoomSize reports the current member count of a room; 0 means the room does
// not exist.
func (m *Manager) RoomSize(roomID string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.rooms[roomID])
}

// RoomCount reports how many rooms currently have members.
func (m *Manager) RoomCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.rooms)
}

// ClientCount reports how many connections are registered.
func (m *Manager) ClientCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.clients)
}

// broadcastToRoom enqueues payload for every room member except the excluded
// connection. Members whose send buffer is full are dropped from the relay:
// delivery is at-most-once.
func (m *Manager) broadcastToRoom(roomID string, except *Client, payload []byte) {
	m.mutex.Lock()
	var stale []*Client
	for member := range m.rooms[roomID] {
		if member == except {
			continue
		}
		select {
		case member.Send <- payload:
		default:
			stale = append(stale, member)
		}
	}
	m.mutex.Unlock()

	for _, member := range stale {
		logger.Warn("Client %s send buffer full, dropping connection", member.UserID)
		m.Unregister(member)
	}
}

// broadcastAll enqueues payload for every connection on the relay, room
// membership aside.
func (m *Manager) broadcastAll(except *Client, payload []byte) {
	m.mutex.Lock()
	var stale []*Client
	for client := range m.clients {
		if client == except {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			stale = append(stale, client)
		}
	}
	m.mutex.Unlock()

	for _, client := range stale {
		logger.Warn("Client %s send buffer full, dropping connection", client.UserID)
		m.Unregister(client)
	}
}

// sendToClient enqueues payload for one connection, if still registered.
func (m *Manager) sendToClient(client *Client, payload []byte) {
	m.mutex.Lock()
	if !m.clients[client] {
		m.mutex.Unlock()
		return
	}
	stale := false
	select {
	case client.Send <- payload:
	default:
		stale = true
	}
	m.mutex.Unlock()

	if stale {
		logger.Warn("Client %s send buffer full, dropping connection", client.UserID)
		m.Unregister(client)
	}
}

// ReadPump reads events from the connection and hands them to the manager
// until the transport errors or closes.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.Unregister(c)
		c.Conn.Close()
	}()

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("Read error for client %s: %v", c.UserID, err)
			}
			break
		}

		m.HandleEvent(c, raw)
	}
}

// WritePump drains the send channel onto the connection.
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		payload, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Warn("Write error for client %s: %v", c.UserID, err)
			return
		}
	}
}
