package socket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artisora/internal/adapter/api/handler"
	"artisora/internal/domain/entity"
	"artisora/internal/infrastructure/ratelimit"
	ws "artisora/internal/infrastructure/websocket"
	"artisora/pkg/errors"
)

// startRelay runs a real relay endpoint on an httptest server and returns the
// ws:// URL to dial.
func startRelay(t *testing.T) (string, *ws.Manager) {
	t.Helper()

	manager := ws.NewManager(ratelimit.NewRateLimiter(100, 100))
	wsHandler := handler.NewWebSocketHandler(manager, nil)

	e := echo.New()
	e.GET("/ws", wsHandler.HandleWebSocket)

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws", manager
}

func connect(t *testing.T, baseURL, userID, displayName string) *Client {
	t.Helper()
	c := NewClient(baseURL)
	require.NoError(t, c.Connect(context.Background(), userID, displayName))
	t.Cleanup(c.Disconnect)
	return c
}

func TestConnectIsIdempotent(t *testing.T) {
	url, manager := startRelay(t)
	c := connect(t, url, "u1", "Ana")

	require.NoError(t, c.Connect(context.Background(), "u1", "Ana"))
	require.NoError(t, c.Connect(context.Background(), "u1", "Ana"))

	assert.True(t, c.IsConnected())
	assert.Eventually(t, func() bool { return manager.ClientCount() == 1 },
		time.Second, 10*time.Millisecond, "repeat connects must not open extra connections")
}

func TestConnectFailsWhenRelayUnreachable(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Connect(ctx, "u1", "Ana")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "TRANSPORT_UNAVAILABLE"))
	assert.Equal(t, StateDisconnected, c.State())
}

func TestDisconnectWithoutConnectIsSafe(t *testing.T) {
	c := NewClient("ws://localhost:0/ws")
	c.Disconnect()
	c.Disconnect()
	assert.False(t, c.IsConnected())
}

func TestSendMessageWhileDisconnected(t *testing.T) {
	c := NewClient("ws://localhost:0/ws")

	err := c.SendMessage(ws.SendMessagePayload{
		ConversationID: "conv",
		Content:        "hello",
		SenderID:       "u1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, "TRANSPORT_UNAVAILABLE"))
}

func TestMessageRoundTrip(t *testing.T) {
	url, _ := startRelay(t)

	sender := connect(t, url, "u1", "Ana")
	receiver := connect(t, url, "artisan-1", "Mara")

	received := make(chan entity.Message, 1)
	receiver.OnReceiveMessage(func(m entity.Message) { received <- m })

	echoed := make(chan entity.Message, 1)
	sender.OnMessageSent(func(m entity.Message) { echoed <- m })

	sender.JoinRoom("conv-1")
	receiver.JoinRoom("conv-1")
	time.Sleep(50 * time.Millisecond) // joins are fire-and-forget

	require.NoError(t, sender.SendMessage(ws.SendMessagePayload{
		ConversationID: "conv-1",
		Content:        "Is this available?",
		SenderID:       "u1",
		SenderName:     "Ana",
		SenderType:     entity.SenderTypeUser,
		ClientID:       "local-1",
	}))

	select {
	case m := <-received:
		assert.Equal(t, "Is this available?", m.Content)
		assert.Equal(t, "u1", m.SenderID)
		assert.Equal(t, "local-1", m.ClientID)
		assert.False(t, m.IsRead)
		assert.NotEmpty(t, m.ID, "relay assigns the durable id")
	case <-time.After(2 * time.Second):
		t.Fatal("message never reached the room peer")
	}

	select {
	case m := <-echoed:
		assert.Equal(t, "local-1", m.ClientID)
		assert.True(t, m.IsRead, "sender copy comes back read")
	case <-time.After(2 * time.Second):
		t.Fatal("sender never got the delivery echo")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	url, _ := startRelay(t)

	sender := connect(t, url, "u1", "Ana")
	receiver := connect(t, url, "artisan-1", "Mara")

	var mu sync.Mutex
	count := 0
	unsubscribe := receiver.OnReceiveMessage(func(entity.Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	sender.JoinRoom("conv-1")
	receiver.JoinRoom("conv-1")
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, sender.SendMessage(ws.SendMessagePayload{
		ConversationID: "conv-1", Content: "one", SenderID: "u1",
	}))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)

	unsubscribe()

	require.NoError(t, sender.SendMessage(ws.SendMessagePayload{
		ConversationID: "conv-1", Content: "two", SenderID: "u1",
	}))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "handler must not fire after unsubscribe")
}

func TestPresencePropagatesToPeers(t *testing.T) {
	url, _ := startRelay(t)

	observer := connect(t, url, "artisan-1", "Mara")

	statuses := make(chan ws.UserStatusPayload, 8)
	observer.OnUserStatus(func(p ws.UserStatusPayload) { statuses <- p })

	// Status events fan out to every connection, the observer's own included,
	// so wait for the specific transition rather than the next event.
	waitStatus := func(userID string, online bool) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case p := <-statuses:
				if p.UserID == userID && p.IsOnline == online {
					return
				}
			case <-deadline:
				t.Fatalf("never saw user-status for %s online=%v", userID, online)
			}
		}
	}

	// Connect announces presence-online on its own.
	newcomer := connect(t, url, "u1", "Ana")
	waitStatus("u1", true)

	newcomer.Disconnect()
	waitStatus("u1", false)
}

func TestTypingIndicatorRoundTrip(t *testing.T) {
	url, _ := startRelay(t)

	typist := connect(t, url, "u1", "Ana")
	watcher := connect(t, url, "artisan-1", "Mara")

	typing := make(chan ws.UserTypingPayload, 2)
	watcher.OnUserTyping(func(p ws.UserTypingPayload) { typing <- p })

	typist.JoinRoom("conv-1")
	watcher.JoinRoom("conv-1")
	time.Sleep(50 * time.Millisecond)

	typist.TypingStart("conv-1", "u1", "Ana")
	select {
	case p := <-typing:
		assert.True(t, p.IsTyping)
		assert.Equal(t, "Ana", p.UserName)
	case <-time.After(2 * time.Second):
		t.Fatal("typing-start never arrived")
	}

	typist.TypingStop("conv-1", "u1", "Ana")
	select {
	case p := <-typing:
		assert.False(t, p.IsTyping)
	case <-time.After(2 * time.Second):
		t.Fatal("typing-stop never arrived")
	}
}
