package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artisora/internal/adapter/api/handler"
	"artisora/internal/client/session"
	"artisora/internal/client/socket"
	"artisora/internal/client/store"
	"artisora/internal/domain/entity"
	"artisora/internal/infrastructure/ratelimit"
	ws "artisora/internal/infrastructure/websocket"
)

// participant bundles one user's full client stack: connection, local store
// and session, all talking to a shared live relay.
type participant struct {
	user    *entity.User
	client  *socket.Client
	store   *store.Store
	session *session.Session
}

func startRelayServer(t *testing.T) string {
	t.Helper()

	manager := ws.NewManager(ratelimit.NewRateLimiter(100, 100))
	wsHandler := handler.NewWebSocketHandler(manager, nil)

	e := echo.New()
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/ws", wsHandler.HandleWebSocket)

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func newParticipant(t *testing.T, relayURL, userID, displayName string) *participant {
	t.Helper()

	st, err := store.New(store.NewMemoryStorage())
	require.NoError(t, err)

	client := socket.NewClient(relayURL)
	require.NoError(t, client.Connect(context.Background(), userID, displayName))
	t.Cleanup(client.Disconnect)

	user := &entity.User{ID: userID, DisplayName: displayName}
	sess := session.New(user, st, client)
	sess.Attach()
	t.Cleanup(sess.Detach)

	return &participant{user: user, client: client, store: st, session: sess}
}

// seedConversation puts the buyer-derived conversation into the artisan's
// store so both sides share one room id.
func seedConversation(t *testing.T, p *participant, conversationID, counterpartyID, counterpartyName string) {
	t.Helper()
	p.store.Start(&entity.Conversation{
		ID:               conversationID,
		CounterpartyID:   counterpartyID,
		CounterpartyName: counterpartyName,
		Messages:         []*entity.Message{},
	})
}

var bowlProduct = &entity.Product{
	ID:          "p123",
	ArtisanID:   "artisan-1",
	ArtisanName: "Mara",
	Name:        "Walnut bowl",
	Description: "Hand-turned walnut bowl",
	Price:       85,
}

func TestBuyerContactsArtisan(t *testing.T) {
	relayURL := startRelayServer(t)

	buyer := newParticipant(t, relayURL, "buyer-1", "Ana")
	artisan := newParticipant(t, relayURL, "artisan-1", "Mara")

	convID, err := buyer.session.StartConversation(
		session.Counterparty{ID: "artisan-1", Name: "Mara"}, bowlProduct)
	require.NoError(t, err)
	assert.Equal(t, "buyer-1_artisan-1_p123", convID)

	seedConversation(t, artisan, convID, "buyer-1", "Ana")

	require.NoError(t, buyer.session.SetActiveConversation(convID))
	require.NoError(t, artisan.session.SetActiveConversation(convID))
	time.Sleep(50 * time.Millisecond) // room joins are fire-and-forget

	require.NoError(t, buyer.session.SendMessage(convID, "Is this available?"))

	// The buyer sees the optimistic copy at once.
	conv, ok := buyer.store.Get(convID)
	require.True(t, ok)
	require.Len(t, conv.Messages, 1)

	// The artisan receives it over the wire.
	assert.Eventually(t, func() bool {
		c, ok := artisan.store.Get(convID)
		return ok && len(c.Messages) == 1
	}, 2*time.Second, 10*time.Millisecond)

	artisanConv, _ := artisan.store.Get(convID)
	got := artisanConv.Messages[0]
	assert.Equal(t, "Is this available?", got.Content)
	assert.Equal(t, "buyer-1", got.SenderID)
	assert.Equal(t, "Ana", got.SenderName)
	assert.NotEmpty(t, got.ID)

	// Viewing the active conversation, the artisan accrues no unread count.
	assert.Equal(t, 0, artisanConv.UnreadCount)

	// The buyer's optimistic copy reconciles onto the relay-assigned id.
	assert.Eventually(t, func() bool {
		c, _ := buyer.store.Get(convID)
		return len(c.Messages) == 1 && c.Messages[0].ID == got.ID
	}, 2*time.Second, 10*time.Millisecond, "delivery echo replaces the local id")
}

func TestUnreadAccruesWhenNotViewing(t *testing.T) {
	relayURL := startRelayServer(t)

	buyer := newParticipant(t, relayURL, "buyer-1", "Ana")
	artisan := newParticipant(t, relayURL, "artisan-1", "Mara")

	convID, err := buyer.session.StartConversation(
		session.Counterparty{ID: "artisan-1", Name: "Mara"}, bowlProduct)
	require.NoError(t, err)
	seedConversation(t, artisan, convID, "buyer-1", "Ana")

	require.NoError(t, buyer.session.SetActiveConversation(convID))
	// The artisan joins the room but is browsing elsewhere.
	artisan.client.JoinRoom(convID)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, buyer.session.SendMessage(convID, "Hello?"))

	assert.Eventually(t, func() bool {
		c, _ := artisan.store.Get(convID)
		return c.UnreadCount == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, artisan.store.TotalUnread())

	// Opening the thread clears it.
	require.NoError(t, artisan.session.SetActiveConversation(convID))
	c, _ := artisan.store.Get(convID)
	assert.Equal(t, 0, c.UnreadCount)
	assert.Zero(t, artisan.store.TotalUnread())
}

func TestMessagesArriveInSendOrder(t *testing.T) {
	relayURL := startRelayServer(t)

	buyer := newParticipant(t, relayURL, "buyer-1", "Ana")
	artisan := newParticipant(t, relayURL, "artisan-1", "Mara")

	convID, err := buyer.session.StartConversation(
		session.Counterparty{ID: "artisan-1", Name: "Mara"}, bowlProduct)
	require.NoError(t, err)
	seedConversation(t, artisan, convID, "buyer-1", "Ana")

	require.NoError(t, buyer.session.SetActiveConversation(convID))
	require.NoError(t, artisan.session.SetActiveConversation(convID))
	time.Sleep(50 * time.Millisecond)

	sent := []string{"Do you ship abroad?", "To Lisbon, specifically", "No rush!"}
	for _, content := range sent {
		require.NoError(t, buyer.session.SendMessage(convID, content))
	}

	assert.Eventually(t, func() bool {
		c, _ := artisan.store.Get(convID)
		return len(c.Messages) == len(sent)
	}, 2*time.Second, 10*time.Millisecond)

	c, _ := artisan.store.Get(convID)
	for i, content := range sent {
		assert.Equal(t, content, c.Messages[i].Content)
	}
}

func TestConversationSurvivesRestartWithoutTransientState(t *testing.T) {
	relayURL := startRelayServer(t)

	storage := store.NewMemoryStorage()
	st, err := store.New(storage)
	require.NoError(t, err)

	client := socket.NewClient(relayURL)
	require.NoError(t, client.Connect(context.Background(), "buyer-1", "Ana"))
	t.Cleanup(client.Disconnect)

	sess := session.New(&entity.User{ID: "buyer-1", DisplayName: "Ana"}, st, client)
	sess.Attach()

	convID, err := sess.StartConversation(
		session.Counterparty{ID: "artisan-1", Name: "Mara"}, bowlProduct)
	require.NoError(t, err)
	require.NoError(t, sess.SetActiveConversation(convID))
	require.NoError(t, sess.SendMessage(convID, "Saving this for later"))
	sess.Detach()

	// A fresh store over the same storage sees the history but none of the
	// transient flags.
	restored, err := store.New(storage)
	require.NoError(t, err)

	conv, ok := restored.Get(convID)
	require.True(t, ok)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "Saving this for later", conv.Messages[0].Content)
	assert.False(t, conv.IsActive)
	assert.False(t, conv.IsTyping)
	assert.False(t, conv.CounterpartyOnline)
}
