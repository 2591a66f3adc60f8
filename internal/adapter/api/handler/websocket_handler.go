package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"artisora/internal/infrastructure/firebase"
	ws "artisora/internal/infrastructure/websocket"
	"artisora/pkg/errors"
	"artisora/pkg/logger"
)

type WebSocketHandler struct {
	wsManager  *ws.Manager
	authClient *firebase.FirebaseAuthClient
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Restrict in production
	},
}

// NewWebSocketHandler creates the relay endpoint handler. authClient may be
// nil; identity is then trusted exactly as presented at connect time.
func NewWebSocketHandler(wsManager *ws.Manager, authClient *firebase.FirebaseAuthClient) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:  wsManager,
		authClient: authClient,
	}
}

// HandleWebSocket upgrades the connection and registers it with the relay.
// Identity arrives once, as user_id and display_name query parameters; when a
// token is supplied and verification is configured, the verified UID wins over
// the presented user_id, and a missing display name is resolved from the
// verified account.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	userID := c.QueryParam("user_id")
	displayName := c.QueryParam("display_name")

	if token := c.QueryParam("token"); token != "" && h.authClient != nil {
		uid, err := h.authClient.VerifyToken(c.Request().Context(), token)
		if err != nil {
			return errors.Unauthorized("Invalid token", err)
		}
		userID = uid

		if displayName == "" {
			name, err := h.authClient.GetDisplayName(c.Request().Context(), uid)
			if err != nil {
				logger.Warn("Could not resolve display name for %s: %v", uid, err)
			} else {
				displayName = name
			}
		}
	}

	if userID == "" {
		return errors.Unauthorized("user_id is required", nil)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	client := &ws.Client{
		UserID:      userID,
		DisplayName: displayName,
		Conn:        conn,
		Send:        make(chan []byte, 256),
	}

	h.wsManager.Register(client)

	go client.ReadPump(h.wsManager)
	go client.WritePump()

	logger.Debug("WebSocket session started for %s", userID)

	return nil
}
