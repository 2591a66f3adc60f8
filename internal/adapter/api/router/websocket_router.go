package router

import (
	"github.com/labstack/echo/v4"

	"artisora/internal/adapter/api/handler"
)

// SetupWebSocketRouter registers the relay endpoint. No auth middleware here;
// identity is handled inside the handler at connect time.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws", wsHandler.HandleWebSocket)
}
