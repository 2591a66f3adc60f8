package router

import (
	"github.com/labstack/echo/v4"

	"artisora/internal/adapter/api/handler"
	"artisora/internal/adapter/api/middleware"
	"artisora/internal/infrastructure/ratelimit"
)

// Setup registers the REST surface around the relay.
func Setup(e *echo.Echo, productHandler *handler.ProductHandler, authMiddleware *middleware.AuthMiddleware, httpLimiter *ratelimit.RateLimiter) {
	productGroup := e.Group("/v1/products")
	productGroup.Use(middleware.RateLimit(httpLimiter, "products"))
	productGroup.GET("/:id", productHandler.GetProduct)

	// Artisan listings back the seller view, so they require a signed-in caller.
	artisanGroup := e.Group("/v1/artisans")
	artisanGroup.Use(middleware.RateLimit(httpLimiter, "artisans"))
	artisanGroup.Use(authMiddleware.Authenticate)
	artisanGroup.GET("/:artisanId/products", productHandler.ListArtisanProducts)
}
