package middleware

import (
	"github.com/labstack/echo/v4"

	"artisora/internal/infrastructure/ratelimit"
	"artisora/pkg/errors"
	"artisora/pkg/logger"
	"artisora/pkg/response"
)

// RateLimit throttles an HTTP route group per caller IP using the same
// token-bucket limiter that guards the relay's send-message path. action keys
// the bucket so separate route groups do not share a budget.
func RateLimit(limiter *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiter.Allow(c.RealIP(), action) {
				logger.Warn("Rate limit exceeded for %s on %s", c.RealIP(), action)
				return response.Error(c, errors.TooManyRequests("Too many requests, slow down"))
			}
			return next(c)
		}
	}
}
