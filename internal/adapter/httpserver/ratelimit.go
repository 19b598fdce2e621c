package httpserver

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const (
	authUserPath = "/auth/user"

	// Idle visitors are forgotten after this long.
	rateLimiterExpiry = 5 * time.Minute
)

// newAuthRateLimiter throttles the OAuth routes per client IP. They are
// browser navigations, so a throttled visitor lands on the index page with
// the rate_limited code. /auth/user is polled by the panels and never counts.
func newAuthRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == authUserPath
		},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			slog.WarnContext(c.Request().Context(), "Auth rate limit exceeded",
				"ip", identifier,
				"path", c.Request().URL.Path,
			)
			return redirectWithError(c, "rate_limited")
		},
	})
}
