package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// RequestTimeout puts a deadline on the request context and runs the handler
// on the request goroutine. Remote calls in flight observe the deadline; a
// handler that fails after it passed answers 504. A zero timeout disables it.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	if timeout <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Timeout: timeout,
		ErrorHandler: func(err error, c echo.Context) error {
			if !deadlineExceeded(err, c.Request().Context()) {
				return err
			}
			return echo.NewHTTPError(http.StatusGatewayTimeout, "request exceeded "+timeout.String()).WithInternal(err)
		},
	})
}

// deadlineExceeded reports whether err stems from the request deadline.
// Client errors raised before the deadline keep their own status.
func deadlineExceeded(err error, ctx context.Context) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return false
	}
	var he *echo.HTTPError
	return !errors.As(err, &he) || he.Code >= http.StatusInternalServerError
}
