// Package middleware provides Echo middleware for request logging and metrics.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// quietPaths are probe endpoints logged at debug level.
var quietPaths = map[string]bool{
	"/healthz":      true,
	"/proxy/status": true,
}

// RequestLogger returns an Echo middleware that logs each request with slog.
// Server errors are logged at warn level, probe endpoints at debug.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	logger = logger.With("component", "http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			o := finish(c, err, start)

			level := slog.LevelInfo
			switch {
			case o.status >= 500:
				level = slog.LevelWarn
			case quietPaths[o.path]:
				level = slog.LevelDebug
			}

			req, res := c.Request(), c.Response()
			logger.LogAttrs(req.Context(), level, "request",
				slog.String("method", o.method),
				slog.String("path", o.path),
				slog.Int("status", o.status),
				slog.Int64("duration_ms", o.elapsed.Milliseconds()),
				slog.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				slog.String("remote_ip", c.RealIP()),
				slog.Int64("bytes_in", req.ContentLength),
				slog.Int64("bytes_out", res.Size),
			)

			return err
		}
	}
}
