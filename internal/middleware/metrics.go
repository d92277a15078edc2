package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"spotify-proxy-go/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that counts requests, times
// them and tracks how many are in flight. Labels are bounded by
// metrics.NormalizeMethod and metrics.NormalizePath.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)
			o := finish(c, err, start)

			labels := []string{
				metrics.NormalizeMethod(o.method),
				strconv.Itoa(o.status),
				metrics.NormalizePath(o.path),
			}
			m.RequestsTotal.WithLabelValues(labels...).Inc()
			m.RequestDuration.WithLabelValues(labels...).Observe(o.elapsed.Seconds())

			return err
		}
	}
}
