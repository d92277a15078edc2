// Package handler holds the echo handlers for the framework-mode proxy and
// the health and metrics endpoints.
package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spotify-proxy-go/internal/config"
	"spotify-proxy-go/internal/metrics"
)

// RegisterRoutes wires the proxy route onto the Echo instance.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler) {
	e.Any("/v1", proxy.Handle)
	e.Any("/v1/*", proxy.Handle)
}

// RegisterAdminRoutes wires health, status and, when enabled, metrics.
func RegisterAdminRoutes(e *echo.Echo, cfg *config.Config, health *HealthHandler, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
