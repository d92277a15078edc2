package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"spotify-proxy-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves the liveness and status probes. Both are answered
// locally and never touch the upstream.
type HealthHandler struct {
	cfg     *config.Config
	version Version
	started time.Time
}

// statusResponse is the body of GET /proxy/status.
type statusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Mode          string `json:"mode"`
	UpstreamURL   string `json:"upstream_url"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// NewHealthHandler creates a HealthHandler; uptime counts from this call.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, started: time.Now()}
}

// Healthz reports liveness.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports the build version, inbound mode, upstream base URL and uptime.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:        "ok",
		Version:       string(h.version),
		Mode:          h.cfg.Server.Mode,
		UpstreamURL:   h.cfg.Upstream.BaseURL,
		UptimeSeconds: int64(time.Since(h.started) / time.Second),
	})
}
