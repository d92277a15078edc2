package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"spotify-proxy-go/internal/inbound"
	"spotify-proxy-go/internal/metrics"
	"spotify-proxy-go/internal/relay"
	"spotify-proxy-go/internal/service"
)

// ProxyHandler forwards /v1 requests to the upstream API.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Client disconnects can come in bursts; log at most one per interval.
	writeFailures *rate.Sometimes
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service:       svc,
		logger:        logger.With("component", "proxy_handler"),
		metrics:       m,
		writeFailures: &rate.Sometimes{Interval: time.Second},
	}
}

// Handle proxies the request to the upstream API and streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	in, err := inbound.FromEcho(c).Acquire(req.Context())
	if err != nil {
		// BodyLimit reports an oversized body as an *echo.HTTPError (413).
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}

	resp, err := h.service.Forward(req.Context(), in)
	if err != nil {
		h.logger.Warn("upstream dispatch failed",
			"err", err,
			"method", in.Method,
			"path", in.Path,
		)
		// The client may already be gone; nothing else to do either way.
		_ = relay.WriteHTTPBadGateway(c.Response())
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	// Once the status is sent a failed stream can only truncate the body.
	n, err := relay.WriteHTTP(c.Response(), resp)
	if h.metrics != nil {
		h.metrics.RelayedBytes.Add(float64(n))
	}
	if err != nil {
		h.writeFailures.Do(func() {
			h.logger.Debug("response stream ended early",
				"err", err,
				"path", in.Path,
				"bytes", n,
			)
		})
	}
	return nil
}
