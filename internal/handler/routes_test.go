package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"spotify-proxy-go/internal/config"
	"spotify-proxy-go/internal/metrics"
)

func metricsEnabled() config.MetricsConfig {
	return config.MetricsConfig{Enabled: true, Path: "/metrics"}
}

func TestRegisterRoutes_Wiring(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.Metrics = metricsEnabled()
	m := metrics.New()

	e := echo.New()
	RegisterRoutes(e, newTestProxyHandler(upstream.URL, m))
	RegisterAdminRoutes(e, cfg, NewHealthHandler(cfg, "test"), m)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /proxy/status", http.MethodGet, "/proxy/status", http.StatusOK},
		{"GET /metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"GET /v1", http.MethodGet, "/v1", http.StatusOK},
		{"GET /v1/tracks/1", http.MethodGet, "/v1/tracks/1?market=US", http.StatusOK},
		{"POST /v1/playlists", http.MethodPost, "/v1/playlists", http.StatusOK},
		{"DELETE /v1/me/tracks", http.MethodDelete, "/v1/me/tracks", http.StatusOK},
		{"GET /unknown returns 404", http.MethodGet, "/unknown", http.StatusNotFound},
		{"GET /v2 is not proxied", http.MethodGet, "/v2/tracks", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterAdminRoutes_MetricsExposition(t *testing.T) {
	cfg := testConfig("https://api.spotify.com")
	cfg.Metrics = metricsEnabled()
	cfg.Metrics.Path = "/custom-metrics"
	m := metrics.New()
	m.RawConnections.WithLabelValues(metrics.OutcomeRelayed, "200").Inc()

	e := echo.New()
	RegisterAdminRoutes(e, cfg, NewHealthHandler(cfg, "test"), m)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/custom-metrics", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "spotify_proxy_raw_connections_total") {
		t.Error("expected spotify_proxy_raw_connections_total in exposition")
	}
}

func TestRegisterAdminRoutes_MetricsDisabled(t *testing.T) {
	cfg := testConfig("https://api.spotify.com")
	cfg.Metrics.Path = "/metrics"

	e := echo.New()
	RegisterAdminRoutes(e, cfg, NewHealthHandler(cfg, "test"), metrics.New())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
