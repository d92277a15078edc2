package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"spotify-proxy-go/internal/client"
	"spotify-proxy-go/internal/config"
	"spotify-proxy-go/internal/handler"
	"spotify-proxy-go/internal/metrics"
	"spotify-proxy-go/internal/middleware"
	"spotify-proxy-go/internal/rawserver"
	"spotify-proxy-go/internal/service"
	"spotify-proxy-go/internal/useragent"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("spotify-proxy"),
		kong.Description("Forwarding proxy for the Spotify Web API."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newUserAgentPool,
			fx.Annotate(client.NewUpstreamClient, fx.As(new(service.Dispatcher))),
			service.NewProxyService,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
			newEcho,
			rawserver.New,
		),
		fx.Invoke(registerRoutes, warnConfigPermissions, startServer),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h).With("mode", cfg.Server.Mode)
}

func newUserAgentPool(cfg *config.Config) (*useragent.Pool, error) {
	if len(cfg.Upstream.UserAgents) == 0 {
		return useragent.DefaultPool(), nil
	}
	return useragent.NewPool(cfg.Upstream.UserAgents...)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 30 * time.Second
	// Streamed responses have no natural upper bound.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m))
	}
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))

	return e
}

// registerRoutes mounts the proxy on Echo in http mode only; in raw mode
// Echo serves just the admin endpoints.
func registerRoutes(e *echo.Echo, cfg *config.Config, proxy *handler.ProxyHandler, health *handler.HealthHandler, m *metrics.Metrics) {
	if cfg.Server.Mode == config.ModeHTTP {
		handler.RegisterRoutes(e, proxy)
	}
	handler.RegisterAdminRoutes(e, cfg, health, m)
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, raw *rawserver.Server, cfg *config.Config, logger *slog.Logger) {
	var echoRunning bool

	serveEcho := func(addr string) error {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("bind %s: %w", addr, err)
		}
		echoRunning = true
		go func() {
			if err := e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server error", "err", err)
			}
		}()
		return nil
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()

			if cfg.Server.Mode == config.ModeHTTP {
				logger.Info("starting server", "addr", addr, "upstream", cfg.Upstream.BaseURL)
				return serveEcho(addr)
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting raw server", "addr", addr, "upstream", cfg.Upstream.BaseURL)
			go func() {
				if err := raw.Serve(ln); err != nil && !errors.Is(err, rawserver.ErrServerClosed) {
					logger.Error("raw server error", "err", err)
				}
			}()

			if admin := cfg.Server.Raw.AdminAddr; admin != "" {
				logger.Info("starting admin server", "addr", admin)
				if err := serveEcho(admin); err != nil {
					_ = raw.Shutdown(context.Background())
					return err
				}
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			var errs []error
			if cfg.Server.Mode == config.ModeRaw {
				errs = append(errs, raw.Shutdown(ctx))
			}
			if echoRunning {
				errs = append(errs, e.Shutdown(ctx))
			}
			return errors.Join(errs...)
		},
	})
}
