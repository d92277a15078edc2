// Package service implements the core proxy forwarding logic.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"spotify-proxy-go/internal/config"
	"spotify-proxy-go/internal/model"
	"spotify-proxy-go/internal/useragent"
)

// Dispatcher sends one outbound request upstream. *client.UpstreamClient
// satisfies it.
type Dispatcher interface {
	Send(ctx context.Context, out *model.OutboundRequest) (*model.UpstreamResponse, error)
}

// ProxyService maps inbound requests onto the fixed upstream and dispatches them.
// It holds no per-request state and is shared by every request.
type ProxyService struct {
	dispatcher Dispatcher
	agents     *useragent.Pool
	baseURL    string
	logger     *slog.Logger
}

// NewProxyService creates a ProxyService forwarding to cfg.Upstream.BaseURL.
func NewProxyService(d Dispatcher, agents *useragent.Pool, cfg *config.Config, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		dispatcher: d,
		agents:     agents,
		baseURL:    strings.TrimRight(cfg.Upstream.BaseURL, "/"),
		logger:     logger.With("component", "proxy_service"),
	}
}

// BaseURL returns the upstream base every request is forwarded to.
func (s *ProxyService) BaseURL() string {
	return s.baseURL
}

// Forward sends in upstream with a freshly chosen User-Agent. It makes
// exactly one attempt; a failure wraps *client.DispatchError.
// The caller is responsible for closing the response body.
func (s *ProxyService) Forward(ctx context.Context, in *model.InboundRequest) (*model.UpstreamResponse, error) {
	out := s.Build(in, s.agents.Choose())

	s.logger.Debug("forwarding request",
		"method", out.Method,
		"path", in.Path,
	)

	resp, err := s.dispatcher.Send(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}
	return resp, nil
}

// Build maps in onto an upstream request.
//
// The URL is the base URL followed by the inbound path verbatim and, when
// present, "?" and the raw query. A path without a leading "/" gets one, so
// the path can never extend the upstream host. User-Agent is always set; Authorization and
// If-None-Match only when the client sent them. Every method but GET carries
// a body, possibly empty.
func (s *ProxyService) Build(in *model.InboundRequest, userAgent string) *model.OutboundRequest {
	path := in.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := s.baseURL + path
	if in.RawQuery != "" {
		url += "?" + in.RawQuery
	}

	header := make(http.Header, 3)
	header.Set("User-Agent", userAgent)
	if in.Authorization != nil {
		header.Set("Authorization", *in.Authorization)
	}
	if in.CacheValidator != nil {
		header.Set("If-None-Match", *in.CacheValidator)
	}

	out := &model.OutboundRequest{
		URL:    url,
		Method: in.Method,
		Header: header,
	}
	if in.Method != http.MethodGet {
		out.HasBody = true
		out.Body = in.Body
		if out.Body == nil {
			out.Body = []byte{}
		}
	}
	return out
}
