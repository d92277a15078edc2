// Package client provides the upstream HTTP client shared by every request.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"spotify-proxy-go/internal/config"
	"spotify-proxy-go/internal/metrics"
	"spotify-proxy-go/internal/model"
)

// DispatchError reports that the upstream call failed before a response was
// received (DNS, TLS, connection refused, timeout, canceled context).
type DispatchError struct {
	Method string
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Method, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// UpstreamClient sends outbound requests with one process-lifetime http.Client,
// so idle connections are reused across requests.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Upstream.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.Upstream.ResponseHeaderTimeoutSeconds) * time.Second,
		ForceAttemptHTTP2:     true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			// Zero leaves long streamed downloads unbounded; the response
			// header timeout above still bounds the dispatch itself.
			Timeout: time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Send performs exactly one upstream call for out. There is no retry.
// A request that carries an empty body is sent with an explicit zero
// Content-Length whatever its method. On success the caller owns the response body and must close it.
// Transport failures are returned as *DispatchError.
func (c *UpstreamClient) Send(ctx context.Context, out *model.OutboundRequest) (*model.UpstreamResponse, error) {
	var body io.Reader
	if out.HasBody {
		body = bytes.NewReader(out.Body)
	}

	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL, body)
	if err != nil {
		return nil, &DispatchError{Method: out.Method, Err: fmt.Errorf("build upstream request: %w", err)}
	}
	req.Header = out.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if out.HasBody && len(out.Body) == 0 {
		// The transport only writes "Content-Length: 0" on its own for POST,
		// PUT and PATCH; "identity" forces it for every method.
		req.Body = http.NoBody
		req.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
		req.ContentLength = 0
		req.TransferEncoding = []string{"identity"}
	}

	return c.Do(req)
}

// Do executes an HTTP request against the upstream and returns the raw response.
// The caller is responsible for closing the response body.
func (c *UpstreamClient) Do(req *http.Request) (*model.UpstreamResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
			c.metrics.UpstreamResponses.WithLabelValues(method, "error").Inc()
		}
		return nil, &DispatchError{Method: req.Method, Err: err}
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
