package inbound

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"spotify-proxy-go/internal/model"
)

// EchoSource reads an InboundRequest from an echo request.
// The body is buffered in full; its size is bounded by the BodyLimit middleware.
type EchoSource struct {
	c echo.Context
}

// FromEcho wraps an echo context as a Source.
func FromEcho(c echo.Context) *EchoSource {
	return &EchoSource{c: c}
}

// Acquire implements Source.
func (s *EchoSource) Acquire(_ context.Context) (*model.InboundRequest, error) {
	req := s.c.Request()

	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = b
	}

	return &model.InboundRequest{
		Method:         req.Method,
		Path:           req.URL.EscapedPath(),
		RawQuery:       req.URL.RawQuery,
		Authorization:  firstHeader(req.Header, headerAuthorization),
		CacheValidator: firstHeader(req.Header, headerIfNoneMatch),
		Body:           body,
	}, nil
}

// firstHeader returns the first value of key, or nil when the header is absent.
func firstHeader(h http.Header, key string) *string {
	vals := h.Values(key)
	if len(vals) == 0 {
		return nil
	}
	v := vals[0]
	return &v
}
