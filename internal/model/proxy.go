// Package model defines the request-scoped types that flow through the proxy.
package model

import (
	"io"
	"net/http"
)

// Supported inbound methods.
var supportedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

// IsSupportedMethod reports whether method is one of GET, POST, PUT, DELETE, PATCH.
// Matching is exact; lowercase tokens are not supported methods.
func IsSupportedMethod(method string) bool {
	return supportedMethods[method]
}

// InboundRequest is what the proxy keeps from a client request. Only the
// two relayed headers survive acquisition; everything else is dropped.
type InboundRequest struct {
	Method   string
	Path     string
	RawQuery string

	// Authorization and CacheValidator are nil when the client did not send
	// the header, which is distinct from sending it empty.
	Authorization  *string
	CacheValidator *string

	Body []byte
}

// OutboundRequest is the upstream request built from an InboundRequest.
type OutboundRequest struct {
	URL    string
	Method string
	Header http.Header

	// HasBody is false for GET. For every other method the body is sent even
	// when empty, so the upstream sees an explicit zero Content-Length.
	HasBody bool
	Body    []byte
}

// UpstreamResponse is the upstream reply to be relayed back to the client.
// Body is read once and must be closed by the consumer.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
