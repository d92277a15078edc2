// Package inbound turns a client request into a model.InboundRequest.
//
// Two sources exist: EchoSource reads a request already parsed by the echo
// framework, and ConnSource hand-parses HTTP/1.1 bytes read off an accepted
// socket. Everything downstream of Acquire is shared.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"spotify-proxy-go/internal/model"
)

// Relayed inbound headers. All other client headers are dropped.
const (
	headerAuthorization = "Authorization"
	headerIfNoneMatch   = "If-None-Match"
)

// Source produces one InboundRequest or reports why the request is aborted.
type Source interface {
	Acquire(ctx context.Context) (*model.InboundRequest, error)
}

// ErrAbandoned means the request is dropped without any response: nothing
// was read before the deadline, or the request head was not valid text.
var ErrAbandoned = errors.New("inbound request abandoned")

// RejectError means the request is answered with a bare 4xx status line
// and never reaches the upstream.
type RejectError struct {
	Status int
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("reject request: %d %s: %s", e.Status, http.StatusText(e.Status), e.Reason)
}
