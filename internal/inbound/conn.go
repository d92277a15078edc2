package inbound

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"spotify-proxy-go/internal/model"
)

var headerTerminator = []byte("\r\n\r\n")

// ConnSource reads and hand-parses one HTTP/1.1 request from a raw connection.
type ConnSource struct {
	conn        net.Conn
	maxBytes    int
	readTimeout time.Duration
	singleRead  bool
}

// ConnOptions bounds how much and how long ConnSource reads.
type ConnOptions struct {
	// MaxBytes is the size of the single request buffer.
	MaxBytes int
	// ReadTimeout bounds the whole acquisition, not each read.
	ReadTimeout time.Duration
	// SingleRead issues exactly one Read call, so a request split across
	// segments is truncated to whatever arrived first.
	SingleRead bool
}

// FromConn wraps conn as a Source.
func FromConn(conn net.Conn, opts ConnOptions) *ConnSource {
	return &ConnSource{
		conn:        conn,
		maxBytes:    opts.MaxBytes,
		readTimeout: opts.ReadTimeout,
		singleRead:  opts.SingleRead,
	}
}

// Acquire implements Source. It returns ErrAbandoned when nothing usable
// arrived and *RejectError for a malformed request line or method.
func (s *ConnSource) Acquire(ctx context.Context) (*model.InboundRequest, error) {
	raw, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return ParseRequest(raw)
}

// read fills one buffer from the connection until the request is complete,
// the buffer is full, or the deadline passes. A read error after some bytes
// arrived ends the read but keeps what was received.
func (s *ConnSource) read(ctx context.Context) ([]byte, error) {
	deadline := time.Now().Add(s.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, ErrAbandoned
	}
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()

	// Cancellation interrupts a blocked Read by moving the deadline into the past.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	buf := make([]byte, s.maxBytes)
	n := 0
	for n < len(buf) {
		m, err := s.conn.Read(buf[n:])
		n += m
		if err != nil || s.singleRead || requestComplete(buf[:n]) {
			break
		}
	}

	if n == 0 {
		return nil, ErrAbandoned
	}
	return buf[:n], nil
}

// requestComplete reports whether b holds the full head and, when a
// Content-Length is declared, the full body.
func requestComplete(b []byte) bool {
	idx := bytes.Index(b, headerTerminator)
	if idx < 0 {
		return false
	}
	want := declaredContentLength(string(b[:idx]))
	return len(b)-(idx+len(headerTerminator)) >= want
}

// declaredContentLength returns the Content-Length in head, or 0.
func declaredContentLength(head string) int {
	for _, line := range strings.Split(head, "\r\n") {
		if v, ok := cutHeader(line, "Content-Length"); ok {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return 0
			}
			return n
		}
	}
	return 0
}

// ParseRequest parses raw request bytes.
//
// The request line must hold at least a method and a path token, else a 400
// rejection. The method must be GET, POST, PUT, DELETE or PATCH, else a 405
// rejection; this is decided before any header is looked at. A path that
// does not start with "/" is a 400 rejection. Authorization
// and If-None-Match are matched case-insensitively, first occurrence wins.
// For non-GET methods the body is every byte after the first blank line.
func ParseRequest(raw []byte) (*model.InboundRequest, error) {
	head := raw
	sep := bytes.Index(raw, headerTerminator)
	if sep >= 0 {
		head = raw[:sep]
	}
	// Only the head must be text; the body is relayed as raw bytes.
	if !utf8.Valid(head) {
		return nil, ErrAbandoned
	}

	lines := strings.Split(string(head), "\r\n")
	tokens := strings.Fields(lines[0])
	if len(tokens) < 2 {
		return nil, &RejectError{Status: http.StatusBadRequest, Reason: "malformed request line"}
	}
	method, path := tokens[0], tokens[1]
	if !model.IsSupportedMethod(method) {
		return nil, &RejectError{Status: http.StatusMethodNotAllowed, Reason: "unsupported method " + strconv.Quote(method)}
	}
	// Only origin-form targets are accepted; anything else would be spliced
	// into the upstream authority.
	if !strings.HasPrefix(path, "/") {
		return nil, &RejectError{Status: http.StatusBadRequest, Reason: "request target must start with '/'"}
	}

	in := &model.InboundRequest{
		Method: method,
		Path:   path,
	}
	for _, line := range lines[1:] {
		if in.Authorization == nil {
			if v, ok := cutHeader(line, headerAuthorization); ok {
				in.Authorization = &v
				continue
			}
		}
		if in.CacheValidator == nil {
			if v, ok := cutHeader(line, headerIfNoneMatch); ok {
				in.CacheValidator = &v
			}
		}
	}

	if method != http.MethodGet {
		in.Body = []byte{}
		if sep >= 0 {
			in.Body = raw[sep+len(headerTerminator):]
		}
	}
	return in, nil
}

// cutHeader matches "Name:" at the start of line, ignoring case, and returns
// the trimmed value.
func cutHeader(line, name string) (string, bool) {
	if len(line) <= len(name) || line[len(name)] != ':' || !strings.EqualFold(line[:len(name)], name) {
		return "", false
	}
	return strings.TrimSpace(line[len(name)+1:]), true
}
