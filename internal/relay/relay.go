// Package relay writes upstream responses back to clients.
//
// Bodies are streamed one chunk at a time through a pooled fixed-size
// buffer, so memory per request does not grow with the payload. Every write
// function returns its result instead of acting on it: a client that went
// away mid-response is not a server error, and callers decide explicitly
// whether to log or drop the failure.
package relay

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"spotify-proxy-go/internal/model"
)

// ChunkSize is the largest body slice held in memory at once.
const ChunkSize = 32 * 1024

// BadGatewayBody is the fixed diagnostic sent when the upstream call fails.
const BadGatewayBody = "Upstream error"

// framingHeaders are dropped when the response is re-serialized by hand:
// the body is re-streamed and the connection close delimits it.
var framingHeaders = map[string]bool{
	"Content-Length":    true,
	"Transfer-Encoding": true,
}

var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, ChunkSize)
		return &b
	},
}

// ReasonPhrase returns the canonical reason for code, or "OK" when the
// code has none.
func ReasonPhrase(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "OK"
}

// WriteRaw writes resp as HTTP/1.1 text: status line, every upstream header
// except Content-Length and Transfer-Encoding, a blank line, then the body.
// It returns the number of body bytes written.
func WriteRaw(w io.Writer, resp *model.UpstreamResponse) (int64, error) {
	var head bytes.Buffer
	fmt.Fprintf(&head, "HTTP/1.1 %d %s\r\n", resp.StatusCode, ReasonPhrase(resp.StatusCode))
	if err := resp.Header.WriteSubset(&head, framingHeaders); err != nil {
		return 0, err
	}
	head.WriteString("\r\n")

	if _, err := w.Write(head.Bytes()); err != nil {
		return 0, fmt.Errorf("write head to client: %w", err)
	}
	return Stream(w, resp.Body, nil)
}

// WriteRawStatus writes a bare status line for code with no headers or body.
func WriteRawStatus(w io.Writer, code int) error {
	_, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n\r\n", code, ReasonPhrase(code))
	return err
}

// WriteRawBadGateway writes the 502 fallback with its fixed body and no headers.
func WriteRawBadGateway(w io.Writer) error {
	_, err := io.WriteString(w, "HTTP/1.1 502 Bad Gateway\r\n\r\n"+BadGatewayBody)
	return err
}

// WriteHTTP relays resp through a framework-owned ResponseWriter. All upstream
// headers pass through since the server owns response framing. Each chunk is
// flushed as soon as it is written. It returns the number of body bytes written.
func WriteHTTP(w http.ResponseWriter, resp *model.UpstreamResponse) (int64, error) {
	dst := w.Header()
	for key, vals := range resp.Header {
		for _, v := range vals {
			dst.Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	rc := http.NewResponseController(w)
	return Stream(w, resp.Body, func() {
		_ = rc.Flush()
	})
}

// WriteHTTPBadGateway writes the 502 fallback through a ResponseWriter.
func WriteHTTPBadGateway(w http.ResponseWriter) error {
	w.WriteHeader(http.StatusBadGateway)
	_, err := io.WriteString(w, BadGatewayBody)
	return err
}

// Stream copies src to dst one chunk at a time, calling flush after each
// chunk when it is non-nil. It stops at the first read or write error.
func Stream(dst io.Writer, src io.Reader, flush func()) (int64, error) {
	bp := chunkPool.Get().(*[]byte)
	defer chunkPool.Put(bp)
	buf := *bp

	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			m, werr := dst.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, fmt.Errorf("write body to client: %w", werr)
			}
			if m < n {
				return written, fmt.Errorf("write body to client: %w", io.ErrShortWrite)
			}
			if flush != nil {
				flush()
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("read upstream body: %w", rerr)
		}
	}
}
