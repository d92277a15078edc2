// Package rawserver accepts TCP connections and serves exactly one
// hand-parsed request per connection through the shared proxy pipeline.
package rawserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"spotify-proxy-go/internal/config"
	"spotify-proxy-go/internal/inbound"
	"spotify-proxy-go/internal/metrics"
	"spotify-proxy-go/internal/relay"
	"spotify-proxy-go/internal/service"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("rawserver: server closed")

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second

	// lingerTimeout and lingerMaxBytes bound the drain of unread request
	// bytes after the response is written.
	lingerTimeout  = 500 * time.Millisecond
	lingerMaxBytes = 256 << 10
)

// Server runs one task per accepted connection. A slow or failing
// connection never blocks the accept loop or other connections.
type Server struct {
	opts    inbound.ConnOptions
	service *service.ProxyService
	logger  *slog.Logger
	metrics *metrics.Metrics

	writeFailures *rate.Sometimes

	// ctx is the parent of every connection context; cancel aborts
	// in-flight reads and upstream calls.
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu         sync.Mutex
	ln         net.Listener
	acceptDone chan struct{}
	closing    atomic.Bool
}

// New creates a Server. The metrics parameter is optional.
func New(cfg *config.Config, svc *service.ProxyService, logger *slog.Logger, m *metrics.Metrics) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts: inbound.ConnOptions{
			MaxBytes:    cfg.Server.Raw.MaxRequestBytes,
			ReadTimeout: cfg.Server.Raw.ReadTimeout(),
			SingleRead:  cfg.Server.Raw.SingleRead,
		},
		service:       svc,
		logger:        logger.With("component", "rawserver"),
		metrics:       m,
		writeFailures: &rate.Sometimes{Interval: time.Second},
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Serve accepts connections on ln until Shutdown is called or the listener
// fails permanently. It always returns a non-nil error.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.acceptDone = make(chan struct{})
	done := s.acceptDone
	s.mu.Unlock()
	defer close(done)

	s.logger.Info("raw listener started", "addr", ln.Addr().String())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			s.logger.Warn("accept failed; retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.group.Go(func() error {
			s.serveConn(s.ctx, conn)
			return nil
		})
	}
}

// Shutdown stops accepting connections and waits for in-flight ones to
// finish. If ctx expires first, in-flight connections are canceled and
// ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing.Store(true)
	ln, acceptDone := s.ln, s.acceptDone
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
		<-acceptDone
	}

	drained := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-drained
		return ctx.Err()
	}
}

// serveConn handles the full lifecycle of one connection: acquire, forward,
// relay, close.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer closeConn(conn)

	log := s.logger.With("conn_id", uuid.NewString(), "remote", conn.RemoteAddr().String())

	if s.metrics != nil {
		s.metrics.RawConnectionsActive.Inc()
		defer s.metrics.RawConnectionsActive.Dec()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("connection task panicked", "panic", r)
		}
	}()

	in, err := inbound.FromConn(conn, s.opts).Acquire(ctx)
	if err != nil {
		var rej *inbound.RejectError
		if errors.As(err, &rej) {
			log.Debug("request rejected", "status", rej.Status, "reason", rej.Reason)
			if werr := relay.WriteRawStatus(conn, rej.Status); werr != nil {
				log.Debug("write rejection failed", "err", werr)
			}
			s.observe(metrics.OutcomeRejected, strconv.Itoa(rej.Status))
			return
		}
		log.Debug("request abandoned", "err", err)
		s.observe(metrics.OutcomeAbandoned, "none")
		return
	}

	resp, err := s.service.Forward(ctx, in)
	if err != nil {
		log.Error("upstream dispatch failed",
			"err", err,
			"method", in.Method,
			"path", in.Path,
		)
		_ = relay.WriteRawBadGateway(conn)
		s.observe(metrics.OutcomeBadGateway, "502")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	n, err := relay.WriteRaw(conn, resp)
	if s.metrics != nil {
		s.metrics.RelayedBytes.Add(float64(n))
	}
	if err != nil {
		s.writeFailures.Do(func() {
			log.Debug("response stream ended early",
				"err", err,
				"path", in.Path,
				"bytes", n,
			)
		})
	}
	s.observe(metrics.OutcomeRelayed, strconv.Itoa(resp.StatusCode))
}

// closeConn half-closes conn and discards what the client still has in
// flight before closing it. Closing a TCP socket with unread input makes the
// kernel send a reset, which can destroy a response the client has not read
// yet, e.g. when a request was larger than the read buffer.
func closeConn(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err == nil {
			_ = tc.SetReadDeadline(time.Now().Add(lingerTimeout))
			_, _ = io.Copy(io.Discard, io.LimitReader(tc, lingerMaxBytes))
		}
	}
	_ = conn.Close()
}

func (s *Server) observe(outcome, status string) {
	if s.metrics != nil {
		s.metrics.RawConnections.WithLabelValues(outcome, status).Inc()
	}
}
