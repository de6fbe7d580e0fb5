// Package server accepts TCP connections and serves each one on a fixed
// pool of worker goroutines. Every connection carries exactly one request.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Brownie44l1/statichttp/internal/config"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

var ErrServerClosed = errors.New("server closed")

type Server struct {
	Logger zerolog.Logger

	cfg         *config.Config
	handler     Handler
	middlewares []Middleware
	metrics     *Metrics
	queue       *connQueue

	mu       sync.Mutex
	listener net.Listener

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	workers   sync.WaitGroup

	now func() time.Time
}

// New creates a server that serves handler with cfg.ThreadLimit workers
func New(cfg *config.Config, handler Handler, logger zerolog.Logger) *Server {
	return &Server{
		Logger:  logger,
		cfg:     cfg,
		handler: handler,
		metrics: NewMetrics(),
		queue:   newConnQueue(cfg.QueueSize),
		done:    make(chan struct{}),
		now:     time.Now,
	}
}

// Use adds middleware inside the built-in logging, metrics and recovery
// layers. It must be called before Serve.
func (s *Server) Use(mw ...Middleware) {
	s.middlewares = append(s.middlewares, mw...)
}

// ListenAndServe binds cfg.Address and serves until ctx is cancelled, then
// shuts down within cfg.ShutdownTimeout. A bind failure is returned
// immediately.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Address(), err)
	}

	s.Logger.Info().
		Str("addr", ln.Addr().String()).
		Int("workers", s.cfg.ThreadLimit).
		Int("queue_size", s.cfg.QueueSize).
		Msg("listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx := context.Background()
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Serve starts the worker pool and accepts connections on ln until the
// server is shut down. It returns nil after a shutdown.
func (s *Server) Serve(ln net.Listener) error {
	// the closed check and workers.Add share s.mu with Shutdown, so Wait
	// never races with Add
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.workers.Add(s.cfg.ThreadLimit)
	s.mu.Unlock()

	h := s.chain()
	for i := 0; i < s.cfg.ThreadLimit; i++ {
		go s.worker(i, h)
	}

	defer s.queue.Close()
	return s.acceptLoop(ln)
}

func (s *Server) acceptLoop(ln net.Listener) error {
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			s.Logger.Warn().Err(err).Dur("retry_in", backoff).Msg("accept failed")

			select {
			case <-time.After(backoff):
			case <-s.done:
				return nil
			}
			continue
		}
		backoff = 0

		s.metrics.ConnectionsAccepted.Add(1)
		if !s.queue.Push(conn) {
			conn.Close()
		}
	}
}

// chain wraps the request dispatcher. Recovery sits inside logging and
// metrics so a recovered panic is still counted as a 500.
func (s *Server) chain() Handler {
	var h Handler = HandlerFunc(func(c *Context) {
		s.dispatch(c, s.handler)
	})

	for i := len(s.middlewares) - 1; i >= 0; i-- {
		h = s.middlewares[i](h)
	}

	h = RecoveryMiddleware()(h)
	h = MetricsMiddleware(s.metrics)(h)
	return LoggingMiddleware()(h)
}

// Shutdown stops accepting, lets the workers drain the queued
// connections and waits for them or for ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()

		close(s.done)
		s.queue.Close()
	})

	finished := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// Stats returns a snapshot of the server counters
func (s *Server) Stats() MetricsSnapshot {
	snap := s.metrics.Snapshot()
	snap.QueuedConnections = s.queue.Len()
	snap.Workers = s.cfg.ThreadLimit
	return snap
}

// Addr returns the listening address, or nil before Serve
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
