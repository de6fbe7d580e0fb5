package server

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/Brownie44l1/statichttp/internal/request"
	"github.com/Brownie44l1/statichttp/internal/response"
)

const maxLingerBytes = 256 << 10

// worker is one long-lived member of the pool. It serves queued
// connections one at a time until the queue is closed and drained.
func (s *Server) worker(id int, h Handler) {
	defer s.workers.Done()

	for {
		conn, ok := s.queue.Pop()
		if !ok {
			return
		}
		s.serveConn(id, conn, h)
	}
}

// serveConn runs one request/response cycle and closes the connection
func (s *Server) serveConn(worker int, conn net.Conn, h Handler) {
	defer conn.Close()

	s.metrics.ActiveConnections.Add(1)
	defer s.metrics.ActiveConnections.Add(-1)

	// deadlines follow the wall clock, s.now only stamps responses
	if s.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}

	c := s.newContext(worker, conn)
	h.ServeConn(c)

	if s.cfg.LingerTimeout > 0 && c.unreadInput() {
		linger(conn, c.reader, s.cfg.LingerTimeout)
	}
}

// linger reads and discards what the peer still sends after the response
// so that closing the socket does not reset it before the peer has read
// the response.
func linger(conn net.Conn, r io.Reader, timeout time.Duration) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	io.Copy(io.Discard, io.LimitReader(r, maxLingerBytes))
}

// dispatch parses the request head and hands it to next. Requests that
// cannot be parsed are answered here.
func (s *Server) dispatch(c *Context, next Handler) {
	req, err := request.ReadRequest(c.reader)
	if err != nil {
		s.handleReadError(c, err)
		return
	}

	c.Request = req
	next.ServeConn(c)
}

func (s *Server) handleReadError(c *Context, err error) {
	var perr *request.ProtocolError
	switch {
	case errors.As(err, &perr):
		c.Logger.Info().Err(err).Msg("protocol error")
		s.sendError(c, response.StatusCode(perr.Status), perr.Message)

	case errors.Is(err, io.EOF):
		c.Logger.Debug().Msg("peer closed before sending a request")

	default:
		c.Logger.Debug().Err(err).Msg("read request")
	}
}

// sendError answers with a mapped error response, falling back to 500 when
// that cannot be sent and nothing reached the client yet.
func (s *Server) sendError(c *Context, code response.StatusCode, message string) {
	err := c.Error(code, message)
	if err == nil {
		return
	}

	c.Logger.Debug().Err(err).Int("status", int(code)).Msg("send error response")
	if c.Writer.Reset() {
		if err := c.Error(response.StatusInternalServerError, ""); err != nil {
			c.Logger.Debug().Err(err).Msg("send fallback response")
		}
	}
}
