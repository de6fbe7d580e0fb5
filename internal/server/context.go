package server

import (
	"bufio"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Brownie44l1/statichttp/internal/request"
	"github.com/Brownie44l1/statichttp/internal/response"
)

// Context carries one connection through its single request/response
// cycle. It is owned by exactly one worker.
type Context struct {
	ID      string
	Worker  int
	Conn    net.Conn
	Request *request.Request // nil until the request head is parsed
	Writer  *response.Writer
	Logger  zerolog.Logger
	Start   time.Time

	reader     *bufio.Reader
	serverName string
	now        func() time.Time
}

func (s *Server) newContext(worker int, conn net.Conn) *Context {
	id := uuid.NewString()
	return &Context{
		ID:     id,
		Worker: worker,
		Conn:   conn,
		Writer: response.NewWriter(conn),
		Logger: s.Logger.With().
			Str("conn_id", id).
			Int("worker", worker).
			Str("remote", remoteAddr(conn)).
			Logger(),
		Start:      s.now(),
		reader:     bufio.NewReaderSize(conn, 4096),
		serverName: s.cfg.ServerName,
		now:        s.now,
	}
}

// Respond stamps the headers every response carries and sends resp. The
// connection is never reused, so Connection: close is always set.
func (c *Context) Respond(resp *response.Response) error {
	response.Stamp(resp, c.serverName, c.now())
	return c.Writer.Send(resp)
}

// Error sends a short text error response
func (c *Context) Error(code response.StatusCode, message string) error {
	return c.Respond(response.Error(code, message))
}

// Method returns the request method, or "" before parsing
func (c *Context) Method() string {
	if c.Request == nil {
		return ""
	}
	return c.Request.Method
}

// Target returns the raw request target, or "" before parsing
func (c *Context) Target() string {
	if c.Request == nil {
		return ""
	}
	return c.Request.Target
}

// Status is the status of the response written so far, 0 if none
func (c *Context) Status() response.StatusCode {
	return c.Writer.StatusCode()
}

// unreadInput reports whether the peer may still have bytes in flight that
// closing the socket would turn into a reset: a response went out before
// the request was fully read.
func (c *Context) unreadInput() bool {
	if !c.Writer.Started() {
		return false
	}
	if c.Request == nil || c.reader.Buffered() > 0 {
		return true
	}
	return c.Request.ContentLength() > 0
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
