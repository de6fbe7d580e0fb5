package server

import (
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/Brownie44l1/statichttp/internal/response"
)

// Handler serves one parsed request on a connection
type Handler interface {
	ServeConn(c *Context)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(c *Context)

func (f HandlerFunc) ServeConn(c *Context) {
	f(c)
}

// Middleware wraps a Handler
type Middleware func(next Handler) Handler

// RecoveryMiddleware recovers from panics. A 500 goes out if nothing has
// reached the client yet; otherwise the connection is just closed.
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(c *Context) {
			defer func() {
				if err := recover(); err != nil {
					c.Logger.Error().
						Interface("panic", err).
						Str("stack", string(debug.Stack())).
						Str("target", sanitizeValue(c.Target())).
						Msg("panic recovered")

					if c.Writer.Reset() {
						_ = c.Error(response.StatusInternalServerError, "")
					}
				}
			}()

			next.ServeConn(c)
		})
	}
}

// LoggingMiddleware writes one access log line per connection
func LoggingMiddleware() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(c *Context) {
			next.ServeConn(c)

			status := c.Status()
			var ev *zerolog.Event
			switch {
			case status == 0:
				ev = c.Logger.Debug()
			case status.IsServerError(), c.Writer.HadError():
				ev = c.Logger.Warn()
			default:
				ev = c.Logger.Info()
			}

			ev.Str("method", c.Method()).
				Str("target", sanitizeValue(c.Target())).
				Int("status", int(status)).
				Int64("bytes", c.Writer.BytesWritten()).
				Bool("write_failed", c.Writer.HadError()).
				Dur("duration", c.now().Sub(c.Start)).
				Msg("request handled")
		})
	}
}

// MetricsMiddleware records response metrics
func MetricsMiddleware(metrics *Metrics) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(c *Context) {
			next.ServeConn(c)

			if status := c.Status(); status != 0 {
				metrics.RecordRequest(int(status), c.now().Sub(c.Start), c.Writer.BytesWritten())
			}
		})
	}
}
