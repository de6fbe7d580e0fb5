package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/statichttp/internal/config"
	"github.com/Brownie44l1/statichttp/internal/response"
)

var fixedNow = time.Date(1994, time.November, 6, 8, 49, 37, 0, time.UTC)

func testConfig(workers int) *config.Config {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.ThreadLimit = workers
	cfg.ReadTimeout = 5 * time.Second
	cfg.WriteTimeout = 5 * time.Second
	return cfg
}

// startServer serves h on a loopback listener and shuts it down when the
// test ends.
func startServer(t *testing.T, cfg *config.Config, h Handler) (*Server, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(cfg, h, zerolog.Nop())
	s.now = func() time.Time { return fixedNow }

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(ln)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, s.Shutdown(ctx))
		assert.NoError(t, <-errCh)
	})

	return s, ln.Addr().String()
}

func roundTrip(t *testing.T, addr, raw string) string {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	_, err = io.WriteString(conn, raw)
	require.NoError(t, err)

	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(got)
}

func echoHandler() Handler {
	return HandlerFunc(func(c *Context) {
		body := c.Request.Method + " " + c.Request.Target
		_ = c.Respond(response.Text(response.StatusOK, body))
	})
}

func TestServeRequest(t *testing.T) {
	_, addr := startServer(t, testConfig(2), echoHandler())

	got := roundTrip(t, addr, "GET /hello HTTP/1.1\r\nHost: localhost\r\n\r\n")

	assert.Equal(t, "HTTP/1.1 200 OK\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"Content-Length: 10\r\n"+
		"Server: server\r\n"+
		"Date: Sun, 06 Nov 1994 08:49:37 GMT\r\n"+
		"Connection: close\r\n"+
		"\r\n"+
		"GET /hello", got)
}

func TestServeHTTP10(t *testing.T) {
	_, addr := startServer(t, testConfig(1), echoHandler())

	got := roundTrip(t, addr, "HEAD /a HTTP/1.0\r\n\r\n")
	assert.True(t, strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n"), got)
	assert.True(t, strings.HasSuffix(got, "HEAD /a"), got)
}

func TestProtocolErrorResponses(t *testing.T) {
	var called atomic.Int32
	h := HandlerFunc(func(c *Context) {
		called.Add(1)
		_ = c.Respond(response.Empty(response.StatusOK))
	})
	_, addr := startServer(t, testConfig(2), h)

	var tooMany strings.Builder
	tooMany.WriteString("GET / HTTP/1.1\r\n")
	for i := 0; i <= 100; i++ {
		fmt.Fprintf(&tooMany, "X-H%d: v\r\n", i)
	}
	tooMany.WriteString("\r\n")

	cases := []struct {
		name   string
		raw    string
		status string
		body   string
	}{
		{"malformed request line", "GARBAGE\r\n\r\n", "400 Bad Request", "Malformed request line"},
		{"two part request line", "GET /\r\n\r\n", "400 Bad Request", "Malformed request line"},
		{"unsupported version", "GET / HTTP/2.0\r\n\r\n", "505 HTTP Version Not Supported", "HTTP Version Not Supported"},
		{"header line too long", "GET / HTTP/1.1\r\nX-Big: " + strings.Repeat("a", 70*1024) + "\r\n\r\n", "494 Request Header Too Large", "Request header too large"},
		{"too many headers", tooMany.String(), "494 Request Header Too Large", "Too many headers"},
		{"malformed header", "GET / HTTP/1.1\r\nno colon here\r\n\r\n", "400 Bad Request", "Malformed header"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := roundTrip(t, addr, tc.raw)
			assert.True(t, strings.HasPrefix(got, "HTTP/1.1 "+tc.status+"\r\n"), got)
			assert.Contains(t, got, "Connection: close\r\n")
			assert.True(t, strings.HasSuffix(got, "\r\n\r\n"+tc.body), got)
		})
	}

	assert.Zero(t, called.Load(), "handler must not see unparsable requests")
}

func TestEmptyConnectionGetsNoResponse(t *testing.T) {
	_, addr := startServer(t, testConfig(1), echoHandler())

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPanicBecomes500(t *testing.T) {
	h := HandlerFunc(func(c *Context) {
		panic("boom")
	})
	s, addr := startServer(t, testConfig(1), h)

	got := roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasPrefix(got, "HTTP/1.1 500 Internal Server Error\r\n"), got)

	// the worker survives the panic
	got = roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasPrefix(got, "HTTP/1.1 500 "), got)

	require.Eventually(t, func() bool {
		return s.Stats().Errors5xx == 2
	}, 2*time.Second, 10*time.Millisecond)
}

// blockingHandler holds every request until release is closed and records
// the highest number of requests in flight at once.
type blockingHandler struct {
	release  chan struct{}
	inflight atomic.Int32
	peak     atomic.Int32
}

func newBlockingHandler() *blockingHandler {
	return &blockingHandler{release: make(chan struct{})}
}

func (b *blockingHandler) ServeConn(c *Context) {
	n := b.inflight.Add(1)
	for {
		peak := b.peak.Load()
		if n <= peak || b.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	<-b.release
	b.inflight.Add(-1)
	_ = c.Respond(response.Text(response.StatusOK, "done"))
}

func sendAsync(t *testing.T, addr string, n int) <-chan string {
	t.Helper()

	results := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		conn.SetDeadline(time.Now().Add(10 * time.Second))
		_, err = io.WriteString(conn, "GET / HTTP/1.1\r\n\r\n")
		require.NoError(t, err)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			got, _ := io.ReadAll(conn)
			results <- string(got)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	h := newBlockingHandler()
	s, addr := startServer(t, testConfig(2), h)

	results := sendAsync(t, addr, 5)

	require.Eventually(t, func() bool {
		return h.inflight.Load() == 2 && s.Stats().QueuedConnections == 3
	}, 2*time.Second, 10*time.Millisecond)

	close(h.release)

	count := 0
	for got := range results {
		assert.True(t, strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n"), got)
		count++
	}
	assert.Equal(t, 5, count)
	assert.Equal(t, int32(2), h.peak.Load())

	require.Eventually(t, func() bool {
		stats := s.Stats()
		return stats.RequestsTotal == 5 && stats.Responses2xx == 5 && stats.ActiveConnections == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(5), s.Stats().ConnectionsAccepted)
	assert.Equal(t, 2, s.Stats().Workers)
}

func TestShutdownDrainsQueuedConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	h := newBlockingHandler()
	s := New(testConfig(1), h, zerolog.Nop())

	served := make(chan error, 1)
	go func() {
		served <- s.Serve(ln)
	}()

	results := sendAsync(t, addr, 3)
	require.Eventually(t, func() bool {
		return h.inflight.Load() == 1 && s.Stats().QueuedConnections == 2
	}, 2*time.Second, 10*time.Millisecond)

	shutdown := make(chan error, 1)
	go func() {
		shutdown <- s.Shutdown(context.Background())
	}()

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop still running after shutdown")
	}

	_, err = net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err, "listener must be closed")

	close(h.release)

	count := 0
	for got := range results {
		assert.True(t, strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n"), got)
		count++
	}
	assert.Equal(t, 3, count)

	select {
	case err := <-shutdown:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not wait for workers")
	}
}

func TestShutdownTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	h := newBlockingHandler()
	defer close(h.release)

	s := New(testConfig(1), h, zerolog.Nop())
	go s.Serve(ln)

	results := sendAsync(t, ln.Addr().String(), 1)
	require.Eventually(t, func() bool {
		return h.inflight.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = s.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		for range results {
		}
	}()
}

func TestServeAfterShutdown(t *testing.T) {
	s := New(testConfig(1), echoHandler(), zerolog.Nop())
	require.NoError(t, s.Shutdown(context.Background()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Serve(ln), ErrServerClosed)
}

func TestListenAndServe(t *testing.T) {
	cfg := testConfig(2)
	s := New(cfg, echoHandler(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.ListenAndServe(ctx)
	}()

	require.Eventually(t, func() bool {
		return s.Addr() != nil
	}, 2*time.Second, 10*time.Millisecond)

	got := roundTrip(t, s.Addr().String(), "GET /x HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasSuffix(got, "GET /x"), got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return")
	}
}

func TestListenAndServeBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(1)
	cfg.Port = ln.Addr().(*net.TCPAddr).Port

	s := New(cfg, echoHandler(), zerolog.Nop())
	err = s.ListenAndServe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}

func TestMiddlewareOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(c *Context) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				next.ServeConn(c)
			})
		}
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(testConfig(1), echoHandler(), zerolog.Nop())
	s.Use(mark("outer"), mark("inner"))
	go s.Serve(ln)
	defer s.Shutdown(context.Background())

	got := roundTrip(t, ln.Addr().String(), "GET / HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasPrefix(got, "HTTP/1.1 200 OK"), got)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestAccessLog(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var buf syncBuffer
	logger, err := NewLogger(&buf, "info", "json")
	require.NoError(t, err)

	s := New(testConfig(1), echoHandler(), logger)
	go s.Serve(ln)
	defer s.Shutdown(context.Background())

	roundTrip(t, ln.Addr().String(), "GET /logged HTTP/1.1\r\n\r\n")

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "request handled")
	}, 2*time.Second, 10*time.Millisecond)

	line := buf.String()
	assert.Contains(t, line, `"method":"GET"`)
	assert.Contains(t, line, `"target":"/logged"`)
	assert.Contains(t, line, `"status":200`)
	assert.Contains(t, line, `"conn_id":`)
	assert.Contains(t, line, `"worker":0`)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDeadlinesIgnoreResponseClock(t *testing.T) {
	cfg := testConfig(1)
	cfg.ReadTimeout = time.Second
	_, addr := startServer(t, cfg, echoHandler())

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	// the request arrives in two parts well inside the read timeout
	_, err = io.WriteString(conn, "GET /late HTTP/1.1\r\n")
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	_, err = io.WriteString(conn, "\r\n")
	require.NoError(t, err)

	got, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(got), "HTTP/1.1 200 OK\r\n"), string(got))
	assert.Contains(t, string(got), "Date: Sun, 06 Nov 1994 08:49:37 GMT\r\n")
}

func TestReadTimeoutClosesIdleConnection(t *testing.T) {
	cfg := testConfig(1)
	cfg.ReadTimeout = 100 * time.Millisecond
	_, addr := startServer(t, cfg, echoHandler())

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	start := time.Now()
	got, _ := io.ReadAll(conn)
	assert.Empty(t, got)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCompleteRequestDoesNotHoldWorker(t *testing.T) {
	cfg := testConfig(1)
	cfg.LingerTimeout = 3 * time.Second
	_, addr := startServer(t, cfg, echoHandler())

	// the first client reads its response but leaves its side open
	first, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer first.Close()
	first.SetDeadline(time.Now().Add(5 * time.Second))
	_, err = io.WriteString(first, "GET /first HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	got, err := io.ReadAll(first)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(got), "GET /first"), string(got))

	start := time.Now()
	got2 := roundTrip(t, addr, "GET /second HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasSuffix(got2, "GET /second"), got2)
	assert.Less(t, time.Since(start), time.Second, "worker lingered on a fully read request")
}

func TestUnreadInput(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want bool
	}{
		{"complete request", "GET / HTTP/1.1\r\n\r\n", false},
		{"unread body", "POST / HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc", true},
		{"pipelined bytes", "GET / HTTP/1.1\r\n\r\nGET /next HTTP/1.1\r\n\r\n", true},
		{"unparsed request", "GARBAGE\r\n\r\n", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server, client := net.Pipe()
			defer client.Close()

			go func() {
				io.WriteString(client, tc.raw)
				io.Copy(io.Discard, client)
			}()

			s := New(testConfig(1), nil, zerolog.Nop())
			c := s.newContext(0, server)
			s.dispatch(c, HandlerFunc(func(c *Context) {
				_ = c.Respond(response.Empty(response.StatusOK))
			}))
			server.Close()

			assert.Equal(t, tc.want, c.unreadInput())
		})
	}
}

func TestServeAndShutdownConcurrently(t *testing.T) {
	for i := 0; i < 50; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		s := New(testConfig(4), echoHandler(), zerolog.Nop())
		served := make(chan error, 1)
		go func() {
			served <- s.Serve(ln)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, s.Shutdown(ctx))
		cancel()

		err = <-served
		if err != nil {
			assert.ErrorIs(t, err, ErrServerClosed)
		}
	}
}
