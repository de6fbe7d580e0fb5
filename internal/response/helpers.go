package response

import (
	"io"
	"strconv"
	"time"
)

// DateFormat is the IMF-fixdate layout used for the Date header
const DateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Empty builds a response with no body and Content-Length: 0
func Empty(code StatusCode) *Response {
	r := New(code)
	r.Headers.Set("Content-Length", "0")
	return r
}

// Text builds a plain text response
func Text(code StatusCode, body string) *Response {
	r := New(code)
	r.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	r.Headers.Set("Content-Length", strconv.Itoa(len(body)))
	r.Body = []byte(body)
	return r
}

// Error builds a short text error response. An empty message falls back to
// the reason phrase.
func Error(code StatusCode, message string) *Response {
	if message == "" {
		message = StatusText(code)
	}
	return Text(code, message)
}

// File builds a 200 response for size bytes of content. A nil src leaves
// the body out but keeps the headers, which is what HEAD needs.
func File(contentType string, size int64, src io.Reader) *Response {
	r := New(StatusOK)
	if contentType != "" {
		r.Headers.Set("Content-Type", contentType)
	}
	r.Headers.Set("Content-Length", strconv.FormatInt(size, 10))
	r.Stream = src
	return r
}

// Stamp adds the headers every response carries: Server (unless serverName
// is empty or the header is already set), Date and Connection: close.
// Connections serve a single request, so Connection is always overwritten.
func Stamp(r *Response, serverName string, now time.Time) {
	if _, ok := r.Headers.Get("Server"); !ok && serverName != "" {
		r.Headers.Set("Server", serverName)
	}
	if _, ok := r.Headers.Get("Date"); !ok {
		r.Headers.Set("Date", now.UTC().Format(DateFormat))
	}
	r.Headers.Set("Connection", "close")
}
