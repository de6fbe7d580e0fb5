package request

import (
	"bufio"
	"io"

	"github.com/Brownie44l1/statichttp/internal/headers"
)

// Request is a parsed HTTP/1.x request head plus a handle on the bytes
// that follow it.
type Request struct {
	Method  string
	Target  string
	Version string
	Headers *headers.Headers

	// Body yields at most Content-Length bytes. Without a valid
	// Content-Length it is empty.
	Body io.Reader
}

// ReadRequest parses the request line and headers from r.
//
// A peer that closes before sending anything yields io.EOF. Requests that
// cannot be served yield a *ProtocolError carrying the status to answer
// with. Any other error comes from the transport.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	req := &Request{Headers: headers.NewHeaders()}
	p := newParser(r)

	if err := p.parseRequestLine(req); err != nil {
		return nil, err
	}
	if err := p.parseHeaders(req); err != nil {
		return nil, err
	}

	req.Body = newBodyReader(r, req.ContentLength())
	return req, nil
}

// RequestFromReader wraps r in a bufio.Reader unless it already is one.
func RequestFromReader(r io.Reader) (*Request, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return ReadRequest(br)
}
