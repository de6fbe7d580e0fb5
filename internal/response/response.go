package response

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/Brownie44l1/statichttp/internal/headers"
)

var ErrLengthMismatch = errors.New("body length does not match Content-Length")

// Response is a status line, ordered headers and an optional body. The body
// is either Body (in memory) or Stream (read lazily while writing); when
// both are nil the response has no body, as for HEAD.
type Response struct {
	Status  StatusCode
	Reason  string
	Headers *headers.Headers
	Body    []byte
	Stream  io.Reader
}

// New creates a response with the standard reason phrase for status
func New(status StatusCode) *Response {
	return &Response{
		Status:  status,
		Reason:  StatusText(status),
		Headers: headers.NewHeaders(),
	}
}

// ContentLength returns the advertised Content-Length, or -1 when there is
// none.
func (r *Response) ContentLength() int64 {
	cl, ok := r.Headers.Get("Content-Length")
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// Validate checks that an in-memory body matches the advertised length and
// that a streamed body has one.
func (r *Response) Validate() error {
	if r.Body != nil && r.Stream != nil {
		return fmt.Errorf("response has both a buffered and a streamed body")
	}

	cl := r.ContentLength()
	if r.Body != nil && cl >= 0 && int64(len(r.Body)) != cl {
		return fmt.Errorf("%w: body %d, header %d", ErrLengthMismatch, len(r.Body), cl)
	}
	if r.Stream != nil && cl < 0 {
		return fmt.Errorf("streamed body requires Content-Length")
	}
	return nil
}
