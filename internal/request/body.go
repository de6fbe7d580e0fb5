package request

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const maxBodySize = 10 << 20 // 10MB for ReadBody

var (
	ErrBodyTooLarge  = errors.New("request body exceeds maximum size")
	ErrInvalidLength = errors.New("invalid Content-Length")
	ErrUnexpectedEOF = errors.New("unexpected EOF in request body")
)

// ContentLength returns the declared body length, or -1 when the header is
// missing or unusable.
func (r *Request) ContentLength() int64 {
	cl, ok := r.Headers.Get("content-length")
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// ReadBody reads exactly Content-Length bytes. A request without a body
// returns nil.
func (r *Request) ReadBody() ([]byte, error) {
	cl := r.ContentLength()
	if cl <= 0 {
		if _, ok := r.Headers.Get("content-length"); ok && cl < 0 {
			return nil, ErrInvalidLength
		}
		return nil, nil
	}
	if cl > maxBodySize {
		return nil, ErrBodyTooLarge
	}

	buf := make([]byte, cl)
	if _, err := io.ReadFull(r.Body, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: want %d bytes", ErrUnexpectedEOF, cl)
		}
		return nil, err
	}
	return buf, nil
}

func newBodyReader(r *bufio.Reader, cl int64) io.Reader {
	if cl <= 0 {
		return strings.NewReader("")
	}
	return io.LimitReader(r, cl)
}
