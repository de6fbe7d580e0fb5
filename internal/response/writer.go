package response

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/Brownie44l1/statichttp/internal/headers"
)

var ErrUnencodable = errors.New("header text not representable in ISO-8859-1")

// writerState tracks what's been written so far
type writerState int

const (
	stateStart writerState = iota
	stateStatusWritten
	stateHeadersWritten
	stateBodyWritten
	stateClosed
)

// Writer writes one HTTP response to an io.Writer. The status line and
// headers are buffered; file bodies are copied straight to the destination.
type Writer struct {
	out        *countingWriter
	bw         *bufio.Writer
	enc        *encoding.Encoder
	state      writerState
	statusCode StatusCode
	hadError   bool
}

// NewWriter creates a new response writer
func NewWriter(w io.Writer) *Writer {
	out := &countingWriter{w: w}
	return &Writer{
		out:   out,
		bw:    bufio.NewWriterSize(out, 4096),
		enc:   charmap.ISO8859_1.NewEncoder(),
		state: stateStart,
	}
}

// WriteStatusLine writes "HTTP/1.1 <code> <reason>". An empty reason uses
// the standard phrase.
func (w *Writer) WriteStatusLine(code StatusCode, reason string) error {
	if w.state != stateStart {
		return fmt.Errorf("status line already written")
	}

	if reason == "" {
		reason = StatusText(code)
	}

	if err := w.writeLatin1(fmt.Sprintf("HTTP/1.1 %d %s\r\n", code, reason)); err != nil {
		return err
	}

	w.statusCode = code
	w.state = stateStatusWritten
	return nil
}

// WriteHeaders writes all headers in order followed by the blank line
func (w *Writer) WriteHeaders(h *headers.Headers) error {
	if w.state != stateStatusWritten {
		return fmt.Errorf("must write status line before headers")
	}

	err := h.Each(func(name, value string) error {
		return w.writeLatin1(name + ": " + value + "\r\n")
	})
	if err != nil {
		return err
	}

	if _, err := w.bw.WriteString("\r\n"); err != nil {
		w.hadError = true
		return err
	}

	w.state = stateHeadersWritten
	return nil
}

// WriteBody writes an in-memory body
func (w *Writer) WriteBody(data []byte) error {
	if w.state != stateHeadersWritten {
		return fmt.Errorf("must write headers before body")
	}

	if _, err := w.bw.Write(data); err != nil {
		w.hadError = true
		return err
	}

	w.state = stateBodyWritten
	return nil
}

// WriteStream copies exactly size bytes from src. Buffered output is
// flushed first so the copy can go straight to the destination, which lets
// a TCP connection use sendfile.
func (w *Writer) WriteStream(src io.Reader, size int64) error {
	if w.state != stateHeadersWritten {
		return fmt.Errorf("must write headers before body")
	}

	if err := w.bw.Flush(); err != nil {
		w.hadError = true
		return err
	}

	n, err := w.out.ReadFrom(io.LimitReader(src, size))
	if err != nil {
		w.hadError = true
		return err
	}
	if n != size {
		w.hadError = true
		return fmt.Errorf("%w: sent %d of %d bytes", ErrLengthMismatch, n, size)
	}

	w.state = stateBodyWritten
	return nil
}

// Flush pushes buffered bytes to the destination
func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		w.hadError = true
		return err
	}
	return nil
}

// Close flushes and, when the destination supports it, shuts down its
// write side so the peer sees the end of the response.
func (w *Writer) Close() error {
	if w.state == stateClosed {
		return nil
	}
	if err := w.Flush(); err != nil {
		return err
	}
	w.state = stateClosed

	if cw, ok := w.out.w.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

// Send writes a complete response and closes the write side
func (w *Writer) Send(resp *Response) error {
	if err := resp.Validate(); err != nil {
		return err
	}

	if err := w.WriteStatusLine(resp.Status, resp.Reason); err != nil {
		return err
	}
	if err := w.WriteHeaders(resp.Headers); err != nil {
		return err
	}

	switch {
	case resp.Stream != nil:
		if err := w.WriteStream(resp.Stream, resp.ContentLength()); err != nil {
			return err
		}
	case resp.Body != nil:
		if err := w.WriteBody(resp.Body); err != nil {
			return err
		}
	}

	return w.Close()
}

// Reset drops everything buffered so a different response can be written.
// It fails once any byte has reached the destination.
func (w *Writer) Reset() bool {
	if w.Started() {
		return false
	}
	w.bw.Reset(w.out)
	w.state = stateStart
	w.statusCode = 0
	w.hadError = false
	return true
}

func (w *Writer) writeLatin1(s string) error {
	encoded, err := w.enc.String(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnencodable, s)
	}
	if _, err := w.bw.WriteString(encoded); err != nil {
		w.hadError = true
		return err
	}
	return nil
}

// State tracking methods for logging and error recovery

// Started reports whether any byte reached the destination
func (w *Writer) Started() bool {
	return w.out.n > 0
}

func (w *Writer) HadError() bool {
	return w.hadError
}

func (w *Writer) StatusCode() StatusCode {
	return w.statusCode
}

// BytesWritten counts bytes that reached the destination
func (w *Writer) BytesWritten() int64 {
	return w.out.n
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *countingWriter) ReadFrom(r io.Reader) (int64, error) {
	if rf, ok := c.w.(io.ReaderFrom); ok {
		n, err := rf.ReadFrom(r)
		c.n += n
		return n, err
	}

	buf := getBuffer()
	defer putBuffer(buf)
	return io.CopyBuffer(writerOnly{c}, r, *buf)
}

// writerOnly hides ReadFrom so io.CopyBuffer uses the pooled buffer
type writerOnly struct {
	io.Writer
}
