package request

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// MaxHeaders caps the number of header lines in one request.
const MaxHeaders = 100

const (
	StatusBadRequest             = 400
	StatusRequestHeaderTooLarge  = 494
	StatusHTTPVersionUnsupported = 505
)

var (
	ErrHeaderTooLarge  = errors.New("request header too large")
	ErrTooManyHeaders  = errors.New("too many headers")
	ErrMalformedHeader = errors.New("malformed header")
)

// ProtocolError is a request that cannot be served. Status is the HTTP
// status to answer with and Message a short text for the body.
type ProtocolError struct {
	Status  int
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolError(status int, msg string, err error) *ProtocolError {
	return &ProtocolError{Status: status, Message: msg, Err: err}
}

// parser reads the request line and the header block from one connection
type parser struct {
	lines *lineReader
}

func newParser(r *bufio.Reader) *parser {
	return &parser{lines: newLineReader(r, MaxLine)}
}

func (p *parser) parseRequestLine(req *Request) error {
	raw, err := p.lines.readLine()
	if err != nil {
		if errors.Is(err, ErrLineTooLong) {
			return protocolError(StatusBadRequest, "Request line is too long", err)
		}
		return err
	}

	method, target, version, err := parseRequestLine(latin1(raw))
	if err != nil {
		if errors.Is(err, ErrUnsupportedVersion) {
			return protocolError(StatusHTTPVersionUnsupported, "HTTP Version Not Supported", err)
		}
		return protocolError(StatusBadRequest, "Malformed request line", err)
	}

	req.Method = method
	req.Target = target
	req.Version = version
	return nil
}

// parseHeaders reads header lines up to the first blank line (or EOF),
// then parses the collected block.
func (p *parser) parseHeaders(req *Request) error {
	lines := make([]string, 0, 16)
	for {
		raw, err := p.lines.readLine()
		if err != nil {
			if errors.Is(err, ErrLineTooLong) {
				return protocolError(StatusRequestHeaderTooLarge, "Request header too large", ErrHeaderTooLarge)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		if len(raw) == 0 {
			break
		}

		lines = append(lines, latin1(raw))
		if len(lines) > MaxHeaders {
			return protocolError(StatusRequestHeaderTooLarge, "Too many headers", ErrTooManyHeaders)
		}
	}

	for _, line := range lines {
		if err := req.Headers.ParseLine(line); err != nil {
			return protocolError(StatusBadRequest, "Malformed header", fmt.Errorf("%w: %v", ErrMalformedHeader, err))
		}
	}
	return nil
}
