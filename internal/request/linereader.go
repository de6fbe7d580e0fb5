package request

import (
	"bufio"
	"errors"
	"io"

	"golang.org/x/text/encoding/charmap"
)

// MaxLine is the longest line, terminator included, accepted for the
// request line and for each header line.
const MaxLine = 64 * 1024

var ErrLineTooLong = errors.New("line too long")

// lineReader reads CRLF or LF terminated lines from a buffered stream.
// similar to readLineSlice() in net/textproto/reader.go, plus a length cap
type lineReader struct {
	r   *bufio.Reader
	max int
}

func newLineReader(r *bufio.Reader, max int) *lineReader {
	if max <= 0 {
		max = MaxLine
	}
	return &lineReader{r: r, max: max}
}

// readLine returns the next line without its terminator. A final line cut
// short by EOF is returned as is; io.EOF is only returned when no byte was
// read at all. ErrLineTooLong is returned as soon as the line grows past
// the limit, without waiting for the rest of it.
func (lr *lineReader) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := lr.r.ReadSlice('\n')
		if len(line)+len(chunk) > lr.max {
			return nil, ErrLineTooLong
		}
		line = append(line, chunk...)

		if err == nil {
			return trimEOL(line), nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return trimEOL(line), nil
		}
		return nil, err
	}
}

func trimEOL(line []byte) []byte {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
		if n > 0 && line[n-1] == '\r' {
			n--
		}
	}
	return line[:n]
}

// latin1 decodes raw framing bytes as ISO-8859-1. Every byte maps to one
// code point so nothing is lost.
func latin1(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		// ISO-8859-1 has no invalid bytes
		return string(b)
	}
	return string(s)
}
