package request

import (
	"errors"
	"strings"
)

var (
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrUnsupportedVersion   = errors.New("unsupported HTTP version")
)

const (
	Version10 = "HTTP/1.0"
	Version11 = "HTTP/1.1"
)

// parseRequestLine parses: METHOD TARGET VERSION
// Returns: method, target, version, error
func parseRequestLine(line string) (string, string, string, error) {
	// Any run of whitespace separates the tokens
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return "", "", "", ErrMalformedRequestLine
	}

	method, target, version := parts[0], parts[1], parts[2]

	if !isValidVersion(version) {
		return "", "", "", ErrUnsupportedVersion
	}

	return method, target, version, nil
}

// isValidVersion checks if HTTP version is supported
func isValidVersion(version string) bool {
	return version == Version10 || version == Version11
}
