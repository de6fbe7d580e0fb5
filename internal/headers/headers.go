package headers

import (
	"fmt"
	"strings"
)

type field struct {
	name  string
	value string
}

// Headers is an ordered header collection with case-insensitive lookup.
// Names keep the case they were added with so responses go out the way
// they were built.
type Headers struct {
	fields []field
}

func NewHeaders() *Headers {
	return &Headers{
		fields: make([]field, 0, 8),
	}
}

// Get returns the last value for a header
func (h *Headers) Get(key string) (string, bool) {
	for i := len(h.fields) - 1; i >= 0; i-- {
		if strings.EqualFold(h.fields[i].name, key) {
			return h.fields[i].value, true
		}
	}
	return "", false
}

// GetAll returns all values for a header in arrival order
func (h *Headers) GetAll(key string) []string {
	var values []string
	for _, f := range h.fields {
		if strings.EqualFold(f.name, key) {
			values = append(values, f.value)
		}
	}
	return values
}

// Set replaces all values for a header. The header keeps the position of
// its first occurrence.
func (h *Headers) Set(key, value string) {
	idx := -1
	kept := h.fields[:0]
	for _, f := range h.fields {
		if strings.EqualFold(f.name, key) {
			if idx == -1 {
				idx = len(kept)
				kept = append(kept, field{name: key, value: value})
			}
			continue
		}
		kept = append(kept, f)
	}
	h.fields = kept
	if idx == -1 {
		h.fields = append(h.fields, field{name: key, value: value})
	}
}

// Add appends a value to a header
func (h *Headers) Add(key, value string) {
	h.fields = append(h.fields, field{name: key, value: value})
}

func (h *Headers) Len() int {
	return len(h.fields)
}

// Each calls fn for every header in order, stopping at the first error.
func (h *Headers) Each(fn func(name, value string) error) error {
	for _, f := range h.fields {
		if err := fn(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

// ParseLine parses a single "Name: value" header line (without its line
// terminator) and appends it.
func (h *Headers) ParseLine(line string) error {
	if line == "" {
		return fmt.Errorf("malformed header: empty line")
	}

	// Obsolete line folding is rejected
	if line[0] == ' ' || line[0] == '\t' {
		return fmt.Errorf("malformed header: obsolete line folding not supported")
	}

	name, value, err := parseHeader(line)
	if err != nil {
		return err
	}

	h.Add(name, value)
	return nil
}

func parseHeader(line string) (string, string, error) {
	colonIdx := strings.IndexByte(line, ':')
	if colonIdx == -1 {
		return "", "", fmt.Errorf("malformed header: no colon")
	}

	name := line[:colonIdx]
	value := line[colonIdx+1:]

	if name == "" {
		return "", "", fmt.Errorf("malformed header: empty name")
	}

	if strings.ContainsAny(name, " \t") {
		return "", "", fmt.Errorf("malformed header: whitespace in name")
	}

	for i := 0; i < len(name); i++ {
		if !isValidHeaderChar(name[i]) {
			return "", "", fmt.Errorf("malformed header: invalid character in name: %q", name[i])
		}
	}

	return name, strings.TrimSpace(value), nil
}

func isValidHeaderChar(b byte) bool {
	return (b >= 'A' && b <= 'Z') ||
		(b >= 'a' && b <= 'z') ||
		(b >= '0' && b <= '9') ||
		b == '!' || b == '#' || b == '$' || b == '%' || b == '&' ||
		b == '\'' || b == '*' || b == '+' || b == '-' || b == '.' ||
		b == '^' || b == '_' || b == '`' || b == '|' || b == '~'
}
