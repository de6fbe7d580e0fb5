// Package static maps request targets onto files under a document root and
// turns the outcome into a response.
package static

import (
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// IndexFile is served for directory-style targets
const IndexFile = "index.html"

const defaultContentType = "application/octet-stream"

// Outcome classifies a resolved target
type Outcome int

const (
	OutcomeFile Outcome = iota
	OutcomeNotFound
	OutcomeNoIndex
	OutcomeTraversal
	OutcomeMethodNotAllowed
	OutcomeBadTarget
	OutcomeError
)

var outcomeNames = map[Outcome]string{
	OutcomeFile:             "file",
	OutcomeNotFound:         "not found",
	OutcomeNoIndex:          "no index",
	OutcomeTraversal:        "traversal",
	OutcomeMethodNotAllowed: "method not allowed",
	OutcomeBadTarget:        "bad target",
	OutcomeError:            "error",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Resolved is the result of resolving one target. File is only set for
// OutcomeFile and must be closed by the caller.
type Resolved struct {
	Outcome     Outcome
	Name        string // slash-separated, relative to the document root
	File        fs.File
	Size        int64
	ContentType string
	Err         error
}

// Resolver looks targets up in a document root. The fs.FS is the
// confinement boundary: names handed to it never start with "/" and never
// contain "..".
type Resolver struct {
	fsys  fs.FS
	index string
}

func NewResolver(fsys fs.FS) *Resolver {
	return &Resolver{fsys: fsys, index: IndexFile}
}

// Resolve classifies method and raw target. Methods other than GET and
// HEAD, undecodable targets and traversal attempts are decided without
// touching the filesystem.
func (r *Resolver) Resolve(method, target string) Resolved {
	if method != "GET" && method != "HEAD" {
		return Resolved{Outcome: OutcomeMethodNotAllowed}
	}

	p, err := targetPath(target)
	if err != nil {
		return Resolved{Outcome: OutcomeBadTarget, Err: err}
	}

	if strings.Contains(p, "/../") {
		return Resolved{Outcome: OutcomeTraversal}
	}

	if strings.HasSuffix(p, "/") && !strings.Contains(p, ".") {
		return r.open(p+r.index, OutcomeNoIndex)
	}
	return r.open(p, OutcomeNotFound)
}

// targetPath extracts the percent-decoded path component of a request
// target. Query and fragment are dropped; absolute-form targets keep only
// their path.
func targetPath(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse target: %w", err)
	}
	if u.Opaque != "" {
		// "a:b" parses as scheme "a" with opaque "b"; the path is "b"
		p, err := url.PathUnescape(u.Opaque)
		if err != nil {
			return "", fmt.Errorf("parse target: %w", err)
		}
		return p, nil
	}
	if u.Path == "" {
		return "/", nil
	}
	return u.Path, nil
}

// fsName turns a decoded URL path into a name under the root. Cleaning a
// rooted path can never climb above "/".
func fsName(p string) string {
	name := strings.TrimPrefix(path.Clean("/"+p), "/")
	if name == "" {
		return "."
	}
	return name
}

func (r *Resolver) open(p string, miss Outcome) Resolved {
	name := fsName(p)

	f, err := r.fsys.Open(name)
	if err != nil {
		return Resolved{Outcome: miss, Name: name, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return Resolved{Outcome: miss, Name: name, Err: err}
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return Resolved{Outcome: miss, Name: name, Err: fmt.Errorf("%s: not a regular file", name)}
	}

	ct, err := contentType(f, name)
	if err != nil {
		f.Close()
		return Resolved{Outcome: OutcomeError, Name: name, Err: err}
	}

	return Resolved{
		Outcome:     OutcomeFile,
		Name:        name,
		File:        f,
		Size:        info.Size(),
		ContentType: ct,
	}
}

// contentType guesses from the extension first. Unknown extensions are
// sniffed from the first bytes, after which the file is rewound.
func contentType(f fs.File, name string) (string, error) {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct, nil
	}

	rs, ok := f.(io.ReadSeeker)
	if !ok {
		return defaultContentType, nil
	}

	m, detectErr := mimetype.DetectReader(rs)
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind %s: %w", name, err)
	}
	if detectErr != nil || m == nil {
		return defaultContentType, nil
	}
	return m.String(), nil
}
