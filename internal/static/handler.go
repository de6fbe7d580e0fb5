package static

import (
	"io"
	"io/fs"

	"github.com/Brownie44l1/statichttp/internal/response"
	"github.com/Brownie44l1/statichttp/internal/server"
)

// Handler serves GET and HEAD for files under a document root
type Handler struct {
	resolver *Resolver
}

func NewHandler(fsys fs.FS) *Handler {
	return &Handler{resolver: NewResolver(fsys)}
}

// ServeConn answers the request held by c
func (h *Handler) ServeConn(c *server.Context) {
	res := h.resolver.Resolve(c.Request.Method, c.Request.Target)
	if res.Outcome != OutcomeFile {
		c.Logger.Debug().
			Stringer("outcome", res.Outcome).
			Str("name", res.Name).
			AnErr("cause", res.Err).
			Msg("target not served")
	}

	resp, closer := h.build(c.Request.Method, res)
	if closer != nil {
		defer closer.Close()
	}

	if err := c.Respond(resp); err != nil {
		ev := c.Logger.Debug()
		if c.Writer.HadError() {
			// the peer went away mid response
			ev = c.Logger.Info()
		}
		ev.Err(err).Str("name", res.Name).Msg("send response")
	}
}

// lookup builds the response for method and target. The returned closer,
// when not nil, releases the opened file once the response is sent.
func (h *Handler) lookup(method, target string) (*response.Response, io.Closer) {
	return h.build(method, h.resolver.Resolve(method, target))
}

func (h *Handler) build(method string, res Resolved) (*response.Response, io.Closer) {
	switch res.Outcome {
	case OutcomeFile:
		var body io.Reader
		if method == "GET" {
			body = res.File
		}
		return response.File(res.ContentType, res.Size, body), res.File

	case OutcomeNotFound:
		return response.Empty(response.StatusNotFound), nil

	case OutcomeNoIndex, OutcomeTraversal:
		return response.Empty(response.StatusForbidden), nil

	case OutcomeMethodNotAllowed:
		resp := response.Empty(response.StatusMethodNotAllowed)
		resp.Headers.Set("Allow", "GET, HEAD")
		return resp, nil

	case OutcomeBadTarget:
		return response.Error(response.StatusBadRequest, "Malformed request target"), nil

	default:
		return response.Error(response.StatusInternalServerError, ""), nil
	}
}
