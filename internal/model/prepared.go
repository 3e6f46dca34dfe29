package model

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/arn-dev/httpagent/internal/herr"
	"github.com/arn-dev/httpagent/internal/uriutil"
)

// PreparedRequest is a Request after URI normalization and header
// resolution: a Content-Length header (if any) is merged into
// ContentLength and removed from the header map that travels with the
// request line, avoiding double emission. Every other header, Host
// included, stays in Header unchanged.
type PreparedRequest struct {
	*Request

	Target *uriutil.Normalized
	Header http.Header

	ContentLength int64 // -1 when undeclared
}

// Prepare resolves r into a PreparedRequest, enforcing the invariant
// that a caller-declared Content-Length header and the body source's
// own declared length must agree when both are present.
func (r *Request) Prepare() (*PreparedRequest, error) {
	target, err := uriutil.Normalize(r.URL)
	if err != nil {
		return nil, err
	}

	headers := r.Header.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	cl := int64(-1)
	for k, v := range headers {
		switch strings.ToLower(k) {
		case "content-length":
			if len(v) != 0 {
				if n, err := strconv.ParseInt(v[0], 10, 64); err == nil {
					cl = n
				}
			}
			delete(headers, k)
		}
	}

	body := r.Body
	if body == nil {
		body = Empty
	}
	if declared, ok := body.DeclaredLength(); ok {
		if cl != -1 && cl != declared {
			return nil, herr.New(herr.InvalidURI, "prepare",
				errContentLengthMismatch)
		}
		cl = declared
	}

	return &PreparedRequest{
		Request:       &Request{Method: r.Method, URL: r.URL, Header: r.Header, Body: body, Config: r.Config},
		Target:        target,
		Header:        headers,
		ContentLength: cl,
	}, nil
}

type prepErr string

func (e prepErr) Error() string { return string(e) }

const errContentLengthMismatch = prepErr("content-length header disagrees with body's declared length")
