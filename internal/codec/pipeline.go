// Package codec builds the layered body pipelines described in the
// body-pipeline component: an ordered stack of byte-transform layers
// between the wire and the user, composed per request/response
// direction from the declared headers and the agent's automatic
// content-encoding/charset-transcoding settings.
package codec

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/arn-dev/httpagent/internal/codec/chunked"
)

// Options controls which automatic layers the pipeline installs.
type Options struct {
	ContentDecode bool // install gzip decode layer on Content-Encoding: gzip
	ContentEncode bool // install gzip encode layer when body declares it
	CharsetDecode bool // install charset->UTF-8 layer for text/* responses

	// CharsetEncodeSource, when non-empty, names the charset the
	// request body pipeline transcodes the outgoing body into, from
	// UTF-8, on the way to the wire. Empty means the body is sent as-is.
	CharsetEncodeSource string
}

// DefaultOptions matches the agent's documented defaults: automatic
// gzip handling on, automatic charset transcoding on.
var DefaultOptions = Options{ContentDecode: true, ContentEncode: true, CharsetDecode: true}

// ResponseBody builds the response-side pipeline per the construction
// rules: framing layer (chunked / length-limited / until-EOF) first,
// then content-encoding, then charset transcoding. wire is the raw
// byte-stream reader sitting directly on the connection. Close on the
// returned ReadCloser closes the decode layers this function inserted
// (callers still decide connection reuse based on whether EOF was
// reached cleanly).
//
// noBody reports whether framing determined there can be no body at
// all regardless of headers (204, 304, HEAD responses; RFC 7230 §3.3.3).
func ResponseBody(wire io.Reader, header http.Header, statusCode int, noBody bool, opts Options) (io.ReadCloser, int64, error) {
	if noBody {
		return http.NoBody, 0, nil
	}

	var framed io.Reader
	contentLength := int64(-1)

	if isChunked(header) {
		framed = chunked.NewReader(wire)
	} else if cl, ok := parseContentLength(header); ok {
		contentLength = cl
		framed = io.LimitReader(wire, cl)
	} else {
		framed = wire
	}

	var closers []io.Closer
	out := framed

	if opts.ContentDecode && strings.EqualFold(header.Get("Content-Encoding"), "gzip") {
		rc, err := newGzipDecodeLayer(toReadCloser(out))
		if err != nil {
			return nil, 0, err
		}
		out = rc
		closers = append(closers, rc)
		contentLength = -1 // decompressed length is not the wire length
	}

	if opts.CharsetDecode && strings.HasPrefix(strings.ToLower(contentTypeOf(header)), "text/") {
		cs, _ := charsetOf(header)
		out = newCharsetDecodeLayer(out, cs, header.Get("Content-Type"))
	}

	return &pipelineReadCloser{r: out, closers: closers}, contentLength, nil
}

// RequestLayering describes how a request body should be framed on
// the wire: either a declared Content-Length, or chunked
// transfer-encoding (HTTP/1.1), or neither (HTTP/2 relies on
// END_STREAM framing).
type RequestLayering struct {
	ContentLength int64 // -1 when not set
	Chunked       bool
}

// PlanRequestLayering decides the framing for an outgoing body given
// its declared length and the protocol in use. http2 end-of-stream
// framing needs neither Content-Length nor chunked coding, matching
// the construction rule for request bodies.
func PlanRequestLayering(declaredLength int64, knownLength bool, isHTTP2 bool) RequestLayering {
	if knownLength {
		return RequestLayering{ContentLength: declaredLength}
	}
	if isHTTP2 {
		return RequestLayering{ContentLength: -1}
	}
	return RequestLayering{ContentLength: -1, Chunked: true}
}

// RequestBodyWriter wraps sink per layering/opts for HTTP/1.1 request
// bodies (chunked writer innermost-to-outermost ordering is the
// reverse of the response case: charset/gzip encode first, chunked
// frame last before the wire).
func RequestBodyWriter(sink io.Writer, layering RequestLayering, contentType, sourceCharset string, opts Options) io.WriteCloser {
	var w io.Writer = sink
	if layering.Chunked {
		w = chunked.NewWriter(sink)
	}

	var closers []func() error
	if cw, ok := w.(*chunked.Writer); ok {
		closers = append(closers, func() error { return cw.CloseWithTrailer(nil) })
	}

	if opts.ContentEncode && strings.EqualFold(contentType, "application/gzip") {
		gw := newGzipEncodeLayer(w)
		w = gw
		closers = append(closers, gw.Close)
	}

	if sourceCharset != "" {
		w = newCharsetEncodeLayer(w, sourceCharset)
	}

	return &pipelineWriteCloser{w: w, closers: closers}
}

type pipelineReadCloser struct {
	r       io.Reader
	closers []io.Closer
}

func (p *pipelineReadCloser) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *pipelineReadCloser) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type pipelineWriteCloser struct {
	w       io.Writer
	closers []func() error
}

func (p *pipelineWriteCloser) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p *pipelineWriteCloser) Close() error {
	var first error
	// Close in reverse layering order: innermost (closest to wire)
	// layer's trailer must be written last.
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func isChunked(h http.Header) bool {
	for _, v := range h["Transfer-Encoding"] {
		if strings.EqualFold(strings.TrimSpace(v), "chunked") {
			return true
		}
	}
	return false
}

func parseContentLength(h http.Header) (int64, bool) {
	v := h.Get("Content-Length")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func contentTypeOf(h http.Header) string {
	ct := h.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

func charsetOf(h http.Header) (string, bool) {
	ct := h.Get("Content-Type")
	const key = "charset="
	idx := strings.Index(strings.ToLower(ct), key)
	if idx < 0 {
		return "", false
	}
	rest := ct[idx+len(key):]
	if i := strings.IndexAny(rest, "; "); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.Trim(rest, `"'`)
	return rest, rest != ""
}

func toReadCloser(r io.Reader) io.ReadCloser {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(r)
}
