package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/arn-dev/httpagent/internal/codec"
	"github.com/arn-dev/httpagent/internal/herr"
	"github.com/arn-dev/httpagent/internal/model"
)

// HTTP1 drives a request/response exchange using HTTP/1.1 message
// syntax (RFC 9112) over an already-connected wire.
type HTTP1 struct{}

// continueTimeout bounds how long Write waits for a "100 Continue"
// interim response before sending the request body anyway. A var,
// not a const, so tests can shrink it.
var continueTimeout = 1 * time.Second

// Write sends the request line, headers, and body over w. br is the
// buffered reader for the same connection; it is only read from when
// the request carries "Expect: 100-continue", to watch for the
// interim response before committing to the body.
//
// If the peer answers with a final response instead of 100 Continue
// (e.g. 417 Expectation Failed), that response is returned directly
// and the body is never sent; the caller should use it in place of
// calling Read.
func (t HTTP1) Write(ctx context.Context, w io.Writer, br *bufio.Reader, r *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
	body, err := r.Body.Open()
	if err != nil {
		return nil, herr.New(herr.UserBodyError, "open request body", err)
	}
	defer body.Close()

	isHTTP2 := false
	layering := codec.PlanRequestLayering(r.ContentLength, r.ContentLength != -1, isHTTP2)
	if err := t.writeHeader(w, r, layering); err != nil {
		return nil, herr.New(herr.TransportReset, "write header", err)
	}

	if r.ContentLength != 0 && expectsContinue(r.Header) {
		early, proceed, err := t.awaitContinue(w, br, r, opts)
		if err != nil {
			return nil, err
		}
		if !proceed {
			return early, nil
		}
	}

	contentType, _ := r.Body.ContentTypeHint()
	bw := codec.RequestBodyWriter(w, layering, contentType, opts.CharsetEncodeSource, opts)
	if _, err := io.Copy(bw, body); err != nil {
		return nil, herr.New(herr.TransportReset, "write body", err)
	}
	if err := bw.Close(); err != nil {
		return nil, herr.New(herr.TransportReset, "finish body", err)
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return nil, herr.New(herr.TransportReset, "flush body", err)
		}
	}
	return nil, nil
}

// expectsContinue reports whether the request asked for the
// Expect-100 handshake, per RFC 9110 §10.1.1.
func expectsContinue(h http.Header) bool {
	return strings.EqualFold(h.Get("Expect"), "100-continue")
}

// awaitContinue flushes the header block already written to w, then
// waits up to continueTimeout for the peer to answer before the body
// is sent. A "100 Continue" (or nothing within the timeout) means
// proceed with the body; any other status is a final response the
// peer chose to send early instead of reading the body at all.
func (t HTTP1) awaitContinue(w io.Writer, br *bufio.Reader, req *model.PreparedRequest, opts codec.Options) (early *model.Response, proceed bool, err error) {
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return nil, false, herr.New(herr.TransportReset, "flush header", err)
		}
	}

	type deadlineSetter interface{ SetReadDeadline(time.Time) error }
	if d, ok := w.(deadlineSetter); ok {
		_ = d.SetReadDeadline(time.Now().Add(continueTimeout))
		defer d.SetReadDeadline(time.Time{})
	}

	head, err := readHead(br)
	if err != nil {
		if isTimeout(err) {
			return nil, true, nil
		}
		return nil, false, err
	}
	if head.statusCode == http.StatusContinue {
		return nil, true, nil
	}

	noBody := noBodyExpected(req.Method, head.statusCode)
	respBody, contentLength, err := codec.ResponseBody(br, head.header, head.statusCode, noBody, opts)
	if err != nil {
		return nil, false, herr.New(herr.ProtocolError, "build early response body", err)
	}
	resp := &model.Response{
		Proto:         head.proto,
		Status:        head.status,
		StatusCode:    head.statusCode,
		Header:        head.header,
		ContentLength: contentLength,
		Body:          respBody,
	}
	return resp, false, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// writeHeader writes the request line and header block:
//
//	GET /path HTTP/1.1\r\n
//	Host: example.com\r\n
//	X-Custom: value\r\n
//	\r\n
func (t HTTP1) writeHeader(w io.Writer, r *model.PreparedRequest, layering codec.RequestLayering) error {
	bw := bufio.NewWriter(w)

	bw.WriteString(r.Method)
	bw.WriteByte(' ')
	bw.WriteString(r.Target.RequestTarget())
	bw.WriteString(" HTTP/1.1\r\n")

	bw.WriteString("Host: ")
	bw.WriteString(r.Target.Authority())
	bw.WriteString("\r\n")

	switch {
	case layering.ContentLength >= 0:
		bw.WriteString("Content-Length: ")
		bw.WriteString(strconv.FormatInt(layering.ContentLength, 10))
		bw.WriteString("\r\n")
	case layering.Chunked:
		bw.WriteString("Transfer-Encoding: chunked\r\n")
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			bw.WriteString(k)
			bw.WriteString(": ")
			bw.WriteString(v)
			bw.WriteString("\r\n")
		}
	}
	bw.WriteString("\r\n")
	return bw.Flush()
}

// responseHead holds the parsed status line and header block of one
// HTTP/1.1 response, before the body is framed.
type responseHead struct {
	proto      string
	status     string
	statusCode int
	header     http.Header
}

// readHead parses one status line and header block from br, looping
// past any 1xx interim response (other than 101 Switching Protocols,
// which ends the HTTP/1.1 message exchange entirely) per RFC 9110
// §15.2: a 1xx response carries no body and is never the answer to
// the request, so ReadHead discards it and starts over.
func readHead(br *bufio.Reader) (responseHead, error) {
	tp := textproto.NewReader(br)
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return responseHead{}, herr.New(herr.ProtocolError, "read status line", err)
		}
		proto, status, ok := strings.Cut(line, " ")
		if !ok {
			return responseHead{}, herr.New(herr.ProtocolError, "read status line", errMalformedResponse("missing status line separator"))
		}
		status = strings.TrimLeft(status, " ")

		statusCode, _, _ := strings.Cut(status, " ")
		if len(statusCode) != 3 {
			return responseHead{}, herr.New(herr.ProtocolError, "read status line", errMalformedResponse("status code is not 3 digits"))
		}
		code, err := strconv.Atoi(statusCode)
		if err != nil || code < 0 {
			return responseHead{}, herr.New(herr.ProtocolError, "read status line", errMalformedResponse("status code is not numeric"))
		}

		mimeHeader, err := tp.ReadMIMEHeader()
		if err != nil {
			return responseHead{}, herr.New(herr.ProtocolError, "read headers", err)
		}

		if code >= 100 && code <= 199 && code != http.StatusSwitchingProtocols {
			continue
		}
		return responseHead{proto: proto, status: status, statusCode: code, header: http.Header(mimeHeader)}, nil
	}
}

// Read parses the response status line, headers, and body from br,
// which must be the same buffered reader passed to Write so that no
// bytes read while watching for a 100-continue interim response are
// lost.
func (t HTTP1) Read(ctx context.Context, br *bufio.Reader, req *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
	head, err := readHead(br)
	if err != nil {
		return nil, err
	}

	noBody := noBodyExpected(req.Method, head.statusCode)
	body, contentLength, err := codec.ResponseBody(br, head.header, head.statusCode, noBody, opts)
	if err != nil {
		return nil, herr.New(herr.ProtocolError, "build response body", err)
	}

	return &model.Response{
		Proto:         head.proto,
		Status:        head.status,
		StatusCode:    head.statusCode,
		Header:        head.header,
		Body:          body,
		ContentLength: contentLength,
	}, nil
}

type errMalformedResponse string

func (e errMalformedResponse) Error() string { return "transport: malformed response: " + string(e) }
