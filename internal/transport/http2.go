package transport

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/arn-dev/httpagent/internal/codec"
	"github.com/arn-dev/httpagent/internal/h2"
	"github.com/arn-dev/httpagent/internal/herr"
	"github.com/arn-dev/httpagent/internal/model"
	"golang.org/x/net/http2"
)

// HTTP2 drives one request/response exchange as a stream multiplexed
// over an already-negotiated *h2.Conn. Unlike HTTP1, it doesn't fit
// the plain io.Writer/io.Reader Transport shape: a stream needs the
// shared connection object to open itself, so callers use RoundTrip
// directly instead of going through the Transport interface. Request
// writing completes before response headers are read, the same
// sequential shape as the HTTP/1.1 driver; full request/response
// overlap is left to a future revision.
type HTTP2 struct{}

func (HTTP2) RoundTrip(ctx context.Context, conn *h2.Conn, req *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
	stream, err := conn.OpenStream(ctx)
	if err != nil {
		return nil, herr.New(herr.ConnectFailure, "open h2 stream", err)
	}

	body, err := req.Body.Open()
	if err != nil {
		return nil, herr.New(herr.UserBodyError, "open request body", err)
	}
	defer body.Close()

	hasBody := req.ContentLength != 0
	pseudo := req.Target.PseudoHeaders(req.Method)

	err = stream.WriteHeaders(ctx, func(emit func(k, v string)) {
		for _, kv := range pseudo {
			emit(kv[0], kv[1])
		}
		if req.ContentLength >= 0 {
			emit("content-length", strconv.FormatInt(req.ContentLength, 10))
		}
		for k, vs := range req.Header {
			lk := strings.ToLower(k)
			for _, v := range vs {
				emit(lk, v)
			}
		}
	}, !hasBody)
	if err != nil {
		_ = stream.Reset(http2.ErrCodeCancel)
		return nil, herr.New(herr.TransportReset, "write h2 headers", err)
	}

	if hasBody {
		layering := codec.PlanRequestLayering(req.ContentLength, req.ContentLength != -1, true)
		contentType, _ := req.Body.ContentTypeHint()
		bw := codec.RequestBodyWriter(&dataFrameWriter{ctx: ctx, stream: stream}, layering, contentType, opts.CharsetEncodeSource, opts)
		if _, err := io.Copy(bw, body); err != nil {
			_ = stream.Reset(http2.ErrCodeCancel)
			return nil, herr.New(herr.TransportReset, "write h2 body", err)
		}
		if err := bw.Close(); err != nil {
			_ = stream.Reset(http2.ErrCodeCancel)
			return nil, herr.New(herr.TransportReset, "finish h2 body", err)
		}
		if err := stream.WriteDataChunk(ctx, nil, true); err != nil {
			return nil, herr.New(herr.TransportReset, "end h2 stream", err)
		}
	}

	resp := &model.Response{Proto: "HTTP/2.0", Header: map[string][]string{}}
	var statusCode string
	if err := stream.ReadHeaders(ctx, func(k, v string) {
		if k == ":status" {
			statusCode = v
			return
		}
		resp.Header.Add(k, v)
	}); err != nil {
		return nil, herr.New(herr.ProtocolError, "read h2 headers", err)
	}
	resp.Status = statusCode
	resp.StatusCode = statusCodeToInt(statusCode)

	noBody := noBodyExpected(req.Method, resp.StatusCode)
	respBody, contentLength, err := codec.ResponseBody(stream.Body(), resp.Header, resp.StatusCode, noBody, opts)
	if err != nil {
		return nil, herr.New(herr.ProtocolError, "build h2 response body", err)
	}
	resp.Body = respBody
	resp.ContentLength = contentLength
	return resp, nil
}

// dataFrameWriter adapts a *h2.Stream into an io.Writer by sending
// each Write call as one non-terminal DATA frame.
type dataFrameWriter struct {
	ctx    context.Context
	stream *h2.Stream
}

func (d *dataFrameWriter) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if err := d.stream.WriteDataChunk(d.ctx, b, false); err != nil {
		return 0, err
	}
	return len(b), nil
}

func statusCodeToInt(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
