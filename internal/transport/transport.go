package transport

import (
	"bufio"
	"context"
	"io"

	"github.com/arn-dev/httpagent/internal/codec"
	"github.com/arn-dev/httpagent/internal/model"
)

// Transport drives one request/response exchange over an
// already-connected, already-negotiated wire. HTTP1 implements it;
// HTTP/2 exchanges go through HTTP2.RoundTrip instead, and the
// exchange package picks between the two based on what the connection
// negotiated.
//
// Write and Read share the same buffered reader for one connection so
// that bytes consumed while watching for a 100-continue interim
// response are not lost to a later Read call. Write returns a non-nil
// response only when the peer answered with a final response before
// the body was sent, in which case Read is skipped entirely.
type Transport interface {
	Write(ctx context.Context, w io.Writer, br *bufio.Reader, req *model.PreparedRequest, opts codec.Options) (*model.Response, error)
	Read(ctx context.Context, br *bufio.Reader, req *model.PreparedRequest, opts codec.Options) (*model.Response, error)
}
