// Package exchange drives one logical request through to a response:
// lease or dial a connection, pick the HTTP/1.1 or HTTP/2 driver based
// on what got negotiated, and release the connection back to its pool
// (or the h2 session cache) when the exchange finishes. Redirects and
// retries are layers above this; exchange only ever speaks to one
// connection for one request.
package exchange

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"github.com/arn-dev/httpagent/internal/codec"
	"github.com/arn-dev/httpagent/internal/dialer"
	"github.com/arn-dev/httpagent/internal/h2"
	"github.com/arn-dev/httpagent/internal/herr"
	"github.com/arn-dev/httpagent/internal/model"
	"github.com/arn-dev/httpagent/internal/pool"
	"github.com/arn-dev/httpagent/internal/transport"
	"github.com/arn-dev/httpagent/internal/uriutil"
)

// Exchange owns the connection pool, the HTTP/2 session cache, and
// the dialer used to populate both.
type Exchange struct {
	pool   *pool.Group
	dialer *dialer.CoreDialer
	h1     transport.HTTP1
	h2drv  transport.HTTP2

	muH2  sync.Mutex
	h2Sessions map[uriutil.PoolKey]*h2.Conn
}

// New builds an Exchange. maxIdlePerHost/maxConnsPerHost/maxIdleDuration
// configure the HTTP/1.1 connection pool; HTTP/2 sessions are cached
// one-per-key independent of those bounds, since a single h2 connection
// multiplexes concurrent streams up to the peer's
// MAX_CONCURRENT_STREAMS limit.
func New(d *dialer.CoreDialer, maxIdlePerHost, maxConnsPerHost int, maxIdleDuration time.Duration) *Exchange {
	return &Exchange{
		pool:       pool.NewGroup(maxIdlePerHost, maxConnsPerHost, maxIdleDuration),
		dialer:     d,
		h2Sessions: map[uriutil.PoolKey]*h2.Conn{},
	}
}

// EvictExpiredIdle sweeps the HTTP/1.1 pool for idle connections past
// their idle timeout. Call periodically from a background tick.
func (e *Exchange) EvictExpiredIdle() { e.pool.EvictExpiredAll() }

// IdleCounts reports the current HTTP/1.1 idle connection count per
// host, for metrics reporting.
func (e *Exchange) IdleCounts() map[string]int { return e.pool.IdleCounts() }

// Close drains every idle HTTP/1.1 connection and tears down cached
// HTTP/2 sessions. In-flight HTTP/1.1 exchanges are not interrupted;
// streams still open on a torn-down HTTP/2 session end with it.
func (e *Exchange) Close() {
	e.pool.DrainAll()
	e.muH2.Lock()
	defer e.muH2.Unlock()
	for key, c := range e.h2Sessions {
		_ = c.GoAway(0)
		delete(e.h2Sessions, key)
	}
}

// Do sends req over a connection for req.Target.Key and returns the
// response. The caller must Close resp.Body to release resources.
func (e *Exchange) Do(ctx context.Context, req *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
	key := req.Target.Key

	conn, err := e.h2SessionOrNil(key)
	if err == nil && conn != nil {
		return e.doH2(ctx, conn, req, opts)
	}

	pc, err := e.pool.Lease(ctx, key, e.dialer.Dial(req.Target))
	if err != nil {
		return nil, err
	}
	if pc.Proto == pool.ProtoHTTP2 {
		h2c, err := e.adoptH2Session(ctx, key, pc)
		if err != nil {
			pc.MarkBroken()
			pc.Release()
			return nil, err
		}
		return e.doH2(ctx, h2c, req, opts)
	}
	return e.doH1(ctx, pc, req, opts)
}

func (e *Exchange) h2SessionOrNil(key uriutil.PoolKey) (*h2.Conn, error) {
	e.muH2.Lock()
	defer e.muH2.Unlock()
	c, ok := e.h2Sessions[key]
	if !ok {
		return nil, nil
	}
	if err := c.Err(); err != nil {
		delete(e.h2Sessions, key)
		return nil, nil
	}
	return c, nil
}

// adoptH2Session hands the just-dialed connection to the h2 cache
// instead of the idle-list pool: HTTP/2 sessions are shared across
// every concurrent request for the key, not leased exclusively.
func (e *Exchange) adoptH2Session(ctx context.Context, key uriutil.PoolKey, pc *pool.Conn) (*h2.Conn, error) {
	e.muH2.Lock()
	defer e.muH2.Unlock()
	if existing, ok := e.h2Sessions[key]; ok {
		if existing.Err() == nil {
			// Someone else won the race to adopt this key; this
			// connection becomes surplus and closes.
			pc.MarkBroken()
			pc.Release()
			return existing, nil
		}
		delete(e.h2Sessions, key)
	}
	c := h2.New(pc.Conn)
	if err := c.Handshake(ctx); err != nil {
		return nil, herr.New(herr.ProtocolError, "h2 handshake", err)
	}
	e.h2Sessions[key] = c
	return c, nil
}

func (e *Exchange) doH2(ctx context.Context, c *h2.Conn, req *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
	return e.h2drv.RoundTrip(ctx, c, req, opts)
}

func (e *Exchange) doH1(ctx context.Context, pc *pool.Conn, req *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
	br := bufio.NewReader(pc.Conn)

	resp, err := e.h1.Write(ctx, pc.Conn, br, req, opts)
	if err != nil {
		pc.MarkBroken()
		pc.Release()
		return nil, err
	}
	if resp == nil {
		resp, err = e.h1.Read(ctx, br, req, opts)
		if err != nil {
			pc.MarkBroken()
			pc.Release()
			return nil, err
		}
	}

	resp.Body = &releasingBody{ReadCloser: toReadCloser(resp.Body), pc: pc}
	return resp, nil
}

func toReadCloser(r io.Reader) io.ReadCloser {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(r)
}

// releasingBody wraps a response body so the underlying connection
// returns to the pool on a clean Close, or is discarded on an early
// Close (caller gave up before reading to EOF) or a read error.
type releasingBody struct {
	io.ReadCloser
	pc   *pool.Conn
	done bool
}

func (b *releasingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err == io.EOF {
		b.done = true
	} else if err != nil {
		b.pc.MarkBroken()
	}
	return n, err
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	if !b.done {
		b.pc.MarkBroken()
	}
	b.pc.Release()
	return err
}
