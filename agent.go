package httpagent

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arn-dev/httpagent/internal/agentcore"
	"github.com/arn-dev/httpagent/internal/dialer"
	"github.com/arn-dev/httpagent/internal/runtime"
)

// Agent sends Requests through a shared connection pool and cookie
// jar, following redirects and retrying transport faults per its
// configured policies. An Agent is safe to share across concurrent
// callers; it holds no lock of its own, delegating to the pool's and
// jar's fine-grained locking.
type Agent struct {
	core *agentcore.Agent
}

// Option configures an Agent at construction time.
type Option func(*agentcore.Config)

// New builds an Agent applying the documented defaults overlaid with
// opts, in the order given.
func New(opts ...Option) *Agent {
	cfg := agentcore.DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Agent{core: agentcore.New(cfg)}
}

// Send dispatches req and returns its response, or the first
// unrecovered error from connection, redirect, or retry handling. The
// caller must Close resp.Body.
func (a *Agent) Send(ctx context.Context, req *Request) (*Response, error) {
	return a.core.Send(ctx, req)
}

// Close drains idle connections, tears down cached HTTP/2 sessions,
// and stops the Agent's background pool-eviction tick. In-flight
// HTTP/1.1 Sends are not interrupted; streams still open on a
// torn-down HTTP/2 session end with it.
func (a *Agent) Close() { a.core.Close() }

// WithRedirectCap sets the maximum number of redirect hops Send will
// follow before failing with TooManyRedirects. 0 disables following.
func WithRedirectCap(n int) Option {
	return func(c *agentcore.Config) { c.Redirect.Cap = n }
}

// WithRedirectDowngrade controls whether a 301/302 response to a POST
// downgrades the next hop to GET (the historical browser behavior,
// on by default) or preserves the method.
func WithRedirectDowngrade(downgrade bool) Option {
	return func(c *agentcore.Config) { c.Redirect.DowngradeToGet = downgrade }
}

// WithRetryCap sets the maximum number of transport-fault retries.
// 0 disables retrying.
func WithRetryCap(n int) Option {
	return func(c *agentcore.Config) { c.Retry.Cap = n }
}

// WithTimeout sets the overall deadline applied to every Send call
// that doesn't override it via CallConfig.Timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *agentcore.Config) { c.Timeout = d }
}

// WithConnectTimeout bounds DNS+TCP+TLS for one dial attempt,
// independent of the overall Send timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *agentcore.Config) { c.ConnectTimeout = d }
}

// WithPoolIdleTimeout evicts a pooled connection once it has sat idle
// longer than d. 0 disables idle eviction (connections are only
// reaped by the liveness peek on lease).
func WithPoolIdleTimeout(d time.Duration) Option {
	return func(c *agentcore.Config) { c.PoolIdleTimeout = d }
}

// WithPoolMaxIdlePerHost bounds how many idle connections are
// retained per origin.
func WithPoolMaxIdlePerHost(n int) Option {
	return func(c *agentcore.Config) { c.PoolMaxIdlePerHost = n }
}

// WithPoolMaxConnsPerHost bounds total concurrent connections
// (idle + leased) per origin.
func WithPoolMaxConnsPerHost(n int) Option {
	return func(c *agentcore.Config) { c.PoolMaxConnsPerHost = n }
}

// WithContentEncode toggles the automatic gzip request-encoding
// layer.
func WithContentEncode(enabled bool) Option {
	return func(c *agentcore.Config) { c.Codec.ContentEncode = enabled }
}

// WithContentDecode toggles the automatic gzip response-decoding
// layer.
func WithContentDecode(enabled bool) Option {
	return func(c *agentcore.Config) { c.Codec.ContentDecode = enabled }
}

// WithCharsetDecode toggles automatic charset->UTF-8 transcoding of
// text/* response bodies.
func WithCharsetDecode(enabled bool) Option {
	return func(c *agentcore.Config) { c.Codec.CharsetDecode = enabled }
}

// WithCharsetEncodeSource names the charset the request pipeline
// transcodes outgoing bodies into, from UTF-8, on the way to the wire.
// Empty (the default) sends bodies as-is.
func WithCharsetEncodeSource(charset string) Option {
	return func(c *agentcore.Config) { c.Codec.CharsetEncodeSource = charset }
}

// WithTLSConfig sets the TLS client configuration used for https
// origins. A nil config (the default) uses Go's platform root pool
// with h2/http1.1 ALPN offered.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *agentcore.Config) { c.TLSConfig = cfg }
}

// WithProxy sets the function used to resolve a CONNECT proxy for
// each target, if any.
func WithProxy(fn dialer.ProxyFunc) Option {
	return func(c *agentcore.Config) { c.Proxy = fn }
}

// WithResolve installs static-hosts overrides and/or a custom DNS
// server for name resolution.
func WithResolve(rc *dialer.ResolveConfig) Option {
	return func(c *agentcore.Config) { c.Resolve = rc }
}

// WithRuntime installs the concurrency adapter the Agent routes
// background spawns, sleeps, and DNS de-duplication through. The
// default is runtime.Cooperative().
func WithRuntime(a runtime.Adapter) Option {
	return func(c *agentcore.Config) { c.Runtime = a }
}

// WithMetrics registers the Agent's Prometheus collectors
// (httpagent_pool_idle_conns, httpagent_retries_total,
// httpagent_redirects_total, httpagent_exchanges_total) on reg. By
// default no collector is registered.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *agentcore.Config) { c.Metrics = agentcore.NewMetrics(reg) }
}

// Send builds a short-lived Agent for a single call, forgoing
// connection pooling and cookie reuse across calls. Prefer
// constructing an Agent with New and reusing it for anything beyond
// one-off requests.
func Send(ctx context.Context, req *Request) (*Response, error) {
	a := New()
	defer a.Close()
	return a.Send(ctx, req)
}
