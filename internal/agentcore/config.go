// Package agentcore composes the connection pool, codec pipeline,
// redirect loop, retry loop, and cookie jar behind the single
// Send(ctx, *model.Request) entry point the public Agent wraps.
package agentcore

import (
	"crypto/tls"
	"time"

	"github.com/arn-dev/httpagent/internal/codec"
	"github.com/arn-dev/httpagent/internal/dialer"
	"github.com/arn-dev/httpagent/internal/redirect"
	"github.com/arn-dev/httpagent/internal/retry"
	"github.com/arn-dev/httpagent/internal/runtime"
)

// Config is the resolved set of defaults an Agent applies to every
// call, overridable per-call via model.CallConfig.
type Config struct {
	Redirect redirect.Policy
	Retry    retry.Policy
	Codec    codec.Options

	Timeout        time.Duration // 0 means no overall deadline
	ConnectTimeout time.Duration

	PoolIdleTimeout     time.Duration
	PoolMaxIdlePerHost  int
	PoolMaxConnsPerHost int

	TLSConfig      *tls.Config
	TLSProxyConfig *tls.Config
	Proxy          dialer.ProxyFunc
	Resolve        *dialer.ResolveConfig
	Runtime        runtime.Adapter

	// Metrics is nil-safe: a nil *Metrics disables all reporting.
	Metrics *Metrics
}

// DefaultConfig matches the documented agent defaults: redirects and
// transport retries both on with small caps, automatic gzip and
// charset decoding on, a modest idle pool.
func DefaultConfig() Config {
	return Config{
		Redirect:            redirect.DefaultPolicy,
		Retry:               retry.DefaultPolicy,
		Codec:               codec.DefaultOptions,
		ConnectTimeout:      10 * time.Second,
		PoolIdleTimeout:     90 * time.Second,
		PoolMaxIdlePerHost:  2,
		PoolMaxConnsPerHost: 64,
	}
}
