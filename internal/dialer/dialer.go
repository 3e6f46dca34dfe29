// Package dialer opens the raw connections the pool leases: DNS
// resolution (with static-hosts/custom-server overrides), TCP
// connect, optional HTTP CONNECT proxy tunneling, and the TLS
// handshake with h2/http1.1 ALPN negotiation.
package dialer

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"time"

	"github.com/arn-dev/httpagent/internal/herr"
	"github.com/arn-dev/httpagent/internal/pool"
	"github.com/arn-dev/httpagent/internal/runtime"
	"github.com/arn-dev/httpagent/internal/uriutil"
)

// ProxyFunc resolves the proxy URL (if any) to use for a given target;
// a nil URL with a nil error means "no proxy".
type ProxyFunc func(ctx context.Context, target *uriutil.Normalized) (*url.URL, error)

// Config configures a CoreDialer.
type Config struct {
	TLSConfig      *tls.Config
	TLSProxyConfig *tls.Config // falls back to TLSConfig when nil
	Proxy          ProxyFunc
	Resolve        *ResolveConfig
	// Runtime routes DNS lookups through the agent's concurrency
	// adapter, deduplicating concurrent lookups for the same host on
	// the Shared and Owned variants. Defaults to runtime.Cooperative().
	Runtime runtime.Adapter
	// ConnectTimeout bounds DNS+TCP+TLS for one dial attempt,
	// independent of the caller's overall context deadline. Zero means
	// no additional bound beyond ctx.
	ConnectTimeout time.Duration
}

// CoreDialer builds pool.Dialer funcs (see Dial) that resolve, connect,
// and TLS-negotiate a raw connection for a PoolKey, reporting back which
// application protocol ALPN settled on.
type CoreDialer struct {
	cfg Config
}

func New(cfg Config) *CoreDialer {
	if cfg.Runtime == nil {
		cfg.Runtime = runtime.Cooperative()
	}
	return &CoreDialer{cfg: cfg}
}

// Dial returns the pool.Dialer for target. The pool.Group calls it with the
// PoolKey it already derived from the request's normalized URL;
// target carries the full normalized URL (hostname for TLS
// ServerName, scheme for the default port) that the key alone can't.
func (d *CoreDialer) Dial(target *uriutil.Normalized) pool.Dialer {
	return func(ctx context.Context, key uriutil.PoolKey) (net.Conn, pool.Proto, error) {
		if d.cfg.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.cfg.ConnectTimeout)
			defer cancel()
		}
		hostPort := net.JoinHostPort(key.Host, key.Port)

		var proxyURL *url.URL
		if d.cfg.Proxy != nil {
			pu, err := d.cfg.Proxy(ctx, target)
			if err != nil {
				return nil, pool.ProtoUnknown, herr.New(herr.ConnectFailure, "resolve proxy", err)
			}
			proxyURL = pu
		}

		var conn net.Conn
		var err error
		if proxyURL != nil {
			tlsCfg := d.cfg.TLSProxyConfig
			if tlsCfg == nil {
				tlsCfg = d.cfg.TLSConfig
			}
			conn, err = dialViaProxy(ctx, hostPort, proxyURL, tlsCfg)
		} else {
			conn, err = d.dialDirect(ctx, key)
		}
		if err != nil {
			return nil, pool.ProtoUnknown, err
		}

		if key.Scheme != "https" {
			return conn, pool.ProtoHTTP1, nil
		}

		cfg := d.cfg.TLSConfig
		if cfg == nil {
			cfg = &tls.Config{}
		} else {
			cfg = cfg.Clone()
		}
		cfg.ServerName = target.Host
		if len(cfg.NextProtos) == 0 {
			cfg.NextProtos = []string{"h2", "http/1.1"}
		}
		tc := tls.Client(conn, cfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, pool.ProtoUnknown, herr.New(herr.TLSError, "tls handshake", err)
		}
		if tc.ConnectionState().NegotiatedProtocol == "h2" {
			return tc, pool.ProtoHTTP2, nil
		}
		return tc, pool.ProtoHTTP1, nil
	}
}

func (d *CoreDialer) dialDirect(ctx context.Context, key uriutil.PoolKey) (net.Conn, error) {
	ips, err := d.cfg.Runtime.ResolveHost(ctx, key.Host, func(ctx context.Context, host string) ([]net.IP, error) {
		return lookup(ctx, d.cfg.Resolve, host)
	})
	if err != nil {
		return nil, herr.New(herr.ConnectFailure, "resolve", err)
	}
	if len(ips) == 0 {
		return nil, herr.New(herr.ConnectFailure, "resolve", fmt.Errorf("no addresses for %s", key.Host))
	}
	// Spread load across multiple A/AAAA records rather than always
	// hammering the first one the resolver returns.
	start := rand.Intn(len(ips))
	var lastErr error
	for i := 0; i < len(ips); i++ {
		ip := ips[(start+i)%len(ips)]
		addr := net.JoinHostPort(ip.String(), key.Port)
		conn, err := zeroDialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, herr.New(herr.ConnectFailure, "dial", lastErr)
}
