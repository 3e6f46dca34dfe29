package agentcore

import (
	"context"
	"sync"
	"time"

	"github.com/arn-dev/httpagent/internal/codec"
	"github.com/arn-dev/httpagent/internal/cookiejar"
	"github.com/arn-dev/httpagent/internal/dialer"
	"github.com/arn-dev/httpagent/internal/exchange"
	"github.com/arn-dev/httpagent/internal/model"
	"github.com/arn-dev/httpagent/internal/redirect"
	"github.com/arn-dev/httpagent/internal/retry"
	"github.com/arn-dev/httpagent/internal/runtime"
)

// Agent composes the pool, cookie jar, and redirect/retry loops behind
// one Send call. It is safe to share across concurrent callers: the
// pool and jar each hold their own fine-grained locks, never across
// I/O, and Agent itself holds none.
type Agent struct {
	cfg     Config
	exch    *exchange.Exchange
	jar     *cookiejar.Jar
	runtime runtime.Adapter
	metrics *Metrics

	closeOnce  sync.Once
	tickCancel context.CancelFunc
}

// New builds an Agent from cfg. A nil cfg.Runtime defaults to
// runtime.Cooperative().
func New(cfg Config) *Agent {
	if cfg.Runtime == nil {
		cfg.Runtime = runtime.Cooperative()
	}
	d := dialer.New(dialer.Config{
		TLSConfig:      cfg.TLSConfig,
		TLSProxyConfig: cfg.TLSProxyConfig,
		Proxy:          cfg.Proxy,
		Resolve:        cfg.Resolve,
		Runtime:        cfg.Runtime,
		ConnectTimeout: cfg.ConnectTimeout,
	})

	a := &Agent{
		cfg:     cfg,
		exch:    exchange.New(d, cfg.PoolMaxIdlePerHost, cfg.PoolMaxConnsPerHost, cfg.PoolIdleTimeout),
		jar:     cookiejar.New(),
		runtime: cfg.Runtime,
		metrics: cfg.Metrics,
	}
	if cfg.PoolIdleTimeout > 0 {
		a.startEvictionTick()
	}
	return a
}

// startEvictionTick spawns a background loop, via the configured
// runtime adapter, that periodically sweeps the pool for connections
// past their idle timeout and reports idle counts to Metrics. The
// loop exits as soon as Close cancels tickCtx, whether or not it's
// mid-sleep.
func (a *Agent) startEvictionTick() {
	interval := a.cfg.PoolIdleTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	var tickCtx context.Context
	tickCtx, a.tickCancel = context.WithCancel(context.Background())
	a.runtime.Spawn(func() {
		for {
			if err := a.runtime.Sleep(tickCtx, interval); err != nil {
				return
			}
			a.exch.EvictExpiredIdle()
			a.metrics.reportIdleCounts(a.exch.IdleCounts())
		}
	})
}

// Send resolves req's per-call overlay against the agent defaults,
// then drives it through the retry loop wrapping the redirect loop
// wrapping one connection exchange.
func (a *Agent) Send(ctx context.Context, req *model.Request) (*model.Response, error) {
	call := a.resolveCallConfig(req.Config)

	if call.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.timeout)
		defer cancel()
	}

	firstAttempt := true
	attempt := func(ctx context.Context) (*model.Response, error) {
		if !firstAttempt {
			a.metrics.incRetries()
		}
		firstAttempt = false

		hop := 0
		exchangeHop := func(ctx context.Context, pr *model.PreparedRequest, opts codec.Options) (*model.Response, error) {
			if hop > 0 {
				a.metrics.incRedirects()
			}
			hop++
			a.metrics.incExchanges()
			return a.exch.Do(ctx, pr, opts)
		}
		return redirect.Follow(ctx, req, call.codec, call.redirect, a.jar, exchangeHop)
	}

	bodyRestartable := req.Body == nil || req.Body.Restartable()
	return retry.Do(ctx, req.Method, bodyRestartable, call.retry, nil, attempt)
}

// Close drains idle connections, tears down cached HTTP/2 sessions,
// and stops the background eviction tick. In-flight HTTP/1.1 Sends are
// not interrupted; streams still open on a torn-down HTTP/2 session
// end with it.
func (a *Agent) Close() {
	a.closeOnce.Do(func() {
		if a.tickCancel != nil {
			a.tickCancel()
		}
		a.exch.Close()
	})
}

type resolvedCallConfig struct {
	timeout  time.Duration
	redirect redirect.Policy
	retry    retry.Policy
	codec    codec.Options
}

func (a *Agent) resolveCallConfig(override *model.CallConfig) resolvedCallConfig {
	rc := resolvedCallConfig{
		timeout:  a.cfg.Timeout,
		redirect: a.cfg.Redirect,
		retry:    a.cfg.Retry,
		codec:    a.cfg.Codec,
	}
	if override == nil {
		return rc
	}
	if override.Timeout != nil {
		rc.timeout = *override.Timeout
	}
	if override.RedirectCap != nil {
		rc.redirect.Cap = *override.RedirectCap
	}
	if override.RetryCap != nil {
		rc.retry.Cap = *override.RetryCap
	}
	if override.ContentEncode != nil {
		rc.codec.ContentEncode = *override.ContentEncode
	}
	if override.ContentDecode != nil {
		rc.codec.ContentDecode = *override.ContentDecode
	}
	return rc
}
