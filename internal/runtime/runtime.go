// Package runtime holds the three Adapter variants the agent core
// routes its background pool-eviction tick (spawn and sleep) and its
// DNS lookups through. It is not the only contact with the concurrency
// world: other components use contexts and timers directly, and the
// HTTP/2 connection starts its frame read loop as a plain goroutine.
package runtime

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sync/singleflight"
)

// Executor spawns background work. Any pool that can run a func()
// asynchronously satisfies this — an errgroup-backed pool, a fixed
// worker pool, or a runtime's own goroutine spawner.
type Executor interface {
	Spawn(fn func())
}

// ErrBlockOnUnavailable is returned by Adapter.BlockOn when the
// adapter variant has no way to drive a future to completion itself.
// The Shared variant borrows an executor it does not control the
// lifecycle of, so it cannot offer this bridge.
var ErrBlockOnUnavailable = errors.New("httpagent: BlockOn unavailable for this runtime adapter")

// Adapter is the interface every other package targets instead of the
// concurrency primitives directly.
type Adapter interface {
	// Spawn runs fn in the background.
	Spawn(fn func())
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
	// BlockOn drives fn to completion and returns its result. Shared
	// returns ErrBlockOnUnavailable instead.
	BlockOn(fn func() error) error
	// ResolveHost de-duplicates concurrent lookups for the same host
	// behind a single in-flight resolve call.
	ResolveHost(ctx context.Context, host string, resolve func(context.Context, string) ([]net.IP, error)) ([]net.IP, error)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cooperative is the default adapter: it has no executor of its own,
// so Spawn just starts a goroutine and BlockOn runs fn on the calling
// goroutine directly.
type cooperative struct{}

// Cooperative returns the default adapter: plain context.Context and
// net.Dialer use, no external executor required. It is not
// single-threaded: Spawn starts an ordinary goroutine.
func Cooperative() Adapter { return cooperative{} }

func (cooperative) Spawn(fn func()) { go fn() }

func (cooperative) Sleep(ctx context.Context, d time.Duration) error { return sleep(ctx, d) }

func (cooperative) BlockOn(fn func() error) error { return fn() }

func (cooperative) ResolveHost(ctx context.Context, host string, resolve func(context.Context, string) ([]net.IP, error)) ([]net.IP, error) {
	return resolve(ctx, host)
}

// shared borrows an externally owned Executor without taking
// ownership of its lifecycle, so it cannot offer BlockOn.
type shared struct {
	exec  Executor
	group singleflight.Group
}

// Shared wraps executor without taking ownership of it.
func Shared(executor Executor) Adapter { return &shared{exec: executor} }

func (s *shared) Spawn(fn func()) { s.exec.Spawn(fn) }

func (s *shared) Sleep(ctx context.Context, d time.Duration) error { return sleep(ctx, d) }

func (s *shared) BlockOn(func() error) error { return ErrBlockOnUnavailable }

func (s *shared) ResolveHost(ctx context.Context, host string, resolve func(context.Context, string) ([]net.IP, error)) ([]net.IP, error) {
	return dedupResolve(&s.group, ctx, host, resolve)
}

// owned takes ownership of executor for the Agent's lifetime, so
// unlike shared it can drive BlockOn by spawning the work and waiting.
type owned struct {
	exec  Executor
	group singleflight.Group
}

// Owned takes ownership of executor for the life of the Agent that
// holds this Adapter.
func Owned(executor Executor) Adapter { return &owned{exec: executor} }

func (o *owned) Spawn(fn func()) { o.exec.Spawn(fn) }

func (o *owned) Sleep(ctx context.Context, d time.Duration) error { return sleep(ctx, d) }

func (o *owned) BlockOn(fn func() error) error {
	done := make(chan error, 1)
	o.exec.Spawn(func() { done <- fn() })
	return <-done
}

func (o *owned) ResolveHost(ctx context.Context, host string, resolve func(context.Context, string) ([]net.IP, error)) ([]net.IP, error) {
	return dedupResolve(&o.group, ctx, host, resolve)
}

func dedupResolve(g *singleflight.Group, ctx context.Context, host string, resolve func(context.Context, string) ([]net.IP, error)) ([]net.IP, error) {
	v, err, _ := g.Do(host, func() (interface{}, error) {
		return resolve(ctx, host)
	})
	if err != nil {
		return nil, err
	}
	return v.([]net.IP), nil
}
