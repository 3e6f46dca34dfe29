// Package pool implements connection pooling keyed by scheme/host/port:
// a bounded idle list per key, a total-connections ticket per key, and
// a non-blocking liveness check (EOF-peek) applied before an idle
// connection is handed back out for reuse.
package pool

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/arn-dev/httpagent/internal/uriutil"
)

// State is the lifecycle state of a pooled connection.
type State int32

const (
	StateIdle State = iota
	StateLeased
	StateBroken
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLeased:
		return "leased"
	case StateBroken:
		return "broken"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Proto identifies the negotiated application protocol for a connection.
type Proto int32

const (
	ProtoUnknown Proto = iota
	ProtoHTTP1
	ProtoHTTP2
)

// Conn is a pooled network connection. It is not safe for concurrent
// use by multiple goroutines while leased: the pool hands out
// exclusive leases, never shares a live Conn across callers.
type Conn struct {
	net.Conn

	Key      uriutil.PoolKey
	Proto    Proto
	state    atomic.Int32
	LastIdle time.Time

	pool *Pool
}

func newConn(raw net.Conn, key uriutil.PoolKey, proto Proto, p *Pool) *Conn {
	c := &Conn{Conn: raw, Key: key, Proto: proto, pool: p}
	c.state.Store(int32(StateLeased))
	return c
}

// State reports the connection's current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

// MarkBroken flags the connection as unusable; Release will close it
// instead of returning it to the idle list.
func (c *Conn) MarkBroken() { c.state.Store(int32(StateBroken)) }

// Release returns the connection to its pool. Broken connections are
// closed and their ticket freed; others go back to the idle list,
// subject to the pool's idle-list capacity.
func (c *Conn) Release() {
	if c.State() == StateClosed {
		return
	}
	if c.State() == StateBroken {
		c.closeAndFree()
		return
	}
	c.state.Store(int32(StateIdle))
	c.LastIdle = time.Now()
	if c.pool != nil {
		c.pool.releaseIdle(c)
	}
}

// Close closes the underlying connection and frees its ticket,
// regardless of pool bookkeeping. Use when the caller knows the
// connection must not be reused (protocol violation, explicit
// connection-close on either side).
func (c *Conn) Close() error {
	c.closeAndFree()
	return nil
}

func (c *Conn) closeAndFree() {
	if c.State() == StateClosed {
		return
	}
	c.state.Store(int32(StateClosed))
	_ = c.Conn.Close()
	if c.pool != nil {
		c.pool.freeTicket()
	}
}
