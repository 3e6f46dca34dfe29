package pool

import (
	"context"
	"net"
	"time"

	"github.com/arn-dev/httpagent/internal/herr"
	"github.com/arn-dev/httpagent/internal/obslog"
	"github.com/arn-dev/httpagent/internal/uriutil"
)

// Dialer opens a fresh connection for key, negotiating whatever
// protocol the underlying transport decides (TLS ALPN result is
// reported back via proto).
type Dialer func(ctx context.Context, key uriutil.PoolKey) (raw net.Conn, proto Proto, err error)

// Pool bounds the connections for a single PoolKey: a ticket channel
// caps total concurrent connections, an idle-list channel caps how
// many idle connections are retained for reuse.
type Pool struct {
	key             uriutil.PoolKey
	connTicket      chan struct{}
	idle            chan *Conn
	maxIdleDuration time.Duration
}

// NewPool builds a pool for one key with the given idle-list and
// total-connection bounds.
func NewPool(key uriutil.PoolKey, maxIdle, maxConns int, maxIdleDuration time.Duration) *Pool {
	if maxConns <= 0 {
		maxConns = 1
	}
	if maxIdle < 0 {
		maxIdle = 0
	}
	return &Pool{
		key:             key,
		connTicket:      make(chan struct{}, maxConns),
		idle:            make(chan *Conn, maxIdle),
		maxIdleDuration: maxIdleDuration,
	}
}

// Lease returns a usable connection for this key: an idle one that
// passes the liveness peek, or a newly dialed one once a connection
// ticket is available.
func (p *Pool) Lease(ctx context.Context, dial Dialer) (*Conn, error) {
	for {
		select {
		case c := <-p.idle:
			if p.maxIdleDuration > 0 && time.Since(c.LastIdle) > p.maxIdleDuration {
				log := obslog.L()
				log.Debug().Str("host", p.key.Host).Msg("pool: idle connection expired")
				c.closeAndFree()
				continue
			}
			if !peekLiveness(c.Conn) {
				log := obslog.L()
				log.Debug().Str("host", p.key.Host).Msg("pool: idle connection failed liveness peek")
				c.closeAndFree()
				continue
			}
			c.state.Store(int32(StateLeased))
			return c, nil
		default:
			return p.dialNew(ctx, dial)
		}
	}
}

func (p *Pool) dialNew(ctx context.Context, dial Dialer) (*Conn, error) {
	select {
	case p.connTicket <- struct{}{}:
	case <-ctx.Done():
		return nil, herr.New(herr.Cancelled, "pool: waiting for connection ticket", ctx.Err())
	}
	raw, proto, err := dial(ctx, p.key)
	if err != nil {
		p.freeTicket()
		return nil, err
	}
	return newConn(raw, p.key, proto, p), nil
}

func (p *Pool) releaseIdle(c *Conn) {
	select {
	case p.idle <- c:
	default:
		// idle list full: this connection is surplus, close it.
		c.closeAndFree()
	}
}

func (p *Pool) freeTicket() {
	select {
	case <-p.connTicket:
	default:
	}
}

// IdleCount reports how many connections currently sit in the idle
// list, for metrics reporting.
func (p *Pool) IdleCount() int { return len(p.idle) }

// Drain closes every currently idle connection for this key without
// affecting leased ones.
func (p *Pool) Drain() {
	for {
		select {
		case c := <-p.idle:
			c.closeAndFree()
		default:
			return
		}
	}
}

// EvictExpired closes idle connections that have sat past
// maxIdleDuration and puts the rest back, without blocking a
// concurrent Lease for longer than one drain pass.
func (p *Pool) EvictExpired() {
	if p.maxIdleDuration <= 0 {
		return
	}
	var keep []*Conn
	for {
		select {
		case c := <-p.idle:
			if time.Since(c.LastIdle) > p.maxIdleDuration {
				c.closeAndFree()
			} else {
				keep = append(keep, c)
			}
		default:
			for _, c := range keep {
				p.releaseIdle(c)
			}
			return
		}
	}
}
