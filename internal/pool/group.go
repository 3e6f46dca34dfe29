package pool

import (
	"context"
	"sync"
	"time"

	"github.com/arn-dev/httpagent/internal/uriutil"
)

// Group keys independent Pools by PoolKey, lazily creating one on
// first use for a given scheme/host/port triple.
type Group struct {
	mu    sync.RWMutex
	pools map[uriutil.PoolKey]*Pool

	maxIdlePerHost, maxConnsPerHost int
	maxIdleDuration                 time.Duration
}

// NewGroup builds a Group applying the same idle/conn bounds to every
// key it creates a Pool for.
func NewGroup(maxIdlePerHost, maxConnsPerHost int, maxIdleDuration time.Duration) *Group {
	return &Group{
		pools:            map[uriutil.PoolKey]*Pool{},
		maxIdlePerHost:   maxIdlePerHost,
		maxConnsPerHost:  maxConnsPerHost,
		maxIdleDuration:  maxIdleDuration,
	}
}

// Lease leases a connection for key, creating its Pool on first use.
func (g *Group) Lease(ctx context.Context, key uriutil.PoolKey, dial Dialer) (*Conn, error) {
	return g.poolFor(key).Lease(ctx, dial)
}

func (g *Group) poolFor(key uriutil.PoolKey) *Pool {
	g.mu.RLock()
	p, ok := g.pools[key]
	g.mu.RUnlock()
	if ok {
		return p
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok = g.pools[key]; ok {
		return p
	}
	p = NewPool(key, g.maxIdlePerHost, g.maxConnsPerHost, g.maxIdleDuration)
	g.pools[key] = p
	return p
}

// DrainAll closes every idle connection across every key, e.g. on
// Agent.Close.
func (g *Group) DrainAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.pools {
		p.Drain()
	}
}

// EvictExpiredAll sweeps every key's idle list for connections past
// their idle timeout. Intended to be called periodically from a
// runtime.Adapter-spawned background tick.
func (g *Group) EvictExpiredAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.pools {
		p.EvictExpired()
	}
}

// IdleCounts reports the current idle connection count per host, for
// metrics reporting.
func (g *Group) IdleCounts() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	counts := make(map[string]int, len(g.pools))
	for key, p := range g.pools {
		counts[key.Host] += p.IdleCount()
	}
	return counts
}
