package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arn-dev/httpagent/internal/uriutil"
)

var testKey = uriutil.PoolKey{Scheme: "http", Host: "example.com", Port: "80"}

func pipeDialer(dialCount *int) Dialer {
	return func(ctx context.Context, key uriutil.PoolKey) (net.Conn, Proto, error) {
		*dialCount++
		client, server := net.Pipe()
		go func() { _ = server.Close() }() // discard the server side, client side stays open
		return client, ProtoHTTP1, nil
	}
}

func TestPoolLeaseDialsWhenIdleEmpty(t *testing.T) {
	p := NewPool(testKey, 2, 2, 0)
	var dials int
	c, err := p.Lease(context.Background(), pipeDialer(&dials))
	require.NoError(t, err)
	assert.Equal(t, 1, dials)
	assert.Equal(t, StateLeased, c.State())
}

func TestPoolReleaseReusesIdleConnection(t *testing.T) {
	p := NewPool(testKey, 2, 2, 0)
	var dials int
	c1, err := p.Lease(context.Background(), pipeDialer(&dials))
	require.NoError(t, err)
	c1.Release()

	c2, err := p.Lease(context.Background(), pipeDialer(&dials))
	require.NoError(t, err)
	assert.Equal(t, 1, dials) // reused, no second dial
	assert.Same(t, c1, c2)
}

func TestPoolMaxConnsBlocksUntilTicketFreed(t *testing.T) {
	p := NewPool(testKey, 1, 1, 0)
	var dials int
	c1, err := p.Lease(context.Background(), pipeDialer(&dials))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Lease(ctx, pipeDialer(&dials))
	require.Error(t, err)
	assert.Equal(t, 1, dials)

	c1.Release()
}

func TestPoolMaxConnsTicketFreedOnlyOnClose(t *testing.T) {
	p := NewPool(testKey, 0, 1, 0)
	var dials int
	c1, err := p.Lease(context.Background(), pipeDialer(&dials))
	require.NoError(t, err)
	c1.Release() // maxIdle is 0: the idle list can't hold it, so it's closed and its ticket freed

	c2, err := p.Lease(context.Background(), pipeDialer(&dials))
	require.NoError(t, err)
	assert.Equal(t, 2, dials) // the ticket was freed, so a fresh dial was needed
	c2.Release()
}

func TestPoolDrainClosesIdleConnectionsOnly(t *testing.T) {
	p := NewPool(testKey, 2, 2, 0)
	var dials int
	c1, _ := p.Lease(context.Background(), pipeDialer(&dials))
	c2, _ := p.Lease(context.Background(), pipeDialer(&dials))
	c1.Release()

	p.Drain()

	assert.Equal(t, StateClosed, c1.State())
	assert.Equal(t, StateLeased, c2.State())
	assert.Equal(t, 0, p.IdleCount())
}

func TestPoolEvictExpiredClosesOnlyStaleIdleConnections(t *testing.T) {
	p := NewPool(testKey, 2, 2, time.Millisecond)
	var dials int
	fresh, _ := p.Lease(context.Background(), pipeDialer(&dials))
	stale, _ := p.Lease(context.Background(), pipeDialer(&dials))

	fresh.Release()
	stale.Release()
	stale.LastIdle = time.Now().Add(-time.Hour)

	p.EvictExpired()

	assert.Equal(t, StateClosed, stale.State())
	assert.Equal(t, StateIdle, fresh.State())
	assert.Equal(t, 1, p.IdleCount())
}

func TestPoolIdleCountTracksReleasesAndLeases(t *testing.T) {
	p := NewPool(testKey, 2, 2, 0)
	var dials int
	c1, _ := p.Lease(context.Background(), pipeDialer(&dials))
	assert.Equal(t, 0, p.IdleCount())

	c1.Release()
	assert.Equal(t, 1, p.IdleCount())

	_, _ = p.Lease(context.Background(), pipeDialer(&dials))
	assert.Equal(t, 0, p.IdleCount())
}

func TestPoolLivenessPeekEvictsHalfClosedConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	var dials int
	dial := func(ctx context.Context, key uriutil.PoolKey) (net.Conn, Proto, error) {
		dials++
		c, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			return nil, ProtoUnknown, err
		}
		return c, ProtoHTTP1, nil
	}

	p := NewPool(testKey, 2, 2, 0)
	c1, err := p.Lease(context.Background(), dial)
	require.NoError(t, err)

	server := <-accepted
	c1.Release()
	require.NoError(t, server.Close()) // orderly close from the peer while idle

	// give the close time to propagate before the liveness peek
	time.Sleep(20 * time.Millisecond)

	c2, err := p.Lease(context.Background(), dial)
	require.NoError(t, err)
	assert.Equal(t, 2, dials) // the half-closed idle connection was evicted, a new one dialed
	assert.NotSame(t, c1, c2)
}

func TestGroupIsolatesPoolsByKey(t *testing.T) {
	g := NewGroup(2, 2, 0)
	var dials int
	keyA := uriutil.PoolKey{Scheme: "http", Host: "a.example.com", Port: "80"}
	keyB := uriutil.PoolKey{Scheme: "http", Host: "b.example.com", Port: "80"}

	ca, err := g.Lease(context.Background(), keyA, pipeDialer(&dials))
	require.NoError(t, err)
	ca.Release()
	cb, err := g.Lease(context.Background(), keyB, pipeDialer(&dials))
	require.NoError(t, err)
	cb.Release()

	counts := g.IdleCounts()
	assert.Equal(t, 1, counts["a.example.com"])
	assert.Equal(t, 1, counts["b.example.com"])
}

func TestGroupDrainAllClosesEveryKeysIdleConnections(t *testing.T) {
	g := NewGroup(2, 2, 0)
	var dials int
	keyA := uriutil.PoolKey{Scheme: "http", Host: "a.example.com", Port: "80"}
	keyB := uriutil.PoolKey{Scheme: "http", Host: "b.example.com", Port: "80"}

	ca, _ := g.Lease(context.Background(), keyA, pipeDialer(&dials))
	ca.Release()
	cb, _ := g.Lease(context.Background(), keyB, pipeDialer(&dials))
	cb.Release()

	g.DrainAll()

	assert.Equal(t, StateClosed, ca.State())
	assert.Equal(t, StateClosed, cb.State())
}
