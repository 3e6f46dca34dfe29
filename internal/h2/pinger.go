package h2

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// pinger correlates outgoing PING frames with their ACK for
// Conn.Ping, which sends one on demand; no PING is sent on a timer.
type pinger struct {
	mu      sync.Mutex
	waiters map[[8]byte]chan struct{}
	write   func(ack bool, data [8]byte) error
}

func newPinger(write func(ack bool, data [8]byte) error) *pinger {
	return &pinger{waiters: map[[8]byte]chan struct{}{}, write: write}
}

// ping sends a PING and blocks until the matching ACK arrives or
// timeout elapses. Connection-state decisions should not hinge on
// ping success; it exists for keepalive and latency probing.
func (p *pinger) ping(timeout time.Duration) error {
	var data [8]byte
	rand.Read(data[:])

	done := make(chan struct{})
	p.mu.Lock()
	p.waiters[data] = done
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.waiters, data)
		p.mu.Unlock()
	}()

	if err := p.write(false, data); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("h2: ping timed out")
	}
}

// onPingAck is invoked by the connection's frame dispatch loop when an
// ACKed PING frame arrives.
func (p *pinger) onPingAck(data [8]byte) {
	p.mu.Lock()
	ch, ok := p.waiters[data]
	p.mu.Unlock()
	if ok {
		close(ch)
	}
}
