package h2

import "sync"

// RFC 7540 §6.9.1.
const flowMaxWindow = 1<<31 - 1

// golang.org/x/net/http2 uses the same refresh threshold; batching
// WINDOW_UPDATEs below this size isn't worth the frame overhead.
const inflowMinRefresh = 4 << 10

// inflow tracks how much more data the peer may send us before we must
// grant more window via WINDOW_UPDATE.
type inflow struct {
	remaining uint32
	queued    uint32
}

func (f *inflow) init(initial uint32) { f.remaining = initial }

func (f *inflow) take(sz uint32) bool {
	if f.remaining < sz {
		return false
	}
	f.remaining -= sz
	return true
}

// grant records sz bytes as consumed by the upper layer and returns
// the window-update increment to send, or 0 if not yet worth sending.
func (f *inflow) grant(sz uint32) uint32 {
	f.queued += sz
	if f.queued < inflowMinRefresh {
		return 0
	}
	incr := f.queued
	if incr > flowMaxWindow {
		incr = flowMaxWindow
	}
	f.queued = 0
	f.remaining += incr
	return incr
}

// outflow tracks how much more data we may send the peer. take blocks
// until the window is positive per RFC 7540 §6.9.2.
type outflow struct {
	mu        sync.Mutex
	cond      *sync.Cond
	remaining int32
}

func newOutflow(initial int32) *outflow {
	o := &outflow{remaining: initial}
	o.cond = sync.NewCond(&o.mu)
	return o
}

func (o *outflow) take(sz int32) int32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	for o.remaining <= 0 {
		o.cond.Wait()
	}
	got := sz
	if o.remaining < sz {
		got = o.remaining
	}
	o.remaining -= got
	return got
}

func (o *outflow) available() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.remaining > 0
}

// add applies a WINDOW_UPDATE increment or an INITIAL_WINDOW_SIZE
// delta (which may be negative). Returns false on the overflow that
// RFC 7540 §6.9.1 says is a FLOW_CONTROL_ERROR.
func (o *outflow) add(delta int32) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	sum := o.remaining + delta
	if delta > 0 && sum < o.remaining {
		return false // int32 overflow
	}
	o.remaining = sum
	if sum > 0 {
		o.cond.Broadcast()
	}
	return true
}
