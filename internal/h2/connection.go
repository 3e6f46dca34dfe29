// Package h2 implements the HTTP/2 client half needed to drive one
// multiplexed connection: the connection preface, SETTINGS exchange,
// HPACK header encoding, connection- and stream-level flow control,
// and per-stream request/response framing. It is deliberately not a
// full h2 server or proxy stack — just enough for an HTTP client.
package h2

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
)

// Conn is one negotiated HTTP/2 connection. After Handshake succeeds,
// OpenStream can be called concurrently from multiple goroutines.
type Conn struct {
	raw net.Conn

	framer *framer
	hpack  *hpackEncoder
	pinger *pinger

	self, peer *settings

	outflow *outflow // connection-level (stream 0)
	inflow  inflow
	muInflow sync.Mutex

	muStreams    sync.Mutex
	streams      map[uint32]*Stream
	lastStreamID int32 // client stream IDs are odd; starts at -1, incremented by 2
	condStreams  *sync.Cond

	closeOnce  sync.Once
	closed     chan struct{}
	closeErr   error
	goAwayCb   func(lastStreamID uint32, code http2.ErrCode)
}

// New wraps an already-dialed, already-ALPN-negotiated net.Conn.
func New(raw net.Conn) *Conn {
	self := newSelfSettings()
	peer := newPeerSettings()
	c := &Conn{
		raw:     raw,
		self:    self,
		peer:    peer,
		framer:  newFramer(raw, self),
		hpack:        newHPACKEncoder(peer),
		outflow:      newOutflow(int32(peer.Get(http2.SettingInitialWindowSize))),
		streams:      map[uint32]*Stream{},
		lastStreamID: -1,
		closed:       make(chan struct{}),
	}
	c.inflow.init(self.Get(http2.SettingInitialWindowSize))
	c.condStreams = sync.NewCond(&c.muStreams)
	c.pinger = newPinger(c.framer.WritePing)

	// A change to the peer's advertised initial window applies only to
	// streams not yet carrying an adjusted window; the connection-level
	// window itself is fixed by RFC 7540 §6.9.2 and never touched here.
	return c
}

// Handshake sends the client connection preface and our SETTINGS,
// then blocks for the server's mandatory first SETTINGS frame.
func (c *Conn) Handshake(ctx context.Context) error {
	if _, err := c.raw.Write([]byte(http2.ClientPreface)); err != nil {
		return err
	}
	adv := make([]http2.Setting, 0, 6)
	for id := http2.SettingID(1); id <= 6; id++ {
		v := c.self.Get(id)
		if (http2.Setting{ID: id, Val: v}).Valid() == nil {
			adv = append(adv, http2.Setting{ID: id, Val: v})
		}
	}
	if err := c.framer.WriteSettings(adv...); err != nil {
		return err
	}

	f, err := c.framer.ReadFrame()
	if err != nil {
		return err
	}
	sf, ok := f.(*http2.SettingsFrame)
	if !ok {
		_ = c.GoAway(http2.ErrCodeProtocol)
		return errors.New("h2: first frame from server was not SETTINGS")
	}
	if err := c.peer.updateFrom(sf); err != nil {
		_ = c.GoAway(http2.ErrCodeProtocol)
		return err
	}
	if err := c.framer.WriteSettingsAck(); err != nil {
		return err
	}

	go c.readLoop()
	return nil
}

// OnGoAway installs an optional callback invoked with the peer's last
// stream ID and error code when the peer sends GOAWAY, before the
// connection is torn down.
func (c *Conn) OnGoAway(cb func(lastStreamID uint32, code http2.ErrCode)) { c.goAwayCb = cb }

// Err reports why the connection stopped accepting new streams, or
// nil while still usable.
func (c *Conn) Err() error {
	select {
	case <-c.closed:
		return c.closeErr
	default:
		return nil
	}
}

// GoAway sends a GOAWAY and marks the connection as closing.
func (c *Conn) GoAway(code http2.ErrCode) error {
	var err error
	c.closeOnce.Do(func() {
		c.closeErr = fmt.Errorf("h2: connection closing: %s", code)
		close(c.closed)
		err = c.framer.WriteGoAway(uint32(atomic.LoadInt32(&c.lastStreamID)), code, nil)
		c.raw.Close()
	})
	return err
}

// OpenStream allocates the next client stream ID (odd, monotonically
// increasing per RFC 7540 §5.1.1) and registers it, blocking while the
// peer's MAX_CONCURRENT_STREAMS limit is saturated.
func (c *Conn) OpenStream(ctx context.Context) (*Stream, error) {
	if err := c.Err(); err != nil {
		return nil, err
	}
	c.muStreams.Lock()
	for uint32(len(c.streams)) >= c.peer.Get(http2.SettingMaxConcurrentStreams) {
		c.condStreams.Wait()
		if err := c.Err(); err != nil {
			c.muStreams.Unlock()
			return nil, err
		}
	}
	id := uint32(atomic.AddInt32(&c.lastStreamID, 2))
	s := newStream(c, id, int32(c.peer.Get(http2.SettingInitialWindowSize)))
	c.streams[id] = s
	c.muStreams.Unlock()
	return s, nil
}

func (c *Conn) releaseStream(id uint32) {
	c.muStreams.Lock()
	delete(c.streams, id)
	c.condStreams.Signal()
	c.muStreams.Unlock()
}

func (c *Conn) withStream(id uint32, f func(*Stream)) {
	c.muStreams.Lock()
	s := c.streams[id]
	c.muStreams.Unlock()
	if s != nil {
		f(s)
	}
}

func (c *Conn) readLoop() {
	for {
		f, err := c.framer.ReadFrame()
		if err != nil {
			c.abort(err)
			return
		}
		switch fr := f.(type) {
		case *http2.MetaHeadersFrame:
			c.withStream(fr.StreamID, func(s *Stream) { s.onHeaders(fr) })
		case *http2.DataFrame:
			c.onData(fr)
		case *http2.RSTStreamFrame:
			c.withStream(fr.StreamID, func(s *Stream) { s.onReset(fr.ErrCode, true) })
		case *http2.WindowUpdateFrame:
			c.onWindowUpdate(fr)
		case *http2.SettingsFrame:
			if !fr.IsAck() {
				_ = c.peer.updateFrom(fr)
				_ = c.framer.WriteSettingsAck()
			}
		case *http2.PingFrame:
			if fr.IsAck() {
				c.pinger.onPingAck(fr.Data)
			} else {
				_ = c.framer.WritePing(true, fr.Data)
			}
		case *http2.GoAwayFrame:
			last := fr.LastStreamID
			if c.goAwayCb != nil {
				c.goAwayCb(last, fr.ErrCode)
			}
			c.abort(fmt.Errorf("h2: GOAWAY from peer: %s", fr.ErrCode))
			return
		}
	}
}

func (c *Conn) onData(fr *http2.DataFrame) {
	dl := uint32(len(fr.Data()))
	c.muInflow.Lock()
	ok := c.inflow.take(dl)
	incr := uint32(0)
	if ok {
		incr = c.inflow.grant(dl)
	}
	c.muInflow.Unlock()
	if !ok {
		_ = c.GoAway(http2.ErrCodeFlowControl)
		return
	}
	if incr != 0 {
		_ = c.framer.WriteWindowUpdate(0, incr)
	}
	c.withStream(fr.StreamID, func(s *Stream) { s.onData(fr) })
}

func (c *Conn) onWindowUpdate(fr *http2.WindowUpdateFrame) {
	if fr.StreamID == 0 {
		if !c.outflow.add(int32(fr.Increment)) {
			_ = c.GoAway(http2.ErrCodeFlowControl)
		}
		return
	}
	c.withStream(fr.StreamID, func(s *Stream) {
		if !s.outflow.add(int32(fr.Increment)) {
			s.onReset(http2.ErrCodeFlowControl, true)
		}
	})
}

func (c *Conn) abort(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.closed)
	})
	c.muStreams.Lock()
	for _, s := range c.streams {
		s.onReset(http2.ErrCodeInternal, true)
	}
	c.condStreams.Broadcast()
	c.muStreams.Unlock()
}

// Ping round-trips a PING frame, for connection keepalive.
func (c *Conn) Ping(timeout time.Duration) error { return c.pinger.ping(timeout) }
