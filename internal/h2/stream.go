package h2

import (
	"context"
	"errors"
	"io"
	"sync"

	"golang.org/x/net/http2"
)

// Stream is one HTTP/2 request/response exchange multiplexed over a
// shared Conn.
type Stream struct {
	conn     *Conn
	id       uint32
	outflow  *outflow
	muInflow sync.Mutex
	inflow   inflow

	headers   chan *http2.MetaHeadersFrame
	bodyR     *io.PipeReader
	bodyW     *io.PipeWriter

	doneOnce sync.Once
	done     chan struct{}
	doneErr  error
}

func newStream(c *Conn, id uint32, peerInitialWindow int32) *Stream {
	r, w := io.Pipe()
	s := &Stream{
		conn:    c,
		id:      id,
		outflow: newOutflow(peerInitialWindow),
		headers: make(chan *http2.MetaHeadersFrame, 1),
		bodyR:   r,
		bodyW:   w,
		done:    make(chan struct{}),
	}
	s.inflow.init(c.self.Get(http2.SettingInitialWindowSize))
	return s
}

// ID returns the stream's HTTP/2 stream identifier.
func (s *Stream) ID() uint32 { return s.id }

func (s *Stream) onHeaders(f *http2.MetaHeadersFrame) {
	select {
	case s.headers <- f:
	default:
		// trailers on a second HEADERS frame; headers channel already
		// delivered the response header set, so surface these as EOF.
	}
	if f.StreamEnded() {
		s.bodyW.Close()
		s.finish(nil)
	}
}

func (s *Stream) onData(f *http2.DataFrame) {
	dl := uint32(len(f.Data()))
	s.muInflow.Lock()
	ok := s.inflow.take(dl)
	incr := uint32(0)
	if ok {
		incr = s.inflow.grant(dl)
	}
	s.muInflow.Unlock()
	if !ok {
		s.onReset(http2.ErrCodeFlowControl, false)
		return
	}
	if len(f.Data()) > 0 {
		if _, err := s.bodyW.Write(f.Data()); err != nil {
			s.onReset(http2.ErrCodeCancel, false)
			return
		}
	}
	if incr != 0 {
		_ = s.conn.framer.WriteWindowUpdate(s.id, incr)
	}
	if f.StreamEnded() {
		s.bodyW.Close()
		s.finish(nil)
	}
}

func (s *Stream) onReset(code http2.ErrCode, remote bool) {
	err := &StreamError{StreamID: s.id, Code: code, Remote: remote}
	s.bodyW.CloseWithError(err)
	s.finish(err)
}

func (s *Stream) finish(err error) {
	s.doneOnce.Do(func() {
		s.doneErr = err
		close(s.done)
		s.conn.releaseStream(s.id)
	})
}

// Reset sends RST_STREAM to the peer and tears the stream down locally.
func (s *Stream) Reset(code http2.ErrCode) error {
	err := s.conn.framer.WriteRSTStream(s.id, code)
	s.onReset(code, false)
	return err
}

// WriteHeaders HPACK-encodes and sends the header block, split across
// HEADERS + CONTINUATION frames per the peer's max frame size.
func (s *Stream) WriteHeaders(ctx context.Context, enumHeaders func(func(k, v string)), endStream bool) error {
	data, err := s.conn.hpack.encodeHeaders(enumHeaders)
	if err != nil {
		return err
	}
	maxFrame := s.conn.peer.maxFrameSize()
	first := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		var chunk []byte
		endHeaders := uint32(len(data)) <= maxFrame
		if endHeaders {
			chunk, data = data, nil
		} else {
			chunk, data = data[:maxFrame], data[maxFrame:]
		}
		if first {
			err = s.conn.framer.WriteHeaders(http2.HeadersFrameParam{
				StreamID: s.id, BlockFragment: chunk,
				EndStream: endStream, EndHeaders: endHeaders,
			})
			first = false
		} else {
			err = s.conn.framer.WriteContinuation(s.id, endHeaders, chunk)
		}
		if err != nil {
			return err
		}
		if endHeaders {
			return nil
		}
	}
}

// ReadHeaders blocks for the response HEADERS frame and delivers each
// header field to cb.
func (s *Stream) ReadHeaders(ctx context.Context, cb func(k, v string)) error {
	select {
	case <-ctx.Done():
		_ = s.Reset(http2.ErrCodeCancel)
		return ctx.Err()
	case <-s.done:
		if s.doneErr != nil {
			return s.doneErr
		}
		return errors.New("h2: stream closed before headers arrived")
	case f := <-s.headers:
		for _, hf := range f.Fields {
			cb(hf.Name, hf.Value)
		}
		return nil
	}
}

// WriteBody streams data as DATA frames, respecting both connection-
// and stream-level outbound flow control, and ends the stream when r
// is exhausted.
func (s *Stream) WriteBody(ctx context.Context, r io.Reader) error {
	maxFrame := int(s.conn.peer.maxFrameSize())
	buf := make([]byte, maxFrame)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := s.writeDataFlowControlled(ctx, buf[:n], false); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			return s.writeDataFlowControlled(ctx, nil, true)
		}
		if rerr != nil {
			return rerr
		}
	}
}

// WriteDataChunk sends one DATA frame's worth of already-encoded body
// bytes, blocking on flow control as needed. Callers drive the
// request body loop themselves (e.g. through the codec pipeline) and
// call this once per buffer.
func (s *Stream) WriteDataChunk(ctx context.Context, data []byte, endStream bool) error {
	return s.writeDataFlowControlled(ctx, data, endStream)
}

func (s *Stream) writeDataFlowControlled(ctx context.Context, data []byte, endStream bool) error {
	for len(data) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		want := int32(len(data))
		got := s.outflow.take(want)
		got = s.conn.outflow.take(got)
		if err := s.conn.framer.WriteData(s.id, false, data[:got]); err != nil {
			return err
		}
		data = data[got:]
	}
	if endStream {
		return s.conn.framer.WriteData(s.id, true, nil)
	}
	return nil
}

// Body returns the response body reader; it yields io.EOF once the
// peer sends END_STREAM.
func (s *Stream) Body() io.ReadCloser { return s.bodyR }
