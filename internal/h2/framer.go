package h2

import (
	"sync"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// framer serializes writes to the underlying *http2.Framer: frames
// from concurrent streams must not interleave mid-frame on the wire.
type framer struct {
	muWrite sync.Mutex
	f       *http2.Framer
}

func newFramer(conn netConn, self *settings) *framer {
	raw := http2.NewFramer(conn, conn)
	raw.ReadMetaHeaders = hpack.NewDecoder(self.Get(http2.SettingHeaderTableSize), nil)
	raw.MaxHeaderListSize = self.Get(http2.SettingMaxHeaderListSize)
	return &framer{f: raw}
}

func (fr *framer) ReadFrame() (http2.Frame, error) { return fr.f.ReadFrame() }

func (fr *framer) WriteSettings(s ...http2.Setting) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteSettings(s...)
}

func (fr *framer) WriteSettingsAck() error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteSettingsAck()
}

func (fr *framer) WriteHeaders(p http2.HeadersFrameParam) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteHeaders(p)
}

func (fr *framer) WriteContinuation(streamID uint32, endHeaders bool, fragment []byte) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteContinuation(streamID, endHeaders, fragment)
}

func (fr *framer) WriteData(streamID uint32, endStream bool, data []byte) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteData(streamID, endStream, data)
}

func (fr *framer) WritePing(ack bool, data [8]byte) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WritePing(ack, data)
}

func (fr *framer) WriteRSTStream(streamID uint32, code http2.ErrCode) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteRSTStream(streamID, code)
}

func (fr *framer) WriteGoAway(lastStreamID uint32, code http2.ErrCode, debug []byte) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteGoAway(lastStreamID, code, debug)
}

func (fr *framer) WriteWindowUpdate(streamID, incr uint32) error {
	if incr == 0 {
		return nil
	}
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteWindowUpdate(streamID, incr)
}

// netConn is the minimal surface the framer needs; satisfied by net.Conn.
type netConn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}
