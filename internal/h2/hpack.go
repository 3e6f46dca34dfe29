package h2

import (
	"bytes"
	"errors"
	"sync"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// hpackEncoder serializes a request's header set into HPACK-compressed
// HEADERS/CONTINUATION block fragments, honoring the peer's advertised
// dynamic table size and max header list size.
type hpackEncoder struct {
	mu  sync.Mutex
	enc *hpack.Encoder
	buf *bytes.Buffer

	maxHeaderListSize uint32
}

func newHPACKEncoder(peer *settings) *hpackEncoder {
	h := &hpackEncoder{buf: &bytes.Buffer{}}
	h.enc = hpack.NewEncoder(h.buf)
	h.maxHeaderListSize = peer.Get(http2.SettingMaxHeaderListSize)
	peer.OnChange(http2.SettingHeaderTableSize, func(v uint32) {
		h.mu.Lock()
		h.enc.SetMaxDynamicTableSize(v)
		h.mu.Unlock()
	})
	peer.OnChange(http2.SettingMaxHeaderListSize, func(v uint32) {
		h.mu.Lock()
		h.maxHeaderListSize = v
		h.mu.Unlock()
	})
	return h
}

// encodeHeaders calls enumHeaders once to size the header list against
// the peer's limit, then again to actually emit the HPACK block.
func (h *hpackEncoder) encodeHeaders(enumHeaders func(func(k, v string))) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf.Reset()

	var total uint32
	enumHeaders(func(name, value string) {
		total += hpack.HeaderField{Name: name, Value: value}.Size()
	})
	if h.maxHeaderListSize != 0 && total > h.maxHeaderListSize {
		return nil, errors.New("h2: header list larger than peer's advertised limit")
	}
	enumHeaders(func(name, value string) {
		h.enc.WriteField(hpack.HeaderField{Name: name, Value: value})
	})
	out := make([]byte, h.buf.Len())
	copy(out, h.buf.Bytes())
	return out, nil
}
