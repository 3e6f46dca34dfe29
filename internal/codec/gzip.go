package codec

import (
	"compress/gzip"
	"io"
)

// gzipDecodeLayer wraps r, decompressing gzip content-encoding. The
// gzip footer (CRC32 + length) is read and verified by the Read that
// returns io.EOF; Close releases the decompressor and closes r.
type gzipDecodeLayer struct {
	zr *gzip.Reader
	r  io.ReadCloser
}

func newGzipDecodeLayer(r io.ReadCloser) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &gzipDecodeLayer{zr: zr, r: r}, nil
}

func (g *gzipDecodeLayer) Read(p []byte) (int, error) {
	n, err := g.zr.Read(p)
	if err == io.EOF {
		// Multistream is on by default, so EOF means the last
		// member's footer has been read and checked; Close then
		// releases the decompressor.
		if cerr := g.zr.Close(); cerr != nil {
			return n, cerr
		}
	}
	return n, err
}

func (g *gzipDecodeLayer) Close() error {
	_ = g.zr.Close()
	return g.r.Close()
}

// gzipEncodeLayer wraps w, gzip-compressing everything written through
// it. Close flushes the footer; it does not close the underlying sink.
type gzipEncodeLayer struct {
	zw *gzip.Writer
	w  io.Writer
}

func newGzipEncodeLayer(w io.Writer) *gzipEncodeLayer {
	return &gzipEncodeLayer{zw: gzip.NewWriter(w), w: w}
}

func (g *gzipEncodeLayer) Write(p []byte) (int, error) { return g.zw.Write(p) }

func (g *gzipEncodeLayer) Close() error { return g.zw.Close() }
