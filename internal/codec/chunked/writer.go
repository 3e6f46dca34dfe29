package chunked

import (
	"fmt"
	"io"
	"net/http"
)

// NewWriter wraps w with a chunked-transfer encoder.
func NewWriter(w io.Writer) *Writer {
	return &Writer{Wire: w}
}

// Writer encodes writes as HTTP/1.1 chunked transfer-coding frames.
type Writer struct {
	Wire io.Writer
}

func (cw *Writer) Write(data []byte) (n int, err error) {
	// Don't send 0-length data; it looks like EOF for chunked encoding.
	if len(data) == 0 {
		return 0, nil
	}

	if _, err = fmt.Fprintf(cw.Wire, "%x\r\n", len(data)); err != nil {
		return 0, err
	}
	if n, err = cw.Wire.Write(data); err != nil {
		return
	}
	if n != len(data) {
		err = io.ErrShortWrite
		return
	}
	if _, err = io.WriteString(cw.Wire, "\r\n"); err != nil {
		return
	}
	if f, ok := cw.Wire.(interface{ Flush() error }); ok {
		err = f.Flush()
	}
	return
}

// CloseWithTrailer writes the zero-length final chunk followed by the
// trailer section (empty unless trailer carries fields).
func (cw *Writer) CloseWithTrailer(trailer http.Header) error {
	if _, err := io.WriteString(cw.Wire, "0\r\n"); err != nil {
		return err
	}
	for k, vs := range trailer {
		for _, v := range vs {
			if _, err := fmt.Fprintf(cw.Wire, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(cw.Wire, "\r\n")
	return err
}
