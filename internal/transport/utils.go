package transport

import "io"

// bodyCloser pairs a response body reader with a close func that
// releases the underlying connection (back to the pool, or closed
// outright), independent of whatever Close the reader itself exposes.
type bodyCloser struct {
	io.Reader
	close func() error
}

func (b bodyCloser) Close() error { return b.close() }

// noBodyExpected reports whether RFC 9112 §6.3 forbids a body on this
// response regardless of what headers claim: 1xx/204/304 responses,
// and any response to a HEAD request.
func noBodyExpected(method string, statusCode int) bool {
	if method == "HEAD" {
		return true
	}
	if statusCode >= 100 && statusCode < 200 {
		return true
	}
	return statusCode == 204 || statusCode == 304
}
