package httpagent

import (
	"io"

	"github.com/arn-dev/httpagent/internal/model"
)

// Request is the user-facing request shape: method, absolute URI,
// header multimap, a body source, and a per-call configuration
// overlay.
type Request = model.Request

// CallConfig overlays per-call overrides on top of the Agent's
// defaults. A nil field means "use the Agent's configured value".
type CallConfig = model.CallConfig

// BodySource is the tagged variant a Request.Body holds: empty, a
// fixed byte slice, a one-shot reader, or a reopenable reader.
type BodySource = model.BodySource

// BytesBody builds a restartable, exact-length body from an in-memory
// byte slice. The slice must not be mutated after being handed to a
// Request.
func BytesBody(b []byte) BodySource { return model.Bytes(b) }

// StringBody is the string-keyed equivalent of BytesBody.
func StringBody(s string) BodySource { return model.String(s) }

// ReaderBody wraps a one-shot io.Reader of unknown length. It is not
// restartable: redirects that would need to resend the body fail with
// BodyNotRestartable, and transport failures are not retried but
// returned as they occurred.
func ReaderBody(r io.Reader) BodySource { return model.Reader(r) }

// RestartableReaderBody builds a body source from a reopen function
// for callers who can recreate a reader on demand, e.g. reopening a
// file. declaredLength may be -1 if unknown.
func RestartableReaderBody(open func() (io.ReadCloser, error), declaredLength int64) BodySource {
	return model.RestartableReader(open, declaredLength)
}
