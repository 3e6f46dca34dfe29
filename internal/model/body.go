package model

import (
	"bytes"
	"io"
	"strings"
)

// BodySource is the tagged variant described in the data model: a body
// is either empty, a fixed byte slice, a lazy reader of unknown or
// declared length, or something that can be reopened from scratch.
// Restartability is an explicit property of the source rather than
// something inferred by probing.
type BodySource interface {
	// DeclaredLength returns the body's length if known up front.
	DeclaredLength() (int64, bool)
	// ContentTypeHint returns a content-type the source suggests, if any.
	ContentTypeHint() (string, bool)
	// Restartable reports whether Open can be called more than once and
	// yield identical bytes each time. Required for retry and for
	// redirects that preserve the body.
	Restartable() bool
	// Open returns a fresh reader over the body bytes.
	Open() (io.ReadCloser, error)
}

// Empty is the zero body.
var Empty BodySource = emptyBody{}

type emptyBody struct{}

func (emptyBody) DeclaredLength() (int64, bool)   { return 0, true }
func (emptyBody) ContentTypeHint() (string, bool) { return "", false }
func (emptyBody) Restartable() bool               { return true }
func (emptyBody) Open() (io.ReadCloser, error)    { return io.NopCloser(bytes.NewReader(nil)), nil }

// Bytes builds an exact-length, restartable body source from an
// in-memory byte slice (the slice is not copied; callers must not
// mutate it after handing it to the request).
func Bytes(b []byte) BodySource { return bytesBody(b) }

type bytesBody []byte

func (b bytesBody) DeclaredLength() (int64, bool)   { return int64(len(b)), true }
func (b bytesBody) ContentTypeHint() (string, bool) { return "", false }
func (b bytesBody) Restartable() bool               { return true }
func (b bytesBody) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// String is the string-keyed equivalent of Bytes.
func String(s string) BodySource { return stringBody(s) }

type stringBody string

func (s stringBody) DeclaredLength() (int64, bool)   { return int64(len(s)), true }
func (s stringBody) ContentTypeHint() (string, bool) { return "", false }
func (s stringBody) Restartable() bool               { return true }
func (s stringBody) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s))), nil
}

// Reader wraps a one-shot io.Reader of unknown length. It is not
// restartable: once consumed it cannot be reopened, so body-preserving
// redirects fail with BodyNotRestartable and transport failures are
// not retried.
func Reader(r io.Reader) BodySource {
	return &readerBody{r: r}
}

type readerBody struct {
	r      io.Reader
	opened bool
}

func (b *readerBody) DeclaredLength() (int64, bool)   { return 0, false }
func (b *readerBody) ContentTypeHint() (string, bool) { return "", false }
func (b *readerBody) Restartable() bool               { return false }
func (b *readerBody) Open() (io.ReadCloser, error) {
	if b.opened {
		return nil, ErrBodyAlreadyOpened
	}
	b.opened = true
	if rc, ok := b.r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(b.r), nil
}

// ErrBodyAlreadyOpened is returned by a one-shot BodySource's second
// call to Open.
var ErrBodyAlreadyOpened = boderr("body already opened")

type boderr string

func (e boderr) Error() string { return string(e) }

// RestartableReader builds a BodySource from a reopen function, for
// callers who can recreate a reader on demand (e.g. reopening a file).
// declaredLength may be -1 if unknown.
func RestartableReader(open func() (io.ReadCloser, error), declaredLength int64) BodySource {
	return &restartableBody{open: open, length: declaredLength}
}

type restartableBody struct {
	open   func() (io.ReadCloser, error)
	length int64
}

func (b *restartableBody) DeclaredLength() (int64, bool) {
	if b.length < 0 {
		return 0, false
	}
	return b.length, true
}
func (b *restartableBody) ContentTypeHint() (string, bool) { return "", false }
func (b *restartableBody) Restartable() bool                { return true }
func (b *restartableBody) Open() (io.ReadCloser, error)      { return b.open() }
